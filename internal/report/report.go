// Package report renders run reports as Markdown, HTML or YAML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/patch"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format for reports.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Write renders r in the given format.
func Write(w io.Writer, f Format, r *cleaner.Report) error {
	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	case FormatHTML:
		return HTML(w, r)
	case FormatYAML:
		return YAML(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// Markdown renders r as a Markdown document.
func Markdown(r *cleaner.Report) string {
	var b strings.Builder
	title := "Cleaning run"
	if r.Input != "" {
		title = "Cleaning " + r.Input
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", r.ID)
	fmt.Fprintf(&b, "- **Mode:** %s\n", r.Mode)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.Started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Duration:** %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Input SHA-256:** `%s`\n", r.InputChecksum)
	if r.OutputChecksum != "" {
		fmt.Fprintf(&b, "- **Output SHA-256:** `%s`\n", r.OutputChecksum)
	}
	b.WriteString("\n")

	if t := r.Transform; t != nil {
		b.WriteString("## Changes\n\n| Change | Count |\n|---|---:|\n")
		rows := []struct {
			label string
			n     int
		}{
			{"Slides processed", t.Slides},
			{"Duplicate text boxes removed", t.DuplicatesRemoved},
			{"Text runs formatted", t.RunsFormatted},
			{"Pictures replaced by text", t.PicturesReplaced},
			{"Pictures kept (no text)", t.PicturesKept},
			{"Backgrounds changed", t.BackgroundsChanged},
			{"Animations removed", t.AnimationsRemoved},
			{"Colour maps reset", t.ColorMapsReset},
			{"Decorations removed", t.DecorationsRemoved},
			{"Notes runs expanded", t.NotesRunsExpanded},
		}
		for _, row := range rows {
			fmt.Fprintf(&b, "| %s | %d |\n", row.label, row.n)
		}
		b.WriteString("\n")

		if len(t.Notes) > 0 {
			b.WriteString("## Notes\n\n")
			for _, n := range t.Notes {
				fmt.Fprintf(&b, "- %s\n", n)
			}
			b.WriteString("\n")
		}
		if len(t.Failures) > 0 {
			b.WriteString("## Failures\n\n| Slide | Step | Shape | Error |\n|---:|---|---|---|\n")
			for _, f := range t.Failures {
				fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", f.Slide, f.Step, cell(f.Shape), cell(f.Message))
			}
			b.WriteString("\n")
		}
	}

	if p := r.Patch; p != nil {
		fmt.Fprintf(&b, "## Patched parts\n\n%d patched, %d unchanged, %d skipped, %d attributes matched.\n\n",
			p.Count(patch.StatusPatched), p.Count(patch.StatusUnchanged), p.Count(patch.StatusSkipped), p.Matches())
		b.WriteString("| Part | Status | Matches |\n|---|---|---:|\n")
		for _, part := range p.Parts {
			if part.Status == patch.StatusSkipped {
				continue
			}
			fmt.Fprintf(&b, "| `%s` | %s | %d |\n", part.Path, part.Status, part.Matches)
		}
		b.WriteString("\n")
	}

	if len(r.Modified) > 0 {
		b.WriteString("## Modified parts\n\n")
		for _, m := range r.Modified {
			fmt.Fprintf(&b, "- `%s`\n", m)
		}
	}
	return b.String()
}

// cell escapes text for a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .25em .6em; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

var policy = bluemonday.UGCPolicy()

// HTML renders r as a standalone HTML page. The Markdown rendering is
// sanitized because inputs carry user-chosen file names and shape names.
func HTML(w io.Writer, r *cleaner.Report) error {
	body := blackfriday.Run([]byte(Markdown(r)), blackfriday.WithExtensions(blackfriday.CommonExtensions))
	body = policy.SanitizeBytes(body)

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: "SlideClean run " + r.ID,
		Body:  template.HTML(body),
	})
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// YAML writes r as a YAML document.
func YAML(w io.Writer, r *cleaner.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
