package transform

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gnemet/SlideClean/internal/pptx"
	"github.com/gnemet/SlideClean/internal/settings"
)

// An abbreviation matches case-insensitively when it is preceded by white
// space and followed by white space or one of ".,;".
type abbrevRule struct {
	re *regexp.Regexp
	to string
}

type expander struct {
	rules []abbrevRule
}

func newExpander(abbrs []settings.Abbreviation) *expander {
	e := &expander{}
	for _, a := range abbrs {
		if a.From == "" {
			continue
		}
		e.rules = append(e.rules, abbrevRule{
			re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(a.From)),
			to: a.To,
		})
	}
	return e
}

// Expand applies every rule in table order.
func (e *expander) Expand(s string) string {
	for _, r := range e.rules {
		s = r.apply(s)
	}
	return s
}

func (r abbrevRule) apply(s string) string {
	locs := r.re.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		if !spaceBefore(s, loc[0]) || !separatorAfter(s, loc[1]) {
			continue
		}
		sb.WriteString(s[last:loc[0]])
		sb.WriteString(r.to)
		last = loc[1]
	}
	if last == 0 {
		return s
	}
	sb.WriteString(s[last:])
	return sb.String()
}

func spaceBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r)
}

func separatorAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r) || r == '.' || r == ',' || r == ';'
}

// ExpandShape expands abbreviations run by run so character formatting is
// kept. Each run is matched with one character of context on either side:
// the neighbouring run's text, or a line break between paragraphs. It
// returns the number of runs changed.
func (e *expander) ExpandShape(ts *pptx.TextShape) int {
	paras := ts.Paragraphs()
	changed := 0
	for pi, p := range paras {
		runs := p.Runs()
		texts := make([]string, len(runs))
		for i, r := range runs {
			texts[i] = r.Text()
		}
		for ri, r := range runs {
			before := lastRune(strings.Join(texts[:ri], ""))
			if before == "" && pi > 0 {
				before = "\n"
			}
			after := firstRune(strings.Join(texts[ri+1:], ""))
			if after == "" && pi < len(paras)-1 {
				after = "\n"
			}
			padded := before + texts[ri] + after
			out := e.Expand(padded)
			if out == padded {
				continue
			}
			next := out[len(before) : len(out)-len(after)]
			r.SetText(next)
			texts[ri] = next
			changed++
		}
	}
	return changed
}

func lastRune(s string) string {
	if s == "" {
		return ""
	}
	_, n := utf8.DecodeLastRuneInString(s)
	return s[len(s)-n:]
}

func firstRune(s string) string {
	if s == "" {
		return ""
	}
	_, n := utf8.DecodeRuneInString(s)
	return s[:n]
}
