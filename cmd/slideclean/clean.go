package main

import (
	"io"
	"os"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/gnemet/SlideClean/internal/patch"
	"github.com/gnemet/SlideClean/internal/report"
	"github.com/spf13/cobra"
)

type cleanFlags struct {
	output     string
	reportFile string
	rules      []string
}

func newCleanCmd(a *app) *cobra.Command {
	f := &cleanFlags{}
	cmd := &cobra.Command{
		Use:   "clean <deck.pptx>",
		Short: "Rewrite a deck to the configured formatting",
		Long: `Clean opens the deck, applies the configured transformations and writes
the result next to the input as <name>.clean.pptx unless -o is given.
A run report is printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.clean(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output file")
	fl.StringVar(&f.reportFile, "report-file", "", "write the report here instead of stdout")
	fl.String("report", "", "report format: markdown, html or yaml")
	fl.String("mode", "", "editing mode: object-model or raw-patch")
	fl.Bool("ocr", false, "replace pictures of text with text boxes")
	fl.String("ocr-engine", "", "OCR engine: tesseract or gemini")
	fl.Bool("custom-font", false, "apply the configured font family and size")
	fl.String("font", "", "font family")
	fl.Int("size", 0, "font size in points")
	fl.String("spacing", "", "character spacing preset: very-tight, tight, normal, loose or very-loose")
	fl.String("text-color", "", "text colour, #RRGGBB")
	fl.String("background", "", "background colour, #RRGGBB")
	fl.Bool("dedup", true, "remove repeated text shapes on a slide")
	fl.Bool("remove-animations", false, "drop animations and transitions")
	fl.Bool("remove-theme", false, "strip theme decorations from layouts and masters")
	fl.Bool("expand-notes", false, "expand abbreviations in speaker notes")

	cmd.PreRunE = a.binder(map[string]string{
		"report":            "application.report",
		"mode":              "clean.mode",
		"ocr":               "clean.enable_ocr",
		"ocr-engine":        "ocr.engine",
		"custom-font":       "clean.custom_font",
		"font":              "clean.font_family",
		"size":              "clean.font_size",
		"spacing":           "clean.spacing_preset",
		"text-color":        "clean.text_color",
		"background":        "clean.background_color",
		"dedup":             "clean.remove_duplicates",
		"remove-animations": "clean.remove_animations",
		"remove-theme":      "clean.remove_theme",
		"expand-notes":      "clean.expand_abbreviations",
	})
	return cmd
}

func newPatchCmd(a *app) *cobra.Command {
	f := &cleanFlags{}
	cmd := &cobra.Command{
		Use:   "patch <deck.pptx>",
		Short: "Rewrite attribute values in place without parsing the deck",
		Long: `Patch sets attributes directly in the text of every slide, layout, master
and theme part. Without --rule it resets character spacing to the
configured value. Rules are given as attribute=value, for example
--rule spc=0 --rule lang=en-US.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.v.Set("clean.mode", string(cleaner.ModeRawPatch))
			return a.clean(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output file")
	fl.StringVar(&f.reportFile, "report-file", "", "write the report here instead of stdout")
	fl.StringArrayVar(&f.rules, "rule", nil, "attribute=value, may be repeated")
	fl.String("report", "", "report format: markdown, html or yaml")
	fl.String("spacing", "", "character spacing preset: very-tight, tight, normal, loose or very-loose")

	cmd.PreRunE = a.binder(map[string]string{
		"report":  "application.report",
		"spacing": "clean.spacing_preset",
	})
	return cmd
}

func parseRules(specs []string) ([]patch.Rule, error) {
	var rules []patch.Rule
	for _, s := range specs {
		r, err := patch.ParseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (a *app) clean(cmd *cobra.Command, in string, f *cleanFlags) error {
	if err := fileExists(in); err != nil {
		return err
	}
	cfg, err := a.load()
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Application.Report)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	opts, release, err := a.options(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	if len(f.rules) > 0 {
		if opts.Rules, err = parseRules(f.rules); err != nil {
			return err
		}
	}

	out := f.output
	if out == "" {
		out = cleaner.OutputName(in, "")
	}

	rep, runErr := cleaner.RunFile(ctx, in, out, opts)
	a.record(cfg, rep, out, runErr)
	if runErr != nil {
		return runErr
	}

	a.logger.Info("deck cleaned", "input", in, "output", out, "failures", len(rep.Failures()))
	return writeReport(cmd.OutOrStdout(), f.reportFile, format, rep)
}

// record saves the run to the journal when one is configured. Journal
// errors are logged and never fail the run.
func (a *app) record(cfg *config.Config, rep *cleaner.Report, out string, runErr error) {
	if rep == nil {
		return
	}
	db, err := a.journal(cfg)
	if err != nil {
		a.logger.Warn("journal unavailable", "error", err)
		return
	}
	if db == nil {
		return
	}
	defer db.Close()

	run, err := database.NewRun(rep, out, runErr)
	if err == nil {
		err = database.SaveRun(db, run)
	}
	if err != nil {
		a.logger.Warn("failed to record run", "error", err)
		return
	}
	a.logger.Debug("run recorded", "id", run.ID)
}

func writeReport(stdout io.Writer, file string, format report.Format, rep *cleaner.Report) error {
	if file == "" {
		return report.Write(stdout, format, rep)
	}
	w, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := report.Write(w, format, rep); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
