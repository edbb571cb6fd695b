package main

import (
	"github.com/gnemet/SlideClean/internal/observer"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var reprocess bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Clean every deck dropped into the stage directory",
		Long: `Watch processes decks already waiting in the stage directory, then keeps
watching it. Cleaned decks and their reports go to the output directory
and processed inputs are moved to the done directory. With a database
configured, runs are journaled and decks that were already cleaned are
skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			opts, release, err := a.options(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()

			db, err := a.journal(cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			obs := observer.NewObserver(cfg, db, opts, nil)
			if reprocess {
				obs.ReprocessAll(ctx)
			}
			return obs.Start(ctx)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&reprocess, "reprocess", false, "move finished inputs back to the stage directory first")
	fl.String("stage", "", "directory to watch")
	fl.String("out", "", "directory for cleaned decks and reports")
	fl.String("done", "", "directory for processed inputs")
	fl.String("report", "", "report format: markdown, html or yaml")
	fl.String("mode", "", "editing mode: object-model or raw-patch")
	fl.Bool("ocr", false, "replace pictures of text with text boxes")

	cmd.PreRunE = a.binder(map[string]string{
		"stage":  "application.storage.stage",
		"out":    "application.storage.output",
		"done":   "application.storage.done",
		"report": "application.report",
		"mode":   "clean.mode",
		"ocr":    "clean.enable_ocr",
	})
	return cmd
}
