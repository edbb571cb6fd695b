package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every subcommand shares: the viper instance flags are
// bound into and the logger.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "slideclean",
		Short:         "Normalize the formatting of PowerPoint decks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newCleanCmd(a),
		newPatchCmd(a),
		newWatchCmd(a),
		newPartsCmd(a),
		newOutlineCmd(a),
	)
	return root
}

// binder returns a PreRunE hook that maps flags onto config keys, so they
// override file and environment values only when given on the command
// line. Several commands share keys, so only the running command binds.
func (a *app) binder(keys map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for flag, key := range keys {
			if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
		return nil
	}
}

func (a *app) load() (*config.Config, error) {
	return config.LoadConfigWith(a.v, a.cfgFile)
}

// options builds the cleaner options from cfg. The returned function
// releases the OCR engine.
func (a *app) options(ctx context.Context, cfg *config.Config) (cleaner.Options, func() error, error) {
	noop := func() error { return nil }
	s, err := cfg.Settings()
	if err != nil {
		return cleaner.Options{}, noop, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return cleaner.Options{}, noop, err
	}
	opts := cleaner.Options{
		Mode:       mode,
		Settings:   s,
		Rules:      cfg.PatchRules(),
		OCRTimeout: cfg.OCR.Timeout,
		TempDir:    cfg.Application.Storage.Temp,
		Logger:     a.logger,
	}
	if mode != cleaner.ModeObjectModel || !s.EnableOCR {
		return opts, noop, nil
	}
	rec, release, err := cfg.Recognizer(ctx)
	if err != nil {
		return cleaner.Options{}, noop, fmt.Errorf("ocr: %w", err)
	}
	opts.Recognizer = rec
	return opts, release, nil
}

// journal opens the run journal when a database is configured. It returns
// nil without error when none is.
func (a *app) journal(cfg *config.Config) (*database.DB, error) {
	connStr := cfg.Database.GetConnectStr()
	if connStr == "" {
		return nil, nil
	}
	return database.NewConnection(connStr)
}

func fileExists(name string) error {
	info, err := os.Stat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", name)
	}
	return nil
}
