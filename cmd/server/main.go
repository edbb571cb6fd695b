// Command server exposes deck cleaning over HTTP and, when configured,
// watches the stage directory in the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/gnemet/SlideClean/internal/observer"
	"github.com/gnemet/SlideClean/internal/ocr"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run journal
	var db *database.DB
	if connStr := cfg.Database.GetConnectStr(); connStr != "" {
		db, err = database.NewConnection(connStr)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	} else {
		log.Printf("No database configured, runs will not be journaled")
	}

	// OCR is optional unless cleaning enables it by default.
	var rec ocr.Recognizer
	r, release, err := cfg.Recognizer(ctx)
	switch {
	case err == nil:
		rec = r
		defer release()
	case cfg.Clean.EnableOCR:
		log.Fatal(err)
	default:
		log.Printf("OCR unavailable: %v", err)
	}

	srv := newServer(cfg, db, rec, logger)
	srv.base = ctx

	if cfg.Application.Watch {
		opts, err := srv.options(nil)
		if err != nil {
			log.Fatal(err)
		}
		srv.obs = observer.NewObserver(cfg, db, opts, nil)
		go func() {
			if err := srv.obs.Start(ctx); err != nil {
				log.Printf("Observer stopped: %v", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s starting on http://localhost:%d\n", cfg.Application.Name, cfg.Application.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
