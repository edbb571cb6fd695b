package observer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/gnemet/SlideClean/internal/report"
)

type Observer struct {
	cfg         *config.Config
	db          *database.DB
	opts        cleaner.Options
	format      report.Format
	activeTasks int
	mu          sync.Mutex
	runMu       sync.Mutex // held for every run and for the reset in ReprocessAll
	subs        map[chan string]struct{}
	LogChan     chan string

	// Settle is how long to wait after a write event before reading the
	// file, so copies into the stage directory can finish.
	Settle time.Duration
}

// NewObserver watches cfg's stage directory and cleans every deck dropped
// there with opts. db may be nil, which disables the journal and duplicate
// detection.
func NewObserver(cfg *config.Config, db *database.DB, opts cleaner.Options, logChan chan string) *Observer {
	format, err := report.ParseFormat(cfg.Application.Report)
	if err != nil {
		format = report.FormatMarkdown
	}
	return &Observer{
		cfg:     cfg,
		db:      db,
		opts:    opts,
		format:  format,
		LogChan: logChan,
		Settle:  2 * time.Second,
	}
}

func (o *Observer) log(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	log.Println(msg)
	if o.LogChan != nil {
		select {
		case o.LogChan <- msg:
		default:
			// fast non-blocking drop if buffer full
		}
	}
	o.mu.Lock()
	for ch := range o.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	o.mu.Unlock()
}

// Subscribe returns a channel that receives every later log line, and a
// function that ends the subscription. Lines are dropped for a subscriber
// whose buffer is full.
func (o *Observer) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)
	o.mu.Lock()
	if o.subs == nil {
		o.subs = make(map[chan string]struct{})
	}
	o.subs[ch] = struct{}{}
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		delete(o.subs, ch)
		o.mu.Unlock()
	}
}

func (o *Observer) incrementTask() {
	o.mu.Lock()
	o.activeTasks++
	o.mu.Unlock()
}

func (o *Observer) decrementTask() {
	o.mu.Lock()
	o.activeTasks--
	o.mu.Unlock()
}

func isDeck(name string) bool {
	base := filepath.Base(name)
	// Office lock files (~$deck.pptx) and our own temp files are not decks.
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(base), ".pptx")
}

// Start watches the stage directory until ctx is done. Files already in
// the stage directory are processed first. Runs are processed one at a
// time in event order.
func (o *Observer) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch Stage directory
	stageDir := o.cfg.Application.Storage.Stage
	if stageDir == "" {
		return fmt.Errorf("stage storage directory not configured")
	}

	// Ensure directories exist
	for _, dir := range []string{stageDir, o.cfg.Application.Storage.Output, o.cfg.Application.Storage.Done} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	err = watcher.Add(stageDir)
	if err != nil {
		return err
	}

	o.log("Background observer started, watching: %s", stageDir)

	// Initial scan
	o.scanDirectory(ctx, stageDir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if isDeck(event.Name) {
					o.log("Detected change in: %s", event.Name)

					// Debounce/delay for file transfer to complete
					select {
					case <-time.After(o.Settle):
					case <-ctx.Done():
						return nil
					}
					if _, err := os.Stat(event.Name); err != nil {
						continue // already processed and moved
					}
					o.processFile(ctx, event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.log("Watcher error: %v", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (o *Observer) scanDirectory(ctx context.Context, dir string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		o.log("Failed to scan directory: %v", err)
		return
	}

	for _, f := range files {
		if !f.IsDir() && isDeck(f.Name()) {
			o.processFile(ctx, filepath.Join(dir, f.Name()))
		}
	}
}

func (o *Observer) processFile(ctx context.Context, path string) {
	o.incrementTask()
	defer o.decrementTask()

	o.runMu.Lock()
	defer o.runMu.Unlock()

	filename := filepath.Base(path)
	// Another run may have finished and moved the input while we waited.
	if _, err := os.Stat(path); err != nil {
		return
	}
	o.log("Processing file: %s", filename)

	// Check for an earlier run of the same content
	if o.db != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			o.log("Failed to read file for checksum %s: %v", filename, err)
			return
		}
		checksum := cleaner.Checksum(data)
		prev, err := database.GetRunByChecksum(o.db, checksum)
		if err == nil {
			o.log("File %s (checksum: %s) already cleaned by run %s. Skipping duplicate processing.", filename, checksum, prev.ID)
			o.finalizeFile(path, filename, "")
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			o.log("DB error checking existing file: %v", err)
			return
		}
	}

	out := cleaner.OutputName(path, o.cfg.Application.Storage.Output)
	rep, runErr := cleaner.RunFile(ctx, path, out, o.opts)
	if runErr != nil {
		o.log("Failed to clean %s: %v", filename, runErr)
	}

	runID := ""
	if o.db != nil && rep != nil {
		run, err := database.NewRun(rep, out, runErr)
		if err == nil {
			err = database.SaveRun(o.db, run)
		}
		if err != nil {
			o.log("Failed to save run to DB: %v", err)
		} else {
			runID = run.ID
		}
	}
	if runErr != nil {
		// Failed inputs stay in the stage directory for inspection.
		return
	}

	if err := o.writeReport(out, rep); err != nil {
		o.log("Failed to write report for %s: %v", filename, err)
	}

	o.log("Successfully processed: %s -> %s (%d failures)", filename, out, len(rep.Failures()))

	// Move file to Done directory
	o.finalizeFile(path, filename, runID)
}

func (o *Observer) writeReport(out string, rep *cleaner.Report) error {
	ext := map[report.Format]string{
		report.FormatMarkdown: ".md",
		report.FormatHTML:     ".html",
		report.FormatYAML:     ".yaml",
	}[o.format]
	f, err := os.Create(strings.TrimSuffix(out, filepath.Ext(out)) + ".report" + ext)
	if err != nil {
		return err
	}
	if err := report.Write(f, o.format, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (o *Observer) finalizeFile(path, filename, runID string) {
	if o.cfg.Application.Storage.Done == "" {
		return
	}

	newPath := filepath.Join(o.cfg.Application.Storage.Done, filename)

	// If path is already newPath, we are done
	if path == newPath {
		return
	}

	err := os.Rename(path, newPath)
	if err != nil {
		o.log("Failed to move %s to done folder: %v", filename, err)
		return
	}
	o.log("Moved %s to %s", filename, newPath)

	if o.db != nil && runID != "" {
		// Update database path
		if err := database.UpdateRunInput(o.db, runID, newPath); err != nil {
			o.log("Failed to update file path in DB: %v", err)
		}
	}
}

// ReprocessAll clears the journal, moves every finished input back to the
// stage directory and processes it again. Inputs are never cleaned twice
// when Start sees the same files arrive.
func (o *Observer) ReprocessAll(ctx context.Context) {
	o.incrementTask()
	defer o.decrementTask()
	o.reprocess(ctx)
}

// Reprocess starts ReprocessAll in the background unless a run or another
// reprocess is in progress. It reports whether it started.
func (o *Observer) Reprocess(ctx context.Context) bool {
	o.mu.Lock()
	if o.activeTasks > 0 {
		o.mu.Unlock()
		return false
	}
	o.activeTasks++
	o.mu.Unlock()

	go func() {
		defer o.decrementTask()
		o.reprocess(ctx)
	}()
	return true
}

func (o *Observer) reprocess(ctx context.Context) {
	if !o.reset() {
		return
	}
	stageDir := o.cfg.Application.Storage.Stage
	o.log("Retriggering full scan of %s", stageDir)
	o.scanDirectory(ctx, stageDir)
}

// reset clears the journal and moves finished inputs back to stage. It
// waits for the current run so no journal row is written after the clear.
func (o *Observer) reset() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	o.log("STARTING FULL REPROCESS: Resetting state...")

	// 1. Clear database
	if o.db != nil {
		if err := database.ClearDatabase(o.db); err != nil {
			o.log("CRITICAL: Failed to clear database during reprocess: %v", err)
			return false
		}
	}

	stageDir := o.cfg.Application.Storage.Stage
	doneDir := o.cfg.Application.Storage.Done

	// 2. Move files from Done back to Stage
	if doneDir != "" && stageDir != "" {
		files, err := os.ReadDir(doneDir)
		if err == nil {
			for _, file := range files {
				if !file.IsDir() && isDeck(file.Name()) {
					oldPath := filepath.Join(doneDir, file.Name())
					newPath := filepath.Join(stageDir, file.Name())
					if err := os.Rename(oldPath, newPath); err != nil {
						o.log("Failed to move %s back to stage: %v", file.Name(), err)
					} else {
						o.log("Moved %s back to stage for reprocessing", file.Name())
					}
				}
			}
		}
	}
	return true
}

func (o *Observer) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeTasks > 0
}
