package observer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/gnemet/SlideClean/internal/ocr"
	"github.com/gnemet/SlideClean/internal/pptxtest"
	"github.com/gnemet/SlideClean/internal/settings"
)

func newTestObserver(t *testing.T) (*Observer, *config.Config, *database.DB) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Application.Storage = config.StorageConfig{
		Stage:  filepath.Join(root, "stage"),
		Output: filepath.Join(root, "output"),
		Done:   filepath.Join(root, "done"),
	}
	cfg.Application.Report = "yaml"
	for _, dir := range []string{cfg.Application.Storage.Stage, cfg.Application.Storage.Output, cfg.Application.Storage.Done} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	db, err := database.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	opts := cleaner.Options{
		Settings: settings.Default(),
		TempDir:  root,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	o := NewObserver(cfg, db, opts, make(chan string, 100))
	o.Settle = 0
	return o, cfg, db
}

func dropDeck(t *testing.T, dir, name string) string {
	t.Helper()
	data := pptxtest.New().Slide(pptxtest.TextBox(2, "A", "Alpha")).Bytes(t)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsDeck(t *testing.T) {
	tests := map[string]bool{
		"deck.pptx":             true,
		"DECK.PPTX":             true,
		"~$deck.pptx":           false,
		".slideclean-1.tmp":     false,
		"notes.txt":             false,
		"/stage/sub/other.pptx": true,
	}
	for name, want := range tests {
		if got := isDeck(name); got != want {
			t.Errorf("isDeck(%q) = %v", name, got)
		}
	}
}

func TestProcessFile(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	path := dropDeck(t, cfg.Application.Storage.Stage, "deck.pptx")

	o.processFile(context.Background(), path)

	out := filepath.Join(cfg.Application.Storage.Output, "deck.clean.pptx")
	if _, err := os.Stat(out); err != nil {
		t.Errorf("Expected output %s: %v", out, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Application.Storage.Output, "deck.clean.report.yaml")); err != nil {
		t.Errorf("Expected report file: %v", err)
	}
	done := filepath.Join(cfg.Application.Storage.Done, "deck.pptx")
	if _, err := os.Stat(done); err != nil {
		t.Errorf("Expected input moved to done: %v", err)
	}

	runs, err := database.ListRuns(db, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %v, %v", runs, err)
	}
	if runs[0].Status != database.StatusOK || runs[0].Input != done || runs[0].Output != out {
		t.Errorf("Unexpected run %+v", runs[0])
	}
	if o.IsProcessing() {
		t.Error("Expected no active tasks")
	}
}

func TestProcessFileSkipsDuplicates(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	o.processFile(context.Background(), dropDeck(t, cfg.Application.Storage.Stage, "first.pptx"))
	o.processFile(context.Background(), dropDeck(t, cfg.Application.Storage.Stage, "again.pptx"))

	if n, _ := database.CountRuns(db); n != 1 {
		t.Errorf("Expected one journal entry, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(cfg.Application.Storage.Output, "again.clean.pptx")); !os.IsNotExist(err) {
		t.Error("Expected no output for the duplicate")
	}
	if _, err := os.Stat(filepath.Join(cfg.Application.Storage.Done, "again.pptx")); err != nil {
		t.Errorf("Expected duplicate moved to done: %v", err)
	}
}

func TestProcessFileKeepsFailedInput(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	path := filepath.Join(cfg.Application.Storage.Stage, "broken.pptx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	o.processFile(context.Background(), path)

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected failed input left in stage: %v", err)
	}
	runs, _ := database.ListRuns(db, 0)
	if len(runs) != 1 || runs[0].Status != database.StatusFailed || runs[0].Error == "" {
		t.Errorf("Expected a failed run, got %+v", runs)
	}
}

func TestStartProcessesExistingFiles(t *testing.T) {
	o, cfg, _ := newTestObserver(t)
	dropDeck(t, cfg.Application.Storage.Stage, "waiting.pptx")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Start(ctx) }()

	out := filepath.Join(cfg.Application.Storage.Output, "waiting.clean.pptx")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(out); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for output")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestReprocessAll(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	o.processFile(context.Background(), dropDeck(t, cfg.Application.Storage.Stage, "deck.pptx"))

	o.ReprocessAll(context.Background())

	runs, _ := database.ListRuns(db, 0)
	if len(runs) != 1 {
		t.Errorf("Expected the journal rebuilt with one run, got %d", len(runs))
	}
	if _, err := os.Stat(filepath.Join(cfg.Application.Storage.Done, "deck.pptx")); err != nil {
		t.Errorf("Expected deck back in done: %v", err)
	}
}

func waitForLog(t *testing.T, o *Observer, substr string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-o.LogChan:
			if strings.Contains(msg, substr) {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for log %q", substr)
		}
	}
}

func TestReprocessWhileWatching(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	o.opts.Settings.EnableOCR = true
	o.opts.Recognizer = ocr.RecognizerFunc(func(ctx context.Context, _ []byte) (string, error) {
		time.Sleep(150 * time.Millisecond)
		return "Quarterly Results", nil
	})

	data := pptxtest.New().
		Slide(pptxtest.Picture(2, "Scan", "rId2", 0, 0, 10, 10)).
		Image("rId2", "image1.png", pptxtest.SolidPNG(8, 8, nil)).
		Bytes(t)
	for _, name := range []string{"a.pptx", "b.pptx"} {
		if err := os.WriteFile(filepath.Join(cfg.Application.Storage.Done, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Start(ctx) }()
	waitForLog(t, o, "Background observer started")

	o.ReprocessAll(ctx)
	time.Sleep(300 * time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for o.IsProcessing() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the observer to go idle")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}

	// Both inputs share a checksum, so the second is a duplicate.
	if n, _ := database.CountRuns(db); n != 1 {
		t.Errorf("Expected one journal entry, got %d", n)
	}
	for _, name := range []string{"a.pptx", "b.pptx"} {
		if _, err := os.Stat(filepath.Join(cfg.Application.Storage.Done, name)); err != nil {
			t.Errorf("Expected %s back in done: %v", name, err)
		}
	}
	for len(o.LogChan) > 0 {
		if msg := <-o.LogChan; strings.Contains(msg, "Failed") {
			t.Errorf("Unexpected failure: %s", msg)
		}
	}
}

func TestReprocessRefusesWhenBusy(t *testing.T) {
	o, cfg, db := newTestObserver(t)
	o.processFile(context.Background(), dropDeck(t, cfg.Application.Storage.Stage, "deck.pptx"))

	o.incrementTask()
	if o.Reprocess(context.Background()) {
		t.Error("Expected reprocess refused while a run is active")
	}
	o.decrementTask()

	if !o.Reprocess(context.Background()) {
		t.Fatal("Expected reprocess to start")
	}
	if o.Reprocess(context.Background()) {
		t.Error("Expected a second reprocess refused")
	}
	deadline := time.Now().Add(5 * time.Second)
	for o.IsProcessing() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for reprocess")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if n, _ := database.CountRuns(db); n != 1 {
		t.Errorf("Expected the journal rebuilt with one run, got %d", n)
	}
}

func TestSubscribeFansOut(t *testing.T) {
	o, _, _ := newTestObserver(t)
	first, cancelFirst := o.Subscribe(10)
	second, cancelSecond := o.Subscribe(10)
	defer cancelSecond()

	o.log("Processing file: %s", "deck.pptx")
	for i, ch := range []<-chan string{first, second} {
		select {
		case msg := <-ch:
			if msg != "Processing file: deck.pptx" {
				t.Errorf("Subscriber %d got %q", i, msg)
			}
		default:
			t.Errorf("Subscriber %d got nothing", i)
		}
	}

	cancelFirst()
	o.log("after")
	if len(first) != 0 {
		t.Error("Expected no lines after unsubscribing")
	}
	if msg := <-second; msg != "after" {
		t.Errorf("Unexpected line %q", msg)
	}
}

func TestStartRequiresStage(t *testing.T) {
	o := NewObserver(&config.Config{}, nil, cleaner.Options{}, nil)
	if err := o.Start(context.Background()); err == nil {
		t.Error("Expected error without a stage directory")
	}
}
