package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/config"
	"github.com/gnemet/SlideClean/internal/database"
	"github.com/gnemet/SlideClean/internal/observer"
	"github.com/gnemet/SlideClean/internal/ocr"
	"github.com/gnemet/SlideClean/internal/patch"
	"github.com/gnemet/SlideClean/internal/report"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

//go:embed templates/*.html
var templateFS embed.FS

var (
	errNoJournal = errors.New("no database configured")
	errNoOCR     = errors.New("OCR requested but no OCR engine is available")
)

type server struct {
	cfg    *config.Config
	db     *database.DB
	rec    ocr.Recognizer
	obs    *observer.Observer
	logger *slog.Logger
	tmpl   *template.Template

	// base outlives requests; reprocessing runs on it.
	base context.Context
}

func newServer(cfg *config.Config, db *database.DB, rec ocr.Recognizer, logger *slog.Logger) *server {
	return &server{
		cfg:    cfg,
		db:     db,
		rec:    rec,
		logger: logger,
		tmpl:   template.Must(template.ParseFS(templateFS, "templates/*.html")),
		base:   context.Background(),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/runs/{id}", s.handleRunReport)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the JSON API on r.
func (s *server) RegisterHTTP(r chi.Router) {
	r.Post("/api/clean", s.handleClean)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/runs/{id}", s.handleRun)

	r.Get("/api/status", s.handleStatus)
	r.Post("/api/reprocess", s.handleReprocess)
	r.Get("/api/events", s.handleEvents)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// options builds cleaner options from the configuration with form values
// layered on top. A nil form gives the configured defaults.
func (s *server) options(form url.Values) (cleaner.Options, error) {
	c := *s.cfg
	cc := &c.Clean

	str := func(name string, dst *string) {
		if v := form.Get(name); v != "" {
			*dst = v
		}
	}
	str("mode", &cc.Mode)
	str("spacing", &cc.SpacingPreset)
	str("text_color", &cc.TextColor)
	str("background_color", &cc.BackgroundColor)
	if v := form.Get("font"); v != "" {
		cc.FontFamily = v
		cc.CustomFont = true
	}
	if v := form.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cleaner.Options{}, fmt.Errorf("size: %w", err)
		}
		cc.FontSize = n
		cc.CustomFont = true
	}
	for name, dst := range map[string]*bool{
		"dedup":             &cc.RemoveDuplicates,
		"remove_animations": &cc.RemoveAnimations,
		"remove_theme":      &cc.RemoveTheme,
		"expand_notes":      &cc.ExpandAbbreviations,
		"ocr":               &cc.EnableOCR,
	} {
		v := form.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cleaner.Options{}, fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}

	settings, err := c.Settings()
	if err != nil {
		return cleaner.Options{}, err
	}
	mode, err := c.Mode()
	if err != nil {
		return cleaner.Options{}, err
	}
	rules := c.PatchRules()
	if specs := form["rule"]; len(specs) > 0 {
		rules = nil
		for _, spec := range specs {
			r, err := patch.ParseRule(spec)
			if err != nil {
				return cleaner.Options{}, err
			}
			rules = append(rules, r)
		}
	}
	if mode == cleaner.ModeObjectModel && settings.EnableOCR && s.rec == nil {
		return cleaner.Options{}, errNoOCR
	}
	return cleaner.Options{
		Mode:       mode,
		Settings:   settings,
		Rules:      rules,
		Recognizer: s.rec,
		OCRTimeout: c.OCR.Timeout,
		TempDir:    c.Application.Storage.Temp,
		Logger:     s.logger,
	}, nil
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Name":     s.cfg.Application.Name,
		"Journal":  s.db != nil,
		"Watching": s.obs != nil,
	}
	if s.db != nil {
		runs, err := database.ListRuns(s.db, 20)
		if err != nil {
			s.logger.Error("Failed to list runs", "error", err)
		}
		data["Runs"] = runs
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("Failed to render index", "error", err)
	}
}

func (s *server) handleClean(w http.ResponseWriter, r *http.Request) {
	if mb := s.cfg.Application.MaxUploadMB; mb > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(mb)<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts, err := s.options(r.MultipartForm.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, rep, runErr := cleaner.Run(r.Context(), data, opts)
	rep.Input = header.Filename
	name := cleaner.OutputName(header.Filename, ".")
	s.record(rep, name, runErr)
	if runErr != nil {
		status := http.StatusInternalServerError
		var ae *archive.ArchiveError
		var nf *archive.NotFoundError
		if errors.As(runErr, &ae) || errors.As(runErr, &nf) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, runErr)
		return
	}

	w.Header().Set("Content-Type", pptxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Run-ID", rep.ID)
	w.Header().Set("X-Failures", strconv.Itoa(len(rep.Failures())))
	w.Write(out)
}

func (s *server) record(rep *cleaner.Report, output string, runErr error) {
	if s.db == nil {
		return
	}
	run, err := database.NewRun(rep, output, runErr)
	if err == nil {
		err = database.SaveRun(s.db, run)
	}
	if err != nil {
		s.logger.Error("Failed to save run", "run", rep.ID, "error", err)
	}
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, errNoJournal)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := database.ListRuns(s.db, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// lookupRun writes the error response itself and returns nil when the run
// cannot be served.
func (s *server) lookupRun(w http.ResponseWriter, r *http.Request) *database.Run {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, errNoJournal)
		return nil
	}
	id := chi.URLParam(r, "id")
	run, err := database.GetRun(s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", id))
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil
	}
	return run
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	format := report.FormatHTML
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		format = f
	}
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}
	rep, err := run.CleanerReport()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch format {
	case report.FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case report.FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	}
	if err := report.Write(w, format, rep); err != nil {
		s.logger.Error("Failed to render report", "run", run.ID, "error", err)
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"watching":   s.obs != nil,
		"processing": s.obs != nil && s.obs.IsProcessing(),
		"ocr":        s.rec != nil,
	}
	if s.db != nil {
		n, err := database.CountRuns(s.db)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		status["runs"] = n
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	if s.obs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("stage observer not running"))
		return
	}
	if !s.obs.Reprocess(s.base) {
		writeError(w, http.StatusConflict, errors.New("observer is busy"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reprocessing"})
}

// handleEvents streams observer log lines as server-sent events.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.obs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("stage observer not running"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	lines, cancel := s.obs.Subscribe(100)
	defer cancel()
	flusher.Flush()

	for {
		select {
		case msg := <-lines:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
