package database

import (
	"encoding/json"
	"time"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one journal row.
type Run struct {
	ID             string          `json:"id"`
	Input          string          `json:"input"`
	Output         string          `json:"output"`
	Mode           string          `json:"mode"`
	Status         string          `json:"status"`
	InputChecksum  string          `json:"input_checksum"`
	OutputChecksum string          `json:"output_checksum"`
	Failures       int             `json:"failures"`
	Error          string          `json:"error,omitempty"`
	Report         json.RawMessage `json:"report,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewRun builds a journal row from a run report. runErr is the error the
// run ended with, if any.
func NewRun(r *cleaner.Report, output string, runErr error) (*Run, error) {
	report, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	run := &Run{
		ID:             r.ID,
		Input:          r.Input,
		Output:         output,
		Mode:           string(r.Mode),
		Status:         StatusOK,
		InputChecksum:  r.InputChecksum,
		OutputChecksum: r.OutputChecksum,
		Failures:       len(r.Failures()),
		Report:         report,
		CreatedAt:      r.Started,
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
		run.Output = ""
	}
	return run, nil
}

// CleanerReport decodes the stored report.
func (r *Run) CleanerReport() (*cleaner.Report, error) {
	var rep cleaner.Report
	if len(r.Report) == 0 {
		return &cleaner.Report{ID: r.ID, Input: r.Input, Mode: cleaner.Mode(r.Mode), InputChecksum: r.InputChecksum}, nil
	}
	if err := json.Unmarshal(r.Report, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

const runColumns = "id, input, output, mode, status, input_checksum, output_checksum, failures, error, report, created_at"

func SaveRun(db *DB, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.Exec(db.rebind(query), r.ID, r.Input, r.Output, r.Mode, r.Status, r.InputChecksum,
		r.OutputChecksum, r.Failures, r.Error, string(r.Report), r.CreatedAt.UTC().Format(timeLayout))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var report, created string
	if err := s.Scan(&r.ID, &r.Input, &r.Output, &r.Mode, &r.Status, &r.InputChecksum,
		&r.OutputChecksum, &r.Failures, &r.Error, &report, &created); err != nil {
		return nil, err
	}
	if report != "" {
		r.Report = json.RawMessage(report)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t
	return &r, nil
}

// GetRun returns sql.ErrNoRows when id is unknown.
func GetRun(db *DB, id string) (*Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE id = $1"
	return scanRun(db.QueryRow(db.rebind(query), id))
}

// GetRunByChecksum returns the latest successful run of an input with the
// given checksum, or sql.ErrNoRows.
func GetRunByChecksum(db *DB, checksum string) (*Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE input_checksum = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1"
	return scanRun(db.QueryRow(db.rebind(query), checksum, StatusOK))
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func ListRuns(db *DB, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := db.Query(db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func UpdateRunInput(db *DB, id, input string) error {
	_, err := db.Exec(db.rebind("UPDATE runs SET input = $1 WHERE id = $2"), input, id)
	return err
}

func CountRuns(db *DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

func ClearDatabase(db *DB) error {
	_, err := db.Exec("DELETE FROM runs")
	return err
}
