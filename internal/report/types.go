package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/telecom-radar/internal/measurement"
	"github.com/joelkehle/telecom-radar/internal/resolver"
	"github.com/joelkehle/telecom-radar/internal/source"
)

var (
	// ErrScopeResolution is fatal to a run: without a scope there is no report.
	ErrScopeResolution = resolver.ErrScopeResolution
	ErrInvalidRequest  = errors.New("invalid request")
)

const DefaultHorizonDays = 30

type Request struct {
	UserQuery     string   `json:"user_query"`
	SQLTables     []string `json:"sql_tables"`
	TestNames     []string `json:"test_names"`
	OnlyAnomalies bool     `json:"only_anomalies"`
	Horizon       int      `json:"horizon"`
}

func (r Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.UserQuery) == "" {
		problems = append(problems, "user_query is required")
	}
	if len(r.SQLTables) == 0 {
		problems = append(problems, "sql_tables must name at least one table")
	}
	if r.Horizon <= 0 {
		problems = append(problems, "horizon must be a positive number of days")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

type Metadata struct {
	RunID             string             `json:"run_id"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       time.Time          `json:"completed_at"`
	DurationMS        int64              `json:"duration_ms"`
	Model             string             `json:"model,omitempty"`
	ResolutionOutcome string             `json:"resolution_outcome"`
	Countries         []string           `json:"countries"`
	SectionsFailed    []string           `json:"sections_failed,omitempty"`
	BranchDurationMS  map[string]int64   `json:"branch_duration_ms"`
	Measurement       measurement.Totals `json:"measurement_totals"`
}

type Result struct {
	Request  Request                `json:"request"`
	Sections []source.SectionReport `json:"-"`
	Markdown string                 `json:"report"`
	Metadata Metadata               `json:"metadata"`
}

// StageError marks a failure that aborted the whole run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// BranchError is attached to a section whose collect or summarize step failed.
type BranchError struct {
	Source source.Kind
	Step   string
	Err    error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Step, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }
