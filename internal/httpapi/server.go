package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
	"github.com/joelkehle/telecom-radar/internal/relational"
	"github.com/joelkehle/telecom-radar/internal/render"
	"github.com/joelkehle/telecom-radar/internal/report"
	"github.com/joelkehle/telecom-radar/internal/resolver"
)

// DefaultPreviewQuery is used by /raw_tables when no user_query is given.
const DefaultPreviewQuery = "Describe everything comparing india and pakistan"

// ReportRunner is implemented by report.Pipeline.
type ReportRunner interface {
	Run(ctx context.Context, req report.Request) (report.Result, error)
	Scope(ctx context.Context, query string, tables []string) (resolver.Resolution, error)
}

type PreviewFunc func(ctx context.Context, tables []string, countries []string, limit int) ([]relational.TablePreview, error)

type Options struct {
	Runner         ReportRunner
	Preview        PreviewFunc
	Ping           func(ctx context.Context) error
	DefaultTables  []string
	DefaultTests   []string
	DefaultHorizon int
	PreviewRows    int
	Logger         *zap.Logger
}

type Server struct {
	runner  ReportRunner
	preview PreviewFunc
	ping    func(ctx context.Context) error
	tables  []string
	tests   []string
	horizon int
	rows    int
	log     *zap.Logger
	started time.Time
}

func NewServer(opts Options) http.Handler {
	s := &Server{
		runner:  opts.Runner,
		preview: opts.Preview,
		ping:    opts.Ping,
		tables:  opts.DefaultTables,
		tests:   opts.DefaultTests,
		horizon: opts.DefaultHorizon,
		rows:    opts.PreviewRows,
		log:     logging.OrNop(opts.Logger).With(zap.String("component", "httpapi")),
		started: time.Now(),
	}
	if s.horizon <= 0 {
		s.horizon = report.DefaultHorizonDays
	}
	if s.rows <= 0 {
		s.rows = 20
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/run_report", s.handleRunReport)
	mux.HandleFunc("/raw_tables", s.handleRawTables)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// statusFor maps a fatal run error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrScopeResolution):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

func decodeJSONBytes(blob []byte, dst any) error {
	return json.Unmarshal(blob, dst)
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func parseList(value string, def []string) []string {
	var out []string
	for _, raw := range strings.Split(value, ",") {
		if v := strings.TrimSpace(raw); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type runReportRequest struct {
	UserQuery     string   `json:"user_query"`
	SQLTables     []string `json:"sql_tables"`
	TestNames     []string `json:"test_names"`
	OnlyAnomalies bool     `json:"only_anomalies"`
	Horizon       int      `json:"horizon"`
}

// toRequest fills omitted fields from the server defaults. A zero horizon
// means the default; a negative one is left for validation to reject.
func (s *Server) toRequest(in runReportRequest) report.Request {
	req := report.Request{
		UserQuery:     strings.TrimSpace(in.UserQuery),
		SQLTables:     in.SQLTables,
		TestNames:     in.TestNames,
		OnlyAnomalies: in.OnlyAnomalies,
		Horizon:       in.Horizon,
	}
	if len(req.SQLTables) == 0 {
		req.SQLTables = s.tables
	}
	if len(req.TestNames) == 0 {
		req.TestNames = s.tests
	}
	if req.Horizon == 0 {
		req.Horizon = s.horizon
	}
	return req
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := readBody(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	var in runReportRequest
	if err := decodeJSONBytes(blob, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	req := s.toRequest(in)
	if err := req.Validate(); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.log.Error("run_report failed", zap.String("stage", report.StageNameFromError(err)), zap.Error(err))
		writeFailure(w, statusFor(err), err)
		return
	}
	s.log.Info("run_report done",
		zap.String("run_id", res.Metadata.RunID),
		zap.Int64("duration_ms", res.Metadata.DurationMS),
		zap.Strings("sections_failed", res.Metadata.SectionsFailed),
	)

	if r.URL.Query().Get("format") == "html" {
		page, err := render.HTML(res.Markdown, render.Meta{
			Query:     req.UserQuery,
			RunID:     res.Metadata.RunID,
			Countries: res.Metadata.Countries,
			Horizon:   req.Horizon,
			Generated: res.Metadata.CompletedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"format":   "html",
			"report":   page,
			"metadata": res.Metadata,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"report":   res.Markdown,
		"metadata": res.Metadata,
	})
}

type tablePreviewJSON struct {
	Name             string     `json:"name"`
	Columns          []string   `json:"columns"`
	Raw              [][]string `json:"raw"`
	Filtered         [][]string `json:"filtered"`
	RawMarkdown      string     `json:"raw_markdown"`
	FilteredMarkdown string     `json:"filtered_markdown"`
}

func (s *Server) handleRawTables(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.preview == nil {
		writeFailure(w, http.StatusNotImplemented, errors.New("table preview is not configured"))
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("user_query"))
	if query == "" {
		query = DefaultPreviewQuery
	}
	tables := parseList(q.Get("tables"), s.tables)
	limit := parseInt(q.Get("limit"), s.rows)
	if limit <= 0 {
		limit = s.rows
	}

	resolution, err := s.runner.Scope(r.Context(), query, tables)
	if err != nil {
		writeFailure(w, statusFor(err), err)
		return
	}
	previews, err := s.preview(r.Context(), tables, resolution.Countries, limit)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]tablePreviewJSON, 0, len(previews))
	for _, p := range previews {
		out = append(out, tablePreviewJSON{
			Name:             p.Name,
			Columns:          p.Raw.Columns,
			Raw:              p.Raw.Rows,
			Filtered:         p.Filtered.Rows,
			RawMarkdown:      mdtable.Render(p.Raw.Columns, p.Raw.Rows),
			FilteredMarkdown: mdtable.Render(p.Filtered.Columns, p.Filtered.Rows),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"user_query":         query,
		"countries":          []string(resolution.Countries),
		"resolution_outcome": resolution.Outcome.String(),
		"tables":             out,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}
