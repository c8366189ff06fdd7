package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joelkehle/telecom-radar/internal/relational"
	"github.com/joelkehle/telecom-radar/internal/report"
	"github.com/joelkehle/telecom-radar/internal/resolver"
	"github.com/joelkehle/telecom-radar/internal/store"
)

type fakeRunner struct {
	got      report.Request
	runErr   error
	scopeErr error
	scope    resolver.Resolution
}

func (f *fakeRunner) Run(_ context.Context, req report.Request) (report.Result, error) {
	f.got = req
	if f.runErr != nil {
		return report.Result{}, f.runErr
	}
	return report.Result{
		Request:  req,
		Markdown: "## Data Centers\n| Name |\n|---|\n| Hub |",
		Metadata: report.Metadata{RunID: "run-1", Countries: []string{"India"}},
	}, nil
}

func (f *fakeRunner) Scope(context.Context, string, []string) (resolver.Resolution, error) {
	return f.scope, f.scopeErr
}

func newServerForTest(runner *fakeRunner) http.Handler {
	return NewServer(Options{
		Runner: runner,
		Preview: func(_ context.Context, tables []string, countries []string, limit int) ([]relational.TablePreview, error) {
			var out []relational.TablePreview
			for _, name := range tables {
				raw := store.Table{Name: name, Columns: []string{"Country", "Network"}, Rows: [][]string{{"India", "Jio"}, {"Peru", "Claro"}}}
				out = append(out, relational.TablePreview{
					Name:     name,
					Raw:      raw.Head(limit),
					Filtered: raw.FilterIn("Country", countries).Head(limit),
				})
			}
			return out, nil
		},
		DefaultTables: []string{"mcc_mnc_table"},
		DefaultTests:  []string{"whatsapp"},
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	blob, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func TestRunReportAppliesDefaults(t *testing.T) {
	runner := &fakeRunner{}
	h := newServerForTest(runner)

	rr := postJSON(t, h, "/run_report", map[string]any{"user_query": "india vs pakistan"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["success"] != true {
		t.Fatalf("expected success, got %v", out)
	}
	if !strings.HasPrefix(out["report"].(string), "## Data Centers") {
		t.Fatalf("unexpected report %q", out["report"])
	}
	if runner.got.Horizon != report.DefaultHorizonDays {
		t.Fatalf("expected default horizon, got %d", runner.got.Horizon)
	}
	if fmt.Sprint(runner.got.SQLTables) != "[mcc_mnc_table]" || fmt.Sprint(runner.got.TestNames) != "[whatsapp]" {
		t.Fatalf("defaults not applied: %+v", runner.got)
	}
}

func TestRunReportPassesExplicitFields(t *testing.T) {
	runner := &fakeRunner{}
	rr := postJSON(t, newServerForTest(runner), "/run_report", map[string]any{
		"user_query":     "peru",
		"sql_tables":     []string{"traforama_isp_list"},
		"test_names":     []string{"signal", "telegram"},
		"only_anomalies": true,
		"horizon":        7,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !runner.got.OnlyAnomalies || runner.got.Horizon != 7 || len(runner.got.TestNames) != 2 {
		t.Fatalf("fields not passed through: %+v", runner.got)
	}
}

func TestRunReportRejectsBadInput(t *testing.T) {
	h := newServerForTest(&fakeRunner{})
	cases := []any{
		map[string]any{"user_query": "india", "horizon": -1},
		map[string]any{"user_query": "   "},
		map[string]any{},
	}
	for _, body := range cases {
		rr := postJSON(t, h, "/run_report", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, rr.Code)
		}
		if out := decode(t, rr); out["success"] != false || out["error"] == "" {
			t.Fatalf("expected failure envelope, got %v", out)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/run_report", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}
}

func TestRunReportFatalErrorEnvelope(t *testing.T) {
	runner := &fakeRunner{runErr: &report.StageError{Stage: "scope", Err: fmt.Errorf("%w: status code: 401", report.ErrScopeResolution)}}
	rr := postJSON(t, newServerForTest(runner), "/run_report", map[string]any{"user_query": "india"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	out := decode(t, rr)
	if out["success"] != false || !strings.Contains(out["error"].(string), "status code: 401") {
		t.Fatalf("unexpected envelope %v", out)
	}

	runner.runErr = errors.New("boom")
	rr = postJSON(t, newServerForTest(runner), "/run_report", map[string]any{"user_query": "india"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRunReportHTML(t *testing.T) {
	rr := postJSON(t, newServerForTest(&fakeRunner{}), "/run_report?format=html", map[string]any{"user_query": "india"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	out := decode(t, rr)
	page, _ := out["report"].(string)
	if out["format"] != "html" || !strings.HasPrefix(page, "<!doctype html>") {
		t.Fatalf("expected html report, got %v", out)
	}
	if !strings.Contains(page, "<td>Hub</td>") {
		t.Fatalf("expected rendered table, got %s", page)
	}
}

func TestRunReportMethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newServerForTest(&fakeRunner{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/run_report", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRawTablesPreview(t *testing.T) {
	runner := &fakeRunner{scope: resolver.Resolution{Countries: resolver.CountrySet{"India"}, Outcome: resolver.OutcomeParsed}}
	rr := httptest.NewRecorder()
	newServerForTest(runner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/raw_tables?tables=a,b&limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["user_query"] != DefaultPreviewQuery {
		t.Fatalf("expected default query, got %v", out["user_query"])
	}
	tables := out["tables"].([]any)
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	first := tables[0].(map[string]any)
	if len(first["raw"].([]any)) != 2 || len(first["filtered"].([]any)) != 1 {
		t.Fatalf("unexpected preview rows: %v", first)
	}
	if !strings.Contains(first["filtered_markdown"].(string), "Jio") {
		t.Fatalf("expected markdown preview, got %v", first["filtered_markdown"])
	}
}

func TestRawTablesScopeFailure(t *testing.T) {
	runner := &fakeRunner{scopeErr: fmt.Errorf("%w: seed", report.ErrScopeResolution)}
	rr := httptest.NewRecorder()
	newServerForTest(runner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/raw_tables", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	newServerForTest(&fakeRunner{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	h := NewServer(Options{Runner: &fakeRunner{}, Ping: func(context.Context) error { return errors.New("database is locked") }})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
