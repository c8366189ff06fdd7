package measurement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu      sync.Mutex
	queries []Query
	results map[string][]Measurement
	errs    map[string]error
	delay   map[string]time.Duration
}

func key(test, code string) string { return test + "/" + code }

func (f *fakeFetcher) Fetch(ctx context.Context, q Query) ([]Measurement, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	k := key(q.TestName, q.CountryCode)
	if d := f.delay[k]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[k]; err != nil {
		return nil, err
	}
	return f.results[k], nil
}

func ms(anomalies, accessible int) []Measurement {
	var out []Measurement
	for i := 0; i < anomalies; i++ {
		out = append(out, Measurement{UID: fmt.Sprintf("a%d", i), Anomaly: true})
	}
	for i := 0; i < accessible; i++ {
		out = append(out, Measurement{UID: fmt.Sprintf("ok%d", i)})
	}
	return out
}

func TestPairsEnumerationOrder(t *testing.T) {
	pairs, skipped := Pairs([]string{"whatsapp", "telegram", "whatsapp", " "}, []string{"India", "Atlantis", "Pakistan"})
	assert.Equal(t, 2, skipped)
	require.Len(t, pairs, 4)
	want := []string{"whatsapp/IN", "whatsapp/PK", "telegram/IN", "telegram/PK"}
	for i, p := range pairs {
		assert.Equal(t, want[i], key(p.Test, p.Code))
	}
}

func TestPairsUseCurrentCountryCodes(t *testing.T) {
	pairs, skipped := Pairs([]string{"signal"}, []string{"France", "United Kingdom", "Panama", "Benin"})
	assert.Equal(t, 0, skipped)
	var codes []string
	for _, p := range pairs {
		codes = append(codes, p.Code)
	}
	assert.Equal(t, []string{"FR", "GB", "PA", "BJ"}, codes)
}

func TestCollectOneRowPerPairInEnumerationOrder(t *testing.T) {
	f := &fakeFetcher{
		results: map[string][]Measurement{
			"whatsapp/IN": ms(2, 3),
			"whatsapp/PK": ms(1, 1),
			"telegram/IN": ms(0, 4),
			"telegram/PK": ms(5, 0),
		},
		// finish out of order
		delay: map[string]time.Duration{"whatsapp/IN": 30 * time.Millisecond, "telegram/IN": 10 * time.Millisecond},
	}
	c := NewCollector(f, time.Second, 0, nil)
	raw, totals, err := c.Collect(context.Background(), Request{
		Tests:       []string{"whatsapp", "telegram"},
		Countries:   []string{"India", "Pakistan", "Atlantis"},
		HorizonDays: 30,
	})
	require.NoError(t, err)
	assert.False(t, raw.Placeholder)

	lines := strings.Split(raw.Text, "\n")
	var rows []string
	for _, l := range lines[2:] {
		if !strings.HasPrefix(l, "|") {
			break
		}
		rows = append(rows, strings.Join(strings.Fields(strings.ReplaceAll(l, "|", " ")), " "))
	}
	assert.Equal(t, []string{
		"India Whatsapp 2 3",
		"Pakistan Whatsapp 1 1",
		"India Telegram 0 4",
		"Pakistan Telegram 5 0",
	}, rows)
	assert.Equal(t, Totals{Anomalies: 8, Accessible: 8, Pairs: 4, Skipped: 2}, totals)
	assert.Contains(t, raw.Text, "**Total anomalies:** 8")
}

func TestCollectPairFailureIsIsolated(t *testing.T) {
	f := &fakeFetcher{
		results: map[string][]Measurement{"web_connectivity/IN": ms(1, 1)},
		errs:    map[string]error{"web_connectivity/PK": &StatusError{Status: 503, Body: "busy"}},
	}
	c := NewCollector(f, time.Second, 2, nil)
	raw, totals, err := c.Collect(context.Background(), Request{
		Tests: []string{"web_connectivity"}, Countries: []string{"India", "Pakistan"}, HorizonDays: 7,
	})
	require.NoError(t, err)
	assert.Contains(t, raw.Text, "Web Connectivity")
	assert.NotContains(t, raw.Text, "Pakistan")
	assert.Equal(t, 1, totals.Failed)
	assert.Equal(t, 1, totals.Pairs)
}

func TestCollectAllFailedIsPlaceholder(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"signal/PE": errors.New("down")}}
	c := NewCollector(f, time.Second, 0, nil)
	raw, totals, err := c.Collect(context.Background(), Request{Tests: []string{"signal"}, Countries: []string{"Peru"}, HorizonDays: 1})
	require.NoError(t, err)
	assert.True(t, raw.Placeholder)
	assert.Equal(t, 1, totals.Failed)
}

func TestCollectEmptyScopeMakesNoCalls(t *testing.T) {
	f := &fakeFetcher{}
	c := NewCollector(f, time.Second, 0, nil)
	raw, _, err := c.Collect(context.Background(), Request{Tests: []string{"signal"}, HorizonDays: 1})
	require.NoError(t, err)
	assert.True(t, raw.Placeholder)
	assert.Empty(t, f.queries)
}

func TestCollectPassesWindowAndAnomalyFlag(t *testing.T) {
	f := &fakeFetcher{results: map[string][]Measurement{}}
	c := NewCollector(f, time.Second, 0, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }
	_, _, err := c.Collect(context.Background(), Request{Tests: []string{"signal"}, Countries: []string{"Peru"}, OnlyAnomalies: true, HorizonDays: 30})
	require.NoError(t, err)
	require.Len(t, f.queries, 1)
	q := f.queries[0]
	assert.Equal(t, "2026-03-01", q.Since)
	assert.Equal(t, "2026-03-31", q.Until)
	assert.True(t, q.OnlyAnomalies)
	assert.Equal(t, "PE", q.CountryCode)
}

func TestCountDeduplicatesByUID(t *testing.T) {
	got := Count([]Measurement{
		{UID: "x", Anomaly: true}, {UID: "x", Anomaly: true}, {UID: "y"}, {Anomaly: false}, {Anomaly: false},
	})
	assert.Equal(t, Counts{Anomalies: 1, Accessible: 3}, got)
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/measurements", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "whatsapp", q.Get("test_name"))
		assert.Equal(t, "IN", q.Get("probe_cc"))
		assert.Equal(t, "", q.Get("anomaly"))
		assert.Equal(t, "1000", q.Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"metadata":{},"results":[
			{"measurement_uid":"u1","probe_cc":"IN","probe_asn":"AS55836","measurement_start_time":"2026-03-01T00:00:00Z","test_name":"whatsapp","anomaly":true},
			{"measurement_uid":"u2","probe_cc":"IN","probe_asn":9498,"measurement_start_time":"2026-03-02T00:00:00Z","test_name":"whatsapp","anomaly":false}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	got, err := c.Fetch(context.Background(), Query{TestName: "whatsapp", CountryCode: "in", Since: "2026-03-01", Until: "2026-03-31"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, flexString("AS55836"), got[0].ProbeASN)
	assert.Equal(t, flexString("9498"), got[1].ProbeASN)
	assert.Equal(t, Counts{Anomalies: 1, Accessible: 1}, Count(got))
}

func TestClientNon200IsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), RequestsPerMinute: 6000})
	_, err := c.Fetch(context.Background(), Query{TestName: "signal"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.Status)
	assert.Contains(t, se.Error(), "slow down")
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Web Connectivity", TitleCase("web_connectivity"))
	assert.Equal(t, "Facebook Messenger", TitleCase("facebook_messenger"))
}
