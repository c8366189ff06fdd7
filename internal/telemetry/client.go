package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

type Metric string

const (
	DeviceType       Metric = "device_type"
	IPVersion        Metric = "ip_version"
	HTTPVersion      Metric = "http_version"
	TLSVersion       Metric = "tls_version"
	OS               Metric = "os"
	DomainPopularity Metric = "domain_popularity"
)

// Metrics is the fixed fetch and render order.
var Metrics = []Metric{DeviceType, IPVersion, HTTPVersion, TLSVersion, OS, DomainPopularity}

var metricPaths = map[Metric]string{
	DeviceType:       "/radar/http/summary/device_type",
	IPVersion:        "/radar/http/summary/ip_version",
	HTTPVersion:      "/radar/http/summary/http_version",
	TLSVersion:       "/radar/http/summary/tls_version",
	OS:               "/radar/http/summary/os",
	DomainPopularity: "/radar/ranking/top",
}

var metricTitles = map[Metric]string{
	DeviceType:       "Device Type",
	IPVersion:        "IP Version",
	HTTPVersion:      "HTTP Version",
	TLSVersion:       "TLS Version",
	OS:               "Operating System",
	DomainPopularity: "Domain Popularity",
}

func (m Metric) Title() string {
	if t, ok := metricTitles[m]; ok {
		return t
	}
	return string(m)
}

// MetricTable is one rendered metric section.
type MetricTable struct {
	Metric  Metric
	Headers []string
	Rows    [][]string
}

// MetricError wraps a failure of one metric fetch.
type MetricError struct {
	Metric Metric
	Err    error
}

func (e *MetricError) Error() string { return fmt.Sprintf("%s: %v", e.Metric, e.Err) }
func (e *MetricError) Unwrap() error { return e.Err }

type ClientConfig struct {
	BaseURL    string
	Token      string
	TopDomains int
	HTTPClient *http.Client
}

type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TopDomains <= 0 {
		cfg.TopDomains = 20
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

type envelope struct {
	Success bool                       `json:"success"`
	Errors  []struct{ Message string } `json:"errors"`
	Result  map[string]json.RawMessage `json:"result"`
}

// FetchMetric retrieves one metric for a country code and date range like "30d".
func (c *Client) FetchMetric(ctx context.Context, m Metric, code, dateRange string) (MetricTable, error) {
	path, ok := metricPaths[m]
	if !ok {
		return MetricTable{}, &MetricError{Metric: m, Err: eris.New("unknown metric")}
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("dateRange", dateRange)
	if code != "" {
		params.Set("location", strings.ToUpper(code))
	}
	if m == DomainPopularity {
		params.Set("name", "top")
		params.Set("limit", strconv.Itoa(c.cfg.TopDomains))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return MetricTable{}, &MetricError{Metric: m, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return MetricTable{}, &MetricError{Metric: m, Err: err}
	}
	defer res.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return MetricTable{}, &MetricError{Metric: m, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return MetricTable{}, &MetricError{Metric: m, Err: fmt.Errorf("status code: %d", res.StatusCode)}
	}
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return MetricTable{}, &MetricError{Metric: m, Err: eris.Wrap(err, "decode")}
	}
	if !env.Success {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return MetricTable{}, &MetricError{Metric: m, Err: eris.Errorf("api error: %s", strings.Join(msgs, "; "))}
	}
	tbl, err := decodeResult(m, env.Result)
	if err != nil {
		return MetricTable{}, &MetricError{Metric: m, Err: err}
	}
	return tbl, nil
}

type summaryItem struct {
	Name     string          `json:"name"`
	Share    json.RawMessage `json:"share"`
	Requests json.RawMessage `json:"requests"`
}

type topItem struct {
	Rank       int    `json:"rank"`
	Domain     string `json:"domain"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

func decodeResult(m Metric, result map[string]json.RawMessage) (MetricTable, error) {
	if raw, ok := result["summary_0"]; ok {
		return decodeSummary(m, raw)
	}
	raw, ok := result["top_0"]
	if !ok {
		raw, ok = result["top"]
	}
	if ok {
		var items []topItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return MetricTable{}, eris.Wrap(err, "decode ranking")
		}
		tbl := MetricTable{Metric: m, Headers: []string{"Rank", "Domain", "Categories"}}
		for _, it := range items {
			names := make([]string, 0, len(it.Categories))
			for _, c := range it.Categories {
				names = append(names, c.Name)
			}
			tbl.Rows = append(tbl.Rows, []string{strconv.Itoa(it.Rank), it.Domain, strings.Join(names, ", ")})
		}
		return tbl, nil
	}
	return MetricTable{}, eris.New("unrecognized result shape")
}

func decodeSummary(m Metric, raw json.RawMessage) (MetricTable, error) {
	var list []summaryItem
	if err := json.Unmarshal(raw, &list); err == nil {
		tbl := MetricTable{Metric: m, Headers: []string{m.Title(), "Share", "Requests"}}
		for _, it := range list {
			tbl.Rows = append(tbl.Rows, []string{it.Name, formatShare(it.Share, true), scalar(it.Requests)})
		}
		return tbl, nil
	}
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil {
		return MetricTable{}, eris.Wrap(err, "decode summary")
	}
	names := make([]string, 0, len(byName))
	for k := range byName {
		names = append(names, k)
	}
	sort.Strings(names)
	tbl := MetricTable{Metric: m, Headers: []string{m.Title(), "Share"}}
	for _, k := range names {
		tbl.Rows = append(tbl.Rows, []string{k, formatShare(byName[k], false)})
	}
	return tbl, nil
}

// formatShare renders a share as a percentage. Numeric fractions in list
// summaries are scaled by 100; string values are already percentages.
func formatShare(raw json.RawMessage, fraction bool) string {
	s := scalar(raw)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if fraction && len(raw) > 0 && raw[0] != '"' {
		f *= 100
	}
	return strconv.FormatFloat(f, 'f', 2, 64) + "%"
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
