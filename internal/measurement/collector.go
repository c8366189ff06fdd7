// Package measurement counts anomalous and accessible network measurements
// per (test, country) pair.
package measurement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joelkehle/telecom-radar/internal/countrycode"
	"github.com/joelkehle/telecom-radar/internal/gather"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

var headers = []string{"Country", "Test", "Anomalies", "Accessible"}

// Fetcher is implemented by Client.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]Measurement, error)
}

// Pair is one sub-fetch of a run.
type Pair struct {
	Test    string
	Country string
	Code    string
}

type Counts struct {
	Anomalies  int
	Accessible int
}

// Totals are running sums over every successful pair of a run.
type Totals struct {
	Anomalies  int `json:"anomalies"`
	Accessible int `json:"accessible"`
	Pairs      int `json:"pairs"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

type Request struct {
	Tests         []string
	Countries     []string
	OnlyAnomalies bool
	HorizonDays   int
}

type Collector struct {
	fetcher Fetcher
	timeout time.Duration
	workers int
	now     func() time.Time
	log     *zap.Logger
}

func NewCollector(fetcher Fetcher, timeout time.Duration, workers int, log *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Collector{
		fetcher: fetcher,
		timeout: timeout,
		workers: workers,
		now:     time.Now,
		log:     logging.OrNop(log).With(zap.String("component", "measurement")),
	}
}

// Pairs enumerates tests (outer) by countries (inner). Countries without a
// code are skipped; the count of skipped pairs is returned.
func Pairs(tests, countries []string) ([]Pair, int) {
	var (
		pairs   []Pair
		skipped int
	)
	seen := map[string]struct{}{}
	for _, raw := range tests {
		test := strings.TrimSpace(raw)
		if test == "" {
			continue
		}
		if _, dup := seen[test]; dup {
			continue
		}
		seen[test] = struct{}{}
		for _, country := range countries {
			code, ok := countrycode.ToAlpha2(country)
			if !ok {
				skipped++
				continue
			}
			pairs = append(pairs, Pair{Test: test, Country: country, Code: code})
		}
	}
	return pairs, skipped
}

// Collect runs every pair concurrently and renders one row per successful
// pair in enumeration order.
func (c *Collector) Collect(ctx context.Context, req Request) (raw source.RawContext, totals Totals, err error) {
	ctx, span := tracing.Start(ctx, "measurement.collect",
		attribute.Int("tests", len(req.Tests)), attribute.Int("countries", len(req.Countries)))
	defer func() { tracing.End(span, err) }()

	pairs, skipped := Pairs(req.Tests, req.Countries)
	totals.Skipped = skipped
	if skipped > 0 {
		c.log.Warn("collect unresolved_countries", zap.Int("skipped_pairs", skipped))
	}
	if len(pairs) == 0 {
		return source.Placeholder(source.Measurement), totals, nil
	}
	since, until := Window(c.now(), req.HorizonDays)
	outcomes := gather.All(ctx, c.workers, pairs, func(ctx context.Context, p Pair) (Counts, error) {
		return c.fetchPair(ctx, p, since, until, req.OnlyAnomalies)
	})
	if err := ctx.Err(); err != nil {
		return source.RawContext{}, totals, err
	}

	var rows [][]string
	for _, o := range outcomes {
		if o.Err != nil {
			totals.Failed++
			c.log.Warn("collect pair_failed", zap.String("test", o.Key.Test), zap.String("country", o.Key.Country), zap.Error(o.Err))
			continue
		}
		totals.Pairs++
		totals.Anomalies += o.Value.Anomalies
		totals.Accessible += o.Value.Accessible
		rows = append(rows, []string{o.Key.Country, TitleCase(o.Key.Test), strconv.Itoa(o.Value.Anomalies), strconv.Itoa(o.Value.Accessible)})
	}
	c.log.Info("collect done", zap.Int("pairs", totals.Pairs), zap.Int("failed", totals.Failed), zap.Int("anomalies", totals.Anomalies), zap.Int("accessible", totals.Accessible))
	if len(rows) == 0 {
		return source.Placeholder(source.Measurement), totals, nil
	}
	text := fmt.Sprintf("%s\n\n**Window:** %s to %s\n**Total anomalies:** %d\n**Total accessible:** %d",
		mdtable.Render(headers, rows), since, until, totals.Anomalies, totals.Accessible)
	return source.NewRawContext(source.Measurement, text), totals, nil
}

func (c *Collector) fetchPair(ctx context.Context, p Pair, since, until string, onlyAnomalies bool) (counts Counts, err error) {
	ctx, span := tracing.Start(ctx, "measurement.fetch_pair", attribute.String("test", p.Test), attribute.String("country", p.Code))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ms, err := c.fetcher.Fetch(ctx, Query{TestName: p.Test, CountryCode: p.Code, Since: since, Until: until, OnlyAnomalies: onlyAnomalies})
	if err != nil {
		return Counts{}, fmt.Errorf("%s/%s: %w", p.Test, p.Code, err)
	}
	return Count(ms), nil
}

// Count tallies measurements, counting each measurement UID once.
func Count(ms []Measurement) Counts {
	var c Counts
	seen := map[string]struct{}{}
	for _, m := range ms {
		if m.UID != "" {
			if _, dup := seen[m.UID]; dup {
				continue
			}
			seen[m.UID] = struct{}{}
		}
		if m.Anomaly {
			c.Anomalies++
		} else {
			c.Accessible++
		}
	}
	return c
}

// TitleCase turns web_connectivity into Web Connectivity.
func TitleCase(test string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(test, "_", " "))
}
