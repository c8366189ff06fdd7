// Package telemetry collects per-country traffic and domain metrics from a
// Radar-style telemetry API.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/countrycode"
	"github.com/joelkehle/telecom-radar/internal/gather"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

// MetricFetcher is implemented by Client.
type MetricFetcher interface {
	FetchMetric(ctx context.Context, m Metric, code, dateRange string) (MetricTable, error)
}

type country struct {
	Name string
	Code string
}

type Stats struct {
	Countries     int
	Skipped       int
	Failed        int
	MetricsFailed int
}

type Collector struct {
	fetcher MetricFetcher
	metrics []Metric
	timeout time.Duration
	workers int
	log     *zap.Logger
}

func NewCollector(fetcher MetricFetcher, timeout time.Duration, workers int, log *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Collector{
		fetcher: fetcher,
		metrics: Metrics,
		timeout: timeout,
		workers: workers,
		log:     logging.OrNop(log).With(zap.String("component", "telemetry")),
	}
}

// DateRange formats a horizon in days the way the API expects.
func DateRange(horizonDays int) string {
	return fmt.Sprintf("%dd", horizonDays)
}

func (c *Collector) Collect(ctx context.Context, countries []string, horizonDays int) (source.RawContext, error) {
	raw, _, err := c.CollectWithStats(ctx, countries, horizonDays)
	return raw, err
}

// CollectWithStats fetches each country independently and concatenates the
// country blocks in scope order.
func (c *Collector) CollectWithStats(ctx context.Context, countries []string, horizonDays int) (raw source.RawContext, stats Stats, err error) {
	ctx, span := tracing.Start(ctx, "telemetry.collect", attribute.Int("countries", len(countries)))
	defer func() { tracing.End(span, err) }()

	var targets []country
	for _, name := range countries {
		code, ok := countrycode.ToAlpha2(name)
		if !ok {
			stats.Skipped++
			c.log.Warn("collect unresolved_country", zap.String("country", name))
			continue
		}
		targets = append(targets, country{Name: name, Code: code})
	}
	stats.Countries = len(targets)
	if len(targets) == 0 {
		return source.Placeholder(source.Telemetry), stats, nil
	}
	dateRange := DateRange(horizonDays)
	outcomes := gather.All(ctx, c.workers, targets, func(ctx context.Context, t country) (countryBlock, error) {
		return c.fetchCountry(ctx, t, dateRange)
	})
	if err := ctx.Err(); err != nil {
		return source.RawContext{}, stats, err
	}
	var blocks []string
	for _, o := range outcomes {
		stats.MetricsFailed += o.Value.failed
		if o.Err != nil {
			stats.Failed++
			c.log.Warn("collect country_failed", zap.String("country", o.Key.Code), zap.Error(o.Err))
			continue
		}
		blocks = append(blocks, o.Value.text)
	}
	c.log.Info("collect done", zap.Int("countries", stats.Countries), zap.Int("failed", stats.Failed), zap.Int("metrics_failed", stats.MetricsFailed))
	return source.NewRawContext(source.Telemetry, strings.Join(blocks, "\n\n")), stats, nil
}

type countryBlock struct {
	text   string
	failed int
}

// fetchCountry fetches every metric in turn under one deadline. A failed metric
// is logged and its section omitted; the country fails only when all do.
func (c *Collector) fetchCountry(ctx context.Context, t country, dateRange string) (block countryBlock, err error) {
	ctx, span := tracing.Start(ctx, "telemetry.fetch_country", attribute.String("country", t.Code))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	name := t.Name
	if n, ok := countrycode.FromAlpha2(t.Code); ok {
		name = n
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Radar Summary (Country: %s, Range: %s)\n", name, dateRange)
	ok := 0
	for _, m := range c.metrics {
		tbl, err := c.fetcher.FetchMetric(ctx, m, t.Code, dateRange)
		if err != nil {
			block.failed++
			c.log.Warn("fetch metric_failed", zap.String("country", t.Code), zap.String("metric", string(m)), zap.Error(err))
			continue
		}
		ok++
		fmt.Fprintf(&sb, "\n## %s\n%s\n", m.Title(), mdtable.Render(tbl.Headers, tbl.Rows))
	}
	if ok == 0 {
		return block, eris.Errorf("all %d metrics failed for %s", len(c.metrics), t.Code)
	}
	block.text = strings.TrimRight(sb.String(), "\n")
	return block, nil
}
