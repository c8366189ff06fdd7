// Package directory scrapes a data-center directory once per country and
// merges the listings into one deduplicated table.
package directory

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/config"
	"github.com/joelkehle/telecom-radar/internal/gather"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

var headers = []string{"Name", "Type", "Address", "Link"}

type Config struct {
	URLTemplate string // {query} is replaced with the escaped country
	Timeout     time.Duration
	Workers     int
	Selectors   config.Selectors
}

// Stats describes one collection run.
type Stats struct {
	Countries int
	Failed    int
	Rows      int
	Duplicate int
}

type Collector struct {
	fetcher Fetcher
	cfg     Config
	sel     compiledSelectors
	log     *zap.Logger
}

func NewCollector(fetcher Fetcher, cfg Config, log *zap.Logger) (*Collector, error) {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = config.DefaultDirectoryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	sel, err := compileSelectors(cfg.Selectors)
	if err != nil {
		return nil, err
	}
	return &Collector{
		fetcher: fetcher,
		cfg:     cfg,
		sel:     sel,
		log:     logging.OrNop(log).With(zap.String("component", "directory")),
	}, nil
}

// FromConfig builds the fetcher named by cfg.Mode and the collector around it.
func FromConfig(cfg config.DirectoryConfig, log *zap.Logger) (*Collector, error) {
	var f Fetcher
	if strings.EqualFold(cfg.Mode, "browser") {
		f = NewBrowserFetcher()
	} else {
		f = NewHTTPFetcher(nil, cfg.ProxyURL, cfg.ProxyKey)
	}
	return NewCollector(f, Config{
		URLTemplate: cfg.URL,
		Timeout:     cfg.Timeout,
		Workers:     cfg.Workers,
		Selectors:   cfg.Selectors,
	}, log)
}

// PageURL returns the directory search URL for a country.
func (c *Collector) PageURL(country string) string {
	return strings.ReplaceAll(c.cfg.URLTemplate, "{query}", url.PathEscape(strings.TrimSpace(country)))
}

// Collect fetches every country independently. A country that fails or times
// out is logged and left out; it never fails the others.
func (c *Collector) Collect(ctx context.Context, countries []string) (raw source.RawContext, err error) {
	raw, _, err = c.CollectWithStats(ctx, countries)
	return raw, err
}

func (c *Collector) CollectWithStats(ctx context.Context, countries []string) (raw source.RawContext, stats Stats, err error) {
	ctx, span := tracing.Start(ctx, "directory.collect", attribute.Int("countries", len(countries)))
	defer func() { tracing.End(span, err) }()

	stats.Countries = len(countries)
	if len(countries) == 0 {
		return source.Placeholder(source.Directory), stats, nil
	}
	outcomes := gather.All(ctx, c.cfg.Workers, countries, c.fetchCountry)
	if err := ctx.Err(); err != nil {
		return source.RawContext{}, stats, err
	}

	seen := map[string]struct{}{}
	var rows [][]string
	for _, o := range outcomes {
		if o.Err != nil {
			stats.Failed++
			c.log.Warn("collect country_failed", zap.String("country", o.Key), zap.Error(o.Err))
			continue
		}
		for _, l := range o.Value {
			key := l.Link
			if key == "" {
				key = l.Name + "|" + l.Address
			}
			if _, dup := seen[key]; dup {
				stats.Duplicate++
				continue
			}
			seen[key] = struct{}{}
			rows = append(rows, []string{l.Name, l.Type, l.Address, l.Link})
		}
	}
	stats.Rows = len(rows)
	c.log.Info("collect done", zap.Int("countries", stats.Countries), zap.Int("failed", stats.Failed), zap.Int("rows", stats.Rows), zap.Int("duplicates", stats.Duplicate))
	if len(rows) == 0 {
		return source.Placeholder(source.Directory), stats, nil
	}
	return source.NewRawContext(source.Directory, mdtable.Render(headers, rows)), stats, nil
}

func (c *Collector) fetchCountry(ctx context.Context, country string) (listings []Listing, err error) {
	ctx, span := tracing.Start(ctx, "directory.fetch_country", attribute.String("country", country))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	pageURL := c.PageURL(country)
	doc, err := c.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	all, err := parseWith(doc, pageURL, c.sel)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if MatchesCountry(l.Address, country) {
			listings = append(listings, l)
		}
	}
	c.log.Debug("fetch parsed", zap.String("country", country), zap.Int("cards", len(all)), zap.Int("kept", len(listings)))
	return listings, nil
}
