// Package relational renders the configured store tables, filtered to the
// run's country scope, as labeled Markdown blocks.
package relational

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/gather"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/store"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

const DefaultWorkers = 4

type Builder struct {
	reader  store.TableReader
	column  string
	workers int
	log     *zap.Logger
}

func NewBuilder(reader store.TableReader, column string, workers int, log *zap.Logger) *Builder {
	if strings.TrimSpace(column) == "" {
		column = "Country"
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Builder{
		reader:  reader,
		column:  column,
		workers: workers,
		log:     logging.OrNop(log).With(zap.String("component", "relational")),
	}
}

func (b *Builder) Column() string { return b.column }

// Seed returns the distinct non-empty grouping values of table, the candidate
// list handed to the country resolver.
func (b *Builder) Seed(ctx context.Context, table string) ([]string, error) {
	t, err := b.reader.ReadTable(ctx, table)
	if err != nil {
		return nil, eris.Wrapf(err, "seed from %s", table)
	}
	vals := t.DistinctNonEmpty(b.column)
	if t.ColumnIndex(b.column) < 0 {
		b.log.Warn("seed missing_column", zap.String("table", table), zap.String("column", b.column))
	}
	return vals, nil
}

// Build reads every table, filters rows to countries and renders one block per
// non-empty table in the given order. Any read failure fails the build.
func (b *Builder) Build(ctx context.Context, tables []string, countries []string) (raw source.RawContext, err error) {
	ctx, span := tracing.Start(ctx, "relational.build", attribute.Int("tables", len(tables)))
	defer func() { tracing.End(span, err) }()

	if len(countries) == 0 {
		b.log.Info("build empty_scope")
		return source.Placeholder(source.Relational), nil
	}
	filtered, err := b.Filtered(ctx, tables, countries)
	if err != nil {
		return source.RawContext{}, err
	}
	blocks := make([]string, 0, len(filtered))
	for _, t := range filtered {
		blocks = append(blocks, RenderBlock(t))
	}
	return source.NewRawContext(source.Relational, strings.Join(blocks, "\n\n")), nil
}

// Filtered returns the non-empty tables filtered to countries, in table order.
func (b *Builder) Filtered(ctx context.Context, tables []string, countries []string) ([]store.Table, error) {
	reads := gather.All(ctx, b.workers, tables, b.reader.ReadTable)
	out := make([]store.Table, 0, len(reads))
	for _, r := range reads {
		if r.Err != nil {
			b.log.Error("build read_failed", zap.String("table", r.Key), zap.Error(r.Err))
			return nil, eris.Wrapf(r.Err, "read %s", r.Key)
		}
		if r.Value.Empty() {
			b.log.Info("build skip_empty", zap.String("table", r.Key))
			continue
		}
		if r.Value.ColumnIndex(b.column) < 0 {
			b.log.Warn("build missing_column", zap.String("table", r.Key), zap.String("column", b.column))
		}
		f := r.Value.FilterIn(b.column, countries)
		b.log.Debug("build filtered", zap.String("table", r.Key), zap.Int("rows", len(r.Value.Rows)), zap.Int("kept", len(f.Rows)))
		out = append(out, f)
	}
	return out, nil
}

// RenderBlock labels a table and renders it as Markdown.
func RenderBlock(t store.Table) string {
	return fmt.Sprintf("### %s\n%s", t.Name, mdtable.Render(t.Columns, t.Rows))
}
