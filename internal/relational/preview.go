package relational

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/joelkehle/telecom-radar/internal/store"
)

type Previewer interface {
	store.TableReader
	ReadTablePreview(ctx context.Context, name string, limit int) (store.Table, error)
}

// TablePreview pairs the first rows of a table with its first rows after
// filtering to the run's countries.
type TablePreview struct {
	Name     string
	Raw      store.Table
	Filtered store.Table
}

// Preview returns up to limit raw and filtered rows per table, in table order.
func (b *Builder) Preview(ctx context.Context, p Previewer, tables []string, countries []string, limit int) ([]TablePreview, error) {
	out := make([]TablePreview, 0, len(tables))
	for _, name := range tables {
		raw, err := p.ReadTablePreview(ctx, name, limit)
		if err != nil {
			return nil, eris.Wrapf(err, "preview %s", name)
		}
		full, err := p.ReadTable(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", name)
		}
		out = append(out, TablePreview{
			Name:     name,
			Raw:      raw,
			Filtered: full.FilterIn(b.column, countries).Head(limit),
		})
	}
	return out, nil
}
