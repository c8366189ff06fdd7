package relational

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/store"
)

type fakeReader struct {
	tables map[string]store.Table
	errs   map[string]error
}

func (f *fakeReader) ReadTable(_ context.Context, name string) (store.Table, error) {
	if err := f.errs[name]; err != nil {
		return store.Table{}, err
	}
	t, ok := f.tables[name]
	if !ok {
		return store.Table{}, errors.New("no such table: " + name)
	}
	return t, nil
}

func (f *fakeReader) ReadTablePreview(ctx context.Context, name string, limit int) (store.Table, error) {
	t, err := f.ReadTable(ctx, name)
	if err != nil {
		return t, err
	}
	return t.Head(limit), nil
}

func newReader() *fakeReader {
	return &fakeReader{tables: map[string]store.Table{
		"mcc_mnc_table": {
			Name:    "mcc_mnc_table",
			Columns: []string{"MCC", "Country", "Network"},
			Rows: [][]string{
				{"410", "Pakistan", "Jazz"},
				{"404", "India", "Airtel"},
				{"208", "France", "Orange"},
				{"410", "Pakistan", "Zong"},
			},
		},
		"traforama_isp_list": {
			Name:    "traforama_isp_list",
			Columns: []string{"Country", "ISP"},
			Rows:    [][]string{{"India", "BSNL"}, {"Germany", "DT"}},
		},
		"mideye_mobile_network_list": {
			Name:    "mideye_mobile_network_list",
			Columns: []string{"country", "Operator"},
			Rows:    [][]string{{"Pakistan", "Ufone"}},
		},
		"empty_table": {Name: "empty_table", Columns: []string{"Country"}},
	}}
}

var allTables = []string{"mcc_mnc_table", "traforama_isp_list", "mideye_mobile_network_list"}

func TestBuildOneBlockPerTableInOrder(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 2, nil)
	raw, err := b.Build(context.Background(), allTables, []string{"Pakistan", "India"})
	require.NoError(t, err)
	assert.False(t, raw.Placeholder)
	assert.Equal(t, source.Relational, raw.Source)

	var positions []int
	for _, name := range allTables {
		label := "### " + name + "\n"
		assert.Equal(t, 1, strings.Count(raw.Text, label), name)
		positions = append(positions, strings.Index(raw.Text, label))
	}
	assert.True(t, positions[0] < positions[1] && positions[1] < positions[2])
}

func TestBuildFiltersToCountrySet(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 0, nil)
	raw, err := b.Build(context.Background(), []string{"mcc_mnc_table"}, []string{"Pakistan", "India"})
	require.NoError(t, err)
	assert.Contains(t, raw.Text, "Pakistan")
	assert.Contains(t, raw.Text, "India")
	assert.Contains(t, raw.Text, "Zong")
	assert.NotContains(t, raw.Text, "France")
	assert.NotContains(t, raw.Text, "Orange")
}

func TestBuildIsIdempotent(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 3, nil)
	countries := []string{"Pakistan", "India"}
	first, err := b.Build(context.Background(), allTables, countries)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), allTables, countries)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestBuildSkipsEmptyTables(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 0, nil)
	raw, err := b.Build(context.Background(), []string{"empty_table", "traforama_isp_list"}, []string{"India"})
	require.NoError(t, err)
	assert.NotContains(t, raw.Text, "### empty_table")
	assert.True(t, strings.HasPrefix(raw.Text, "### traforama_isp_list\n"))
}

func TestBuildAllEmptyIsPlaceholder(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 0, nil)
	raw, err := b.Build(context.Background(), []string{"empty_table"}, []string{"India"})
	require.NoError(t, err)
	assert.True(t, raw.Placeholder)
	assert.Equal(t, source.NoDataPlaceholder, raw.Text)
}

func TestBuildEmptyScopeIsPlaceholder(t *testing.T) {
	b := NewBuilder(newReader(), "Country", 0, nil)
	raw, err := b.Build(context.Background(), allTables, nil)
	require.NoError(t, err)
	assert.True(t, raw.Placeholder)
}

func TestBuildReadFailureFailsBranch(t *testing.T) {
	r := newReader()
	r.errs = map[string]error{"traforama_isp_list": errors.New("disk gone")}
	b := NewBuilder(r, "Country", 0, nil)
	_, err := b.Build(context.Background(), allTables, []string{"India"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestSeedDistinctCountries(t *testing.T) {
	b := NewBuilder(newReader(), "", 0, nil)
	vals, err := b.Seed(context.Background(), "mcc_mnc_table")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pakistan", "India", "France"}, vals)

	_, err = b.Seed(context.Background(), "missing")
	require.Error(t, err)
}

func TestPreview(t *testing.T) {
	r := newReader()
	b := NewBuilder(r, "Country", 0, nil)
	previews, err := b.Preview(context.Background(), r, []string{"mcc_mnc_table"}, []string{"Pakistan"}, 3)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Len(t, previews[0].Raw.Rows, 3)
	assert.Len(t, previews[0].Filtered.Rows, 2)
}
