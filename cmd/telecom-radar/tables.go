package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joelkehle/telecom-radar/internal/httpapi"
	"github.com/joelkehle/telecom-radar/internal/mdtable"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the relational tables in the configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		db, _, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()

		names, err := db.ListTables(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			t, err := db.ReadTable(cmd.Context(), name)
			if err != nil {
				return err
			}
			rows = append(rows, []string{name, strconv.Itoa(len(t.Columns)), strconv.Itoa(len(t.Rows))})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), mdtable.Render([]string{"Table", "Columns", "Rows"}, rows))
		return err
	},
}

var previewOpts struct {
	query  string
	tables []string
	limit  int
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the first raw and country-filtered rows of each table for a query",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		tables := previewOpts.tables
		if len(tables) == 0 {
			tables = a.cfg.Pipeline.Tables
		}
		limit := previewOpts.limit
		if limit <= 0 {
			limit = a.cfg.Pipeline.PreviewRows
		}
		res, err := a.pipeline.Scope(ctx, previewOpts.query, tables)
		if err != nil {
			return err
		}
		previews, err := a.builder.Preview(ctx, a.db, tables, res.Countries, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Countries (%s): %v\n\n", res.Outcome, []string(res.Countries))
		for _, p := range previews {
			fmt.Fprintf(out, "### %s (first %d rows)\n%s\n\n", p.Name, limit, mdtable.Render(p.Raw.Columns, p.Raw.Rows))
			fmt.Fprintf(out, "### %s (filtered)\n%s\n\n", p.Name, mdtable.Render(p.Filtered.Columns, p.Filtered.Rows))
		}
		return nil
	},
}

func init() {
	f := previewCmd.Flags()
	f.StringVarP(&previewOpts.query, "query", "q", httpapi.DefaultPreviewQuery, "free-text question naming the countries of interest")
	f.StringSliceVar(&previewOpts.tables, "tables", nil, "tables to preview (default from config)")
	f.IntVar(&previewOpts.limit, "limit", 0, "rows per table (default from config)")
}
