package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joelkehle/telecom-radar/internal/render"
	"github.com/joelkehle/telecom-radar/internal/report"
)

var reportOpts struct {
	query         string
	tables        []string
	tests         []string
	onlyAnomalies bool
	horizon       int
	asJSON        bool
	htmlPath      string
	quiet         bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run one report and print it as Markdown",
	Example: `  telecom-radar report --query "Describe everything comparing india and pakistan"
  telecom-radar report --query "mobile networks in peru" --tests whatsapp,signal --only-anomalies --horizon 7`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVarP(&reportOpts.query, "query", "q", "", "free-text question naming the countries of interest")
	f.StringSliceVar(&reportOpts.tables, "tables", nil, "relational tables to read (default from config)")
	f.StringSliceVar(&reportOpts.tests, "tests", nil, "measurement test names (default from config)")
	f.BoolVar(&reportOpts.onlyAnomalies, "only-anomalies", false, "only fetch measurements flagged as anomalies")
	f.IntVar(&reportOpts.horizon, "horizon", 0, "look-back window in days (default from config)")
	f.BoolVar(&reportOpts.asJSON, "json", false, "print the full result with metadata as JSON")
	f.StringVar(&reportOpts.htmlPath, "html", "", "also write the report as an HTML page to this path")
	f.BoolVar(&reportOpts.quiet, "quiet", false, "suppress progress on stderr")
	_ = reportCmd.MarkFlagRequired("query")
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return failReport(cmd.OutOrStdout(), err)
	}
	defer a.Close(ctx)

	req := report.Request{
		UserQuery:     strings.TrimSpace(reportOpts.query),
		SQLTables:     reportOpts.tables,
		TestNames:     reportOpts.tests,
		OnlyAnomalies: reportOpts.onlyAnomalies,
		Horizon:       reportOpts.horizon,
	}
	if len(req.SQLTables) == 0 {
		req.SQLTables = a.cfg.Pipeline.Tables
	}
	if len(req.TestNames) == 0 {
		req.TestNames = a.cfg.Pipeline.Tests
	}
	if req.Horizon == 0 {
		req.Horizon = a.cfg.Pipeline.HorizonDays
	}

	var progress report.StageProgressFn
	if !reportOpts.quiet {
		progress = func(stage, message string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", stage, message)
		}
	}
	res, err := a.pipeline.RunWithProgress(ctx, req, progress)
	if err != nil {
		return failReport(cmd.OutOrStdout(), eris.Wrapf(err, "report failed at %s", report.StageNameFromError(err)))
	}

	if reportOpts.htmlPath != "" {
		page, err := render.HTML(res.Markdown, render.Meta{
			Query:     req.UserQuery,
			RunID:     res.Metadata.RunID,
			Countries: res.Metadata.Countries,
			Horizon:   req.Horizon,
			Generated: res.Metadata.CompletedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportOpts.htmlPath, []byte(page), 0o644); err != nil {
			return eris.Wrapf(err, "write %s", reportOpts.htmlPath)
		}
	}

	out := cmd.OutOrStdout()
	if reportOpts.asJSON {
		return writeEnvelope(out, &res, nil)
	}
	_, err = fmt.Fprintln(out, res.Markdown)
	return err
}

// failReport prints the failure envelope when --json is set and still
// returns err so the process exits non-zero.
func failReport(w io.Writer, err error) error {
	if reportOpts.asJSON {
		if werr := writeEnvelope(w, nil, err); werr != nil {
			return werr
		}
	}
	return err
}

func writeEnvelope(w io.Writer, res *report.Result, err error) error {
	body := map[string]any{"success": false}
	if err != nil {
		body["error"] = err.Error()
	} else if res != nil {
		body["success"] = true
		body["report"] = res.Markdown
		body["metadata"] = res.Metadata
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}
