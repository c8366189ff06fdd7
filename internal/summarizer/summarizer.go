// Package summarizer turns each source's raw context into a report section
// with one model call. It never retries.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/llm"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

// Input carries what a section prompt may need beyond the raw context.
type Input struct {
	Query     string
	DateRange string
}

type Summarizer struct {
	caller llm.Caller
	log    *zap.Logger
}

func New(caller llm.Caller, log *zap.Logger) *Summarizer {
	return &Summarizer{caller: caller, log: logging.OrNop(log).With(zap.String("component", "summarizer"))}
}

func (s *Summarizer) ModelName() string {
	if s == nil || s.caller == nil {
		return ""
	}
	return s.caller.ModelName()
}

// Summarize dispatches raw to the prompt for its source.
func (s *Summarizer) Summarize(ctx context.Context, raw source.RawContext, in Input) (out string, err error) {
	ctx, span := tracing.Start(ctx, "summarizer."+raw.Source.String(), attribute.Bool("placeholder", raw.Placeholder))
	defer func() { tracing.End(span, err) }()

	prompt, err := Prompt(raw, in)
	if err != nil {
		return "", err
	}
	reply, err := s.caller.Generate(ctx, prompt)
	if err != nil {
		s.log.Error("summarize transport_error", zap.String("source", raw.Source.String()), zap.String("class", string(llm.ClassifyError(err))), zap.Error(err))
		return "", eris.Wrapf(err, "summarize %s", raw.Source)
	}
	reply = strings.TrimSpace(llm.StripCodeFences(reply))
	s.log.Info("summarize done", zap.String("source", raw.Source.String()), zap.Int("chars", len(reply)))
	return reply, nil
}

func (s *Summarizer) Relational(ctx context.Context, query string, raw source.RawContext) (string, error) {
	raw.Source = source.Relational
	return s.Summarize(ctx, raw, Input{Query: query})
}

func (s *Summarizer) Directory(ctx context.Context, raw source.RawContext) (string, error) {
	raw.Source = source.Directory
	return s.Summarize(ctx, raw, Input{})
}

func (s *Summarizer) Measurement(ctx context.Context, raw source.RawContext) (string, error) {
	raw.Source = source.Measurement
	return s.Summarize(ctx, raw, Input{})
}

func (s *Summarizer) Telemetry(ctx context.Context, raw source.RawContext, dateRange string) (string, error) {
	raw.Source = source.Telemetry
	return s.Summarize(ctx, raw, Input{DateRange: dateRange})
}

// Prompt builds the instruction for raw's source.
func Prompt(raw source.RawContext, in Input) (string, error) {
	var sb strings.Builder
	switch raw.Source {
	case source.Relational:
		sb.WriteString("You are a telecom market analyst. Below are tables of mobile network operators and ISPs, one block per table, already filtered to the countries in scope.\n\n")
		fmt.Fprintf(&sb, "User question: %s\n\n", strings.TrimSpace(in.Query))
		sb.WriteString(raw.Text)
		sb.WriteString("\n\nTask:\nSummarize by country in Markdown. Under a `### CountryName` heading for each country, list the mobile network operators from the MCC/MNC table and the internet service providers from the ISP tables as bullet lists. Keep the country sections consistent.")
	case source.Directory:
		sb.WriteString("You are a global infrastructure specialist. Below is a table of data-center listings.\n\n")
		sb.WriteString(raw.Text)
		sb.WriteString("\n\nTask:\n1. Start with one line: \"Total data centers: X\".\n2. Render one Markdown table with columns | Name | Type | Address | Link |, with each Name rendered as [Name](Link).\n3. Sort rows by country.")
	case source.Measurement:
		sb.WriteString("You are a network measurement expert. Below is OONI measurement data with one row per country and test.\n\n")
		sb.WriteString(raw.Text)
		sb.WriteString("\n\nTask:\n- Render one Markdown table with columns | Country | Test | Anomalies | Accessible |, one row per (country, test) pair.\n- After the table add a bullet list titled \"High-anomaly alerts\" naming every country/test whose anomaly rate exceeds 5%.")
	case source.Telemetry:
		fmt.Fprintf(&sb, "You are a web-traffic analyst. Below is Radar data for several countries over the last %s: device type, IP version, HTTP version, TLS version and operating system shares, plus a domain popularity ranking.\n\n", in.DateRange)
		sb.WriteString(raw.Text)
		sb.WriteString("\n\nTask:\n1. For each percentage metric render one Markdown table whose first column is the metric's categories and whose remaining columns are the countries, values with two decimals.\n2. For domain popularity render one table per country with columns Rank, Domain, Categories, listing every row.\n3. Use full country names, never two-letter codes.")
	default:
		return "", eris.Errorf("no prompt for source %s", raw.Source)
	}
	if raw.Placeholder {
		sb.WriteString("\n\nThe data above is a placeholder because nothing was found for this source. Say so in one sentence and do not invent data.")
	}
	return sb.String(), nil
}
