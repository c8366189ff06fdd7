// Package report resolves a run's country scope, runs the four source
// branches concurrently and assembles their sections in a fixed order.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/gather"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/measurement"
	"github.com/joelkehle/telecom-radar/internal/resolver"
	"github.com/joelkehle/telecom-radar/internal/source"
	"github.com/joelkehle/telecom-radar/internal/summarizer"
	"github.com/joelkehle/telecom-radar/internal/telemetry"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

// RelationalSource is implemented by relational.Builder.
type RelationalSource interface {
	Column() string
	Seed(ctx context.Context, table string) ([]string, error)
	Build(ctx context.Context, tables []string, countries []string) (source.RawContext, error)
}

type ScopeResolver interface {
	Resolve(ctx context.Context, column string, candidates []string, query string) (resolver.Resolution, error)
}

type DirectoryCollector interface {
	Collect(ctx context.Context, countries []string) (source.RawContext, error)
}

type MeasurementCollector interface {
	Collect(ctx context.Context, req measurement.Request) (source.RawContext, measurement.Totals, error)
}

type TelemetryCollector interface {
	Collect(ctx context.Context, countries []string, horizonDays int) (source.RawContext, error)
}

type SectionSummarizer interface {
	Summarize(ctx context.Context, raw source.RawContext, in summarizer.Input) (string, error)
	ModelName() string
}

// StageProgressFn receives progress notes. Branch notes arrive from several
// goroutines at once.
type StageProgressFn func(stage, message string)

type Deps struct {
	Relational  RelationalSource
	Resolver    ScopeResolver
	Directory   DirectoryCollector
	Measurement MeasurementCollector
	Telemetry   TelemetryCollector
	Summarizer  SectionSummarizer
	Logger      *zap.Logger
}

type Pipeline struct {
	relational  RelationalSource
	resolver    ScopeResolver
	directory   DirectoryCollector
	measurement MeasurementCollector
	telemetry   TelemetryCollector
	summarizer  SectionSummarizer
	log         *zap.Logger
}

func NewPipeline(d Deps) (*Pipeline, error) {
	var missing []string
	if d.Relational == nil {
		missing = append(missing, "relational")
	}
	if d.Resolver == nil {
		missing = append(missing, "resolver")
	}
	if d.Summarizer == nil {
		missing = append(missing, "summarizer")
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("report pipeline missing %s", strings.Join(missing, ", "))
	}
	return &Pipeline{
		relational:  d.Relational,
		resolver:    d.Resolver,
		directory:   d.Directory,
		measurement: d.Measurement,
		telemetry:   d.Telemetry,
		summarizer:  d.Summarizer,
		log:         logging.OrNop(d.Logger).With(zap.String("component", "report")),
	}, nil
}

func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	return p.runWithProgress(ctx, req, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, progress StageProgressFn) (Result, error) {
	return p.runWithProgress(ctx, req, progress)
}

// Scope seeds candidates from the first table and asks the resolver which of
// them the query names. Any failure wraps ErrScopeResolution.
func (p *Pipeline) Scope(ctx context.Context, query string, tables []string) (res resolver.Resolution, err error) {
	ctx, span := tracing.Start(ctx, "report.scope")
	defer func() { tracing.End(span, err) }()

	if len(tables) == 0 {
		return res, eris.Wrap(ErrScopeResolution, "no tables to seed candidates from")
	}
	candidates, err := p.relational.Seed(ctx, tables[0])
	if err != nil {
		return res, eris.Wrapf(ErrScopeResolution, "seed from %s: %v", tables[0], err)
	}
	res, err = p.resolver.Resolve(ctx, p.relational.Column(), candidates, query)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()), attribute.Int("countries", len(res.Countries)))
	return res, nil
}

func (p *Pipeline) runWithProgress(ctx context.Context, req Request, progress StageProgressFn) (res Result, err error) {
	runID := uuid.NewString()
	res = Result{
		Request: req,
		Metadata: Metadata{
			RunID:            runID,
			StartedAt:        time.Now(),
			Model:            p.summarizer.ModelName(),
			BranchDurationMS: map[string]int64{},
		},
	}
	log := p.log.With(zap.String("run_id", runID))
	ctx, span := tracing.Start(ctx, "report.run", attribute.String("run_id", runID))
	defer func() {
		res.Metadata.CompletedAt = time.Now()
		res.Metadata.DurationMS = res.Metadata.CompletedAt.Sub(res.Metadata.StartedAt).Milliseconds()
		tracing.End(span, err)
	}()

	if err := req.Validate(); err != nil {
		return res, &StageError{Stage: "validate", Err: err}
	}

	emit(progress, "scope", "Resolving country scope...")
	resolution, err := p.Scope(ctx, req.UserQuery, req.SQLTables)
	if err != nil {
		log.Error("run scope_failed", zap.Error(err))
		return res, &StageError{Stage: "scope", Err: err}
	}
	countries := []string(resolution.Countries)
	res.Metadata.ResolutionOutcome = resolution.Outcome.String()
	res.Metadata.Countries = countries
	log.Info("run scope", zap.String("outcome", resolution.Outcome.String()), zap.Strings("countries", countries))

	emit(progress, "sources", fmt.Sprintf("Collecting %d sources for %d countries...", len(source.Order), len(countries)))
	outcomes := gather.All(ctx, 0, source.Order, func(ctx context.Context, k source.Kind) (branchResult, error) {
		br, err := p.runBranch(ctx, k, req, countries)
		if err != nil {
			emit(progress, k.String(), fmt.Sprintf("%s failed: %v", k.Title(), err))
		} else {
			emit(progress, k.String(), fmt.Sprintf("%s ready", k.Title()))
		}
		return br, err
	})
	if err := ctx.Err(); err != nil {
		return res, &StageError{Stage: "sources", Err: err}
	}

	for _, o := range outcomes {
		k := o.Key
		res.Metadata.BranchDurationMS[k.String()] = o.Value.duration.Milliseconds()
		if k == source.Measurement {
			res.Metadata.Measurement = o.Value.totals
		}
		section := source.SectionReport{Source: k, Title: k.Title(), Body: o.Value.body}
		if o.Err != nil {
			section.Err = o.Err
			section.Body = ErrorBody(o.Err)
			res.Metadata.SectionsFailed = append(res.Metadata.SectionsFailed, k.String())
			log.Warn("run section_failed", zap.String("source", k.String()), zap.Error(o.Err))
		}
		res.Sections = append(res.Sections, section)
	}
	res.Markdown = Assemble(res.Sections)

	emit(progress, "assemble", "Report assembled.")
	log.Info("run done",
		zap.Int("countries", len(countries)),
		zap.Strings("sections_failed", res.Metadata.SectionsFailed),
		zap.Int("measurement_anomalies", res.Metadata.Measurement.Anomalies),
	)
	return res, nil
}

type branchResult struct {
	body     string
	totals   measurement.Totals
	duration time.Duration
}

// runBranch collects one source and summarizes it. The summary starts as soon
// as this branch's context is ready.
func (p *Pipeline) runBranch(ctx context.Context, k source.Kind, req Request, countries []string) (br branchResult, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "report.branch", attribute.String("source", k.String()))
	defer func() {
		br.duration = time.Since(started)
		tracing.End(span, err)
	}()

	raw, totals, err := p.collect(ctx, k, req, countries)
	br.totals = totals
	if err != nil {
		return br, &BranchError{Source: k, Step: "collect", Err: err}
	}
	raw.Source = k
	in := summarizer.Input{Query: req.UserQuery}
	if k == source.Telemetry {
		in.DateRange = telemetry.DateRange(req.Horizon)
	}
	body, err := p.summarizer.Summarize(ctx, raw, in)
	if err != nil {
		return br, &BranchError{Source: k, Step: "summarize", Err: err}
	}
	br.body = body
	return br, nil
}

func (p *Pipeline) collect(ctx context.Context, k source.Kind, req Request, countries []string) (source.RawContext, measurement.Totals, error) {
	var none measurement.Totals
	switch k {
	case source.Relational:
		raw, err := p.relational.Build(ctx, req.SQLTables, countries)
		return raw, none, err
	case source.Directory:
		if p.directory == nil {
			return source.RawContext{}, none, eris.New("directory collector not configured")
		}
		raw, err := p.directory.Collect(ctx, countries)
		return raw, none, err
	case source.Measurement:
		if p.measurement == nil {
			return source.RawContext{}, none, eris.New("measurement collector not configured")
		}
		return p.measurement.Collect(ctx, measurement.Request{
			Tests:         req.TestNames,
			Countries:     countries,
			OnlyAnomalies: req.OnlyAnomalies,
			HorizonDays:   req.Horizon,
		})
	case source.Telemetry:
		if p.telemetry == nil {
			return source.RawContext{}, none, eris.New("telemetry collector not configured")
		}
		raw, err := p.telemetry.Collect(ctx, countries, req.Horizon)
		return raw, none, err
	default:
		return source.RawContext{}, none, eris.Errorf("unknown source %s", k)
	}
}

// Assemble renders sections as "## Title\nBody" blocks joined by a blank line.
func Assemble(sections []source.SectionReport) string {
	blocks := make([]string, 0, len(sections))
	for _, s := range sections {
		blocks = append(blocks, "## "+s.Title+"\n"+s.Body)
	}
	return strings.Join(blocks, "\n\n")
}

// ErrorBody is the inline note that replaces a failed section's summary.
func ErrorBody(err error) string {
	return "Error: " + err.Error()
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
