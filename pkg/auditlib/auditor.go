package auditlib

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/processor"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

// Options configures an Auditor
type Options struct {
	// RulesPath is a YAML rule pack replacing the embedded one
	RulesPath string

	// DefaultRegime applies to invoices that declare none
	DefaultRegime Regime

	// Workers bounds parallel validation (default: 4)
	Workers int

	// ReportVersion is stamped into report metadata
	ReportVersion string
}

// DefaultOptions returns default auditor options
func DefaultOptions() Options {
	return Options{
		DefaultRegime: RegimeStandard,
		Workers:       4,
		ReportVersion: report.DefaultVersion,
	}
}

// Result is the outcome of auditing one document
type Result struct {
	Format   string
	Invoices []*Invoice
	Reports  []*Report
}

// Auditor validates NF-e documents and builds their reports
type Auditor struct {
	rules    *rules.Snapshot
	engine   *validator.Engine
	pipeline *processor.Pipeline
}

// NewAuditor loads the rule tables and creates an auditor
func NewAuditor(opts Options) (*Auditor, error) {
	var (
		snap *rules.Snapshot
		err  error
	)
	if opts.RulesPath != "" {
		snap, err = rules.LoadFile(opts.RulesPath)
	} else {
		snap, err = rules.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	regime := opts.DefaultRegime
	if regime == "" {
		regime = RegimeStandard
	}
	if _, err := model.ParseRegime(string(regime)); err != nil {
		return nil, err
	}

	engine := validator.NewEngine(snap, validator.WithDefaultRegime(regime))

	genOpts := []report.Option{report.WithRepository(snap)}
	if opts.ReportVersion != "" {
		genOpts = append(genOpts, report.WithVersion(opts.ReportVersion))
	}
	pipeOpts := []processor.Option{processor.WithGenerator(report.NewGenerator(genOpts...))}
	if opts.Workers > 0 {
		pipeOpts = append(pipeOpts, processor.WithWorkers(opts.Workers))
	}

	return &Auditor{
		rules:    snap,
		engine:   engine,
		pipeline: processor.NewPipeline(engine, pipeOpts...),
	}, nil
}

// RulesVersion returns the version of the loaded rule tables
func (a *Auditor) RulesVersion() string {
	return a.rules.Version()
}

// Audit ingests a CSV, NF-e XML or JSON document and audits every invoice in it
func (a *Auditor) Audit(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.ParseError{Source: model.SourceUnknown, Field: "input", Message: "failed to read input", Cause: err}
	}

	res, err := a.pipeline.Audit(ctx, data)
	if err != nil {
		return nil, err
	}

	out := &Result{Format: res.Format.String()}
	for _, audit := range res.Audits {
		out.Invoices = append(out.Invoices, audit.Invoice)
		out.Reports = append(out.Reports, audit.Summary)
	}
	return out, nil
}

// AuditBatch audits several documents concurrently. Results keep the input
// order; the first failure cancels the remaining documents.
func (a *Auditor) AuditBatch(ctx context.Context, inputs []io.Reader) ([]*Result, error) {
	results := make([]*Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		g.Go(func() error {
			res, err := a.Audit(gctx, input)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Validate returns the findings for an already built invoice without
// modifying it
func (a *Auditor) Validate(inv *Invoice) ([]ValidationError, error) {
	return a.engine.Validate(inv)
}

// Markdown renders a report as a Markdown document
func Markdown(r *Report) string {
	return report.RenderMarkdown(r)
}
