// Package processor wires ingestion, validation and report synthesis into
// a single audit pipeline.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/metrics"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	csvparser "github.com/rezonia/nfe-auditor/internal/parser/csv"
	xmlparser "github.com/rezonia/nfe-auditor/internal/parser/xml"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

// Pipeline ingests documents, validates the invoices and builds reports
type Pipeline struct {
	engine    *validator.Engine
	xml       *xmlparser.Registry
	csv       *csvparser.Parser
	generator *report.Generator
	metrics   *metrics.Collector
	logger    *zap.Logger
	workers   int
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics records ingestion failures on c. Audit metrics are recorded
// by the engine observer (see validator.WithObserver).
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.metrics = c
	}
}

// WithGenerator sets the report generator
func WithGenerator(g *report.Generator) Option {
	return func(p *Pipeline) {
		p.generator = g
	}
}

// WithWorkers bounds parallel validation
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithXMLRegistry replaces the XML adapter registry
func WithXMLRegistry(r *xmlparser.Registry) Option {
	return func(p *Pipeline) {
		p.xml = r
	}
}

// NewPipeline creates a pipeline validating with engine
func NewPipeline(engine *validator.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		xml:     xmlparser.NewRegistry(),
		csv:     csvparser.NewParser(),
		logger:  zap.NewNop(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.generator == nil {
		p.generator = report.NewGenerator(report.WithRepository(engine.Repository()))
	}
	return p
}

// Audit is one validated invoice with its report
type Audit struct {
	Invoice *model.Invoice
	Summary *report.Summary
}

// Result holds the outcome of one audited document
type Result struct {
	Format   Format
	Audits   []Audit
	Duration time.Duration
}

// Summaries returns the report of every audited invoice
func (r *Result) Summaries() []*report.Summary {
	out := make([]*report.Summary, 0, len(r.Audits))
	for _, a := range r.Audits {
		out = append(out, a.Summary)
	}
	return out
}

// TotalFindings counts findings across all invoices
func (r *Result) TotalFindings() int {
	n := 0
	for _, a := range r.Audits {
		n += len(a.Invoice.ValidationErrors)
	}
	return n
}

// Ingest parses data in any supported format into invoices
func (p *Pipeline) Ingest(ctx context.Context, data []byte) ([]*model.Invoice, Format, error) {
	format := DetectFormat(data)
	invoices, err := p.ingest(ctx, format, data)
	if err != nil {
		p.metrics.IngestError(format.String())
		p.logger.Warn("ingestion failed", zap.String("format", format.String()), zap.Error(err))
		return nil, format, err
	}
	p.logger.Debug("ingested document",
		zap.String("format", format.String()),
		zap.Int("invoices", len(invoices)))
	return invoices, format, nil
}

func (p *Pipeline) ingest(ctx context.Context, format Format, data []byte) ([]*model.Invoice, error) {
	switch format {
	case FormatXML:
		inv, err := p.xml.Parse(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("XML parsing failed: %w", err)
		}
		return []*model.Invoice{inv}, nil
	case FormatCSV:
		invs, err := p.csv.Parse(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("CSV parsing failed: %w", err)
		}
		return invs, nil
	case FormatJSON:
		invs, err := decodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("JSON parsing failed: %w", err)
		}
		return invs, nil
	}
	return nil, model.NewParseError(model.SourceUnknown, "content", "formato de entrada não reconhecido", nil)
}

// IngestFile reads and parses the file at path
func (p *Pipeline) IngestFile(ctx context.Context, path string) ([]*model.Invoice, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, FormatUnknown, err
	}
	return p.Ingest(ctx, data)
}

// Audit ingests data, validates every invoice and builds the reports
func (p *Pipeline) Audit(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	invoices, format, err := p.Ingest(ctx, data)
	if err != nil {
		return nil, err
	}
	result, err := p.AuditInvoices(ctx, invoices)
	if err != nil {
		return nil, err
	}
	result.Format = format
	result.Duration = time.Since(start)
	return result, nil
}

// AuditFile audits the file at path
func (p *Pipeline) AuditFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Audit(ctx, data)
}

// AuditInvoices validates already parsed invoices and builds the reports
func (p *Pipeline) AuditInvoices(ctx context.Context, invoices []*model.Invoice) (*Result, error) {
	start := time.Now()
	if err := p.engine.ValidateBatch(ctx, invoices, p.workers); err != nil {
		return nil, err
	}

	result := &Result{Audits: make([]Audit, 0, len(invoices))}
	for _, inv := range invoices {
		summary := p.generator.Build(inv)
		result.Audits = append(result.Audits, Audit{Invoice: inv, Summary: summary})
		p.logger.Info("invoice audited",
			zap.String("chave", inv.AccessKey),
			zap.String("status", summary.ValidationSummary.Status),
			zap.Int("errors", summary.ValidationSummary.TotalErrors),
			zap.String("impact", summary.ValidationSummary.FinancialImpact.Total.StringFixed(2)))
	}
	result.Duration = time.Since(start)
	return result, nil
}

// decodeJSON accepts one invoice object or an array of invoices
func decodeJSON(data []byte) ([]*model.Invoice, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))

	var invoices []*model.Invoice
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &invoices); err != nil {
			return nil, model.NewParseError(model.SourceJSON, "json", "JSON inválido", err)
		}
	} else {
		var inv model.Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, model.NewParseError(model.SourceJSON, "json", "JSON inválido", err)
		}
		invoices = []*model.Invoice{&inv}
	}
	if len(invoices) == 0 {
		return nil, model.NewParseError(model.SourceJSON, "json", "nenhuma NF-e encontrada", nil)
	}
	for i, inv := range invoices {
		if inv == nil || inv.AccessKey == "" {
			return nil, model.NewParseError(model.SourceJSON, "chave_acesso",
				fmt.Sprintf("NF-e %d sem chave de acesso", i+1), nil)
		}
		Normalize(inv)
		inv.ValidationErrors = nil
		if inv.Source == "" {
			inv.Source = model.SourceJSON
		}
	}
	return invoices, nil
}

// Normalize applies the ingestion normalizations to an invoice decoded
// from JSON: canonical codes, upper-case states, item numbering and totals
// when none were declared.
func Normalize(inv *model.Invoice) {
	inv.Issuer.TaxID = normalize.TaxID(inv.Issuer.TaxID)
	inv.Issuer.State = normalize.State(inv.Issuer.State)
	inv.Recipient.TaxID = normalize.TaxID(inv.Recipient.TaxID)
	inv.Recipient.State = normalize.State(inv.Recipient.State)
	inv.OriginState = normalize.State(inv.OriginState)
	inv.DestState = normalize.State(inv.DestState)
	if inv.OriginState == "" {
		inv.OriginState = inv.Issuer.State
	}
	if inv.DestState == "" {
		inv.DestState = inv.Recipient.State
	}
	inv.CFOP = normalize.CFOP(inv.CFOP)

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.Number == 0 {
			item.Number = i + 1
		}
		item.NCM = normalize.NCM(item.NCM)
		item.CFOP = normalize.CFOP(item.CFOP)
		item.Taxes.PisCST = normalize.CST(item.Taxes.PisCST)
		item.Taxes.CofinsCST = normalize.CST(item.Taxes.CofinsCST)
	}
	if inv.Totals.Products.IsZero() && len(inv.Items) > 0 {
		inv.ComputeTotals()
	}
}
