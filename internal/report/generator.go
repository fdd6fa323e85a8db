// Package report turns validated invoices into audit reports: a
// machine-readable Summary and a Portuguese Markdown narrative, plus
// CSV, XLSX and PDF exporters.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

const (
	DefaultVersion   = "1.0"
	DefaultValidator = "nfe-auditor"
)

// Generator builds reports. It is safe for concurrent use.
type Generator struct {
	version   string
	validator string
	now       func() time.Time
	newID     func() string
	repo      rules.Repository
}

// Option configures a Generator
type Option func(*Generator)

// WithVersion sets the report version written to metadata
func WithVersion(v string) Option {
	return func(g *Generator) {
		if v != "" {
			g.version = v
		}
	}
}

// WithValidatorName sets the validator identity written to metadata
func WithValidatorName(name string) Option {
	return func(g *Generator) {
		if name != "" {
			g.validator = name
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithIDGenerator replaces the report id source
func WithIDGenerator(fn func() string) Option {
	return func(g *Generator) {
		g.newID = fn
	}
}

// WithRepository enables state ICMS details and legal reference titles
func WithRepository(repo rules.Repository) Option {
	return func(g *Generator) {
		g.repo = repo
	}
}

// NewGenerator creates a report generator
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		version:   DefaultVersion,
		validator: DefaultValidator,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Build summarizes the validation errors attached to inv
func (g *Generator) Build(inv *model.Invoice) *Summary {
	s := &Summary{
		Metadata: Metadata{
			ReportID:      g.newID(),
			ReportVersion: g.version,
			GeneratedAt:   g.now().UTC().Format(time.RFC3339),
			Validator:     g.validator,
		},
		NFeInfo:         nfeInfo(inv),
		Errors:          make([]ErrorEntry, 0, len(inv.ValidationErrors)),
		ErrorsByType:    make(map[string][]ErrorEntry),
		Recommendations: []string{},
		LegalReferences: []LegalCitation{},
	}
	if v, ok := g.repo.(interface{ Version() string }); ok {
		s.Metadata.RulesVersion = v.Version()
	}

	for _, e := range inv.ValidationErrors {
		info, _ := e.Code.Info()
		entry := ErrorEntry{ValidationError: e, Category: info.Category, Title: info.Title}
		s.Errors = append(s.Errors, entry)
		key := string(info.Category)
		s.ErrorsByType[key] = append(s.ErrorsByType[key], entry)
	}

	s.ValidationSummary = summarize(s.Errors)
	s.ItemsAnalysis = g.analyzeItems(inv, s.Errors)
	s.ValidationSummary.ItemsWithErrors = countItemsWithErrors(s.ItemsAnalysis)
	s.LegalReferences = g.citations(s.Errors)
	s.Recommendations = recommendations(s)
	return s
}

func nfeInfo(inv *model.Invoice) NFeInfo {
	info := NFeInfo{
		AccessKey:       inv.AccessKey,
		Number:          inv.Number,
		Series:          inv.Series,
		OperationNature: inv.OperationNature,
		CFOP:            inv.CFOP,
		Regime:          string(inv.Regime),
		Issuer:          party(inv.Issuer),
		Recipient:       party(inv.Recipient),
		Operation: Operation{
			Type:   inv.OperationType(),
			Origin: inv.OriginState,
			Dest:   inv.DestState,
		},
		Totals: Totals{
			Products: inv.Totals.Products,
			Invoice:  inv.Totals.Invoice,
			Pis:      inv.Totals.Pis,
			Cofins:   inv.Totals.Cofins,
			Icms:     inv.Totals.Icms,

			Freight:   inv.Totals.Freight,
			Insurance: inv.Totals.Insurance,
			Discount:  inv.Totals.Discount,
			Other:     inv.Totals.Other,
			IPI:       inv.Totals.IPI,
			ST:        inv.Totals.ST,
		},
		ItemCount: len(inv.Items),
	}
	if !inv.IssuedAt.IsZero() {
		info.IssueDate = inv.IssuedAt.Format("2006-01-02")
	}
	return info
}

func party(c model.Company) Party {
	return Party{
		CNPJ:          c.TaxID,
		FormattedCNPJ: normalize.FormatCNPJ(c.TaxID),
		Name:          c.Name,
		State:         c.State,
	}
}

func summarize(entries []ErrorEntry) ValidationSummary {
	vs := ValidationSummary{
		TotalErrors: len(entries),
		ByCategory:  make(map[string]int),
		FinancialImpact: FinancialImpact{
			Total: decimal.Zero,
			BySeverity: ImpactBySeverity{
				Critical: decimal.Zero,
				Error:    decimal.Zero,
				Warning:  decimal.Zero,
			},
			ByCategory: make(map[string]dec.Decimal),
		},
	}
	for _, e := range entries {
		impact := e.Impact()
		cat := string(e.Category)
		vs.ByCategory[cat]++
		vs.FinancialImpact.Total = vs.FinancialImpact.Total.Add(impact)
		if e.FinancialImpact.Valid {
			prev, ok := vs.FinancialImpact.ByCategory[cat]
			if !ok {
				prev = decimal.Zero
			}
			vs.FinancialImpact.ByCategory[cat] = prev.Add(impact)
		}
		switch e.Severity {
		case model.SeverityCritical:
			vs.BySeverity.Critical++
			vs.FinancialImpact.BySeverity.Critical = vs.FinancialImpact.BySeverity.Critical.Add(impact)
		case model.SeverityError:
			vs.BySeverity.Error++
			vs.FinancialImpact.BySeverity.Error = vs.FinancialImpact.BySeverity.Error.Add(impact)
		case model.SeverityWarning:
			vs.BySeverity.Warning++
			vs.FinancialImpact.BySeverity.Warning = vs.FinancialImpact.BySeverity.Warning.Add(impact)
		}
	}
	vs.Status = statusOf(vs.BySeverity)
	return vs
}

func statusOf(c SeverityCounts) string {
	switch {
	case c.Critical > 0:
		return StatusRejected
	case c.Error > 0 || c.Warning > 0:
		return StatusApprovedWithNote
	}
	return StatusApproved
}

func (g *Generator) analyzeItems(inv *model.Invoice, entries []ErrorEntry) []ItemAnalysis {
	byItem := make(map[int][]ErrorEntry)
	for _, e := range entries {
		if e.HasItem() {
			byItem[e.Item()] = append(byItem[e.Item()], e)
		}
	}

	out := make([]ItemAnalysis, 0, len(inv.Items))
	for _, item := range inv.Items {
		a := ItemAnalysis{
			ItemNumber:      item.Number,
			ProductCode:     item.ProductCode,
			Description:     item.Description,
			NCM:             item.NCM,
			NCMFormatted:    normalize.FormatNCM(item.NCM),
			CFOP:            item.CFOP,
			Total:           item.Total,
			ErrorCodes:      []string{},
			FinancialImpact: decimal.Zero,
			Status:          ItemOK,
		}
		for _, e := range byItem[item.Number] {
			a.ErrorCount++
			a.ErrorCodes = append(a.ErrorCodes, string(e.Code))
			a.FinancialImpact = a.FinancialImpact.Add(e.Impact())
			if a.HighestSeverity == "" || e.Severity.MoreUrgent(a.HighestSeverity) {
				a.HighestSeverity = e.Severity
			}
		}
		switch a.HighestSeverity {
		case model.SeverityCritical, model.SeverityError:
			a.Status = ItemErrors
		case model.SeverityWarning:
			a.Status = ItemWarnings
		}
		if g.repo != nil {
			if rate, ok := g.repo.StateIcmsOverride(inv.OriginState, item.NCM); ok {
				r := rate
				a.StateIcmsRate = &r
			}
		}
		out = append(out, a)
	}
	return out
}

func countItemsWithErrors(items []ItemAnalysis) int {
	n := 0
	for _, a := range items {
		if a.ErrorCount > 0 {
			n++
		}
	}
	return n
}

// citations groups the findings by legal reference in first-seen order
func (g *Generator) citations(entries []ErrorEntry) []LegalCitation {
	out := []LegalCitation{}
	index := make(map[string]int)
	for _, e := range entries {
		if e.LegalReference == "" {
			continue
		}
		key := e.LegalReference + "|" + e.LegalArticle
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, LegalCitation{
				Reference:  e.LegalReference,
				Article:    e.LegalArticle,
				Title:      g.legalTitle(e.LegalReference),
				ErrorCodes: []string{},
			})
		}
		code := string(e.Code)
		if !contains(out[i].ErrorCodes, code) {
			out[i].ErrorCodes = append(out[i].ErrorCodes, code)
		}
	}
	for i := range out {
		sort.Strings(out[i].ErrorCodes)
	}
	return out
}

func (g *Generator) legalTitle(reference string) string {
	if g.repo == nil {
		return ""
	}
	for _, ref := range g.repo.SearchLegalReferences(reference) {
		if strings.EqualFold(ref.Citation, reference) {
			return ref.Title
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
