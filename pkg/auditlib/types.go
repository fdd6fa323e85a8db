// Package auditlib provides a public API for auditing NF-e documents of the
// sugar and ethanol sector.
//
// It exposes the invoice and finding types together with an Auditor that
// ingests CSV, NF-e XML or JSON input, validates every invoice against the
// fiscal rule tables and returns one report per invoice.
//
// Example usage:
//
//	auditor, err := auditlib.NewAuditor(auditlib.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := auditor.Audit(ctx, file)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range result.Reports {
//	    fmt.Println(r.NFeInfo.AccessKey, r.ValidationSummary.Status)
//	}
package auditlib

import (
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/report"
)

// Re-export core types for public API
type (
	Invoice       = model.Invoice
	InvoiceItem   = model.InvoiceItem
	InvoiceTotals = model.InvoiceTotals
	Company       = model.Company
	TaxItem       = model.TaxItem
	Regime        = model.Regime
	Severity      = model.Severity
	ErrorCode     = model.ErrorCode
	Category      = model.Category
	Report        = report.Summary
)

// Re-export regimes
const (
	RegimeStandard   = model.RegimeStandard
	RegimeCumulative = model.RegimeCumulative
)

// Re-export severities
const (
	SeverityCritical = model.SeverityCritical
	SeverityError    = model.SeverityError
	SeverityWarning  = model.SeverityWarning
)

// Re-export report statuses
const (
	StatusApproved         = report.StatusApproved
	StatusApprovedWithNote = report.StatusApprovedWithNote
	StatusRejected         = report.StatusRejected
)

// Re-export error types
type (
	ParseError      = model.ParseError
	RowError        = model.RowError
	ValidationError = model.ValidationError
)

// ErrUnsupportedRegime is returned for invoices declaring an unknown regime
var ErrUnsupportedRegime = model.ErrUnsupportedRegime
