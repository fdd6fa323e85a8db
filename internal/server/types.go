package server

import (
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// AuditResponse is the response for the audit endpoint
type AuditResponse struct {
	Format        string              `json:"format"`
	Invoices      int                 `json:"invoices"`
	TotalFindings int                 `json:"total_findings"`
	DurationMS    int64               `json:"duration_ms"`
	Reports       []*report.Summary   `json:"reports"`
	Advice        map[string][]string `json:"advice,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	AccessKey  string                  `json:"chave_acesso"`
	Valid      bool                    `json:"valid"`
	Errors     []model.ValidationError `json:"errors"`
	BySeverity report.SeverityCounts   `json:"by_severity"`
}

// NcmResponse is the response for the NCM lookup
type NcmResponse struct {
	rules.NcmRule
	Formatted string `json:"formatted"`
}

// CstResponse is the response for the CST lookup; rates are present when
// a regime was requested and the pack defines them
type CstResponse struct {
	rules.PisCofinsRule
	Regime model.Regime `json:"regime,omitempty"`
	Rates  *rules.Rates `json:"rates,omitempty"`
}

// LegalResponse is the response for the legal reference search
type LegalResponse struct {
	Query      string                 `json:"query,omitempty"`
	Count      int                    `json:"count"`
	References []rules.LegalReference `json:"references"`
}

// CheckRequest is the body of the tax configuration check
type CheckRequest struct {
	NCM       string `json:"ncm" binding:"required"`
	PisCST    string `json:"pis_cst" binding:"required"`
	CofinsCST string `json:"cofins_cst" binding:"required"`
	CFOP      string `json:"cfop" binding:"required"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
