package rules

import (
	"github.com/shopspring/decimal"
)

// Situation is the taxation situation a CST describes
type Situation string

const (
	SituationTaxed        Situation = "TAXED"
	SituationMonophasic   Situation = "MONOPHASIC"
	SituationSubstitution Situation = "SUBSTITUTION"
	SituationZeroRate     Situation = "ZERO_RATE"
	SituationExempt       Situation = "EXEMPT"
	SituationNotLevied    Situation = "NOT_LEVIED"
	SituationSuspended    Situation = "SUSPENDED"
	SituationOther        Situation = "OTHER"
)

// Scope is the geographic scope a CFOP is registered for
type Scope string

const (
	ScopeInternal   Scope = "INTERNAL"
	ScopeInterstate Scope = "INTERSTATE"
	ScopeExport     Scope = "EXPORT"
)

// Legal reference scopes
const (
	LegalScopeFederal = "FEDERAL"
	LegalScopeState   = "STATE"
)

// NcmRule describes one NCM classification
type NcmRule struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Sugar       bool     `json:"sugar"`
	Keywords    []string `json:"keywords,omitempty"`
}

// PisCofinsRule describes one PIS/COFINS CST
type PisCofinsRule struct {
	CST         string    `json:"cst"`
	Description string    `json:"description"`
	Situation   Situation `json:"situation"`
}

// Rates are the expected PIS and COFINS percentages
type Rates struct {
	Pis    decimal.Decimal `json:"pis"`
	Cofins decimal.Decimal `json:"cofins"`
}

// CfopRule describes one CFOP
type CfopRule struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Scope       Scope  `json:"scope"`
	Direction   string `json:"direction"`
	Sugar       bool   `json:"sugar"`
}

// StateRule holds state-level ICMS rules
type StateRule struct {
	State        string                     `json:"uf"`
	Name         string                     `json:"name"`
	IcmsRate     decimal.Decimal            `json:"icms_rate"`
	LegalRef     string                     `json:"legal_ref,omitempty"`
	NcmOverrides map[string]decimal.Decimal `json:"ncm_overrides,omitempty"`
}

// LegalReference is a citable piece of legislation
type LegalReference struct {
	Code     string   `json:"code"`
	Title    string   `json:"title"`
	Citation string   `json:"citation"`
	Article  string   `json:"article,omitempty"`
	Scope    string   `json:"scope"`
	Taxes    []string `json:"taxes,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// TaxConfigCheck is the outcome of checking an NCM/CST/CFOP combination
type TaxConfigCheck struct {
	Valid  bool           `json:"valid"`
	Errors []string       `json:"errors"`
	Ncm    *NcmRule       `json:"ncm_info,omitempty"`
	Pis    *PisCofinsRule `json:"pis_info,omitempty"`
	Cofins *PisCofinsRule `json:"cofins_info,omitempty"`
	Cfop   *CfopRule      `json:"cfop_info,omitempty"`
	Rates  *Rates         `json:"rates,omitempty"`
}

// Statistics summarizes the loaded tables
type Statistics struct {
	Version          string `json:"version"`
	NcmRules         int    `json:"ncm_rules"`
	SugarNcm         int    `json:"sugar_ncm"`
	CstRules         int    `json:"cst_rules"`
	RateEntries      int    `json:"rate_entries"`
	ConsistencyRules int    `json:"consistency_rules"`
	CfopRules        int    `json:"cfop_rules"`
	States           int    `json:"states"`
	LegalReferences  int    `json:"legal_references"`
}
