// Package rules provides read-only access to the fiscal reference tables
// (NCM, PIS/COFINS CST, CFOP, state overrides and legal citations) used by
// the validators.
package rules

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/model"
)

// Repository answers rule lookups. Implementations are immutable after
// construction and safe for concurrent use. Codes are expected in canonical
// form (see package normalize).
type Repository interface {
	NcmRule(code string) (NcmRule, bool)
	SugarNcmCodes() []string
	IsSugarNcm(code string) bool

	PisCofinsRule(cst string) (PisCofinsRule, bool)
	ValidCstCodes() []string
	IsValidCst(cst string) bool
	// PisCofinsRates returns a *RuleNotFoundError when the CST has no rates
	// under the regime and ErrUnsupportedRegime for unknown regimes.
	PisCofinsRates(cst string, regime model.Regime) (Rates, error)
	CstPairConsistent(pisCst, cofinsCst string) bool

	CfopRule(code string) (CfopRule, bool)
	ValidateCfopScope(code string, interstate bool) bool

	StateIcmsOverride(state, ncm string) (decimal.Decimal, bool)

	LegalReference(code string) (LegalReference, bool)
	SearchLegalReferences(text string) []LegalReference

	ValidateTaxConfiguration(ncm, pisCst, cofinsCst, cfop string) TaxConfigCheck
}
