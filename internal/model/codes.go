package model

import (
	"fmt"
	"strings"
)

// Severity ranks a finding by audit urgency: CRITICAL > ERROR > WARNING
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
)

// Severities lists every severity, most urgent first
var Severities = []Severity{SeverityCritical, SeverityError, SeverityWarning}

// Rank returns 0 for the most urgent severity; unknown values sort last
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	}
	return 3
}

// MoreUrgent reports whether s ranks above other
func (s Severity) MoreUrgent(other Severity) bool {
	return s.Rank() < other.Rank()
}

// Valid reports whether s belongs to the closed set
func (s Severity) Valid() bool {
	return s.Rank() < 3
}

// UnmarshalText rejects severities outside the closed set
func (s *Severity) UnmarshalText(text []byte) error {
	v := Severity(strings.ToUpper(string(text)))
	if !v.Valid() {
		return fmt.Errorf("unknown severity %q", text)
	}
	*s = v
	return nil
}

// Regime selects the PIS/COFINS rate table
type Regime string

const (
	// RegimeStandard is the non-cumulative regime (Lucro Real)
	RegimeStandard Regime = "STANDARD"
	// RegimeCumulative is the cumulative regime (Lucro Presumido)
	RegimeCumulative Regime = "CUMULATIVE"
)

var regimeAliases = map[string]Regime{
	"":                RegimeStandard,
	"STANDARD":        RegimeStandard,
	"NAO_CUMULATIVO":  RegimeStandard,
	"NÃO_CUMULATIVO":  RegimeStandard,
	"LUCRO_REAL":      RegimeStandard,
	"CUMULATIVE":      RegimeCumulative,
	"CUMULATIVO":      RegimeCumulative,
	"LUCRO_PRESUMIDO": RegimeCumulative,
}

// ParseRegime resolves a regime name or one of its Portuguese aliases.
// Empty input resolves to RegimeStandard.
func ParseRegime(s string) (Regime, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if r, ok := regimeAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedRegime, s)
}

// Category groups error codes by the check that produced them
type Category string

const (
	CategoryNCM       Category = "NCM"
	CategoryPIS       Category = "PIS"
	CategoryCOFINS    Category = "COFINS"
	CategoryPISCOFINS Category = "PISCOFINS"
	CategoryCFOP      Category = "CFOP"
	CategoryTotal     Category = "TOTAL"
)

// ErrorCode identifies a finding; the set is closed
type ErrorCode string

const (
	NCMInvalidFormat   ErrorCode = "NCM_001"
	NCMNotSugarFamily  ErrorCode = "NCM_002"
	NCMDescriptionDiff ErrorCode = "NCM_003"

	PISInvalidCST   ErrorCode = "PIS_001"
	PISRateMismatch ErrorCode = "PIS_002"
	PISValueDiff    ErrorCode = "PIS_003"

	COFINSInvalidCST   ErrorCode = "COFINS_001"
	COFINSRateMismatch ErrorCode = "COFINS_002"
	COFINSValueDiff    ErrorCode = "COFINS_003"

	PISCOFINSInconsistentCST ErrorCode = "PISCOFINS_001"

	CFOPInvalidFormat   ErrorCode = "CFOP_001"
	CFOPNotRegistered   ErrorCode = "CFOP_002"
	CFOPInternalOnInter ErrorCode = "CFOP_003"
	CFOPInterOnInternal ErrorCode = "CFOP_004"

	TotalProductsDiff ErrorCode = "TOTAL_001"
	TotalInvoiceDiff  ErrorCode = "TOTAL_002"
	TotalPISDiff      ErrorCode = "TOTAL_003"
	TotalCOFINSDiff   ErrorCode = "TOTAL_004"
)

// CodeInfo describes the fixed attributes of an error code
type CodeInfo struct {
	Severity Severity
	Category Category
	LegalRef string // key into the legal reference table
	Title    string
}

var catalog = map[ErrorCode]CodeInfo{
	NCMInvalidFormat:   {SeverityCritical, CategoryNCM, "TIPI", "NCM com formato inválido"},
	NCMNotSugarFamily:  {SeverityError, CategoryNCM, "TIPI", "NCM fora da família de açúcar/etanol"},
	NCMDescriptionDiff: {SeverityWarning, CategoryNCM, "TIPI", "Descrição incompatível com o NCM"},

	PISInvalidCST:   {SeverityCritical, CategoryPIS, "LEI_10637", "CST de PIS inválido"},
	PISRateMismatch: {SeverityCritical, CategoryPIS, "LEI_10637", "Alíquota de PIS incorreta"},
	PISValueDiff:    {SeverityError, CategoryPIS, "LEI_10637", "Valor de PIS divergente"},

	COFINSInvalidCST:   {SeverityCritical, CategoryCOFINS, "LEI_10833", "CST de COFINS inválido"},
	COFINSRateMismatch: {SeverityCritical, CategoryCOFINS, "LEI_10833", "Alíquota de COFINS incorreta"},
	COFINSValueDiff:    {SeverityError, CategoryCOFINS, "LEI_10833", "Valor de COFINS divergente"},

	PISCOFINSInconsistentCST: {SeverityWarning, CategoryPISCOFINS, "IN_RFB_2121", "CSTs de PIS e COFINS inconsistentes"},

	CFOPInvalidFormat:   {SeverityCritical, CategoryCFOP, "CONVENIO_SN_1970", "CFOP com formato inválido"},
	CFOPNotRegistered:   {SeverityCritical, CategoryCFOP, "CONVENIO_SN_1970", "CFOP não cadastrado"},
	CFOPInternalOnInter: {SeverityCritical, CategoryCFOP, "CONVENIO_SN_1970", "CFOP interno em operação interestadual"},
	CFOPInterOnInternal: {SeverityCritical, CategoryCFOP, "CONVENIO_SN_1970", "CFOP interestadual em operação interna"},

	TotalProductsDiff: {SeverityCritical, CategoryTotal, "AJUSTE_SINIEF_07_2005", "Total de produtos divergente"},
	TotalInvoiceDiff:  {SeverityWarning, CategoryTotal, "AJUSTE_SINIEF_07_2005", "Total da nota divergente"},
	TotalPISDiff:      {SeverityError, CategoryTotal, "AJUSTE_SINIEF_07_2005", "Total de PIS divergente"},
	TotalCOFINSDiff:   {SeverityError, CategoryTotal, "AJUSTE_SINIEF_07_2005", "Total de COFINS divergente"},
}

// AllErrorCodes lists the closed set in catalog order
func AllErrorCodes() []ErrorCode {
	return []ErrorCode{
		NCMInvalidFormat, NCMNotSugarFamily, NCMDescriptionDiff,
		PISInvalidCST, PISRateMismatch, PISValueDiff,
		COFINSInvalidCST, COFINSRateMismatch, COFINSValueDiff,
		PISCOFINSInconsistentCST,
		CFOPInvalidFormat, CFOPNotRegistered, CFOPInternalOnInter, CFOPInterOnInternal,
		TotalProductsDiff, TotalInvoiceDiff, TotalPISDiff, TotalCOFINSDiff,
	}
}

// Info returns the catalog entry for c
func (c ErrorCode) Info() (CodeInfo, bool) {
	info, ok := catalog[c]
	return info, ok
}

// Severity returns the default severity of c
func (c ErrorCode) Severity() Severity {
	return catalog[c].Severity
}

// Category returns the code prefix ("PIS" for "PIS_002")
func (c ErrorCode) Category() Category {
	if info, ok := catalog[c]; ok {
		return info.Category
	}
	prefix, _, _ := strings.Cut(string(c), "_")
	return Category(prefix)
}

// Valid reports whether c belongs to the closed set
func (c ErrorCode) Valid() bool {
	_, ok := catalog[c]
	return ok
}

// UnmarshalText rejects codes outside the closed set
func (c *ErrorCode) UnmarshalText(text []byte) error {
	v := ErrorCode(text)
	if !v.Valid() {
		return fmt.Errorf("unknown error code %q", text)
	}
	*c = v
	return nil
}
