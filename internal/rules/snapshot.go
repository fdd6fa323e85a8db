package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
)

// Snapshot is an immutable, in-memory Repository built from a Pack.
// All maps are populated once in NewSnapshot and only read afterwards.
type Snapshot struct {
	version string

	ncm      map[string]NcmRule
	sugarNcm []string

	cst          map[string]PisCofinsRule
	cstCodes     []string
	rates        map[model.Regime]map[string]Rates
	inconsistent map[cstPair]string
	ruleCount    int

	cfop      map[string]CfopRule
	cfopCodes []string

	states map[string]StateRule

	legal      map[string]LegalReference
	legalOrder []string
}

var _ Repository = (*Snapshot)(nil)

// NewSnapshot validates a pack and indexes it
func NewSnapshot(p *Pack) (*Snapshot, error) {
	if p == nil {
		return nil, invalidPack("nil pack")
	}

	s := &Snapshot{
		version: p.Version,
		ncm:     make(map[string]NcmRule, len(p.Ncm)),
		cst:     make(map[string]PisCofinsRule, len(p.PisCofins)),
		rates: map[model.Regime]map[string]Rates{
			model.RegimeStandard:   {},
			model.RegimeCumulative: {},
		},
		cfop:      make(map[string]CfopRule, len(p.Cfop)),
		states:    make(map[string]StateRule, len(p.States)),
		legal:     make(map[string]LegalReference, len(p.LegalReferences)),
		ruleCount: len(p.ConsistencyRules),
	}

	if err := s.indexNcm(p.Ncm); err != nil {
		return nil, err
	}
	if err := s.indexCst(p.PisCofins); err != nil {
		return nil, err
	}
	if err := s.indexCfop(p.Cfop); err != nil {
		return nil, err
	}
	if err := s.indexStates(p.States); err != nil {
		return nil, err
	}
	s.indexLegal(p.LegalReferences)

	inconsistent, err := evaluatePairs(p.ConsistencyRules, s.cst)
	if err != nil {
		return nil, err
	}
	s.inconsistent = inconsistent

	return s, nil
}

func (s *Snapshot) indexNcm(entries []NcmEntry) error {
	for _, e := range entries {
		code := normalize.NCM(e.Code)
		if !normalize.IsDigits(code, 8) {
			return invalidPack("ncm %q is not 8 digits", e.Code)
		}
		keywords := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			keywords = append(keywords, normalize.Fold(k))
		}
		s.ncm[code] = NcmRule{
			Code:        code,
			Description: e.Description,
			Category:    e.Category,
			Sugar:       e.Sugar,
			Keywords:    keywords,
		}
		if e.Sugar {
			s.sugarNcm = append(s.sugarNcm, code)
		}
	}
	sort.Strings(s.sugarNcm)
	return nil
}

func (s *Snapshot) indexCst(entries []CstEntry) error {
	for _, e := range entries {
		cst := normalize.CST(e.CST)
		if !normalize.IsDigits(cst, 2) {
			return invalidPack("cst %q is not 2 digits", e.CST)
		}
		s.cst[cst] = PisCofinsRule{
			CST:         cst,
			Description: e.Description,
			Situation:   Situation(strings.ToUpper(e.Situation)),
		}
		s.cstCodes = append(s.cstCodes, cst)

		for name, r := range e.Rates {
			regime, err := model.ParseRegime(name)
			if err != nil {
				return invalidPack("cst %s: %v", cst, err)
			}
			pis, err := decimal.NewFromString(r.Pis)
			if err != nil {
				return invalidPack("cst %s %s pis rate %q", cst, regime, r.Pis)
			}
			cofins, err := decimal.NewFromString(r.Cofins)
			if err != nil {
				return invalidPack("cst %s %s cofins rate %q", cst, regime, r.Cofins)
			}
			s.rates[regime][cst] = Rates{Pis: pis, Cofins: cofins}
		}
	}
	sort.Strings(s.cstCodes)
	return nil
}

func (s *Snapshot) indexCfop(entries []CfopEntry) error {
	for _, e := range entries {
		code := normalize.CFOP(e.Code)
		if !normalize.IsDigits(code, 4) {
			return invalidPack("cfop %q is not 4 digits", e.Code)
		}
		scope := Scope(strings.ToUpper(e.Scope))
		switch scope {
		case ScopeInternal, ScopeInterstate, ScopeExport:
		default:
			return invalidPack("cfop %s has unknown scope %q", code, e.Scope)
		}
		s.cfop[code] = CfopRule{
			Code:        code,
			Description: e.Description,
			Scope:       scope,
			Direction:   e.Direction,
			Sugar:       e.Sugar,
		}
		s.cfopCodes = append(s.cfopCodes, code)
	}
	sort.Strings(s.cfopCodes)
	return nil
}

func (s *Snapshot) indexStates(entries []StateEntry) error {
	for _, e := range entries {
		uf := normalize.State(e.UF)
		rate, err := decimal.NewFromString(e.IcmsRate)
		if err != nil {
			return invalidPack("state %s icms rate %q", uf, e.IcmsRate)
		}
		overrides := make(map[string]decimal.Decimal, len(e.NcmOverrides))
		for ncm, v := range e.NcmOverrides {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return invalidPack("state %s override %s rate %q", uf, ncm, v)
			}
			overrides[normalize.NCM(ncm)] = d
		}
		s.states[uf] = StateRule{
			State:        uf,
			Name:         e.Name,
			IcmsRate:     rate,
			LegalRef:     e.LegalRef,
			NcmOverrides: overrides,
		}
	}
	return nil
}

func (s *Snapshot) indexLegal(entries []LegalEntry) {
	for _, e := range entries {
		code := strings.ToUpper(e.Code)
		if _, dup := s.legal[code]; !dup {
			s.legalOrder = append(s.legalOrder, code)
		}
		s.legal[code] = LegalReference{
			Code:     code,
			Title:    e.Title,
			Citation: e.Citation,
			Article:  e.Article,
			Scope:    strings.ToUpper(e.Scope),
			Taxes:    append([]string(nil), e.Taxes...),
			Summary:  e.Summary,
			URL:      e.URL,
		}
	}
}

// Version returns the rule pack version
func (s *Snapshot) Version() string {
	return s.version
}

// Statistics summarizes the loaded tables
func (s *Snapshot) Statistics() Statistics {
	rates := 0
	for _, m := range s.rates {
		rates += len(m)
	}
	return Statistics{
		Version:          s.version,
		NcmRules:         len(s.ncm),
		SugarNcm:         len(s.sugarNcm),
		CstRules:         len(s.cst),
		RateEntries:      rates,
		ConsistencyRules: s.ruleCount,
		CfopRules:        len(s.cfop),
		States:           len(s.states),
		LegalReferences:  len(s.legal),
	}
}

// NCM

func (s *Snapshot) NcmRule(code string) (NcmRule, bool) {
	r, ok := s.ncm[code]
	if !ok {
		return NcmRule{}, false
	}
	r.Keywords = append([]string(nil), r.Keywords...)
	return r, true
}

// SugarNcmCodes returns the sorted sugar/ethanol NCM codes
func (s *Snapshot) SugarNcmCodes() []string {
	return append([]string(nil), s.sugarNcm...)
}

func (s *Snapshot) IsSugarNcm(code string) bool {
	r, ok := s.ncm[code]
	return ok && r.Sugar
}

// NcmKeywords returns the folded keywords of an NCM
func (s *Snapshot) NcmKeywords(code string) []string {
	return append([]string(nil), s.ncm[code].Keywords...)
}

// ValidateNcmExists reports whether the NCM is registered at all
func (s *Snapshot) ValidateNcmExists(code string) bool {
	_, ok := s.ncm[code]
	return ok
}

// PIS/COFINS

func (s *Snapshot) PisCofinsRule(cst string) (PisCofinsRule, bool) {
	r, ok := s.cst[cst]
	return r, ok
}

// ValidCstCodes returns the sorted CST codes
func (s *Snapshot) ValidCstCodes() []string {
	return append([]string(nil), s.cstCodes...)
}

func (s *Snapshot) IsValidCst(cst string) bool {
	_, ok := s.cst[cst]
	return ok
}

func (s *Snapshot) PisCofinsRates(cst string, regime model.Regime) (Rates, error) {
	table, ok := s.rates[regime]
	if !ok {
		return Rates{}, fmt.Errorf("%w: %q", ErrUnsupportedRegime, regime)
	}
	r, ok := table[cst]
	if !ok {
		return Rates{}, &RuleNotFoundError{Table: "pis_cofins_rates", Key: string(regime) + "/" + cst}
	}
	return r, nil
}

// CstPairConsistent reports whether the pair passes every consistency rule.
// Pairs involving unknown CSTs are reported consistent; validity is checked separately.
func (s *Snapshot) CstPairConsistent(pisCst, cofinsCst string) bool {
	_, bad := s.inconsistent[cstPair{pisCst, cofinsCst}]
	return !bad
}

// InconsistencyRule returns the id of the rule rejecting the pair
func (s *Snapshot) InconsistencyRule(pisCst, cofinsCst string) (string, bool) {
	id, ok := s.inconsistent[cstPair{pisCst, cofinsCst}]
	return id, ok
}

// CFOP

func (s *Snapshot) CfopRule(code string) (CfopRule, bool) {
	r, ok := s.cfop[code]
	return r, ok
}

// ValidateCfopScope reports whether a registered CFOP matches the operation
// scope. Export CFOPs match either scope; unregistered ones never match.
func (s *Snapshot) ValidateCfopScope(code string, interstate bool) bool {
	r, ok := s.cfop[code]
	if !ok {
		return false
	}
	switch r.Scope {
	case ScopeInternal:
		return !interstate
	case ScopeInterstate:
		return interstate
	case ScopeExport:
		return true
	}
	return false
}

// CfopsByScope returns the CFOPs registered for scope, sorted by code
func (s *Snapshot) CfopsByScope(scope Scope) []CfopRule {
	var out []CfopRule
	for _, code := range s.cfopCodes {
		if r := s.cfop[code]; r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

// SugarCfops returns the CFOPs used by sugar/ethanol operations
func (s *Snapshot) SugarCfops() []CfopRule {
	var out []CfopRule
	for _, code := range s.cfopCodes {
		if r := s.cfop[code]; r.Sugar {
			out = append(out, r)
		}
	}
	return out
}

// States

func (s *Snapshot) StateIcmsOverride(state, ncm string) (decimal.Decimal, bool) {
	r, ok := s.states[normalize.State(state)]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := r.NcmOverrides[ncm]
	return rate, ok
}

// StateRules returns the rules of a state
func (s *Snapshot) StateRules(state string) (StateRule, bool) {
	r, ok := s.states[normalize.State(state)]
	return r, ok
}

// HasStateRules reports whether the state has specific rules
func (s *Snapshot) HasStateRules(state string) bool {
	_, ok := s.states[normalize.State(state)]
	return ok
}

// Legal references

func (s *Snapshot) LegalReference(code string) (LegalReference, bool) {
	r, ok := s.legal[strings.ToUpper(code)]
	return r, ok
}

// AllLegalReferences returns every reference in pack order
func (s *Snapshot) AllLegalReferences() []LegalReference {
	out := make([]LegalReference, 0, len(s.legalOrder))
	for _, code := range s.legalOrder {
		out = append(out, s.legal[code])
	}
	return out
}

// LegalReferencesByScope filters by FEDERAL or STATE
func (s *Snapshot) LegalReferencesByScope(scope string) []LegalReference {
	scope = strings.ToUpper(scope)
	var out []LegalReference
	for _, r := range s.AllLegalReferences() {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

// LegalReferencesByTax filters by affected tax (PIS, COFINS, ICMS...)
func (s *Snapshot) LegalReferencesByTax(tax string) []LegalReference {
	tax = strings.ToUpper(tax)
	var out []LegalReference
	for _, r := range s.AllLegalReferences() {
		for _, t := range r.Taxes {
			if strings.ToUpper(t) == tax {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// SearchLegalReferences matches text against code, title, citation and
// summary, ignoring case and accents
func (s *Snapshot) SearchLegalReferences(text string) []LegalReference {
	needle := normalize.Fold(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	var out []LegalReference
	for _, r := range s.AllLegalReferences() {
		haystack := normalize.Fold(strings.Join([]string{r.Code, r.Title, r.Citation, r.Summary}, " "))
		if strings.Contains(haystack, needle) {
			out = append(out, r)
		}
	}
	return out
}

// FormatLegalCitation renders "Lei nº 10.637/2002, Art. 2º - PIS/Pasep não cumulativo"
func (s *Snapshot) FormatLegalCitation(code string) string {
	r, ok := s.LegalReference(code)
	if !ok {
		return code
	}
	out := r.Citation
	if r.Article != "" {
		out += ", " + r.Article
	}
	if r.Title != "" {
		out += " - " + r.Title
	}
	return out
}

// ValidateTaxConfiguration checks an NCM/CST/CFOP combination against the
// tables without an invoice, for quick lookups.
func (s *Snapshot) ValidateTaxConfiguration(ncm, pisCst, cofinsCst, cfop string) TaxConfigCheck {
	ncm = normalize.NCM(ncm)
	pisCst = normalize.CST(pisCst)
	cofinsCst = normalize.CST(cofinsCst)
	cfop = normalize.CFOP(cfop)

	check := TaxConfigCheck{Errors: []string{}}

	if r, ok := s.NcmRule(ncm); ok {
		check.Ncm = &r
		if !r.Sugar {
			check.Errors = append(check.Errors, fmt.Sprintf("NCM %s não pertence ao setor sucroalcooleiro", ncm))
		}
	} else {
		check.Errors = append(check.Errors, fmt.Sprintf("NCM %s não cadastrado", ncm))
	}

	if r, ok := s.PisCofinsRule(pisCst); ok {
		check.Pis = &r
	} else {
		check.Errors = append(check.Errors, fmt.Sprintf("CST PIS %s inválido", pisCst))
	}
	if r, ok := s.PisCofinsRule(cofinsCst); ok {
		check.Cofins = &r
	} else {
		check.Errors = append(check.Errors, fmt.Sprintf("CST COFINS %s inválido", cofinsCst))
	}
	if check.Pis != nil && check.Cofins != nil && !s.CstPairConsistent(pisCst, cofinsCst) {
		check.Errors = append(check.Errors, fmt.Sprintf("CSTs PIS %s e COFINS %s inconsistentes", pisCst, cofinsCst))
	}
	if check.Pis != nil {
		if rates, err := s.PisCofinsRates(pisCst, model.RegimeStandard); err == nil {
			check.Rates = &rates
		}
	}

	if cfop != "" {
		if r, ok := s.CfopRule(cfop); ok {
			check.Cfop = &r
		} else {
			check.Errors = append(check.Errors, fmt.Sprintf("CFOP %s não cadastrado", cfop))
		}
	}

	check.Valid = len(check.Errors) == 0
	return check
}
