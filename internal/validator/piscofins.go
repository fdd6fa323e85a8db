package validator

import (
	"fmt"

	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// PISCOFINSValidator checks PIS and COFINS CST, rate and value of an item
type PISCOFINSValidator struct {
	repo          rules.Repository
	defaultRegime model.Regime
}

// NewPISCOFINSValidator creates a PIS/COFINS validator. defaultRegime is used
// for invoices that do not declare one; empty means STANDARD.
func NewPISCOFINSValidator(repo rules.Repository, defaultRegime model.Regime) *PISCOFINSValidator {
	if defaultRegime == "" {
		defaultRegime = model.RegimeStandard
	}
	return &PISCOFINSValidator{repo: repo, defaultRegime: defaultRegime}
}

func (v *PISCOFINSValidator) Name() string { return "pis_cofins" }

// contribution describes one of the two contributions being checked
type contribution struct {
	name       string
	prefix     string
	invalidCST model.ErrorCode
	wrongRate  model.ErrorCode
	wrongValue model.ErrorCode
	legalKey   string
	cst        string
	rate       dec.Decimal
	base       dec.Decimal
	value      dec.Decimal
	expected   func(rules.Rates) dec.Decimal
}

// Validate checks both contributions and their CST pairing
func (v *PISCOFINSValidator) Validate(item model.InvoiceItem, inv *model.Invoice) []model.ValidationError {
	regime := v.regimeOf(inv)
	t := item.Taxes

	pis := contribution{
		name: "PIS", prefix: "pis",
		invalidCST: model.PISInvalidCST, wrongRate: model.PISRateMismatch, wrongValue: model.PISValueDiff,
		legalKey: "LEI_10637",
		cst:      t.PisCST, rate: t.PisRate, base: t.PisBase, value: t.PisValue,
		expected: func(r rules.Rates) dec.Decimal { return r.Pis },
	}
	cofins := contribution{
		name: "COFINS", prefix: "cofins",
		invalidCST: model.COFINSInvalidCST, wrongRate: model.COFINSRateMismatch, wrongValue: model.COFINSValueDiff,
		legalKey: "LEI_10833",
		cst:      t.CofinsCST, rate: t.CofinsRate, base: t.CofinsBase, value: t.CofinsValue,
		expected: func(r rules.Rates) dec.Decimal { return r.Cofins },
	}
	if regime == model.RegimeCumulative {
		pis.legalKey = "LEI_9718"
		cofins.legalKey = "LEI_9718"
	}

	var errs []model.ValidationError
	pisErrs, pisValid := v.check(item, regime, pis)
	errs = append(errs, pisErrs...)
	cofinsErrs, cofinsValid := v.check(item, regime, cofins)
	errs = append(errs, cofinsErrs...)

	if pisValid && cofinsValid && !v.repo.CstPairConsistent(t.PisCST, t.CofinsCST) {
		pisRule, _ := v.repo.PisCofinsRule(t.PisCST)
		cofinsRule, _ := v.repo.PisCofinsRule(t.CofinsCST)
		errs = append(errs, model.NewValidationError(model.PISCOFINSInconsistentCST, "pis_cst/cofins_cst",
			fmt.Sprintf("CST PIS %s (%s) divergente do CST COFINS %s (%s)",
				t.PisCST, pisRule.Situation, t.CofinsCST, cofinsRule.Situation),
			fmt.Sprintf("PIS %s / COFINS %s", t.PisCST, t.CofinsCST),
			"CSTs com a mesma situação tributária",
			model.WithItem(item.Number),
			legal(v.repo, model.PISCOFINSInconsistentCST, ""),
			model.WithSuggestion("Utilizar CSTs de PIS e COFINS com a mesma situação tributária"),
		))
	}

	return errs
}

// check validates one contribution; the bool reports whether the CST is valid
func (v *PISCOFINSValidator) check(item model.InvoiceItem, regime model.Regime, c contribution) ([]model.ValidationError, bool) {
	if !v.repo.IsValidCst(c.cst) {
		return []model.ValidationError{model.NewValidationError(c.invalidCST, c.prefix+"_cst",
			fmt.Sprintf("CST %s '%s' inválido", c.name, c.cst),
			c.cst, "CST válido da tabela de PIS/COFINS",
			model.WithItem(item.Number),
			legal(v.repo, c.invalidCST, ""),
			model.WithSuggestion(fmt.Sprintf("Informar um CST de %s válido (ex.: 01 para operação tributável)", c.name)),
		)}, false
	}

	var errs []model.ValidationError

	// Unsupported regimes are rejected by Engine before validation.
	if rates, err := v.repo.PisCofinsRates(c.cst, regime); err == nil {
		expected := c.expected(rates)
		if !c.rate.Equal(expected) {
			impact := decimal.AbsDiff(c.rate, expected).Div(decimal.Hundred).Mul(c.base)
			errs = append(errs, model.NewValidationError(c.wrongRate, c.prefix+"_aliquota",
				fmt.Sprintf("Alíquota %s incorreta: declarada %s, esperada %s para CST %s",
					c.name, decimal.FormatRate(c.rate), decimal.FormatRate(expected), c.cst),
				decimal.Rate(c.rate), decimal.Rate(expected),
				model.WithItem(item.Number),
				model.WithImpact(impact),
				legal(v.repo, c.wrongRate, c.legalKey),
				model.WithSuggestion(fmt.Sprintf("Ajustar a alíquota de %s para %s", c.name, decimal.FormatRate(expected))),
				model.WithCorrection(decimal.Rate(expected)),
			))
		}
	}

	// The value is checked against the declared rate; a wrong rate is
	// already reported above.
	expectedValue := decimal.PercentOf(c.base, c.rate)
	if !decimal.WithinTolerance(c.value, expectedValue) {
		errs = append(errs, model.NewValidationError(c.wrongValue, c.prefix+"_valor",
			fmt.Sprintf("Valor %s divergente: declarado %s, calculado %s (base %s × %s)",
				c.name, decimal.FormatBRL(c.value), decimal.FormatBRL(expectedValue),
				decimal.FormatBRL(c.base), decimal.FormatRate(c.rate)),
			decimal.Fixed(c.value), decimal.Fixed(expectedValue),
			model.WithItem(item.Number),
			model.WithImpact(decimal.AbsDiff(c.value, expectedValue)),
			legal(v.repo, c.wrongValue, c.legalKey),
			model.WithSuggestion(fmt.Sprintf("Recalcular o %s: base × alíquota / 100", c.name)),
			model.WithCorrection(decimal.Fixed(expectedValue)),
		))
	}

	return errs, true
}

func (v *PISCOFINSValidator) regimeOf(inv *model.Invoice) model.Regime {
	if inv == nil || inv.Regime == "" {
		return v.defaultRegime
	}
	r, err := model.ParseRegime(string(inv.Regime))
	if err != nil {
		return inv.Regime
	}
	return r
}
