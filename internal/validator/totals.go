package validator

import (
	"fmt"

	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// TotalsValidator reconciles declared invoice totals with the item sums.
// Each check is independent; one mismatch never suppresses another.
type TotalsValidator struct {
	repo rules.Repository
}

// NewTotalsValidator creates a totals validator
func NewTotalsValidator(repo rules.Repository) *TotalsValidator {
	return &TotalsValidator{repo: repo}
}

func (v *TotalsValidator) Name() string { return "totals" }

// ValidateInvoice compares products, grand total, PIS and COFINS totals
func (v *TotalsValidator) ValidateInvoice(inv *model.Invoice) []model.ValidationError {
	var products, pis, cofins dec.Decimal
	for _, item := range inv.Items {
		products = products.Add(item.Total)
		pis = pis.Add(item.Taxes.PisValue)
		cofins = cofins.Add(item.Taxes.CofinsValue)
	}

	var errs []model.ValidationError
	if e, ok := v.compare(model.TotalProductsDiff, "valor_produtos", "Valor total dos produtos",
		"soma dos itens", inv.Totals.Products, products); ok {
		errs = append(errs, e)
	}

	// An absent grand total is not checked.
	if !inv.Totals.Invoice.IsZero() {
		if e, ok := v.compare(model.TotalInvoiceDiff, "valor_total_nota", "Valor total da nota",
			"produtos - desconto + frete, seguro, outras, IPI e ST", inv.Totals.Invoice,
			inv.Totals.ExpectedInvoiceTotal()); ok {
			errs = append(errs, e)
		}
	}

	if e, ok := v.compare(model.TotalPISDiff, "valor_pis", "Total de PIS",
		"soma dos itens", inv.Totals.Pis, pis); ok {
		errs = append(errs, e)
	}
	if e, ok := v.compare(model.TotalCOFINSDiff, "valor_cofins", "Total de COFINS",
		"soma dos itens", inv.Totals.Cofins, cofins); ok {
		errs = append(errs, e)
	}

	return errs
}

func (v *TotalsValidator) compare(code model.ErrorCode, field, label, against string, declared, expected dec.Decimal) (model.ValidationError, bool) {
	if decimal.WithinTolerance(declared, expected) {
		return model.ValidationError{}, false
	}
	return model.NewValidationError(code, field,
		fmt.Sprintf("%s divergente: declarado %s, %s %s",
			label, decimal.FormatBRL(declared), against, decimal.FormatBRL(expected)),
		decimal.Fixed(declared), decimal.Fixed(expected),
		model.WithImpact(decimal.AbsDiff(declared, expected)),
		legal(v.repo, code, ""),
		model.WithSuggestion(fmt.Sprintf("Corrigir o campo %s para %s", field, decimal.FormatBRL(expected))),
		model.WithCorrection(decimal.Fixed(expected)),
	), true
}
