package validator

import (
	"fmt"
	"strings"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// NCMValidator checks the NCM classification of an item
type NCMValidator struct {
	repo rules.Repository
}

// NewNCMValidator creates an NCM validator
func NewNCMValidator(repo rules.Repository) *NCMValidator {
	return &NCMValidator{repo: repo}
}

func (v *NCMValidator) Name() string { return "ncm" }

// Validate runs format, sector and description checks. A malformed code
// stops the remaining checks.
func (v *NCMValidator) Validate(item model.InvoiceItem, _ *model.Invoice) []model.ValidationError {
	var errs []model.ValidationError
	ncm := item.NCM

	if !normalize.IsDigits(ncm, 8) {
		return append(errs, model.NewValidationError(model.NCMInvalidFormat, "ncm",
			fmt.Sprintf("NCM '%s' inválido: deve conter exatamente 8 dígitos numéricos", ncm),
			ncm, "8 dígitos numéricos",
			model.WithItem(item.Number),
			legal(v.repo, model.NCMInvalidFormat, ""),
			model.WithSuggestion("Corrigir o NCM conforme a TIPI (ex.: 1701.14.00 para açúcar de cana)"),
		))
	}

	if !v.repo.IsSugarNcm(ncm) {
		errs = append(errs, model.NewValidationError(model.NCMNotSugarFamily, "ncm",
			fmt.Sprintf("NCM %s não pertence à família de açúcar/etanol", normalize.FormatNCM(ncm)),
			ncm, "NCM do setor sucroalcooleiro (capítulos 17 e 22)",
			model.WithItem(item.Number),
			legal(v.repo, model.NCMNotSugarFamily, ""),
			model.WithSuggestion("Confirmar se o produto pertence ao setor ou revisar a classificação fiscal"),
		))
	}

	if rule, ok := v.repo.NcmRule(ncm); ok && strings.TrimSpace(item.Description) != "" {
		if !DescriptionMatches(item.Description, rule) {
			errs = append(errs, model.NewValidationError(model.NCMDescriptionDiff, "descricao",
				fmt.Sprintf("Descrição '%s' não corresponde ao NCM %s", item.Description, normalize.FormatNCM(ncm)),
				item.Description, rule.Description,
				model.WithItem(item.Number),
				legal(v.repo, model.NCMDescriptionDiff, ""),
				model.WithSuggestion("Revisar a descrição do produto ou a classificação NCM"),
			))
		}
	}

	return errs
}

var descriptionStopwords = map[string]bool{
	"outros": true, "outras": true, "estado": true, "solido": true, "nota": true,
	"capitulo": true, "mencionado": true, "adicionado": true, "igual": true,
	"inferior": true, "superior": true, "teor": true, "agua": true, "subposicoes": true,
}

// DescriptionMatches reports whether an item description plausibly refers to
// the NCM rule, comparing accent-insensitive keywords and description words.
func DescriptionMatches(description string, rule rules.NcmRule) bool {
	folded := normalize.Fold(description)
	tokens := normalize.Tokens(description)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	candidates := rule.Keywords
	if len(candidates) == 0 {
		for _, t := range normalize.Tokens(rule.Description) {
			if len(t) >= 4 && !descriptionStopwords[t] {
				candidates = append(candidates, t)
			}
		}
	}

	for _, c := range candidates {
		if len(c) < 4 {
			if tokenSet[c] {
				return true
			}
			continue
		}
		if strings.Contains(folded, c) {
			return true
		}
	}
	return false
}
