package validator

import (
	"fmt"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// CFOPValidator checks the CFOP of an item against the operation scope.
// The registered scope is authoritative; the leading digit is not inspected.
type CFOPValidator struct {
	repo rules.Repository
}

// NewCFOPValidator creates a CFOP validator
func NewCFOPValidator(repo rules.Repository) *CFOPValidator {
	return &CFOPValidator{repo: repo}
}

func (v *CFOPValidator) Name() string { return "cfop" }

// Validate checks format, registration and scope. Items without a CFOP
// inherit the invoice CFOP.
func (v *CFOPValidator) Validate(item model.InvoiceItem, inv *model.Invoice) []model.ValidationError {
	cfop := item.CFOP
	if cfop == "" && inv != nil {
		cfop = inv.CFOP
	}

	if !normalize.IsDigits(cfop, 4) {
		return []model.ValidationError{model.NewValidationError(model.CFOPInvalidFormat, "cfop",
			fmt.Sprintf("CFOP '%s' inválido: deve conter exatamente 4 dígitos numéricos", cfop),
			cfop, "4 dígitos numéricos",
			model.WithItem(item.Number),
			legal(v.repo, model.CFOPInvalidFormat, ""),
			model.WithSuggestion("Informar o CFOP conforme a tabela do Convênio SINIEF (ex.: 5101)"),
		)}
	}

	rule, ok := v.repo.CfopRule(cfop)
	if !ok {
		return []model.ValidationError{model.NewValidationError(model.CFOPNotRegistered, "cfop",
			fmt.Sprintf("CFOP %s não cadastrado nas regras do setor", cfop),
			cfop, "CFOP cadastrado",
			model.WithItem(item.Number),
			legal(v.repo, model.CFOPNotRegistered, ""),
			model.WithSuggestion("Verificar se o CFOP é adequado para a operação com açúcar/etanol"),
		)}
	}

	if inv == nil {
		return nil
	}
	interstate := inv.IsInterstate()
	if v.repo.ValidateCfopScope(cfop, interstate) {
		return nil
	}

	switch {
	case rule.Scope == rules.ScopeInternal && interstate:
		return []model.ValidationError{model.NewValidationError(model.CFOPInternalOnInter, "cfop",
			fmt.Sprintf("CFOP %s é de operação interna, mas a operação é interestadual (%s → %s)",
				cfop, inv.OriginState, inv.DestState),
			cfop, "CFOP interestadual (6xxx)",
			model.WithItem(item.Number),
			legal(v.repo, model.CFOPInternalOnInter, ""),
			model.WithSuggestion("Utilizar o CFOP interestadual correspondente"),
			correction(v.repo, cfop, '5', '6'),
		)}
	case rule.Scope == rules.ScopeInterstate && !interstate:
		return []model.ValidationError{model.NewValidationError(model.CFOPInterOnInternal, "cfop",
			fmt.Sprintf("CFOP %s é de operação interestadual, mas a operação é interna (%s)",
				cfop, inv.OriginState),
			cfop, "CFOP interno (5xxx)",
			model.WithItem(item.Number),
			legal(v.repo, model.CFOPInterOnInternal, ""),
			model.WithSuggestion("Utilizar o CFOP interno correspondente"),
			correction(v.repo, cfop, '6', '5'),
		)}
	}

	return nil
}

// correction proposes the counterpart CFOP (5101 <-> 6101) when it is registered
func correction(repo rules.Repository, cfop string, from, to byte) model.Option {
	if cfop[0] != from {
		return func(*model.ValidationError) {}
	}
	candidate := string(to) + cfop[1:]
	if _, ok := repo.CfopRule(candidate); !ok {
		return func(*model.ValidationError) {}
	}
	return model.WithCorrection(candidate)
}
