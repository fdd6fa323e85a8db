// Package validator implements the fiscal checks run against each NF-e item
// and invoice. Validators are pure: they read the invoice and the rules
// repository and return new findings without mutating either.
package validator

import (
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// ItemValidator checks one item in the context of its invoice
type ItemValidator interface {
	Name() string
	Validate(item model.InvoiceItem, inv *model.Invoice) []model.ValidationError
}

// InvoiceValidator checks invoice-level consistency
type InvoiceValidator interface {
	Name() string
	ValidateInvoice(inv *model.Invoice) []model.ValidationError
}

// legal resolves the citation attached to a code, or to refKey when given
func legal(repo rules.Repository, code model.ErrorCode, refKey string) model.Option {
	if refKey == "" {
		info, ok := code.Info()
		if !ok {
			return func(*model.ValidationError) {}
		}
		refKey = info.LegalRef
	}
	ref, ok := repo.LegalReference(refKey)
	if !ok {
		return func(*model.ValidationError) {}
	}
	return model.WithLegal(ref.Citation, ref.Article)
}
