package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError describes one fiscal discrepancy found on an invoice.
// Values are created by validators and never mutated afterwards.
type ValidationError struct {
	Code          ErrorCode `json:"code"`
	Field         string    `json:"field"`
	Message       string    `json:"message"`
	Severity      Severity  `json:"severity"`
	ActualValue   string    `json:"actual_value"`
	ExpectedValue string    `json:"expected_value"`

	LegalReference string `json:"legal_reference,omitempty"`
	LegalArticle   string `json:"legal_article,omitempty"`

	// ItemNumber is nil for invoice-level findings
	ItemNumber *int `json:"item_numero,omitempty"`

	// FinancialImpact is the estimated monetary exposure, never negative
	FinancialImpact decimal.NullDecimal `json:"financial_impact"`

	Suggestion     string `json:"suggestion,omitempty"`
	CanAutoCorrect bool   `json:"can_auto_correct"`
	CorrectedValue string `json:"corrected_value,omitempty"`
}

// Option sets an optional attribute of a ValidationError
type Option func(*ValidationError)

// WithItem attaches the 1-based item number
func WithItem(number int) Option {
	return func(e *ValidationError) {
		n := number
		e.ItemNumber = &n
	}
}

// WithImpact sets the financial impact; negative values are stored as absolute
func WithImpact(amount decimal.Decimal) Option {
	return func(e *ValidationError) {
		e.FinancialImpact = decimal.NullDecimal{Decimal: amount.Abs().Round(2), Valid: true}
	}
}

// WithLegal sets the legal citation and article
func WithLegal(reference, article string) Option {
	return func(e *ValidationError) {
		e.LegalReference = reference
		e.LegalArticle = article
	}
}

// WithSuggestion sets the corrective suggestion
func WithSuggestion(text string) Option {
	return func(e *ValidationError) {
		e.Suggestion = text
	}
}

// WithCorrection marks the finding as auto-correctable to value
func WithCorrection(value string) Option {
	return func(e *ValidationError) {
		e.CanAutoCorrect = true
		e.CorrectedValue = value
	}
}

// WithSeverity overrides the catalog severity of the code
func WithSeverity(s Severity) Option {
	return func(e *ValidationError) {
		e.Severity = s
	}
}

// NewValidationError creates a finding with the catalog severity of code
func NewValidationError(code ErrorCode, field, message, actual, expected string, opts ...Option) ValidationError {
	e := ValidationError{
		Code:          code,
		Field:         field,
		Message:       message,
		Severity:      code.Severity(),
		ActualValue:   actual,
		ExpectedValue: expected,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Impact returns the financial impact, zero when absent
func (e ValidationError) Impact() decimal.Decimal {
	if !e.FinancialImpact.Valid {
		return decimal.Zero
	}
	return e.FinancialImpact.Decimal
}

// HasItem reports whether the finding is attached to an item
func (e ValidationError) HasItem() bool {
	return e.ItemNumber != nil
}

// Item returns the item number, 0 for invoice-level findings
func (e ValidationError) Item() int {
	if e.ItemNumber == nil {
		return 0
	}
	return *e.ItemNumber
}

func (e ValidationError) String() string {
	if e.ItemNumber != nil {
		return fmt.Sprintf("[%s] %s item %d %s: %s", e.Severity, e.Code, *e.ItemNumber, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Severity, e.Code, e.Field, e.Message)
}

// CountBySeverity tallies findings per severity
func CountBySeverity(errs []ValidationError) map[Severity]int {
	counts := map[Severity]int{
		SeverityCritical: 0,
		SeverityError:    0,
		SeverityWarning:  0,
	}
	for _, e := range errs {
		counts[e.Severity]++
	}
	return counts
}

// FilterByCode returns the findings carrying code
func FilterByCode(errs []ValidationError, code ErrorCode) []ValidationError {
	var out []ValidationError
	for _, e := range errs {
		if e.Code == code {
			out = append(out, e)
		}
	}
	return out
}
