package validator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

// Engine applies every validator to an invoice and its items
type Engine struct {
	repo          rules.Repository
	defaultRegime model.Regime
	items         []ItemValidator
	invoices      []InvoiceValidator
	observe       func(inv *model.Invoice, elapsed time.Duration)
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithDefaultRegime sets the regime used for invoices that declare none
func WithDefaultRegime(r model.Regime) EngineOption {
	return func(e *Engine) {
		e.defaultRegime = r
	}
}

// WithItemValidators replaces the item validators
func WithItemValidators(v ...ItemValidator) EngineOption {
	return func(e *Engine) {
		e.items = v
	}
}

// WithInvoiceValidators replaces the invoice validators
func WithInvoiceValidators(v ...InvoiceValidator) EngineOption {
	return func(e *Engine) {
		e.invoices = v
	}
}

// WithObserver registers fn to be called after each successful Apply
func WithObserver(fn func(inv *model.Invoice, elapsed time.Duration)) EngineOption {
	return func(e *Engine) {
		e.observe = fn
	}
}

// NewEngine creates an engine running the NCM, PIS/COFINS, CFOP and totals validators
func NewEngine(repo rules.Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:          repo,
		defaultRegime: model.RegimeStandard,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.items == nil {
		e.items = []ItemValidator{
			NewNCMValidator(repo),
			NewPISCOFINSValidator(repo, e.defaultRegime),
			NewCFOPValidator(repo),
		}
	}
	if e.invoices == nil {
		e.invoices = []InvoiceValidator{NewTotalsValidator(repo)}
	}
	return e
}

// Repository returns the rules the engine validates against
func (e *Engine) Repository() rules.Repository {
	return e.repo
}

// Validate returns the findings for inv in a stable order: items in order,
// validators in registration order per item, then invoice-level checks.
// The only error is an unsupported regime declared on the invoice.
func (e *Engine) Validate(inv *model.Invoice) ([]model.ValidationError, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil invoice")
	}
	if _, err := model.ParseRegime(string(inv.Regime)); err != nil {
		return nil, fmt.Errorf("invoice %s: %w", inv.AccessKey, err)
	}

	var errs []model.ValidationError
	for _, item := range inv.Items {
		for _, v := range e.items {
			errs = append(errs, v.Validate(item, inv)...)
		}
	}
	for _, v := range e.invoices {
		errs = append(errs, v.ValidateInvoice(inv)...)
	}
	return errs, nil
}

// Apply validates inv and appends the findings to inv.ValidationErrors
func (e *Engine) Apply(inv *model.Invoice) error {
	start := time.Now()
	errs, err := e.Validate(inv)
	if err != nil {
		return err
	}
	inv.ValidationErrors = append(inv.ValidationErrors, errs...)
	if e.observe != nil {
		e.observe(inv, time.Since(start))
	}
	return nil
}

// ValidateBatch applies the engine to every invoice with at most workers
// goroutines. Cancellation is observed between invoices; an invoice being
// validated always completes.
func (e *Engine) ValidateBatch(ctx context.Context, invoices []*model.Invoice, workers int) error {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, inv := range invoices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.Apply(inv)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
