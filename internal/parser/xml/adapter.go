// Package xml reads NF-e documents in the SEFAZ layout, either the signed
// <NFe> alone or wrapped with its authorization protocol in <nfeProc>.
package xml

import (
	"bytes"
	"context"
	"io"

	"github.com/rezonia/nfe-auditor/internal/model"
)

// Adapter parses one XML layout into an Invoice
type Adapter interface {
	// Parse maps one document onto the audit model
	Parse(ctx context.Context, r io.Reader) (*model.Invoice, error)

	// CanParse reports whether content has this layout's root element
	CanParse(content []byte) bool

	// Name identifies the layout
	Name() string
}

// Registry picks the adapter for a document by sniffing its root
type Registry struct {
	adapters []Adapter
}

// NewRegistry knows both NF-e layouts.
// Order matters: <nfeProc> embeds <NFe>, so it is checked first.
func NewRegistry() *Registry {
	return &Registry{
		adapters: []Adapter{
			NewProcNFeAdapter(),
			NewNFeAdapter(),
		},
	}
}

// Detect returns the first adapter accepting content
func (r *Registry) Detect(content []byte) (Adapter, error) {
	for _, a := range r.adapters {
		if a.CanParse(content) {
			return a, nil
		}
	}
	return nil, model.NewParseError(model.SourceXML, "root", "formato XML desconhecido, nenhum adaptador compatível", nil)
}

// Parse detects the layout and decodes content with it
func (r *Registry) Parse(ctx context.Context, content []byte) (*model.Invoice, error) {
	adapter, err := r.Detect(content)
	if err != nil {
		return nil, err
	}
	return adapter.Parse(ctx, bytes.NewReader(content))
}

// RegisterAdapter adds a layout ahead of the built-in ones
func (r *Registry) RegisterAdapter(a Adapter) {
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// GetAdapter returns the adapter registered under name, or nil
func (r *Registry) GetAdapter(name string) Adapter {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}
