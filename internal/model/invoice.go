package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where an invoice was ingested from
type Source string

const (
	SourceCSV     Source = "CSV"
	SourceXML     Source = "XML"
	SourceJSON    Source = "JSON"
	SourceUnknown Source = "UNKNOWN"
)

// OperationType is the geographic scope of the operation
type OperationType string

const (
	OperationInternal   OperationType = "INTERNA"
	OperationInterstate OperationType = "INTERESTADUAL"
)

// Company is an issuer or recipient
type Company struct {
	TaxID string `json:"cnpj"`         // CNPJ, 14 digits
	Name  string `json:"razao_social"` // legal name
	State string `json:"uf"`           // two-letter UF
}

// TaxItem holds the per-item PIS/COFINS/ICMS declaration
type TaxItem struct {
	PisCST   string          `json:"pis_cst"`
	PisRate  decimal.Decimal `json:"pis_aliquota"`
	PisBase  decimal.Decimal `json:"pis_base"`
	PisValue decimal.Decimal `json:"pis_valor"`

	CofinsCST   string          `json:"cofins_cst"`
	CofinsRate  decimal.Decimal `json:"cofins_aliquota"`
	CofinsBase  decimal.Decimal `json:"cofins_base"`
	CofinsValue decimal.Decimal `json:"cofins_valor"`

	IcmsRate  decimal.Decimal `json:"icms_aliquota"`
	IcmsValue decimal.Decimal `json:"icms_valor"`
}

// InvoiceItem is one product line
type InvoiceItem struct {
	Number      int             `json:"numero"` // 1-based
	ProductCode string          `json:"codigo"`
	Description string          `json:"descricao"`
	NCM         string          `json:"ncm"`
	CFOP        string          `json:"cfop"`
	Unit        string          `json:"unidade"`
	Quantity    decimal.Decimal `json:"quantidade"`
	UnitPrice   decimal.Decimal `json:"valor_unitario"`
	Total       decimal.Decimal `json:"valor_total"`
	Taxes       TaxItem         `json:"impostos"`
}

// InvoiceTotals are the declared invoice-level totals
type InvoiceTotals struct {
	Products decimal.Decimal `json:"valor_produtos"`
	Invoice  decimal.Decimal `json:"valor_total_nota"`
	Pis      decimal.Decimal `json:"valor_pis"`
	Cofins   decimal.Decimal `json:"valor_cofins"`
	Icms     decimal.Decimal `json:"valor_icms"`

	// Amounts that adjust the grand total (ICMSTot vFrete, vSeg, vDesc,
	// vOutro, vIPI, vST). Zero when not declared.
	Freight   decimal.Decimal `json:"valor_frete"`
	Insurance decimal.Decimal `json:"valor_seguro"`
	Discount  decimal.Decimal `json:"valor_desconto"`
	Other     decimal.Decimal `json:"valor_outros"`
	IPI       decimal.Decimal `json:"valor_ipi"`
	ST        decimal.Decimal `json:"valor_icms_st"`
}

// ExpectedInvoiceTotal is the grand total implied by the other totals:
// products - discount + freight + insurance + other + IPI + ICMS-ST.
// PIS, COFINS and ICMS are embedded in the product price.
func (t InvoiceTotals) ExpectedInvoiceTotal() decimal.Decimal {
	return t.Products.
		Sub(t.Discount).
		Add(t.Freight).
		Add(t.Insurance).
		Add(t.Other).
		Add(t.IPI).
		Add(t.ST)
}

// Invoice is one NF-e (Nota Fiscal Eletrônica)
type Invoice struct {
	// AccessKey is the 44-digit chave de acesso. It is an opaque identifier and
	// must never be converted to a number.
	AccessKey string    `json:"chave_acesso"`
	Number    string    `json:"numero"`
	Series    string    `json:"serie"`
	IssuedAt  time.Time `json:"data_emissao"`

	Issuer    Company `json:"emitente"`
	Recipient Company `json:"destinatario"`

	CFOP            string `json:"cfop"`
	OperationNature string `json:"natureza_operacao"`
	OriginState     string `json:"uf_origem"`
	DestState       string `json:"uf_destino"`

	// Regime selects the PIS/COFINS rate table; empty means STANDARD
	Regime Regime `json:"regime,omitempty"`

	Items  []InvoiceItem `json:"itens"`
	Totals InvoiceTotals `json:"totais"`

	Source Source `json:"origem,omitempty"`

	// ValidationErrors is filled by the validation engine
	ValidationErrors []ValidationError `json:"erros_validacao,omitempty"`
}

// IsInterstate reports whether the operation crosses state lines
func (inv *Invoice) IsInterstate() bool {
	return inv.OriginState != inv.DestState
}

// OperationType returns INTERNA or INTERESTADUAL
func (inv *Invoice) OperationType() OperationType {
	if inv.IsInterstate() {
		return OperationInterstate
	}
	return OperationInternal
}

// ComputeTotals derives invoice totals from the items. Items carry no freight,
// discount or additive taxes, so the grand total equals the products total.
func (inv *Invoice) ComputeTotals() {
	t := InvoiceTotals{
		Products: decimal.Zero,
		Pis:      decimal.Zero,
		Cofins:   decimal.Zero,
		Icms:     decimal.Zero,
	}
	for _, item := range inv.Items {
		t.Products = t.Products.Add(item.Total)
		t.Pis = t.Pis.Add(item.Taxes.PisValue)
		t.Cofins = t.Cofins.Add(item.Taxes.CofinsValue)
		t.Icms = t.Icms.Add(item.Taxes.IcmsValue)
	}
	t.Invoice = t.Products
	inv.Totals = t
}

// Item returns the item with the given 1-based number
func (inv *Invoice) Item(number int) (InvoiceItem, bool) {
	for _, item := range inv.Items {
		if item.Number == number {
			return item, true
		}
	}
	return InvoiceItem{}, false
}
