package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
)

// Layout names
const (
	LayoutProcNFe = "nfeProc"
	LayoutNFe     = "NFe"
)

type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeDoc   `xml:"NFe"`
	Prot    struct {
		Info struct {
			AccessKey string `xml:"chNFe"`
			Status    string `xml:"cStat"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

type nfeDoc struct {
	XMLName xml.Name `xml:"NFe"`
	Inf     nfeInf   `xml:"infNFe"`
}

type nfeInf struct {
	ID    string     `xml:"Id,attr"`
	Ide   nfeIde     `xml:"ide"`
	Emit  nfeParty   `xml:"emit"`
	Dest  nfeParty   `xml:"dest"`
	Det   []nfeDet   `xml:"det"`
	Total nfeICMSTot `xml:"total>ICMSTot"`
}

type nfeIde struct {
	NatOp  string `xml:"natOp"`
	Series string `xml:"serie"`
	Number string `xml:"nNF"`
	DhEmi  string `xml:"dhEmi"`
	DEmi   string `xml:"dEmi"`
	IDDest string `xml:"idDest"`
}

type nfeParty struct {
	CNPJ      string `xml:"CNPJ"`
	CPF       string `xml:"CPF"`
	Name      string `xml:"xNome"`
	EmitState string `xml:"enderEmit>UF"`
	DestState string `xml:"enderDest>UF"`
}

type nfeDet struct {
	NItem   string     `xml:"nItem,attr"`
	Prod    nfeProd    `xml:"prod"`
	Imposto nfeImposto `xml:"imposto"`
}

type nfeProd struct {
	Code      string `xml:"cProd"`
	Name      string `xml:"xProd"`
	NCM       string `xml:"NCM"`
	CFOP      string `xml:"CFOP"`
	Unit      string `xml:"uCom"`
	Quantity  string `xml:"qCom"`
	UnitPrice string `xml:"vUnCom"`
	Total     string `xml:"vProd"`
}

type nfeImposto struct {
	ICMS   nfeTaxGroup `xml:"ICMS"`
	PIS    nfeTaxGroup `xml:"PIS"`
	COFINS nfeTaxGroup `xml:"COFINS"`
}

// nfeTaxGroup captures whichever variant the issuer used
// (ICMS00, ICMS20, PISAliq, PISNT, COFINSOutr, ...)
type nfeTaxGroup struct {
	Variants []nfeTaxDetail `xml:",any"`
}

type nfeTaxDetail struct {
	XMLName xml.Name
	CST     string `xml:"CST"`
	CSOSN   string `xml:"CSOSN"`
	VBC     string `xml:"vBC"`
	PICMS   string `xml:"pICMS"`
	VICMS   string `xml:"vICMS"`
	PPIS    string `xml:"pPIS"`
	VPIS    string `xml:"vPIS"`
	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
}

func (g nfeTaxGroup) first() nfeTaxDetail {
	if len(g.Variants) == 0 {
		return nfeTaxDetail{}
	}
	return g.Variants[0]
}

type nfeICMSTot struct {
	VProd   string `xml:"vProd"`
	VNF     string `xml:"vNF"`
	VPIS    string `xml:"vPIS"`
	VCOFINS string `xml:"vCOFINS"`
	VICMS   string `xml:"vICMS"`
	VST     string `xml:"vST"`
	VFrete  string `xml:"vFrete"`
	VSeg    string `xml:"vSeg"`
	VDesc   string `xml:"vDesc"`
	VIPI    string `xml:"vIPI"`
	VOutro  string `xml:"vOutro"`
}

// ProcNFeAdapter parses authorized invoices (<nfeProc>)
type ProcNFeAdapter struct{}

// NewProcNFeAdapter creates a new nfeProc adapter
func NewProcNFeAdapter() *ProcNFeAdapter {
	return &ProcNFeAdapter{}
}

// Name returns the layout name
func (a *ProcNFeAdapter) Name() string {
	return LayoutProcNFe
}

// CanParse checks if content is an nfeProc document
func (a *ProcNFeAdapter) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte("<nfeProc"))
}

// Parse parses nfeProc XML into Invoice
func (a *ProcNFeAdapter) Parse(ctx context.Context, r io.Reader) (*model.Invoice, error) {
	content, err := readContent(ctx, r)
	if err != nil {
		return nil, err
	}
	var proc nfeProc
	if err := xml.Unmarshal(content, &proc); err != nil {
		return nil, model.NewParseError(model.SourceXML, "xml", "falha ao interpretar XML", err)
	}
	inv, err := convert(&proc.NFe.Inf)
	if err != nil {
		return nil, err
	}
	if inv.AccessKey == "" {
		inv.AccessKey = strings.TrimSpace(proc.Prot.Info.AccessKey)
	}
	return inv, nil
}

// NFeAdapter parses bare signed invoices (<NFe>)
type NFeAdapter struct{}

// NewNFeAdapter creates a new NFe adapter
func NewNFeAdapter() *NFeAdapter {
	return &NFeAdapter{}
}

// Name returns the layout name
func (a *NFeAdapter) Name() string {
	return LayoutNFe
}

// CanParse checks if content is an NFe document
func (a *NFeAdapter) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte("<NFe")) && bytes.Contains(content, []byte("<infNFe"))
}

// Parse parses NFe XML into Invoice
func (a *NFeAdapter) Parse(ctx context.Context, r io.Reader) (*model.Invoice, error) {
	content, err := readContent(ctx, r)
	if err != nil {
		return nil, err
	}
	var doc nfeDoc
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError(model.SourceXML, "xml", "falha ao interpretar XML", err)
	}
	return convert(&doc.Inf)
}

func readContent(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SourceXML, "content", "falha ao ler conteúdo", err)
	}
	return content, nil
}

// converter keeps the first numeric error so conversion code stays linear
type converter struct {
	err error
}

func (c *converter) decimal(field, s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || c.err != nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		c.err = model.NewParseError(model.SourceXML, field, fmt.Sprintf("valor numérico inválido %q", s), err)
		return decimal.Zero
	}
	return v
}

func convert(inf *nfeInf) (*model.Invoice, error) {
	if inf.Ide.Number == "" && len(inf.Det) == 0 {
		return nil, model.NewParseError(model.SourceXML, "infNFe", "grupo infNFe ausente ou vazio", nil)
	}

	inv := &model.Invoice{
		AccessKey:       strings.TrimPrefix(strings.TrimSpace(inf.ID), "NFe"),
		Number:          inf.Ide.Number,
		Series:          inf.Ide.Series,
		OperationNature: inf.Ide.NatOp,
		Issuer:          party(inf.Emit, inf.Emit.EmitState),
		Recipient:       party(inf.Dest, inf.Dest.DestState),
		Source:          model.SourceXML,
	}
	inv.OriginState = inv.Issuer.State
	inv.DestState = inv.Recipient.State

	if date, err := parseDate(firstNonEmpty(inf.Ide.DhEmi, inf.Ide.DEmi)); err == nil {
		inv.IssuedAt = date
	} else {
		return nil, model.NewParseError(model.SourceXML, "dhEmi", "data de emissão inválida", err)
	}

	c := &converter{}
	for i, det := range inf.Det {
		item := convertItem(c, det, i+1)
		inv.Items = append(inv.Items, item)
		if inv.CFOP == "" {
			inv.CFOP = item.CFOP
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	inv.ComputeTotals()
	if strings.TrimSpace(inf.Total.VProd) != "" {
		inv.Totals = model.InvoiceTotals{
			Products: c.decimal("vProd", inf.Total.VProd),
			Invoice:  c.decimal("vNF", inf.Total.VNF),
			Pis:      c.decimal("vPIS", inf.Total.VPIS),
			Cofins:   c.decimal("vCOFINS", inf.Total.VCOFINS),
			Icms:     c.decimal("vICMS", inf.Total.VICMS),

			Freight:   c.decimal("vFrete", inf.Total.VFrete),
			Insurance: c.decimal("vSeg", inf.Total.VSeg),
			Discount:  c.decimal("vDesc", inf.Total.VDesc),
			Other:     c.decimal("vOutro", inf.Total.VOutro),
			IPI:       c.decimal("vIPI", inf.Total.VIPI),
			ST:        c.decimal("vST", inf.Total.VST),
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return inv, nil
}

func party(p nfeParty, state string) model.Company {
	return model.Company{
		TaxID: normalize.TaxID(firstNonEmpty(p.CNPJ, p.CPF)),
		Name:  strings.TrimSpace(p.Name),
		State: normalize.State(state),
	}
}

func convertItem(c *converter, det nfeDet, seq int) model.InvoiceItem {
	item := model.InvoiceItem{
		Number:      seq,
		ProductCode: det.Prod.Code,
		Description: strings.TrimSpace(det.Prod.Name),
		NCM:         normalize.NCM(det.Prod.NCM),
		CFOP:        normalize.CFOP(det.Prod.CFOP),
		Unit:        det.Prod.Unit,
		Quantity:    c.decimal("qCom", det.Prod.Quantity),
		UnitPrice:   c.decimal("vUnCom", det.Prod.UnitPrice),
		Total:       c.decimal("vProd", det.Prod.Total),
	}
	if n, err := strconv.Atoi(det.NItem); err == nil && n > 0 {
		item.Number = n
	}

	pis := det.Imposto.PIS.first()
	cofins := det.Imposto.COFINS.first()
	icms := det.Imposto.ICMS.first()
	item.Taxes = model.TaxItem{
		PisCST:      normalize.CST(pis.CST),
		PisRate:     c.decimal("pPIS", pis.PPIS),
		PisBase:     c.decimal("vBC", pis.VBC),
		PisValue:    c.decimal("vPIS", pis.VPIS),
		CofinsCST:   normalize.CST(cofins.CST),
		CofinsRate:  c.decimal("pCOFINS", cofins.PCOFINS),
		CofinsBase:  c.decimal("vBC", cofins.VBC),
		CofinsValue: c.decimal("vCOFINS", cofins.VCOFINS),
		IcmsRate:    c.decimal("pICMS", icms.PICMS),
		IcmsValue:   c.decimal("vICMS", icms.VICMS),
	}
	return item
}

func parseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date: %s", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
