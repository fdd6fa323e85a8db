// Package csv reads NF-e exports in the flat one-row-per-item CSV layout.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	dec "github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
)

// MinimalColumns lists the columns every file must carry
var MinimalColumns = []string{
	"chave_acesso", "numero_nfe", "data_emissao", "cnpj_emitente", "uf_emitente",
	"uf_destinatario", "item_numero", "item_ncm", "item_cfop", "item_valor_total",
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	scientific = regexp.MustCompile(`^\d+([.,]\d+)?[eE][+-]?\d+$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	time.RFC3339,
}

// Parser converts CSV exports into invoices
type Parser struct{}

// NewParser creates a CSV parser
func NewParser() *Parser {
	return &Parser{}
}

// CanParse reports whether content looks like an NF-e CSV export
func CanParse(content []byte) bool {
	content = bytes.TrimPrefix(content, utf8BOM)
	line, _, _ := bytes.Cut(content, []byte("\n"))
	return bytes.Contains(bytes.ToLower(line), []byte("chave_acesso"))
}

// ParseFile parses the CSV file at path
func (p *Parser) ParseFile(ctx context.Context, path string) ([]*model.Invoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "arquivo", "falha ao abrir arquivo", err)
	}
	defer f.Close()
	return p.Parse(ctx, f)
}

// Parse groups rows by access key into invoices, in order of first
// appearance. Items keep row order.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]*model.Invoice, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "arquivo", "falha ao ler conteúdo", err)
	}
	content, err = toUTF8(content)
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "arquivo", "falha ao decodificar ISO-8859-1", err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, model.NewParseError(model.SourceCSV, "arquivo", "arquivo vazio", nil)
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = detectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "cabecalho", "falha ao ler cabeçalho", err)
	}
	cols := newColumns(header)
	if missing := cols.missing(MinimalColumns); len(missing) > 0 {
		return nil, model.NewParseError(model.SourceCSV, "cabecalho",
			"colunas mínimas ausentes: "+strings.Join(missing, ", "), nil)
	}

	b := &builder{cols: cols, index: make(map[string]*model.Invoice)}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &model.RowError{Line: line, Cause: model.NewParseError(model.SourceCSV, "linha", "CSV malformado", err)}
		}
		if blank(record) {
			continue
		}
		if err := b.add(row{cols: cols, values: record}); err != nil {
			return nil, &model.RowError{Line: line, Cause: err}
		}
	}
	if len(b.order) == 0 {
		return nil, model.NewParseError(model.SourceCSV, "arquivo", "nenhuma NF-e encontrada", nil)
	}
	return b.finish()
}

func toUTF8(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return content, nil
	}
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), content)
	return out, err
}

func detectDelimiter(content []byte) rune {
	line, _, _ := bytes.Cut(content, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

type columns map[string]int

func newColumns(header []string) columns {
	c := make(columns, len(header))
	for i, h := range header {
		c[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return c
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) missing(names []string) []string {
	var out []string
	for _, n := range names {
		if !c.has(n) {
			out = append(out, n)
		}
	}
	return out
}

type row struct {
	cols   columns
	values []string
}

func (r row) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (r row) decimal(name string) (dec.Decimal, error) {
	v, err := decimal.ParseBR(r.get(name))
	if err != nil {
		return dec.Zero, model.NewParseError(model.SourceCSV, name,
			fmt.Sprintf("valor numérico inválido %q", r.get(name)), err)
	}
	return v, nil
}

type builder struct {
	cols     columns
	index    map[string]*model.Invoice
	order    []string
	declared map[string]model.InvoiceTotals
}

func (b *builder) add(r row) error {
	key := r.get("chave_acesso")
	if key == "" {
		return model.NewParseError(model.SourceCSV, "chave_acesso", "chave de acesso vazia", nil)
	}
	if scientific.MatchString(key) {
		return model.NewParseError(model.SourceCSV, "chave_acesso",
			fmt.Sprintf("chave de acesso em notação científica %q; exporte a coluna como texto", key), nil)
	}

	inv, ok := b.index[key]
	if !ok {
		var err error
		if inv, err = b.header(key, r); err != nil {
			return err
		}
		b.index[key] = inv
		b.order = append(b.order, key)
	}

	item, err := parseItem(r, len(inv.Items)+1)
	if err != nil {
		return err
	}
	inv.Items = append(inv.Items, item)
	return nil
}

func (b *builder) header(key string, r row) (*model.Invoice, error) {
	issued, err := parseDate(r.get("data_emissao"))
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "data_emissao",
			fmt.Sprintf("data de emissão inválida %q", r.get("data_emissao")), err)
	}
	regime, err := model.ParseRegime(r.get("regime"))
	if err != nil {
		return nil, model.NewParseError(model.SourceCSV, "regime", "regime tributário desconhecido", err)
	}

	inv := &model.Invoice{
		AccessKey: key,
		Number:    r.get("numero_nfe"),
		Series:    r.get("serie"),
		IssuedAt:  issued,
		Issuer: model.Company{
			TaxID: normalize.TaxID(r.get("cnpj_emitente")),
			Name:  r.get("razao_social_emitente"),
			State: normalize.State(r.get("uf_emitente")),
		},
		Recipient: model.Company{
			TaxID: normalize.TaxID(r.get("cnpj_destinatario")),
			Name:  r.get("razao_social_destinatario"),
			State: normalize.State(r.get("uf_destinatario")),
		},
		CFOP:            normalize.CFOP(r.get("cfop_nota")),
		OperationNature: r.get("natureza_operacao"),
		Regime:          regime,
		Source:          model.SourceCSV,
	}
	inv.OriginState = inv.Issuer.State
	inv.DestState = inv.Recipient.State

	if b.cols.has("total_produtos") {
		totals, err := declaredTotals(r, b.cols)
		if err != nil {
			return nil, err
		}
		if b.declared == nil {
			b.declared = make(map[string]model.InvoiceTotals)
		}
		b.declared[key] = totals
	}
	return inv, nil
}

func declaredTotals(r row, cols columns) (model.InvoiceTotals, error) {
	var t model.InvoiceTotals
	fields := []struct {
		column string
		dst    *dec.Decimal
	}{
		{"total_produtos", &t.Products},
		{"total_nfe", &t.Invoice},
		{"total_pis", &t.Pis},
		{"total_cofins", &t.Cofins},
		{"total_icms", &t.Icms},
		{"total_frete", &t.Freight},
		{"total_seguro", &t.Insurance},
		{"total_desconto", &t.Discount},
		{"total_outros", &t.Other},
		{"total_ipi", &t.IPI},
		{"total_icms_st", &t.ST},
	}
	for _, f := range fields {
		v, err := r.decimal(f.column)
		if err != nil {
			return t, err
		}
		*f.dst = v
	}
	if !cols.has("total_nfe") {
		t.Invoice = t.ExpectedInvoiceTotal()
	}
	return t, nil
}

func parseItem(r row, seq int) (model.InvoiceItem, error) {
	item := model.InvoiceItem{
		Number:      seq,
		ProductCode: r.get("item_codigo"),
		Description: r.get("item_descricao"),
		NCM:         normalize.NCM(r.get("item_ncm")),
		CFOP:        normalize.CFOP(r.get("item_cfop")),
		Unit:        r.get("item_unidade"),
		Taxes: model.TaxItem{
			PisCST:    normalize.CST(r.get("pis_cst")),
			CofinsCST: normalize.CST(r.get("cofins_cst")),
		},
	}
	if v := r.get("item_numero"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return item, model.NewParseError(model.SourceCSV, "item_numero",
				fmt.Sprintf("número do item inválido %q", v), err)
		}
		item.Number = n
	}

	fields := []struct {
		column string
		dst    *dec.Decimal
	}{
		{"item_quantidade", &item.Quantity},
		{"item_valor_unitario", &item.UnitPrice},
		{"item_valor_total", &item.Total},
		{"pis_aliquota", &item.Taxes.PisRate},
		{"pis_base", &item.Taxes.PisBase},
		{"pis_valor", &item.Taxes.PisValue},
		{"cofins_aliquota", &item.Taxes.CofinsRate},
		{"cofins_base", &item.Taxes.CofinsBase},
		{"cofins_valor", &item.Taxes.CofinsValue},
		{"icms_aliquota", &item.Taxes.IcmsRate},
		{"icms_valor", &item.Taxes.IcmsValue},
	}
	for _, f := range fields {
		v, err := r.decimal(f.column)
		if err != nil {
			return item, err
		}
		*f.dst = v
	}
	return item, nil
}

func (b *builder) finish() ([]*model.Invoice, error) {
	out := make([]*model.Invoice, 0, len(b.order))
	for _, key := range b.order {
		inv := b.index[key]
		inv.ComputeTotals()
		if t, ok := b.declared[key]; ok {
			inv.Totals = t
		}
		out = append(out, inv)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date: %s", s)
}
