package xml_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-auditor/internal/model"
	xmlparser "github.com/rezonia/nfe-auditor/internal/parser/xml"
)

func TestRegistry_NewRegistry(t *testing.T) {
	registry := xmlparser.NewRegistry()
	require.NotNil(t, registry)

	for _, name := range []string{xmlparser.LayoutProcNFe, xmlparser.LayoutNFe} {
		adapter := registry.GetAdapter(name)
		require.NotNil(t, adapter, "adapter for %s should exist", name)
		assert.Equal(t, name, adapter.Name())
	}
	assert.Nil(t, registry.GetAdapter("CTe"))
}

func TestRegistry_Detect(t *testing.T) {
	registry := xmlparser.NewRegistry()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "detect nfeProc",
			content:  `<nfeProc><NFe><infNFe Id="NFe1"></infNFe></NFe></nfeProc>`,
			expected: xmlparser.LayoutProcNFe,
		},
		{
			name:     "detect bare NFe",
			content:  `<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"></infNFe></NFe>`,
			expected: xmlparser.LayoutNFe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := registry.Detect([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, adapter.Name())
		})
	}
}

func TestRegistry_Detect_UnknownFormat(t *testing.T) {
	registry := xmlparser.NewRegistry()
	_, err := registry.Detect([]byte(`<CTe><infCte/></CTe>`))
	require.Error(t, err)

	var parseErr *model.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, model.SourceXML, parseErr.Source)
}

func TestRegistry_RegisterAdapter(t *testing.T) {
	registry := xmlparser.NewRegistry()

	custom := &mockAdapter{name: xmlparser.LayoutNFe}
	registry.RegisterAdapter(custom)

	// Custom adapter should take priority
	assert.Equal(t, custom, registry.GetAdapter(xmlparser.LayoutNFe))
}

type mockAdapter struct {
	name string
}

func (m *mockAdapter) Parse(ctx context.Context, r io.Reader) (*model.Invoice, error) {
	return nil, nil
}
func (m *mockAdapter) CanParse(content []byte) bool { return false }
func (m *mockAdapter) Name() string                 { return m.name }

func TestProcNFeAdapter_Parse(t *testing.T) {
	content := readTestFile(t, "procnfe.xml")

	adapter := xmlparser.NewProcNFeAdapter()
	require.True(t, adapter.CanParse(content))

	inv, err := adapter.Parse(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	// Verify basic info
	assert.Equal(t, "35240112345678000190550010000001231234567890", inv.AccessKey)
	assert.Equal(t, "123", inv.Number)
	assert.Equal(t, "1", inv.Series)
	assert.Equal(t, model.SourceXML, inv.Source)
	assert.Equal(t, "VENDA DE PRODUCAO DO ESTABELECIMENTO", inv.OperationNature)
	assert.Equal(t, "6101", inv.CFOP)
	assert.True(t, inv.IssuedAt.Equal(time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)))

	// Verify parties
	assert.Equal(t, "12345678000190", inv.Issuer.TaxID)
	assert.Equal(t, "Usina Açúcar Ltda", inv.Issuer.Name)
	assert.Equal(t, "SP", inv.OriginState)
	assert.Equal(t, "PE", inv.DestState)
	assert.True(t, inv.IsInterstate())

	// Verify items
	require.Len(t, inv.Items, 2)
	first := inv.Items[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "17011400", first.NCM)
	assert.True(t, first.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, first.Total.Equal(decimal.NewFromInt(3500)))
	assert.Equal(t, "01", first.Taxes.PisCST)
	assert.True(t, first.Taxes.PisRate.Equal(decimal.RequireFromString("1.65")))
	assert.True(t, first.Taxes.CofinsValue.Equal(decimal.NewFromInt(266)))
	assert.True(t, first.Taxes.IcmsRate.Equal(decimal.NewFromInt(12)))

	second := inv.Items[1]
	assert.Equal(t, "04", second.Taxes.PisCST)
	assert.Equal(t, "04", second.Taxes.CofinsCST)
	assert.True(t, second.Taxes.PisRate.IsZero())

	// Verify totals
	assert.True(t, inv.Totals.Products.Equal(decimal.NewFromInt(5000)))
	assert.True(t, inv.Totals.Invoice.Equal(decimal.NewFromInt(5000)))
	assert.True(t, inv.Totals.Pis.Equal(decimal.RequireFromString("57.75")))
	assert.True(t, inv.Totals.Icms.Equal(decimal.NewFromInt(420)))
}

func TestNFeAdapter_Parse(t *testing.T) {
	content := readTestFile(t, "nfe.xml")

	adapter := xmlparser.NewNFeAdapter()
	require.True(t, adapter.CanParse(content))
	assert.False(t, xmlparser.NewProcNFeAdapter().CanParse(content))

	inv, err := adapter.Parse(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "35240212345678000190550010000004561234567891", inv.AccessKey)
	assert.Equal(t, "456", inv.Number)
	assert.Equal(t, "12345678909", inv.Recipient.TaxID)
	assert.False(t, inv.IsInterstate())

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "17019900", inv.Items[0].NCM)
	assert.True(t, inv.Items[0].Taxes.IcmsValue.IsZero())

	// no ICMSTot: totals come from the items
	assert.True(t, inv.Totals.Products.Equal(decimal.NewFromInt(450)))
	assert.True(t, inv.Totals.Pis.Equal(decimal.RequireFromString("7.43")))
}

func TestNFeAdapter_ParseTotalAdjustments(t *testing.T) {
	content := `<NFe><infNFe Id="NFe1"><ide><nNF>1</nNF><dhEmi>2024-01-15</dhEmi></ide>` +
		`<det nItem="1"><prod><vProd>3500.00</vProd></prod></det>` +
		`<total><ICMSTot><vProd>3500.00</vProd><vFrete>150.00</vFrete><vSeg>10.00</vSeg>` +
		`<vDesc>35.00</vDesc><vOutro>5.00</vOutro><vIPI>175.00</vIPI><vST>52.50</vST>` +
		`<vNF>3857.50</vNF></ICMSTot></total></infNFe></NFe>`

	inv, err := xmlparser.NewNFeAdapter().Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)

	totals := inv.Totals
	assert.True(t, totals.Freight.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, totals.Insurance.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, totals.Discount.Equal(decimal.RequireFromString("35.00")))
	assert.True(t, totals.Other.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, totals.IPI.Equal(decimal.RequireFromString("175.00")))
	assert.True(t, totals.ST.Equal(decimal.RequireFromString("52.50")))
	assert.True(t, totals.ExpectedInvoiceTotal().Equal(totals.Invoice), "got %s", totals.ExpectedInvoiceTotal())
}

func TestRegistry_Parse(t *testing.T) {
	registry := xmlparser.NewRegistry()

	for _, file := range []string{"procnfe.xml", "nfe.xml"} {
		t.Run(file, func(t *testing.T) {
			inv, err := registry.Parse(context.Background(), readTestFile(t, file))
			require.NoError(t, err)
			assert.NotEmpty(t, inv.AccessKey)
			assert.NotEmpty(t, inv.Items)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	adapter := xmlparser.NewNFeAdapter()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"malformed xml", `<NFe><infNFe>`, "xml"},
		{"empty infNFe", `<NFe><infNFe Id="NFe1"></infNFe></NFe>`, "infNFe"},
		{"invalid date", `<NFe><infNFe><ide><nNF>1</nNF><dhEmi>ontem</dhEmi></ide></infNFe></NFe>`, "dhEmi"},
		{
			"invalid number",
			`<NFe><infNFe><ide><nNF>1</nNF><dhEmi>2024-01-15</dhEmi></ide>` +
				`<det nItem="1"><prod><vProd>abc</vProd></prod></det></infNFe></NFe>`,
			"vProd",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Parse(context.Background(), strings.NewReader(tt.content))
			var parseErr *model.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.field, parseErr.Field)
		})
	}
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := xmlparser.NewProcNFeAdapter().Parse(ctx, bytes.NewReader(readTestFile(t, "procnfe.xml")))
	assert.ErrorIs(t, err, context.Canceled)
}

func readTestFile(t *testing.T, filename string) []byte {
	t.Helper()
	path := filepath.Join("testdata", filename)
	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read test file: %s", filename)
	return content
}
