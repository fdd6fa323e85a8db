package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-auditor/internal/model"
)

func sampleInvoice() model.Invoice {
	return model.Invoice{
		AccessKey:   "35240112345678000190550010000001231234567890",
		Number:      "123",
		Series:      "1",
		IssuedAt:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Issuer:      model.Company{TaxID: "12345678000190", Name: "Usina Açúcar Ltda", State: "SP"},
		Recipient:   model.Company{TaxID: "98765432000110", Name: "Distribuidora Doce SA", State: "SP"},
		CFOP:        "5101",
		OriginState: "SP",
		DestState:   "SP",
		Items: []model.InvoiceItem{
			{
				Number:      1,
				Description: "AÇÚCAR CRISTAL",
				NCM:         "17011400",
				CFOP:        "5101",
				Total:       decimal.RequireFromString("2000.00"),
				Taxes: model.TaxItem{
					PisValue:    decimal.RequireFromString("33.00"),
					CofinsValue: decimal.RequireFromString("152.00"),
				},
			},
			{
				Number:      2,
				Description: "AÇÚCAR VHP",
				NCM:         "17011400",
				CFOP:        "5101",
				Total:       decimal.RequireFromString("1500.00"),
				Taxes: model.TaxItem{
					PisValue:    decimal.RequireFromString("24.75"),
					CofinsValue: decimal.RequireFromString("114.00"),
				},
			},
		},
	}
}

func TestInvoice_OperationType(t *testing.T) {
	inv := sampleInvoice()
	assert.False(t, inv.IsInterstate())
	assert.Equal(t, model.OperationInternal, inv.OperationType())

	inv.DestState = "PE"
	assert.True(t, inv.IsInterstate())
	assert.Equal(t, model.OperationInterstate, inv.OperationType())
}

func TestInvoice_ComputeTotals(t *testing.T) {
	inv := sampleInvoice()
	inv.ComputeTotals()

	assert.True(t, inv.Totals.Products.Equal(decimal.RequireFromString("3500.00")))
	assert.True(t, inv.Totals.Invoice.Equal(decimal.RequireFromString("3500.00")))
	assert.True(t, inv.Totals.Pis.Equal(decimal.RequireFromString("57.75")))
	assert.True(t, inv.Totals.Cofins.Equal(decimal.RequireFromString("266.00")))
	assert.True(t, inv.Totals.Icms.IsZero())
}

func TestInvoice_Item(t *testing.T) {
	inv := sampleInvoice()

	item, ok := inv.Item(2)
	require.True(t, ok)
	assert.Equal(t, "AÇÚCAR VHP", item.Description)

	_, ok = inv.Item(9)
	assert.False(t, ok)
}

func TestInvoice_AccessKeyStaysString(t *testing.T) {
	inv := sampleInvoice()

	data, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chave_acesso":"35240112345678000190550010000001231234567890"`)
	assert.NotContains(t, string(data), "e+43")

	var parsed model.Invoice
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, inv.AccessKey, parsed.AccessKey)
	assert.Len(t, parsed.Items, 2)
}

func TestSeverity_Order(t *testing.T) {
	assert.True(t, model.SeverityCritical.MoreUrgent(model.SeverityError))
	assert.True(t, model.SeverityError.MoreUrgent(model.SeverityWarning))
	assert.False(t, model.SeverityWarning.MoreUrgent(model.SeverityCritical))
	assert.Equal(t, []model.Severity{model.SeverityCritical, model.SeverityError, model.SeverityWarning}, model.Severities)
}

func TestSeverity_UnmarshalRejectsUnknown(t *testing.T) {
	var s model.Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &s))
	assert.Equal(t, model.SeverityCritical, s)

	err := json.Unmarshal([]byte(`"FATAL"`), &s)
	assert.Error(t, err)
}

func TestParseRegime(t *testing.T) {
	tests := []struct {
		input    string
		expected model.Regime
	}{
		{"", model.RegimeStandard},
		{"standard", model.RegimeStandard},
		{"Lucro Real", model.RegimeStandard},
		{"nao-cumulativo", model.RegimeStandard},
		{"CUMULATIVE", model.RegimeCumulative},
		{"cumulativo", model.RegimeCumulative},
		{"lucro_presumido", model.RegimeCumulative},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := model.ParseRegime(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r)
		})
	}

	_, err := model.ParseRegime("SIMPLES_NACIONAL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnsupportedRegime))
}

func TestErrorCode_Catalog(t *testing.T) {
	for _, code := range model.AllErrorCodes() {
		t.Run(string(code), func(t *testing.T) {
			info, ok := code.Info()
			require.True(t, ok)
			assert.True(t, info.Severity.Valid())
			assert.NotEmpty(t, info.Title)
			assert.NotEmpty(t, info.LegalRef)
			assert.Contains(t, string(code), string(info.Category)+"_")
		})
	}

	assert.Equal(t, model.SeverityCritical, model.NCMInvalidFormat.Severity())
	assert.Equal(t, model.SeverityWarning, model.NCMDescriptionDiff.Severity())
	assert.Equal(t, model.SeverityCritical, model.CFOPNotRegistered.Severity())
	assert.Equal(t, model.SeverityWarning, model.PISCOFINSInconsistentCST.Severity())
	assert.Equal(t, model.SeverityError, model.TotalPISDiff.Severity())
	assert.Equal(t, model.CategoryPISCOFINS, model.PISCOFINSInconsistentCST.Category())
	assert.False(t, model.ErrorCode("ICMS_001").Valid())
}

func TestParseError(t *testing.T) {
	cause := errors.New("bad digit")
	err := model.NewParseError(model.SourceCSV, "data_emissao", "data inválida", cause)

	assert.Equal(t, "[CSV] data_emissao: data inválida (bad digit)", err.Error())
	assert.True(t, errors.Is(err, cause))

	var pe *model.ParseError
	wrapped := &model.RowError{Line: 3, Cause: err}
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "data_emissao", pe.Field)
	assert.Contains(t, wrapped.Error(), "linha 3")
}
