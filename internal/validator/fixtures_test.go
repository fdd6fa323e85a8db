package validator_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

var repo = rules.MustLoadDefault()

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validItem() model.InvoiceItem {
	return model.InvoiceItem{
		Number:      1,
		ProductCode: "ACU001",
		Description: "AÇÚCAR CRISTAL",
		NCM:         "17011100",
		CFOP:        "5101",
		Unit:        "TON",
		Quantity:    d("10"),
		UnitPrice:   d("350.00"),
		Total:       d("3500.00"),
		Taxes: model.TaxItem{
			PisCST:      "01",
			PisRate:     d("1.65"),
			PisBase:     d("3500.00"),
			PisValue:    d("57.75"),
			CofinsCST:   "01",
			CofinsRate:  d("7.60"),
			CofinsBase:  d("3500.00"),
			CofinsValue: d("266.00"),
		},
	}
}

func internalInvoice() *model.Invoice {
	return &model.Invoice{
		AccessKey:   "35240112345678000190550010000001231234567890",
		Number:      "123",
		Series:      "1",
		IssuedAt:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Issuer:      model.Company{TaxID: "12345678000190", Name: "Usina Açúcar Ltda", State: "SP"},
		Recipient:   model.Company{TaxID: "98765432000110", Name: "Distribuidora Doce SA", State: "SP"},
		CFOP:        "5101",
		OriginState: "SP",
		DestState:   "SP",
		Items:       []model.InvoiceItem{validItem()},
		Totals: model.InvoiceTotals{
			Products: d("3500.00"),
			Invoice:  d("3500.00"),
			Pis:      d("57.75"),
			Cofins:   d("266.00"),
		},
	}
}

func interstateInvoice() *model.Invoice {
	inv := internalInvoice()
	inv.AccessKey = "35240112345678000190550010000004561234567891"
	inv.Recipient.State = "PE"
	inv.DestState = "PE"
	inv.CFOP = "6101"
	inv.Items[0].CFOP = "6101"
	return inv
}

func codes(errs []model.ValidationError) []model.ErrorCode {
	out := make([]model.ErrorCode, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func find(t *testing.T, errs []model.ValidationError, code model.ErrorCode) model.ValidationError {
	t.Helper()
	for _, e := range errs {
		if e.Code == code {
			return e
		}
	}
	t.Fatalf("expected %s in %v", code, codes(errs))
	return model.ValidationError{}
}
