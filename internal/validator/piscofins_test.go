package validator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	money "github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

func TestPISCOFINSValidator_ValidItem(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")
	assert.Empty(t, v.Validate(validItem(), internalInvoice()))
}

func TestPISCOFINSValidator_InvalidCST(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.PisCST = "99"
	item.Taxes.PisRate = d("5.00") // ignored once the CST is invalid
	errs := v.Validate(item, internalInvoice())

	require.Len(t, errs, 1)
	assert.Equal(t, model.PISInvalidCST, errs[0].Code)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)

	item = validItem()
	item.Taxes.CofinsCST = "99"
	errs = v.Validate(item, internalInvoice())
	assert.Equal(t, []model.ErrorCode{model.COFINSInvalidCST}, codes(errs))

	item = validItem()
	item.Taxes.PisCST = ""
	errs = v.Validate(item, internalInvoice())
	assert.Equal(t, []model.ErrorCode{model.PISInvalidCST}, codes(errs))
}

func TestPISCOFINSValidator_RateMismatch(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	// value consistent with the declared rate: only the rate is wrong
	item := validItem()
	item.Taxes.PisRate = d("5.00")
	item.Taxes.PisValue = d("175.00")
	errs := v.Validate(item, internalInvoice())

	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, model.PISRateMismatch, e.Code)
	assert.Equal(t, model.SeverityCritical, e.Severity)
	assert.Equal(t, "5.00", e.ActualValue)
	assert.Equal(t, "1.65", e.ExpectedValue)
	// |5.00 - 1.65| / 100 × 3500.00
	assert.True(t, e.Impact().Equal(d("117.25")), "got %s", e.Impact())
	assert.Equal(t, "Lei nº 10.637/2002", e.LegalReference)
	assert.True(t, e.CanAutoCorrect)
	assert.Equal(t, "1.65", e.CorrectedValue)

	item = validItem()
	item.Taxes.CofinsRate = d("10.00")
	item.Taxes.CofinsValue = d("350.00")
	errs = v.Validate(item, internalInvoice())
	require.Len(t, errs, 1)
	e = errs[0]
	assert.Equal(t, model.COFINSRateMismatch, e.Code)
	assert.Equal(t, model.SeverityCritical, e.Severity)
	assert.Equal(t, "Lei nº 10.833/2003", e.LegalReference)
	assert.True(t, e.Impact().Equal(d("84.00")))
}

func TestPISCOFINSValidator_ValueCheckedAgainstDeclaredRate(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	// 57.75 is right for 1.65% but not for the declared 5.00%
	item := validItem()
	item.Taxes.PisRate = d("5.00")
	errs := v.Validate(item, internalInvoice())

	assert.Equal(t, []model.ErrorCode{model.PISRateMismatch, model.PISValueDiff}, codes(errs))
	value := find(t, errs, model.PISValueDiff)
	assert.Equal(t, "175.00", value.ExpectedValue)
	assert.True(t, value.Impact().Equal(d("117.25")))
}

func TestPISCOFINSValidator_RateDisplayKeepsPrecision(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.PisRate = d("1.655")
	item.Taxes.PisValue = d("57.93")
	errs := v.Validate(item, internalInvoice())

	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, model.PISRateMismatch, e.Code)
	assert.Equal(t, "1.655", e.ActualValue)
	assert.Equal(t, "1.65", e.ExpectedValue)
	assert.NotEqual(t, e.ActualValue, e.ExpectedValue)
	assert.Contains(t, e.Message, "1,655%")
}

func TestPISCOFINSValidator_ExpectedRatesAcceptedForEveryCST(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")
	base := d("3500.00")
	checked := 0

	for _, regime := range []model.Regime{model.RegimeStandard, model.RegimeCumulative} {
		for _, cst := range repo.ValidCstCodes() {
			rates, err := repo.PisCofinsRates(cst, regime)
			if errors.Is(err, rules.ErrRuleNotFound) {
				continue
			}
			require.NoError(t, err)
			checked++

			t.Run(string(regime)+"/"+cst, func(t *testing.T) {
				inv := internalInvoice()
				inv.Regime = regime

				item := validItem()
				item.Taxes.PisCST = cst
				item.Taxes.PisRate = rates.Pis
				item.Taxes.PisBase = base
				item.Taxes.PisValue = money.PercentOf(base, rates.Pis)
				item.Taxes.CofinsCST = cst
				item.Taxes.CofinsRate = rates.Cofins
				item.Taxes.CofinsBase = base
				item.Taxes.CofinsValue = money.PercentOf(base, rates.Cofins)

				got := codes(v.Validate(item, inv))
				assert.NotContains(t, got, model.PISRateMismatch)
				assert.NotContains(t, got, model.COFINSRateMismatch)
				assert.NotContains(t, got, model.PISValueDiff)
				assert.NotContains(t, got, model.COFINSValueDiff)
			})
		}
	}

	assert.Positive(t, checked)
}

func TestPISCOFINSValidator_RatesAreExact(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.PisRate = d("1.66")
	errs := v.Validate(item, internalInvoice())
	assert.Contains(t, codes(errs), model.PISRateMismatch)

	item = validItem()
	item.Taxes.PisRate = d("1.650")
	assert.Empty(t, v.Validate(item, internalInvoice()))
}

func TestPISCOFINSValidator_ValueMismatch(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.PisValue = d("100.00")
	errs := v.Validate(item, internalInvoice())

	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, model.PISValueDiff, e.Code)
	assert.Equal(t, "100.00", e.ActualValue)
	assert.Equal(t, "57.75", e.ExpectedValue)
	assert.True(t, e.Impact().Equal(d("42.25")))
	assert.True(t, e.Impact().IsPositive())

	item = validItem()
	item.Taxes.CofinsValue = d("100.00")
	errs = v.Validate(item, internalInvoice())
	e = find(t, errs, model.COFINSValueDiff)
	assert.Equal(t, "266.00", e.ExpectedValue)
}

func TestPISCOFINSValidator_Tolerance(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	tests := []struct {
		name    string
		value   string
		flagged bool
	}{
		{"exact half-up rounding", "28.88", false},
		{"one centavo below", "28.87", false},
		{"one centavo above", "28.89", false},
		{"two centavos below", "28.86", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			item.Total = d("1750.00")
			item.Taxes.PisBase = d("1750.00")
			item.Taxes.PisValue = d(tt.value)
			item.Taxes.CofinsBase = d("1750.00")
			item.Taxes.CofinsValue = d("133.00")

			errs := v.Validate(item, internalInvoice())
			if tt.flagged {
				assert.Equal(t, []model.ErrorCode{model.PISValueDiff}, codes(errs))
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestPISCOFINSValidator_InconsistentCSTs(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.CofinsCST = "06"
	item.Taxes.CofinsRate = d("0")
	item.Taxes.CofinsValue = d("0")
	errs := v.Validate(item, internalInvoice())

	require.Len(t, errs, 1)
	assert.Equal(t, model.PISCOFINSInconsistentCST, errs[0].Code)
	assert.Equal(t, model.SeverityWarning, errs[0].Severity)
	assert.Contains(t, errs[0].Message, "TAXED")
	assert.Contains(t, errs[0].Message, "ZERO_RATE")

	// an invalid CST suppresses the pairing check
	item.Taxes.PisCST = "99"
	errs = v.Validate(item, internalInvoice())
	assert.NotContains(t, codes(errs), model.PISCOFINSInconsistentCST)
}

func TestPISCOFINSValidator_CumulativeRegime(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	inv := internalInvoice()
	inv.Regime = model.RegimeCumulative
	errs := v.Validate(validItem(), inv)

	pis := find(t, errs, model.PISRateMismatch)
	assert.Equal(t, "0.65", pis.ExpectedValue)
	assert.Equal(t, "Lei nº 9.718/1998", pis.LegalReference)
	cofins := find(t, errs, model.COFINSRateMismatch)
	assert.Equal(t, "3.00", cofins.ExpectedValue)

	item := validItem()
	item.Taxes.PisRate = d("0.65")
	item.Taxes.PisValue = d("22.75")
	item.Taxes.CofinsRate = d("3.00")
	item.Taxes.CofinsValue = d("105.00")
	assert.Empty(t, v.Validate(item, inv))

	// the default regime applies to invoices without one
	cumulative := validator.NewPISCOFINSValidator(repo, model.RegimeCumulative)
	assert.Empty(t, cumulative.Validate(item, internalInvoice()))
}

func TestPISCOFINSValidator_CSTWithoutRateTable(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	item := validItem()
	item.Taxes.PisCST = "02"
	item.Taxes.PisRate = d("2.00")
	item.Taxes.PisValue = d("70.00")
	item.Taxes.CofinsCST = "02"
	item.Taxes.CofinsRate = d("9.60")
	item.Taxes.CofinsValue = d("336.00")
	assert.Empty(t, v.Validate(item, internalInvoice()))

	item.Taxes.PisValue = d("57.75")
	errs := v.Validate(item, internalInvoice())
	e := find(t, errs, model.PISValueDiff)
	assert.Equal(t, "70.00", e.ExpectedValue)
}

func TestPISCOFINSValidator_DoesNotMutate(t *testing.T) {
	v := validator.NewPISCOFINSValidator(repo, "")

	inv := internalInvoice()
	inv.Items[0].Taxes.PisRate = d("5.00")
	before := *inv
	before.Items = append([]model.InvoiceItem(nil), inv.Items...)

	first := v.Validate(inv.Items[0], inv)
	second := v.Validate(inv.Items[0], inv)

	assert.Equal(t, first, second)
	assert.Equal(t, before.Items, inv.Items)
	assert.Empty(t, inv.ValidationErrors)
}
