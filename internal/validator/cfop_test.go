package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

func TestCFOPValidator(t *testing.T) {
	v := validator.NewCFOPValidator(repo)

	tests := []struct {
		name       string
		cfop       string
		interstate bool
		expected   []model.ErrorCode
	}{
		{"internal CFOP on internal operation", "5101", false, nil},
		{"interstate CFOP on interstate operation", "6101", true, nil},
		{"three digits", "510", false, []model.ErrorCode{model.CFOPInvalidFormat}},
		{"letters", "51O1", false, []model.ErrorCode{model.CFOPInvalidFormat}},
		{"unregistered", "9999", false, []model.ErrorCode{model.CFOPNotRegistered}},
		{"internal CFOP on interstate operation", "5101", true, []model.ErrorCode{model.CFOPInternalOnInter}},
		{"interstate CFOP on internal operation", "6101", false, []model.ErrorCode{model.CFOPInterOnInternal}},
		{"export CFOP carries no state scope", "7101", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := internalInvoice()
			if tt.interstate {
				inv = interstateInvoice()
			}
			item := validItem()
			item.CFOP = tt.cfop

			errs := v.Validate(item, inv)
			if tt.expected == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.expected, codes(errs))
		})
	}
}

func TestCFOPValidator_Details(t *testing.T) {
	v := validator.NewCFOPValidator(repo)

	item := validItem()
	item.CFOP = "510"
	errs := v.Validate(item, internalInvoice())
	require.Len(t, errs, 1)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)

	item.CFOP = "5101"
	errs = v.Validate(item, interstateInvoice())
	require.Len(t, errs, 1)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)
	assert.Contains(t, errs[0].Message, "SP → PE")
	assert.True(t, errs[0].CanAutoCorrect)
	assert.Equal(t, "6101", errs[0].CorrectedValue)

	item.CFOP = "6905"
	errs = v.Validate(item, internalInvoice())
	require.Len(t, errs, 1)
	assert.Equal(t, model.CFOPInterOnInternal, errs[0].Code)
	assert.Equal(t, "5905", errs[0].CorrectedValue)

	item.CFOP = "5999"
	errs = v.Validate(item, internalInvoice())
	require.Len(t, errs, 1)
	assert.Equal(t, model.CFOPNotRegistered, errs[0].Code)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)
}

func TestCFOPValidator_InheritsInvoiceCFOP(t *testing.T) {
	v := validator.NewCFOPValidator(repo)

	item := validItem()
	item.CFOP = ""
	inv := interstateInvoice()
	assert.Empty(t, v.Validate(item, inv))

	inv.CFOP = "5101"
	assert.Equal(t, []model.ErrorCode{model.CFOPInternalOnInter}, codes(v.Validate(item, inv)))
}
