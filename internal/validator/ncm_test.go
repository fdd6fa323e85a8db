package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

func TestNCMValidator(t *testing.T) {
	v := validator.NewNCMValidator(repo)

	tests := []struct {
		name        string
		ncm         string
		description string
		expected    []model.ErrorCode
	}{
		{"valid sugar NCM", "17011100", "AÇÚCAR CRISTAL", nil},
		{"valid ethanol NCM", "22071090", "Etanol hidratado combustível", nil},
		{"accent-insensitive keyword", "17011400", "acucar vhp", nil},
		{"invalid format short-circuits", "1701ABC", "AÇÚCAR", []model.ErrorCode{model.NCMInvalidFormat}},
		{"too many digits", "170111000", "AÇÚCAR", []model.ErrorCode{model.NCMInvalidFormat}},
		{"empty NCM", "", "AÇÚCAR", []model.ErrorCode{model.NCMInvalidFormat}},
		{"unregistered NCM", "12345678", "AÇÚCAR CRISTAL", []model.ErrorCode{model.NCMNotSugarFamily}},
		{"registered non-sugar NCM with unrelated description", "23032000", "AÇÚCAR CRISTAL",
			[]model.ErrorCode{model.NCMNotSugarFamily, model.NCMDescriptionDiff}},
		{"description unrelated to NCM", "17011100", "PARAFUSO SEXTAVADO", []model.ErrorCode{model.NCMDescriptionDiff}},
		{"empty description skips description check", "17011100", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			item.NCM = tt.ncm
			item.Description = tt.description

			errs := v.Validate(item, internalInvoice())
			if tt.expected == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.expected, codes(errs))
		})
	}
}

func TestNCMValidator_Severities(t *testing.T) {
	v := validator.NewNCMValidator(repo)
	item := validItem()

	item.NCM = "1701ABC"
	errs := v.Validate(item, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)
	assert.Equal(t, 1, errs[0].Item())
	assert.Equal(t, "Decreto nº 11.158/2022", errs[0].LegalReference)

	item.NCM = "12345678"
	errs = v.Validate(item, nil)
	require.Len(t, errs, 1)
	assert.True(t, errs[0].Severity.MoreUrgent(model.SeverityWarning))
	assert.False(t, errs[0].Severity.MoreUrgent(model.SeverityCritical))

	item.NCM = "17011100"
	item.Description = "PARAFUSO"
	errs = v.Validate(item, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, model.SeverityWarning, errs[0].Severity)
	assert.Equal(t, "Açúcar de cana, em bruto", errs[0].ExpectedValue)
}

func TestDescriptionMatches(t *testing.T) {
	withKeywords := rules.NcmRule{Code: "17031000", Description: "Melaços de cana", Keywords: []string{"melaco", "mel"}}
	assert.True(t, validator.DescriptionMatches("MELAÇO DE CANA", withKeywords))
	assert.True(t, validator.DescriptionMatches("mel final", withKeywords))
	assert.False(t, validator.DescriptionMatches("caramelo", withKeywords))

	noKeywords := rules.NcmRule{Code: "99999999", Description: "Outros açúcares de cana"}
	assert.True(t, validator.DescriptionMatches("Açúcares especiais", noKeywords))
	assert.False(t, validator.DescriptionMatches("Outros produtos", noKeywords))
}
