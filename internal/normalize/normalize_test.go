package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rezonia/nfe-auditor/internal/normalize"
)

func TestNCM(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1701", "17010000"},
		{"170111", "17011100"},
		{"17011100", "17011100"},
		{"1701.11.00", "17011100"},
		{" 22071000 ", "22071000"},
		{"ABC", "ABC"},
		{"", ""},
		{"123456789", "123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize.NCM(tt.input))
		})
	}
}

func TestNCM_Idempotent(t *testing.T) {
	for _, in := range []string{"1701", "170111", "17011100", "ABC", "1701.1"} {
		once := normalize.NCM(in)
		assert.Equal(t, once, normalize.NCM(once), in)
	}
}

func TestCST(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1", "01"},
		{"01", "01"},
		{"6", "06"},
		{"49", "49"},
		{"", ""},
		{"X", "X"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize.CST(tt.input))
			assert.Equal(t, tt.expected, normalize.CST(normalize.CST(tt.input)))
		})
	}
}

func TestCFOP(t *testing.T) {
	assert.Equal(t, "5101", normalize.CFOP("5.101"))
	assert.Equal(t, "6101", normalize.CFOP(" 6101 "))
	assert.Equal(t, "51O1", normalize.CFOP("51O1"))
	assert.Equal(t, "510", normalize.CFOP("510"))
}

func TestIsDigits(t *testing.T) {
	assert.True(t, normalize.IsDigits("17011100", 8))
	assert.False(t, normalize.IsDigits("1701110", 8))
	assert.False(t, normalize.IsDigits("1701110A", 8))
	assert.True(t, normalize.IsDigits("5101", 4))
}

func TestFormatCNPJ(t *testing.T) {
	assert.Equal(t, "12.345.678/0001-90", normalize.FormatCNPJ("12345678000190"))
	assert.Equal(t, "12.345.678/0001-90", normalize.FormatCNPJ("12.345.678/0001-90"))
	assert.Equal(t, "123", normalize.FormatCNPJ("123"))
}

func TestFormatNCM(t *testing.T) {
	assert.Equal(t, "1701.11.00", normalize.FormatNCM("17011100"))
	assert.Equal(t, "1701", normalize.FormatNCM("1701"))
}

func TestFormatAccessKey(t *testing.T) {
	key := "35240112345678000190550010000001231234567890"
	assert.Equal(t, "3524 0112 3456 7800 0190 5500 1000 0001 2312 3456 7890", normalize.FormatAccessKey(key))
	assert.Equal(t, "ABC", normalize.FormatAccessKey("ABC"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "acucar cristal", normalize.Fold("AÇÚCAR CRISTAL"))
	assert.Equal(t, "alcool etilico", normalize.Fold("Álcool Etílico"))
	assert.Equal(t, []string{"acucar", "de", "cana", "em", "bruto"}, normalize.Tokens("Açúcar de cana, em bruto"))
}
