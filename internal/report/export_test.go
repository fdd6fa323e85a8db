package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rezonia/nfe-auditor/internal/report"
)

func TestWriteJSON_RoundTrip(t *testing.T) {
	s := newGenerator(report.WithRepository(repo)).Build(invoiceWithErrors())

	var first bytes.Buffer
	require.NoError(t, report.WriteJSON(&first, s))

	var decoded report.Summary
	require.NoError(t, json.Unmarshal(first.Bytes(), &decoded))

	var second bytes.Buffer
	require.NoError(t, report.WriteJSON(&second, &decoded))
	assert.JSONEq(t, first.String(), second.String())

	assert.Equal(t, 3, decoded.ValidationSummary.TotalErrors)
	assert.True(t, decoded.ValidationSummary.FinancialImpact.Total.Equal(d("217.25")))
	assert.Equal(t, 1, *decoded.Errors[0].ItemNumber)
}

func TestWriteJSON_Keys(t *testing.T) {
	s := newGenerator().Build(invoiceWithErrors())

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, s))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	for _, key := range []string{
		"metadata", "nfe_info", "validation_summary", "errors", "errors_by_type",
		"items_analysis", "recommendations", "legal_references",
	} {
		assert.Contains(t, raw, key)
	}

	nfe := raw["nfe_info"].(map[string]any)
	assert.Equal(t, "INTERNA", nfe["operacao"].(map[string]any)["tipo"])
	assert.Contains(t, nfe["emitente"], "cnpj")

	errs := raw["errors"].([]any)
	first := errs[0].(map[string]any)
	for _, key := range []string{"code", "field", "message", "severity", "actual_value", "expected_value", "financial_impact", "category"} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, "117.25", first["financial_impact"])
	assert.Nil(t, errs[1].(map[string]any)["financial_impact"])
}

func TestWriteCSV(t *testing.T) {
	g := newGenerator()
	summaries := []*report.Summary{g.Build(invoiceWithErrors()), g.Build(invoice())}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, summaries))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "chave_acesso", rows[0][0])
	assert.Equal(t, "PIS_002", rows[1][2])
	assert.Equal(t, "1", rows[1][5])
	assert.Equal(t, "117.25", rows[1][10])
	assert.Equal(t, "", rows[3][5])
}

func TestWriteXLSX(t *testing.T) {
	g := newGenerator()
	summaries := []*report.Summary{g.Build(invoiceWithErrors()), g.Build(invoice())}

	var buf bytes.Buffer
	require.NoError(t, report.WriteXLSX(&buf, summaries))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Resumo")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "REPROVADA", rows[1][5])
	assert.Equal(t, "APROVADA", rows[2][5])

	findings, err := f.GetRows("Achados")
	require.NoError(t, err)
	assert.Len(t, findings, 4)
}

func TestWritePDF(t *testing.T) {
	s := newGenerator().Build(invoiceWithErrors())

	var buf bytes.Buffer
	require.NoError(t, report.WritePDF(&buf, s))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	g := newGenerator()
	summaries := []*report.Summary{g.Build(invoiceWithErrors())}

	formats := []report.Format{report.FormatJSON, report.FormatMarkdown, report.FormatPDF, report.FormatCSV, report.FormatXLSX}
	paths, err := report.Save(dir, summaries, formats)
	require.NoError(t, err)
	require.Len(t, paths, 5)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, filepath.Join(dir, "relatorio_35240112345678000190550010000001231234567890.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "auditoria.csv"), paths[3])

	_, err = report.Save(dir, summaries, []report.Format{"docx"})
	assert.Error(t, err)
}

func TestSaveJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	g := newGenerator()

	jsonPath := filepath.Join(dir, "r.json")
	require.NoError(t, g.SaveJSON(invoiceWithErrors(), jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	mdPath := filepath.Join(dir, "r.md")
	require.NoError(t, g.SaveMarkdown(invoiceWithErrors(), mdPath))
	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "**Total de Problemas Encontrados:** 3")
}

func TestSave_SinkErrorReturnedVerbatim(t *testing.T) {
	g := newGenerator()
	err := g.SaveJSON(invoice(), filepath.Join(t.TempDir(), "missing", "r.json"))

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileName(t *testing.T) {
	s := &report.Summary{}
	s.NFeInfo.AccessKey = "../etc/passwd"
	assert.Equal(t, "relatorio____etc_passwd.md", report.FileName(s, report.FormatMarkdown))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    report.Format
		wantErr bool
	}{
		{"json", report.FormatJSON, false},
		{"Markdown", report.FormatMarkdown, false},
		{" md ", report.FormatMarkdown, false},
		{"XLSX", report.FormatXLSX, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := report.ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
