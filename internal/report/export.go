package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
)

// Format names an output format
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatPDF      Format = "pdf"
)

// ParseFormat resolves a format name ("markdown" is accepted for md)
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatMarkdown, FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// SaveJSON writes the summary of inv to path
func (g *Generator) SaveJSON(inv *model.Invoice, path string) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteJSON(w, g.Build(inv))
	})
}

// SaveMarkdown writes the narrative of inv to path
func (g *Generator) SaveMarkdown(inv *model.Invoice, path string) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteMarkdown(w, g.Build(inv))
	})
}

// Save writes summaries to dir in each format. JSON, Markdown and PDF are
// written per invoice; CSV and XLSX hold the whole batch. It returns the
// written paths.
func Save(dir string, summaries []*Summary, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range formats {
		switch f {
		case FormatJSON, FormatMarkdown, FormatPDF:
			for _, s := range summaries {
				path := filepath.Join(dir, FileName(s, f))
				if err := writeFile(path, func(w io.Writer) error {
					return Write(w, f, s)
				}); err != nil {
					return paths, err
				}
				paths = append(paths, path)
			}
		case FormatCSV, FormatXLSX:
			path := filepath.Join(dir, "auditoria."+string(f))
			err := writeFile(path, func(w io.Writer) error {
				if f == FormatCSV {
					return WriteCSV(w, summaries)
				}
				return WriteXLSX(w, summaries)
			})
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		default:
			return paths, fmt.Errorf("unsupported report format %q", f)
		}
	}
	return paths, nil
}

// Write renders one summary in a per-invoice format
func Write(w io.Writer, f Format, s *Summary) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, s)
	case FormatMarkdown:
		return WriteMarkdown(w, s)
	case FormatPDF:
		return WritePDF(w, s)
	case FormatCSV:
		return WriteCSV(w, []*Summary{s})
	case FormatXLSX:
		return WriteXLSX(w, []*Summary{s})
	}
	return fmt.Errorf("unsupported report format %q", f)
}

// FileName returns "relatorio_<key>.<ext>" with unsafe characters replaced
func FileName(s *Summary, f Format) string {
	key := s.NFeInfo.AccessKey
	if key == "" {
		key = s.Metadata.ReportID
	}
	safe := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' {
			return r
		}
		return '_'
	}, key)
	return "relatorio_" + safe + "." + string(f)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteJSON writes the summary as indented JSON
func WriteJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(s)
}

// WriteMarkdown writes the narrative report
func WriteMarkdown(w io.Writer, s *Summary) error {
	_, err := io.WriteString(w, RenderMarkdown(s))
	return err
}

var findingHeader = []string{
	"chave_acesso", "numero", "codigo", "categoria", "severidade", "item", "campo",
	"mensagem", "valor_encontrado", "valor_esperado", "impacto_financeiro",
	"base_legal", "sugestao", "correcao",
}

func findingRow(s *Summary, e ErrorEntry) []string {
	item := ""
	if e.HasItem() {
		item = strconv.Itoa(e.Item())
	}
	impact := ""
	if e.FinancialImpact.Valid {
		impact = decimal.Fixed(e.Impact())
	}
	return []string{
		s.NFeInfo.AccessKey, s.NFeInfo.Number, string(e.Code), string(e.Category),
		string(e.Severity), item, e.Field, e.Message, e.ActualValue, e.ExpectedValue,
		impact, joinNonEmpty(", ", e.LegalReference, e.LegalArticle), e.Suggestion,
		e.CorrectedValue,
	}
}

// WriteCSV writes one row per finding across all summaries
func WriteCSV(w io.Writer, summaries []*Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(findingHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		for _, e := range s.Errors {
			if err := cw.Write(findingRow(s, e)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	sheetSummary  = "Resumo"
	sheetFindings = "Achados"
)

var summaryHeader = []any{
	"Chave de Acesso", "Número", "Emitente", "Destinatário", "Operação", "Status",
	"Total de Problemas", "Críticos", "Erros", "Avisos", "Impacto Financeiro (R$)",
}

// WriteXLSX writes a workbook with a summary sheet (one row per invoice)
// and a findings sheet (one row per finding)
func WriteXLSX(w io.Writer, summaries []*Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetFindings); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(sheetSummary, "A1", &summaryHeader); err != nil {
		return err
	}
	for i, s := range summaries {
		vs := s.ValidationSummary
		impact, _ := vs.FinancialImpact.Total.Float64()
		row := []any{
			s.NFeInfo.AccessKey, s.NFeInfo.Number, s.NFeInfo.Issuer.Name, s.NFeInfo.Recipient.Name,
			string(s.NFeInfo.Operation.Type), vs.Status, vs.TotalErrors,
			vs.BySeverity.Critical, vs.BySeverity.Error, vs.BySeverity.Warning, impact,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return err
		}
	}

	findings := make([]any, len(findingHeader))
	for i, h := range findingHeader {
		findings[i] = h
	}
	if err := f.SetSheetRow(sheetFindings, "A1", &findings); err != nil {
		return err
	}
	line := 2
	for _, s := range summaries {
		for _, e := range s.Errors {
			values := findingRow(s, e)
			row := make([]any, len(values))
			for i, v := range values {
				row[i] = v
			}
			if e.FinancialImpact.Valid {
				row[10], _ = e.Impact().Float64()
			}
			cell, err := excelize.CoordinatesToCellName(1, line)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheetFindings, cell, &row); err != nil {
				return err
			}
			line++
		}
	}

	lastSummary, _ := excelize.CoordinatesToCellName(len(summaryHeader), 1)
	if err := f.SetCellStyle(sheetSummary, "A1", lastSummary, header); err != nil {
		return err
	}
	lastFinding, _ := excelize.CoordinatesToCellName(len(findingHeader), 1)
	if err := f.SetCellStyle(sheetFindings, "A1", lastFinding, header); err != nil {
		return err
	}
	return f.Write(w)
}

var pdfSeverity = map[model.Severity]string{
	model.SeverityCritical: "CRÍTICO",
	model.SeverityError:    "ERRO",
	model.SeverityWarning:  "AVISO",
}

// WritePDF writes a printable version of the narrative report
func WritePDF(w io.Writer, s *Summary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	heading := func(text string) {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(text), "B", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont("Arial", "", 10)
	}
	field := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, tr(value), "", "L", false)
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("RELATÓRIO DE AUDITORIA FISCAL - NF-e"), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, tr("Gerado em "+displayTime(s.Metadata.GeneratedAt)+" | ID "+s.Metadata.ReportID),
		"", 1, "C", false, 0, "")

	n := s.NFeInfo
	heading("Identificação da NF-e")
	field("Chave de Acesso", n.AccessKey)
	field("Número / Série", n.Number+" / "+n.Series)
	field("Data de Emissão", displayDate(n.IssueDate))
	field("Emitente", fmt.Sprintf("%s (%s) - %s", n.Issuer.Name, n.Issuer.FormattedCNPJ, n.Issuer.State))
	field("Destinatário", fmt.Sprintf("%s (%s) - %s", n.Recipient.Name, n.Recipient.FormattedCNPJ, n.Recipient.State))
	field("Operação", fmt.Sprintf("%s (%s -> %s)", n.Operation.Type, n.Operation.Origin, n.Operation.Dest))
	field("Valor Total", decimal.FormatBRL(n.Totals.Invoice))

	vs := s.ValidationSummary
	heading("Resumo da Validação")
	field("Status", vs.Status)
	field("Total de Problemas", strconv.Itoa(vs.TotalErrors))
	field("Críticos / Erros / Avisos", fmt.Sprintf("%d / %d / %d",
		vs.BySeverity.Critical, vs.BySeverity.Error, vs.BySeverity.Warning))
	field("Impacto Financeiro", decimal.FormatBRL(vs.FinancialImpact.Total))

	heading("Problemas Encontrados")
	if len(s.Errors) == 0 {
		pdf.MultiCell(0, 6, tr("Nenhuma inconsistência encontrada."), "", "L", false)
	}
	for i, e := range s.Errors {
		pdf.SetFont("Arial", "B", 10)
		title := fmt.Sprintf("%d. [%s] %s", i+1, pdfSeverity[e.Severity], e.Code)
		if e.HasItem() {
			title += fmt.Sprintf(" - Item %d", e.Item())
		}
		pdf.CellFormat(0, 6, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(e.Message), "", "L", false)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("Encontrado: %s | Esperado: %s",
			orDash(e.ActualValue), orDash(e.ExpectedValue))), "", "L", false)
		if e.FinancialImpact.Valid {
			pdf.MultiCell(0, 5, tr("Impacto: "+decimal.FormatBRL(e.Impact())), "", "L", false)
		}
		if e.LegalReference != "" {
			pdf.MultiCell(0, 5, tr("Base legal: "+joinNonEmpty(", ", e.LegalReference, e.LegalArticle)), "", "L", false)
		}
		pdf.Ln(2)
	}

	heading("Recomendações")
	for i, r := range s.Recommendations {
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s", i+1, r)), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}
