package report

import (
	"fmt"
	"strings"
	"time"

	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
)

var severityLabels = map[model.Severity]string{
	model.SeverityCritical: "🔴 CRÍTICO",
	model.SeverityError:    "🟠 ERRO",
	model.SeverityWarning:  "🟡 AVISO",
}

var statusLabels = map[string]string{
	StatusApproved:         "✅ APROVADA",
	StatusApprovedWithNote: "⚠️ APROVADA COM RESSALVAS",
	StatusRejected:         "❌ REPROVADA",
}

var itemStatusLabels = map[string]string{
	ItemOK:       "✅ OK",
	ItemWarnings: "⚠️ COM ALERTAS",
	ItemErrors:   "❌ COM ERROS",
}

// SeverityLabel returns the Portuguese label of a severity
func SeverityLabel(s model.Severity) string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return string(s)
}

// Markdown builds the summary of inv and renders it as a narrative
func (g *Generator) Markdown(inv *model.Invoice) string {
	return RenderMarkdown(g.Build(inv))
}

// RenderMarkdown renders a Summary as a Portuguese Markdown report
func RenderMarkdown(s *Summary) string {
	var b strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	w("# 📋 RELATÓRIO DE AUDITORIA FISCAL - NF-e")
	w("")
	w("**Gerado em:** %s  ", displayTime(s.Metadata.GeneratedAt))
	w("**Versão do relatório:** %s  ", s.Metadata.ReportVersion)
	w("**ID do relatório:** `%s`", s.Metadata.ReportID)
	w("")
	w("---")
	w("")

	writeIdentification(w, s.NFeInfo)
	writeValidationSummary(w, s.ValidationSummary)
	writeFinancialImpact(w, s.ValidationSummary.FinancialImpact)
	writeFindings(w, s.Errors)
	writeItems(w, s.ItemsAnalysis)
	writeLegal(w, s.LegalReferences)

	w("## 💡 Recomendações")
	w("")
	for i, r := range s.Recommendations {
		w("%d. %s", i+1, r)
	}
	w("")
	w("---")
	w("*Relatório gerado automaticamente por %s v%s*", s.Metadata.Validator, s.Metadata.ReportVersion)
	return b.String()
}

type writer func(format string, args ...any)

func writeIdentification(w writer, n NFeInfo) {
	w("## 📄 Identificação da NF-e")
	w("")
	w("| Campo | Valor |")
	w("|-------|-------|")
	w("| **Chave de Acesso** | `%s` |", normalize.FormatAccessKey(n.AccessKey))
	w("| **Número / Série** | %s / %s |", n.Number, n.Series)
	w("| **Data de Emissão** | %s |", displayDate(n.IssueDate))
	w("| **Emitente** | %s (%s) - %s |", n.Issuer.Name, n.Issuer.FormattedCNPJ, n.Issuer.State)
	w("| **Destinatário** | %s (%s) - %s |", n.Recipient.Name, n.Recipient.FormattedCNPJ, n.Recipient.State)
	w("| **Operação** | %s (%s → %s) |", n.Operation.Type, n.Operation.Origin, n.Operation.Dest)
	w("| **CFOP** | %s |", n.CFOP)
	if n.OperationNature != "" {
		w("| **Natureza da Operação** | %s |", n.OperationNature)
	}
	w("| **Itens** | %d |", n.ItemCount)
	w("| **Valor dos Produtos** | %s |", decimal.FormatBRL(n.Totals.Products))
	for _, adj := range []struct {
		label string
		value dec.Decimal
	}{
		{"Desconto", n.Totals.Discount},
		{"Frete", n.Totals.Freight},
		{"Seguro", n.Totals.Insurance},
		{"Outras Despesas", n.Totals.Other},
		{"IPI", n.Totals.IPI},
		{"ICMS-ST", n.Totals.ST},
	} {
		if !adj.value.IsZero() {
			w("| **%s** | %s |", adj.label, decimal.FormatBRL(adj.value))
		}
	}
	w("| **Valor Total da Nota** | %s |", decimal.FormatBRL(n.Totals.Invoice))
	w("| **PIS / COFINS** | %s / %s |", decimal.FormatBRL(n.Totals.Pis), decimal.FormatBRL(n.Totals.Cofins))
	w("")
}

func writeValidationSummary(w writer, vs ValidationSummary) {
	w("## 📊 Resumo da Validação")
	w("")
	w("**Status:** %s  ", statusLabels[vs.Status])
	w("**Total de Problemas Encontrados:** %d  ", vs.TotalErrors)
	w("**Itens com Problemas:** %d", vs.ItemsWithErrors)
	w("")
	w("| Severidade | Quantidade |")
	w("|------------|------------|")
	w("| %s | %d |", severityLabels[model.SeverityCritical], vs.BySeverity.Critical)
	w("| %s | %d |", severityLabels[model.SeverityError], vs.BySeverity.Error)
	w("| %s | %d |", severityLabels[model.SeverityWarning], vs.BySeverity.Warning)
	w("")
}

func writeFinancialImpact(w writer, fi FinancialImpact) {
	w("## 💰 Impacto Financeiro")
	w("")
	w("**Impacto Total Estimado:** %s", decimal.FormatBRL(fi.Total))
	w("")
	w("| Severidade | Impacto |")
	w("|------------|---------|")
	w("| %s | %s |", severityLabels[model.SeverityCritical], decimal.FormatBRL(fi.BySeverity.Critical))
	w("| %s | %s |", severityLabels[model.SeverityError], decimal.FormatBRL(fi.BySeverity.Error))
	w("| %s | %s |", severityLabels[model.SeverityWarning], decimal.FormatBRL(fi.BySeverity.Warning))
	w("")
	if len(fi.ByCategory) == 0 {
		return
	}
	w("| Categoria | Impacto |")
	w("|-----------|---------|")
	for _, a := range categoryAdvice {
		if v, ok := fi.ByCategory[string(a.category)]; ok {
			w("| %s | %s |", a.category, decimal.FormatBRL(v))
		}
	}
	w("")
}

func writeFindings(w writer, entries []ErrorEntry) {
	w("## 🔍 Problemas Encontrados")
	w("")
	if len(entries) == 0 {
		w("✅ Nenhuma inconsistência encontrada. A NF-e está em conformidade com as regras verificadas.")
		w("")
		return
	}
	n := 0
	for _, sev := range model.Severities {
		var group []ErrorEntry
		for _, e := range entries {
			if e.Severity == sev {
				group = append(group, e)
			}
		}
		if len(group) == 0 {
			continue
		}
		w("### %s (%d)", severityLabels[sev], len(group))
		w("")
		for _, e := range group {
			n++
			if e.Title != "" {
				w("#### %d. %s - %s", n, e.Code, e.Title)
			} else {
				w("#### %d. %s", n, e.Code)
			}
			w("")
			if e.HasItem() {
				w("- **Item:** Item %d", e.Item())
			} else {
				w("- **Escopo:** Nota fiscal")
			}
			w("- **Campo:** `%s`", e.Field)
			w("- **Descrição:** %s", e.Message)
			w("- **Valor encontrado:** %s", orDash(e.ActualValue))
			w("- **Valor esperado:** %s", orDash(e.ExpectedValue))
			if e.FinancialImpact.Valid {
				w("- **Impacto financeiro:** %s", decimal.FormatBRL(e.Impact()))
			}
			if e.LegalReference != "" {
				w("- **Base legal:** %s", joinNonEmpty(", ", e.LegalReference, e.LegalArticle))
			}
			if e.Suggestion != "" {
				w("- **Sugestão:** %s", e.Suggestion)
			}
			if e.CanAutoCorrect {
				w("- **Correção automática:** `%s`", e.CorrectedValue)
			}
			w("")
		}
	}
}

func writeItems(w writer, items []ItemAnalysis) {
	w("## 📦 Análise por Item")
	w("")
	if len(items) == 0 {
		w("Nenhum item informado.")
		w("")
		return
	}
	w("| Item | Descrição | NCM | CFOP | Valor | Erros | Impacto | Status |")
	w("|------|-----------|-----|------|-------|-------|---------|--------|")
	for _, a := range items {
		w("| Item %d | %s | %s | %s | %s | %d | %s | %s |",
			a.ItemNumber, escapeCell(a.Description), a.NCMFormatted, a.CFOP,
			decimal.FormatBRL(a.Total), a.ErrorCount, decimal.FormatBRL(a.FinancialImpact),
			itemStatusLabels[a.Status])
	}
	w("")
	for _, a := range items {
		if a.StateIcmsRate != nil {
			w("- Item %d: alíquota de ICMS estadual diferenciada de %s para o NCM %s",
				a.ItemNumber, decimal.FormatRate(*a.StateIcmsRate), a.NCMFormatted)
		}
	}
}

func writeLegal(w writer, refs []LegalCitation) {
	w("## ⚖️ Referências Legais")
	w("")
	if len(refs) == 0 {
		w("Nenhuma referência legal citada.")
		w("")
		return
	}
	for _, r := range refs {
		line := "- **" + r.Reference + "**"
		if r.Article != "" {
			line += ", " + r.Article
		}
		if r.Title != "" {
			line += " - " + r.Title
		}
		w("%s (%s)", line, strings.Join(r.ErrorCodes, ", "))
	}
	w("")
}

func displayTime(rfc string) string {
	t, err := time.Parse(time.RFC3339, rfc)
	if err != nil {
		return rfc
	}
	return t.Format("02/01/2006 15:04:05 MST")
}

func displayDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return orDash(iso)
	}
	return t.Format("02/01/2006")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
