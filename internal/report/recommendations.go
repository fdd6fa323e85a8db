package report

import (
	"fmt"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
)

var categoryAdvice = []struct {
	category model.Category
	text     string
}{
	{model.CategoryNCM, "Revisar a classificação fiscal (NCM) dos produtos conforme a TIPI vigente"},
	{model.CategoryPIS, "Revisar a parametrização de PIS no ERP: CST e alíquota conforme a Lei nº 10.637/2002"},
	{model.CategoryCOFINS, "Revisar a parametrização de COFINS no ERP: CST e alíquota conforme a Lei nº 10.833/2003"},
	{model.CategoryPISCOFINS, "Padronizar os CSTs de PIS e COFINS para a mesma situação tributária"},
	{model.CategoryCFOP, "Revisar os CFOPs considerando a UF de origem e de destino da operação"},
	{model.CategoryTotal, "Recalcular os totais da nota a partir dos valores dos itens"},
}

func recommendations(s *Summary) []string {
	vs := s.ValidationSummary
	if vs.TotalErrors == 0 {
		return []string{"Nenhuma inconsistência encontrada. Manter os controles fiscais atuais."}
	}

	var out []string
	if vs.BySeverity.Critical > 0 {
		out = append(out, fmt.Sprintf(
			"Corrigir imediatamente os %d problema(s) crítico(s) antes da escrituração", vs.BySeverity.Critical))
	}
	for _, a := range categoryAdvice {
		if vs.ByCategory[string(a.category)] > 0 {
			out = append(out, a.text)
		}
	}
	if decimal.IsPositive(vs.FinancialImpact.Total) {
		out = append(out, fmt.Sprintf(
			"Avaliar a emissão de NF-e complementar ou carta de correção; impacto financeiro estimado de %s",
			decimal.FormatBRL(vs.FinancialImpact.Total)))
	}
	for _, e := range s.Errors {
		if e.CanAutoCorrect {
			out = append(out, "Aplicar as correções automáticas sugeridas nos campos indicados")
			break
		}
	}
	return out
}
