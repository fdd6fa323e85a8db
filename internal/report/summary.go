package report

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-auditor/internal/model"
)

// Invoice approval statuses
const (
	StatusApproved         = "APROVADA"
	StatusApprovedWithNote = "APROVADA_COM_RESSALVAS"
	StatusRejected         = "REPROVADA"
)

// Item statuses
const (
	ItemOK       = "OK"
	ItemWarnings = "COM_ALERTAS"
	ItemErrors   = "COM_ERROS"
)

// Summary is the machine-readable audit report of one invoice
type Summary struct {
	Metadata          Metadata                `json:"metadata"`
	NFeInfo           NFeInfo                 `json:"nfe_info"`
	ValidationSummary ValidationSummary       `json:"validation_summary"`
	Errors            []ErrorEntry            `json:"errors"`
	ErrorsByType      map[string][]ErrorEntry `json:"errors_by_type"`
	ItemsAnalysis     []ItemAnalysis          `json:"items_analysis"`
	Recommendations   []string                `json:"recommendations"`
	LegalReferences   []LegalCitation         `json:"legal_references"`
}

// Metadata identifies the report
type Metadata struct {
	ReportID      string `json:"report_id"`
	ReportVersion string `json:"report_version"`
	GeneratedAt   string `json:"generated_at"` // RFC 3339, UTC
	Validator     string `json:"validator"`
	RulesVersion  string `json:"rules_version,omitempty"`
}

// NFeInfo identifies the audited invoice
type NFeInfo struct {
	AccessKey       string    `json:"chave_acesso"`
	Number          string    `json:"numero"`
	Series          string    `json:"serie"`
	IssueDate       string    `json:"data_emissao"` // YYYY-MM-DD
	OperationNature string    `json:"natureza_operacao"`
	CFOP            string    `json:"cfop"`
	Regime          string    `json:"regime"`
	Issuer          Party     `json:"emitente"`
	Recipient       Party     `json:"destinatario"`
	Operation       Operation `json:"operacao"`
	Totals          Totals    `json:"totais"`
	ItemCount       int       `json:"quantidade_itens"`
}

// Party is an issuer or recipient
type Party struct {
	CNPJ          string `json:"cnpj"`
	FormattedCNPJ string `json:"cnpj_formatado"`
	Name          string `json:"razao_social"`
	State         string `json:"uf"`
}

// Operation is the geographic scope of the invoice
type Operation struct {
	Type   model.OperationType `json:"tipo"`
	Origin string              `json:"uf_origem"`
	Dest   string              `json:"uf_destino"`
}

// Totals are the declared invoice totals
type Totals struct {
	Products decimal.Decimal `json:"valor_produtos"`
	Invoice  decimal.Decimal `json:"valor_total_nota"`
	Pis      decimal.Decimal `json:"valor_pis"`
	Cofins   decimal.Decimal `json:"valor_cofins"`
	Icms     decimal.Decimal `json:"valor_icms"`

	Freight   decimal.Decimal `json:"valor_frete"`
	Insurance decimal.Decimal `json:"valor_seguro"`
	Discount  decimal.Decimal `json:"valor_desconto"`
	Other     decimal.Decimal `json:"valor_outros"`
	IPI       decimal.Decimal `json:"valor_ipi"`
	ST        decimal.Decimal `json:"valor_icms_st"`
}

// ValidationSummary aggregates the findings
type ValidationSummary struct {
	Status          string          `json:"status"`
	TotalErrors     int             `json:"total_errors"`
	BySeverity      SeverityCounts  `json:"by_severity"`
	ByCategory      map[string]int  `json:"by_category"`
	ItemsWithErrors int             `json:"items_with_errors"`
	FinancialImpact FinancialImpact `json:"financial_impact"`
}

// SeverityCounts counts findings per severity
type SeverityCounts struct {
	Critical int `json:"critical"`
	Error    int `json:"error"`
	Warning  int `json:"warning"`
}

// FinancialImpact sums the estimated exposure
type FinancialImpact struct {
	Total      decimal.Decimal            `json:"total"`
	BySeverity ImpactBySeverity           `json:"by_severity"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
}

// ImpactBySeverity sums exposure per severity
type ImpactBySeverity struct {
	Critical decimal.Decimal `json:"critical"`
	Error    decimal.Decimal `json:"error"`
	Warning  decimal.Decimal `json:"warning"`
}

// ErrorEntry is a finding with its category
type ErrorEntry struct {
	model.ValidationError
	Category model.Category `json:"category"`
	Title    string         `json:"title"`
}

// ItemAnalysis summarizes the findings of one item
type ItemAnalysis struct {
	ItemNumber      int              `json:"item_number"`
	ProductCode     string           `json:"product_code"`
	Description     string           `json:"description"`
	NCM             string           `json:"ncm"`
	NCMFormatted    string           `json:"ncm_formatted"`
	CFOP            string           `json:"cfop"`
	Total           decimal.Decimal  `json:"total_value"`
	ErrorCount      int              `json:"error_count"`
	ErrorCodes      []string         `json:"error_codes"`
	HighestSeverity model.Severity   `json:"highest_severity,omitempty"`
	FinancialImpact decimal.Decimal  `json:"financial_impact"`
	Status          string           `json:"status"`
	StateIcmsRate   *decimal.Decimal `json:"state_icms_rate,omitempty"`
}

// LegalCitation groups findings by the legislation they cite
type LegalCitation struct {
	Reference  string   `json:"reference"`
	Article    string   `json:"article,omitempty"`
	Title      string   `json:"title,omitempty"`
	ErrorCodes []string `json:"error_codes"`
}
