package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/llm"
	"github.com/rezonia/nfe-auditor/internal/metrics"
	"github.com/rezonia/nfe-auditor/internal/report"
)

var (
	auditTimeout time.Duration
	adviseFlag   bool
	strictAudit  bool
	metricsFile  string
	skipReports  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit [files...]",
	Short: "Audit NF-e files and write reports",
	Long: `Ingest CSV, NF-e XML or JSON files, validate every invoice and write one
report per invoice in the configured formats (json, md, pdf) plus the
consolidated csv/xlsx spreadsheets.

The command fails when any invoice is rejected (has a CRITICAL finding),
or with --strict when any finding is present.

Examples:
  nfe-auditor audit notas.csv
  nfe-auditor audit xmls/ --output-dir out --report-formats json,md,xlsx
  nfe-auditor audit nota.xml --advise --api-key <key>
  nfe-auditor audit notas.csv --metrics-file /var/lib/node_exporter/nfe.prom`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	flags := auditCmd.Flags()
	flags.StringP("output-dir", "o", "reports", "Directory for the report files")
	flags.StringSlice("report-formats", []string{"json", "md"}, "Report formats (json, md, csv, xlsx, pdf)")
	flags.DurationVar(&auditTimeout, "timeout", 2*time.Minute, "Processing timeout per file")
	flags.BoolVar(&adviseFlag, "advise", false, "Ask the LLM for prioritized corrective actions")
	flags.BoolVar(&strictAudit, "strict", false, "Fail on any finding, not only on rejected invoices")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write audit metrics in Prometheus text format")
	flags.BoolVar(&skipReports, "no-reports", false, "Only print the summary")

	if err := v.BindPFlag("report.dir", flags.Lookup("output-dir")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("report.formats", flags.Lookup("report-formats")); err != nil {
		panic(err)
	}
}

// AuditFileResult holds the outcome of auditing a single file
type AuditFileResult struct {
	File     string          `json:"file"`
	Format   string          `json:"format,omitempty"`
	Invoices []InvoiceResult `json:"invoices,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// InvoiceResult is the one-line summary of an audited invoice
type InvoiceResult struct {
	AccessKey string   `json:"chave_acesso"`
	Number    string   `json:"numero"`
	Status    string   `json:"status"`
	Critical  int      `json:"critical"`
	Errors    int      `json:"error"`
	Warnings  int      `json:"warning"`
	Impact    string   `json:"financial_impact"`
	Advice    []string `json:"advice,omitempty"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to audit")
	}
	printVerbose(cmd, "Found %d files to audit\n", len(files))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := loadRules(ctx)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if metricsFile != "" {
		collector = metrics.NewCollector()
	}
	pipeline := newPipeline(snap, collector)

	var advisor *llm.Advisor
	if adviseFlag {
		if !cfg.LLMEnabled() {
			return fmt.Errorf("--advise requires an LLM API key (--api-key or NFE_AUDITOR_LLM_API_KEY)")
		}
		client := llm.NewClient(cfg.LLM.APIKey, llm.WithBaseURL(cfg.LLM.BaseURL))
		advisor = llm.NewAdvisor(client, llm.WithModel(cfg.LLM.Model))
	}

	results := make([]*AuditFileResult, 0, len(files))
	var summaries []*report.Summary
	rejected, findings, failed := 0, 0, 0

	for _, file := range files {
		printVerbose(cmd, "Auditing: %s\n", file)
		result := &AuditFileResult{File: file}
		results = append(results, result)

		fileCtx, cancel := context.WithTimeout(ctx, auditTimeout)
		res, err := pipeline.AuditFile(fileCtx, file)
		if err != nil {
			cancel()
			failed++
			result.Error = err.Error()
			logger.Warn("audit failed", zap.String("file", file), zap.Error(err))
			continue
		}

		result.Format = res.Format.String()
		for _, a := range res.Audits {
			s := a.Summary
			summaries = append(summaries, s)
			findings += s.ValidationSummary.TotalErrors
			if s.ValidationSummary.Status == report.StatusRejected {
				rejected++
			}

			line := InvoiceResult{
				AccessKey: s.NFeInfo.AccessKey,
				Number:    s.NFeInfo.Number,
				Status:    s.ValidationSummary.Status,
				Critical:  s.ValidationSummary.BySeverity.Critical,
				Errors:    s.ValidationSummary.BySeverity.Error,
				Warnings:  s.ValidationSummary.BySeverity.Warning,
				Impact:    decimal.FormatBRL(s.ValidationSummary.FinancialImpact.Total),
			}
			if advisor != nil {
				actions, err := advisor.Advise(fileCtx, s)
				if err != nil {
					logger.Warn("advisor failed", zap.String("chave", s.NFeInfo.AccessKey), zap.Error(err))
				}
				line.Advice = actions
			}
			result.Invoices = append(result.Invoices, line)
		}
		cancel()
	}

	if !skipReports && len(summaries) > 0 {
		written, err := report.Save(cfg.Report.Dir, summaries, cfg.ReportFormats())
		if err != nil {
			return fmt.Errorf("failed to write reports: %w", err)
		}
		logger.Info("reports written", zap.String("dir", cfg.Report.Dir), zap.Int("files", len(written)))
	}

	if metricsFile != "" {
		if err := collector.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if err := outputAudit(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d files could not be audited", failed, len(files))
	case rejected > 0:
		return fmt.Errorf("audit rejected %d invoice(s)", rejected)
	case strictAudit && findings > 0:
		return fmt.Errorf("audit found %d problem(s)", findings)
	}
	return nil
}

func outputAudit(w io.Writer, results []*AuditFileResult) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "table", "":
		return auditTable(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func auditTable(w io.Writer, results []*AuditFileResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCHAVE\tNUMERO\tSTATUS\tCRIT\tERR\tWARN\tIMPACTO")
	fmt.Fprintln(tw, "----\t-----\t------\t------\t----\t---\t----\t-------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\n", r.File, r.Error)
			continue
		}
		for _, inv := range r.Invoices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.File, inv.AccessKey, inv.Number, inv.Status,
				inv.Critical, inv.Errors, inv.Warnings, inv.Impact)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range results {
		for _, inv := range r.Invoices {
			if len(inv.Advice) == 0 {
				continue
			}
			fmt.Fprintf(w, "\nAções sugeridas para %s:\n", inv.AccessKey)
			for i, a := range inv.Advice {
				fmt.Fprintf(w, "  %d. %s\n", i+1, a)
			}
		}
	}
	return nil
}

