package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-auditor/internal/model"
)

var outputFile string

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse NF-e files without validating them",
	Long: `Parse one or more CSV, NF-e XML or JSON files and print the normalized
invoices. No fiscal rule is applied.

Examples:
  nfe-auditor parse nota.xml -f json
  nfe-auditor parse notas.csv -f csv -o invoices.csv
  nfe-auditor parse xmls/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&outputFile, "output", "", "Output file (default: stdout)")
}

// ParseResult holds the result of parsing a single file
type ParseResult struct {
	File     string           `json:"file"`
	Format   string           `json:"format,omitempty"`
	Invoices []*model.Invoice `json:"invoices,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to parse")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := loadRules(ctx)
	if err != nil {
		return err
	}
	pipeline := newPipeline(snap, nil)

	results := make([]*ParseResult, 0, len(files))
	for _, file := range files {
		printVerbose(cmd, "Parsing: %s\n", file)
		result := &ParseResult{File: file}
		invoices, format, err := pipeline.IngestFile(ctx, file)
		result.Format = format.String()
		if err != nil {
			result.Error = err.Error()
			printVerbose(cmd, "  Error: %s\n", result.Error)
		} else {
			result.Invoices = invoices
		}
		results = append(results, result)
	}

	w := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return outputParsed(w, results)
}

func outputParsed(w io.Writer, results []*ParseResult) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "table", "":
		return parsedTable(w, results)
	case "csv":
		return parsedCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func parsedTable(w io.Writer, results []*ParseResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCHAVE\tNUMERO\tDATA\tORIGEM\tDESTINO\tITENS\tTOTAL")
	fmt.Fprintln(tw, "----\t-----\t------\t----\t------\t-------\t-----\t-----")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\n", r.File, r.Error)
			continue
		}
		for _, inv := range r.Invoices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.File, inv.AccessKey, inv.Number, issueDate(inv),
				inv.OriginState, inv.DestState, len(inv.Items), inv.Totals.Invoice.StringFixed(2))
		}
	}
	return tw.Flush()
}

func parsedCSV(w io.Writer, results []*ParseResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"file", "format", "chave_acesso", "numero", "serie", "data_emissao",
		"cnpj_emitente", "uf_origem", "cnpj_destinatario", "uf_destino",
		"cfop", "itens", "valor_produtos", "valor_total_nota", "error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		if r.Error != "" {
			row := make([]string, len(header))
			row[0], row[1], row[len(row)-1] = r.File, r.Format, r.Error
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}
		for _, inv := range r.Invoices {
			row := []string{
				r.File, r.Format, inv.AccessKey, inv.Number, inv.Series, issueDate(inv),
				inv.Issuer.TaxID, inv.OriginState, inv.Recipient.TaxID, inv.DestState,
				inv.CFOP, strconv.Itoa(len(inv.Items)),
				inv.Totals.Products.StringFixed(2), inv.Totals.Invoice.StringFixed(2), "",
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func issueDate(inv *model.Invoice) string {
	if inv.IssuedAt.IsZero() {
		return ""
	}
	return inv.IssuedAt.Format("2006-01-02")
}
