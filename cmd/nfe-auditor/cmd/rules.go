package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/rules/sqlite"
)

var (
	cstRegime string
	seedDB    string

	checkNcm       string
	checkPisCst    string
	checkCofinsCst string
	checkCfop      string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Query the fiscal rule tables",
	Long: `Query the NCM, PIS/COFINS CST, CFOP and legal reference tables used by
the audit, or seed a SQLite rules database.

Examples:
  nfe-auditor rules stats
  nfe-auditor rules ncm 1701.14.00
  nfe-auditor rules cst 01 --regime cumulativo
  nfe-auditor rules cfop 6101
  nfe-auditor rules legal "10.637"
  nfe-auditor rules check --ncm 17011400 --pis-cst 01 --cofins-cst 01 --cfop 5101
  nfe-auditor rules init --db rules.db`,
}

var rulesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show table sizes and the rules version",
	Args:  cobra.NoArgs,
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		stats := snap.Statistics()
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Version:\t%s\n", stats.Version)
		fmt.Fprintf(tw, "NCM rules:\t%d (%d sugar/ethanol)\n", stats.NcmRules, stats.SugarNcm)
		fmt.Fprintf(tw, "CST rules:\t%d\n", stats.CstRules)
		fmt.Fprintf(tw, "Rate entries:\t%d\n", stats.RateEntries)
		fmt.Fprintf(tw, "Consistency rules:\t%d\n", stats.ConsistencyRules)
		fmt.Fprintf(tw, "CFOP rules:\t%d\n", stats.CfopRules)
		fmt.Fprintf(tw, "States:\t%d\n", stats.States)
		fmt.Fprintf(tw, "Legal references:\t%d\n", stats.LegalReferences)
		return tw.Flush()
	}),
}

var rulesNcmCmd = &cobra.Command{
	Use:   "ncm <code>",
	Short: "Look up an NCM code",
	Args:  cobra.ExactArgs(1),
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		code := normalize.NCM(args[0])
		rule, ok := snap.NcmRule(code)
		if !ok {
			return &rules.RuleNotFoundError{Table: "ncm", Key: code}
		}
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), rule)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "NCM: %s\n", normalize.FormatNCM(rule.Code))
		fmt.Fprintf(w, "  Description: %s\n", rule.Description)
		fmt.Fprintf(w, "  Category: %s\n", rule.Category)
		fmt.Fprintf(w, "  Sugar/ethanol: %s\n", yesNo(rule.Sugar))
		if len(rule.Keywords) > 0 {
			fmt.Fprintf(w, "  Keywords: %s\n", strings.Join(rule.Keywords, ", "))
		}
		return nil
	}),
}

var rulesCstCmd = &cobra.Command{
	Use:   "cst <cst>",
	Short: "Look up a PIS/COFINS CST and its rates",
	Args:  cobra.ExactArgs(1),
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		cst := normalize.CST(args[0])
		rule, ok := snap.PisCofinsRule(cst)
		if !ok {
			return &rules.RuleNotFoundError{Table: "pis_cofins", Key: cst}
		}

		regimes := []model.Regime{model.RegimeStandard, model.RegimeCumulative}
		if cstRegime != "" {
			r, err := model.ParseRegime(cstRegime)
			if err != nil {
				return err
			}
			regimes = []model.Regime{r}
		}
		rates := make(map[model.Regime]rules.Rates, len(regimes))
		for _, r := range regimes {
			if rt, err := snap.PisCofinsRates(cst, r); err == nil {
				rates[r] = rt
			}
		}

		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), struct {
				rules.PisCofinsRule
				Rates map[model.Regime]rules.Rates `json:"rates,omitempty"`
			}{rule, rates})
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "CST: %s\n", rule.CST)
		fmt.Fprintf(w, "  Description: %s\n", rule.Description)
		fmt.Fprintf(w, "  Situation: %s\n", rule.Situation)
		for _, r := range regimes {
			rt, ok := rates[r]
			if !ok {
				fmt.Fprintf(w, "  %s: rates not defined\n", r)
				continue
			}
			fmt.Fprintf(w, "  %s: PIS %s, COFINS %s\n", r, decimal.FormatRate(rt.Pis), decimal.FormatRate(rt.Cofins))
		}
		return nil
	}),
}

var rulesCfopCmd = &cobra.Command{
	Use:   "cfop <code>",
	Short: "Look up a CFOP",
	Args:  cobra.ExactArgs(1),
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		code := normalize.CFOP(args[0])
		rule, ok := snap.CfopRule(code)
		if !ok {
			return &rules.RuleNotFoundError{Table: "cfop", Key: code}
		}
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), rule)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "CFOP: %s\n", rule.Code)
		fmt.Fprintf(w, "  Description: %s\n", rule.Description)
		fmt.Fprintf(w, "  Scope: %s\n", rule.Scope)
		fmt.Fprintf(w, "  Direction: %s\n", rule.Direction)
		fmt.Fprintf(w, "  Sugar/ethanol: %s\n", yesNo(rule.Sugar))
		return nil
	}),
}

var rulesLegalCmd = &cobra.Command{
	Use:   "legal [query]",
	Short: "List or search legal references",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		refs := snap.AllLegalReferences()
		if len(args) == 1 {
			refs = snap.SearchLegalReferences(args[0])
		}
		if outputFormat == "json" {
			if refs == nil {
				refs = []rules.LegalReference{}
			}
			return writeJSON(cmd.OutOrStdout(), refs)
		}
		if len(refs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No legal references found")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tCITATION\tTITLE\tSCOPE")
		fmt.Fprintln(tw, "----\t--------\t-----\t-----")
		for _, r := range refs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Code, r.Citation, r.Title, r.Scope)
		}
		return tw.Flush()
	}),
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check an NCM/CST/CFOP combination",
	Args:  cobra.NoArgs,
	RunE: withRules(func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error {
		check := snap.ValidateTaxConfiguration(checkNcm, checkPisCst, checkCofinsCst, checkCfop)
		if outputFormat == "json" {
			if err := writeJSON(cmd.OutOrStdout(), check); err != nil {
				return err
			}
		} else {
			printCheck(cmd.OutOrStdout(), check)
		}
		if !check.Valid {
			return fmt.Errorf("tax configuration has %d problem(s)", len(check.Errors))
		}
		return nil
	}),
}

var rulesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed a SQLite rules database from the rule pack",
	Long: `Create or replace the content of a SQLite rules database with the
embedded rule pack, or with the pack given by --rules-pack.`,
	Args: cobra.NoArgs,
	RunE: runRulesInit,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesStatsCmd, rulesNcmCmd, rulesCstCmd, rulesCfopCmd,
		rulesLegalCmd, rulesCheckCmd, rulesInitCmd)

	rulesCstCmd.Flags().StringVar(&cstRegime, "regime", "", "Only show rates for this regime")

	rulesCheckCmd.Flags().StringVar(&checkNcm, "ncm", "", "NCM code")
	rulesCheckCmd.Flags().StringVar(&checkPisCst, "pis-cst", "", "PIS CST")
	rulesCheckCmd.Flags().StringVar(&checkCofinsCst, "cofins-cst", "", "COFINS CST")
	rulesCheckCmd.Flags().StringVar(&checkCfop, "cfop", "", "CFOP (optional)")
	for _, f := range []string{"ncm", "pis-cst", "cofins-cst"} {
		_ = rulesCheckCmd.MarkFlagRequired(f)
	}

	rulesInitCmd.Flags().StringVar(&seedDB, "db", "", "Database path (default: --rules-db)")
}

func withRules(fn func(cmd *cobra.Command, snap *rules.Snapshot, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		snap, err := loadRules(ctx)
		if err != nil {
			return err
		}
		return fn(cmd, snap, args)
	}
}

func runRulesInit(cmd *cobra.Command, args []string) error {
	path := seedDB
	if path == "" {
		path = cfg.Rules.DBPath
	}
	if path == "" {
		return fmt.Errorf("database path required (--db or --rules-db)")
	}

	var (
		pack *rules.Pack
		err  error
	)
	if cfg.Rules.PackPath != "" {
		pack, err = rules.LoadPackFile(cfg.Rules.PackPath)
	} else {
		pack, err = rules.DefaultPack()
	}
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := sqlite.Open(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(ctx, pack); err != nil {
		return err
	}
	version, err := store.Version(ctx)
	if err != nil {
		return err
	}

	logger.Info("rules database seeded", zap.String("path", path), zap.String("version", version))
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s with rules version %s\n", path, version)
	return nil
}

func printCheck(w io.Writer, check rules.TaxConfigCheck) {
	if check.Ncm != nil {
		fmt.Fprintf(w, "NCM %s: %s\n", normalize.FormatNCM(check.Ncm.Code), check.Ncm.Description)
	}
	if check.Pis != nil {
		fmt.Fprintf(w, "CST PIS %s: %s\n", check.Pis.CST, check.Pis.Description)
	}
	if check.Cofins != nil {
		fmt.Fprintf(w, "CST COFINS %s: %s\n", check.Cofins.CST, check.Cofins.Description)
	}
	if check.Cfop != nil {
		fmt.Fprintf(w, "CFOP %s: %s (%s)\n", check.Cfop.Code, check.Cfop.Description, check.Cfop.Scope)
	}
	if check.Rates != nil {
		fmt.Fprintf(w, "Rates (%s): PIS %s, COFINS %s\n", model.RegimeStandard,
			decimal.FormatRate(check.Rates.Pis), decimal.FormatRate(check.Rates.Cofins))
	}

	if check.Valid {
		fmt.Fprintln(w, "✓ VALID")
		return
	}
	fmt.Fprintln(w, "✗ INVALID")
	for _, e := range check.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
