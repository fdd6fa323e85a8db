package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/config"
	"github.com/rezonia/nfe-auditor/internal/logging"
)

var (
	version = "1.0.0"

	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string

	v      = config.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "nfe-auditor",
	Short: "Audit NF-e documents of the sugar and ethanol sector",
	Long: `NF-e Auditor checks electronic invoices (NF-e) of the sugar and ethanol
sector against the fiscal rule tables and produces audit reports.

Checks performed:
  - NCM classification (format, sugar/ethanol family, description)
  - PIS/COFINS CST, rates and values per regime
  - CFOP registration and internal/interstate scope
  - Invoice totals against item sums

Input formats: CSV export, NF-e XML (nfeProc or NFe), JSON

Examples:
  # Audit a CSV export and write JSON and Markdown reports
  nfe-auditor audit notas.csv --output-dir reports

  # Audit a folder of XML files under the cumulative regime
  nfe-auditor audit xmls/ --regime cumulativo -f json

  # Look up a CFOP
  nfe-auditor rules cfop 6101

  # Start the HTTP API
  nfe-auditor serve --address :8080`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (YAML); env overrides use the NFE_AUDITOR_ prefix")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&outputFormat, "format", "f", "table", "Output format (table, json, csv)")

	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", logging.FormatConsole, "Log format (console, json)")
	flags.String("rules-db", "", "SQLite rules database (env: NFE_AUDITOR_RULES_DB_PATH)")
	flags.String("rules-pack", "", "YAML rule pack replacing the embedded one")
	flags.String("regime", "", "Default PIS/COFINS regime (nao_cumulativo, cumulativo)")
	flags.Int("workers", 0, "Parallel validation workers")
	flags.String("api-key", "", "API key for the LLM provider (env: NFE_AUDITOR_LLM_API_KEY)")
	flags.String("llm-base-url", "", "LLM API base URL")
	flags.String("llm-model", "", "LLM model for audit advice")

	bind("log.level", "log-level")
	bind("log.format", "log-format")
	bind("rules.db_path", "rules-db")
	bind("rules.pack_path", "rules-pack")
	bind("audit.default_regime", "regime")
	bind("audit.workers", "workers")
	bind("llm.api_key", "api-key")
	bind("llm.base_url", "llm-base-url")
	bind("llm.model", "llm-model")
}

func bind(key, flag string) {
	f := rootCmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = rootCmd.Flags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func initConfig() error {
	loaded, err := config.LoadWith(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	l, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger = l

	if cfgFile != "" {
		logger.Debug("config loaded", zap.String("path", cfgFile))
	}
	return nil
}

func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}
