package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/llm"
	"github.com/rezonia/nfe-auditor/internal/metrics"
	"github.com/rezonia/nfe-auditor/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for auditing invoices.

The API provides endpoints for:
  - POST /api/v1/audit              - Audit a CSV, XML or JSON document (?format=markdown, ?advise=true)
  - POST /api/v1/validate           - Validate one JSON invoice
  - GET  /api/v1/rules/stats        - Rule table statistics
  - GET  /api/v1/rules/ncm/:code    - NCM lookup
  - GET  /api/v1/rules/cst/:cst     - CST lookup (?regime=)
  - GET  /api/v1/rules/cfop/:code   - CFOP lookup
  - GET  /api/v1/rules/legal        - Legal references (?q=)
  - POST /api/v1/rules/check        - NCM/CST/CFOP combination check
  - GET  /metrics                   - Prometheus metrics
  - GET  /health                    - Health check

Examples:
  # Start server on default port
  nfe-auditor serve

  # Start on custom port with rules from SQLite
  nfe-auditor serve --address :9090 --rules-db rules.db

  # Start in debug mode
  nfe-auditor serve --debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("address", ":8080", "Server listen address")
	flags.Bool("debug", false, "Enable debug mode")
	flags.Duration("read-timeout", 0, "HTTP read timeout")
	flags.Duration("write-timeout", 0, "HTTP write timeout")

	for key, flag := range map[string]string{
		"server.address":       "address",
		"server.debug":         "debug",
		"server.read_timeout":  "read-timeout",
		"server.write_timeout": "write-timeout",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := loadRules(ctx)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics.NewCollector()),
	}
	if cfg.LLMEnabled() {
		client := llm.NewClient(cfg.LLM.APIKey, llm.WithBaseURL(cfg.LLM.BaseURL))
		opts = append(opts, server.WithAdvisor(llm.NewAdvisor(client, llm.WithModel(cfg.LLM.Model))))
	}

	srv := server.NewServer(&server.Config{
		Address:       cfg.Server.Address,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		Debug:         cfg.Server.Debug,
		Workers:       cfg.Audit.Workers,
		DefaultRegime: cfg.Regime(),
		ReportVersion: cfg.Report.Version,
	}, snap, opts...)

	logger.Info("starting server",
		zap.String("address", cfg.Server.Address),
		zap.String("rules_version", snap.Version()),
		zap.Bool("llm_advice", cfg.LLMEnabled()))

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
