package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/metrics"
	"github.com/rezonia/nfe-auditor/internal/processor"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/rules/sqlite"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

// collectFiles expands the arguments into input files. Directories are
// walked for supported extensions; anything that does not exist on disk is
// treated as a glob pattern.
func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			found, err := walkSupported(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		case err == nil:
			files = append(files, arg)
			continue
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("file not found: %s", arg)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if info.IsDir() {
				found, err := walkSupported(match)
				if err != nil {
					return nil, err
				}
				files = append(files, found...)
				continue
			}
			if isSupportedFile(match) {
				files = append(files, match)
			}
		}
	}

	return files, nil
}

// walkSupported lists the supported files under dir in lexical order
func walkSupported(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xml", ".json":
		return true
	default:
		return false
	}
}

// loadRules reads the rule tables from the configured source: the SQLite
// database, the YAML pack override or the embedded pack
func loadRules(ctx context.Context) (*rules.Snapshot, error) {
	switch {
	case cfg.Rules.DBPath != "":
		store, err := sqlite.Open(cfg.Rules.DBPath, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		snap, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load rules from %s: %w", cfg.Rules.DBPath, err)
		}
		logger.Debug("rules loaded", zap.String("source", "sqlite"), zap.String("version", snap.Version()))
		return snap, nil
	case cfg.Rules.PackPath != "":
		snap, err := rules.LoadFile(cfg.Rules.PackPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("rules loaded", zap.String("source", cfg.Rules.PackPath), zap.String("version", snap.Version()))
		return snap, nil
	default:
		return rules.LoadDefault()
	}
}

// newPipeline builds the audit pipeline over snap, recording on collector
func newPipeline(snap *rules.Snapshot, collector *metrics.Collector) *processor.Pipeline {
	collector.SetRulesVersion(snap.Version())

	engine := validator.NewEngine(snap,
		validator.WithDefaultRegime(cfg.Regime()),
		validator.WithObserver(collector.ObserveAudit),
	)
	generator := report.NewGenerator(
		report.WithRepository(snap),
		report.WithVersion(cfg.Report.Version),
	)
	return processor.NewPipeline(engine,
		processor.WithLogger(logger),
		processor.WithMetrics(collector),
		processor.WithGenerator(generator),
		processor.WithWorkers(cfg.Audit.Workers),
	)
}
