package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"auction-scraper/config"
	"auction-scraper/importer"
	"auction-scraper/models"
	"auction-scraper/pipeline"
	"auction-scraper/scraper/crexi"
	"auction-scraper/scraper/loopnet"
	"auction-scraper/scraper/rmi"
	"auction-scraper/session"
	"auction-scraper/storage"
	"auction-scraper/utils"
)

func main() {
	importDir := flag.String("import", "", "import canonical CSVs from this directory into PostgreSQL instead of scraping")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	if *importDir != "" {
		runImport(cfg, logger, *importDir)
		return
	}

	logger.Info("=== Auction Aggregation System starting ===")
	logger.Info("Config — sources: %v | retries: %d | rotation limit: %d | timeout: %s",
		cfg.Sources, cfg.MaxRetries, cfg.SessionRotationLimit, cfg.Timeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
	if err != nil {
		logger.Warn("PostgreSQL unavailable, continuing with file sinks only: %v", err)
		logger.Warn("Start the database with: docker compose up -d")
		pgWriter = nil
	} else {
		defer pgWriter.Close()
	}

	runner := pipeline.NewRunner(cfg, logger)

	// One worker per source: sources run in parallel, listings within a
	// source stay sequential.
	pool := utils.NewWorkerPool(len(cfg.Sources), cfg.DelayBetweenRequests)
	var mu sync.Mutex
	var results []*pipeline.BatchResult

	for _, name := range []string{models.SourceCrexi, models.SourceLoopNet, models.SourceRMI} {
		if !cfg.SourceEnabled(shortName(name)) {
			continue
		}
		name := name
		pool.Submit(func() {
			result, err := runSource(ctx, cfg, logger, runner, pgWriter, name)
			if err != nil {
				logger.Error("%s run failed: %v", name, err)
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}
	pool.Wait()

	if len(results) == 0 {
		logger.Error("No source produced results. Exiting.")
		os.Exit(1)
	}

	total, succeeded := 0, 0
	for _, r := range results {
		total += r.Attempted
		succeeded += r.Succeeded
		logger.Info("%s: %d/%d listings (%.1f%%) in %s",
			r.Source, r.Succeeded, r.Attempted, r.SuccessRate(),
			r.Finished.Sub(r.Started).Round(time.Second))
	}

	fmt.Printf("\n  Done. %d/%d listings across %d source(s). Exports → %s\n\n",
		succeeded, total, len(results), cfg.OutputDir)
}

// runSource builds the adapter for one source, drives a full batch, and
// lands the results in every configured sink. Browser sources get their own
// session manager so rotation on one never disturbs another.
func runSource(ctx context.Context, cfg *config.Config, logger *utils.Logger,
	runner *pipeline.Runner, pgWriter *storage.PostgresWriter, name string) (*pipeline.BatchResult, error) {

	var adapter pipeline.Adapter
	switch name {
	case models.SourceCrexi:
		sessions := session.NewManager(cfg, logger)
		defer sessions.Release()
		adapter = crexi.New(cfg, logger, sessions)
	case models.SourceLoopNet:
		sessions := session.NewManager(cfg, logger)
		defer sessions.Release()
		adapter = loopnet.New(cfg, logger, sessions)
	case models.SourceRMI:
		adapter = rmi.New(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}

	result, err := runner.Run(ctx, adapter)
	if err != nil {
		return nil, err
	}

	csvWriter, err := storage.NewCSVWriter(cfg.OutputDir, name)
	if err != nil {
		return nil, err
	}
	defer csvWriter.Close()
	if err := csvWriter.Write(result.Items); err != nil {
		logger.Error("%s: CSV write failed: %v", name, err)
	} else {
		logger.Info("%s: exported to %s", name, csvWriter.Path())
	}

	if cfg.WriteJSON {
		jsonWriter, err := storage.NewJSONWriter(cfg.OutputDir, name)
		if err != nil {
			logger.Error("%s: JSON writer: %v", name, err)
		} else {
			_ = jsonWriter.Write(result.Items)
			if err := jsonWriter.Close(); err != nil {
				logger.Error("%s: JSON write failed: %v", name, err)
			} else {
				logger.Info("%s: exported to %s", name, jsonWriter.Path())
			}
		}
	}

	if pgWriter != nil {
		if err := pgWriter.Write(result.Items); err != nil {
			logger.Error("%s: PostgreSQL write failed: %v", name, err)
		} else {
			logger.Info("%s: upserted into PostgreSQL (table: properties)", name)
		}
	}

	return result, nil
}

func runImport(cfg *config.Config, logger *utils.Logger, dir string) {
	pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		os.Exit(1)
	}
	defer pgWriter.Close()

	summary, err := importer.New(logger).ImportDir(dir, pgWriter)
	if err != nil {
		logger.Error("Import failed: %v", err)
		os.Exit(1)
	}

	logger.Info("Import complete: %d records from %d file(s), %d rows skipped",
		summary.Records, summary.Files, summary.Skipped)
	if counts, err := pgWriter.CountBySource(); err == nil {
		for source, n := range counts {
			logger.Info("  %s: %d stored", source, n)
		}
	}
}

// shortName maps a canonical source name to its config token.
func shortName(source string) string {
	switch source {
	case models.SourceCrexi:
		return "crexi"
	case models.SourceLoopNet:
		return "loopnet"
	case models.SourceRMI:
		return "rmi"
	default:
		return source
	}
}
