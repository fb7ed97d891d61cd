package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/cohortdecay/internal/analysis"
	"github.com/rewired-gh/cohortdecay/internal/config"
	"github.com/rewired-gh/cohortdecay/internal/logger"
	"github.com/rewired-gh/cohortdecay/internal/models"
	"github.com/rewired-gh/cohortdecay/internal/pipeline"
	"github.com/rewired-gh/cohortdecay/internal/storage"
	"github.com/rewired-gh/cohortdecay/internal/telegram"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	historyN   = flag.Int("history", 0, "List the N most recent stored runs and exit")
	showRun    = flag.String("run", "", "Show a stored run by ID and exit")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Debug("Configuration loaded from %s", *configPath)
	}

	if *historyN > 0 || *showRun != "" {
		if err := showHistory(os.Stdout, cfg, *historyN, *showRun); err != nil {
			logger.Fatal("History lookup failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.New(cfg).Run(ctx)
	if err != nil {
		logger.Fatal("Analysis failed: %v", err)
	}

	fmt.Fprintln(os.Stdout, analysis.FormatPercent(res.CutoffDecay))

	run := res.Run()
	if cfg.Storage.Enabled {
		saveRun(cfg, run)
	}
	if cfg.Telegram.Enabled {
		notify(cfg, run)
	}
}

// saveRun records the run in the history database. Failures are logged only;
// the charts and statistic are already out.
func saveRun(cfg *config.Config, run *models.Run) {
	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		logger.Error("Failed to initialize storage: %v", err)
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if err := store.SaveRun(run); err != nil {
		logger.Error("Failed to save run %s: %v", run.ID, err)
		return
	}
	if err := store.RotateRuns(); err != nil {
		logger.Warn("Failed to rotate runs: %v", err)
	}
	logger.Info("Saved run %s to %s", run.ID, cfg.Storage.DBPath)
}

func notify(cfg *config.Config, run *models.Run) {
	client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		logger.Error("Failed to initialize Telegram client: %v", err)
		return
	}
	if err := client.SendRun(run); err != nil {
		logger.Error("Failed to send Telegram notification: %v", err)
		return
	}
	logger.Info("Sent Telegram summary for run %s", run.ID)
}

// showHistory prints stored runs from the history database
func showHistory(w io.Writer, cfg *config.Config, n int, runID string) error {
	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if runID != "" {
		run, err := store.GetRun(runID)
		if err != nil {
			return err
		}
		printRun(w, run)
		return nil
	}

	runs, err := store.ListRuns(n)
	if err != nil {
		return err
	}
	printRuns(w, runs)
	return nil
}

// printRuns writes one line per run, newest first
func printRuns(w io.Writer, runs []*models.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  reference=%s  from year %d: %s\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.ID,
			run.ReferenceCohort, run.CutoffIndex, analysis.FormatPercent(run.CutoffDecay))
	}
}

// printRun writes a run with its weighted curve and cohort sizes
func printRun(w io.Writer, run *models.Run) {
	printRuns(w, []*models.Run{run})
	for i, v := range run.Curve.Values {
		fmt.Fprintf(w, "  year %2d  %s  weight %.0f\n", i, analysis.FormatPercent(v), run.Curve.Weights[i])
	}
	for _, c := range run.Cohorts {
		fmt.Fprintf(w, "  cohort %s  size %d  %d decay points\n", c.Cohort, c.Size, len(c.Decay))
	}
}
