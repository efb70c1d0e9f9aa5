// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arturvolkov/pumpsell-bot/internal/bot"
	"github.com/arturvolkov/pumpsell-bot/internal/config"
	"github.com/arturvolkov/pumpsell-bot/internal/export"
	"github.com/arturvolkov/pumpsell-bot/internal/history"
	"github.com/arturvolkov/pumpsell-bot/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.json", "path to the JSON config file")
		investment = flag.Float64("investment", 0, "initial investment per token, in SOL (informational)")
		duration   = flag.Duration("duration", 5*time.Minute, "max monitoring window per token")
		dryRun     = flag.Bool("dry-run", false, "simulate sell orders instead of sending them")
		exportFmt  = flag.String("export", "", "export the trading history (csv or json) and exit")
		exportDir  = flag.String("export-dir", "exports", "directory for exported history files")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <mint> [mint...]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	mints := flag.Args()
	if len(mints) == 0 && *exportFmt == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	log, err := logger.New(cfg.LogDir, cfg.DebugLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *exportFmt != "" {
		if err := exportHistory(cfg, log, *exportFmt, *exportDir); err != nil {
			log.Error("Export failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting auto-sell bot",
		zap.Strings("mints", mints),
		zap.Duration("max_duration", *duration),
		zap.Bool("dry_run", cfg.DryRun))

	runner, err := bot.NewRunner(cfg, log)
	if err != nil {
		log.Error("Failed to initialize bot", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tasks := make([]bot.TokenTask, 0, len(mints))
	for _, mint := range mints {
		tasks = append(tasks, bot.TokenTask{
			Mint:              mint,
			InitialInvestment: *investment,
			MaxDuration:       *duration,
		})
	}

	if err := runner.Run(ctx, tasks); err != nil {
		log.Error("Bot execution error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("All monitoring sessions finished")
}

func exportHistory(cfg *config.Config, log *zap.Logger, format, dir string) error {
	store, err := history.Open(cfg.HistoryPath, log)
	if err != nil {
		return err
	}
	path, err := export.New(log).Export(store.Entries(), export.Options{
		Format:    export.Format(format),
		OutputDir: dir,
	})
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
