package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rosevale/vmxtract/internal/config"
	"github.com/rosevale/vmxtract/internal/history"
	"github.com/rosevale/vmxtract/internal/logging"
	"github.com/rosevale/vmxtract/internal/model"
	"github.com/rosevale/vmxtract/internal/notify"
	"github.com/rosevale/vmxtract/internal/orchestrator"
	"github.com/rosevale/vmxtract/internal/schedule"
)

var (
	version   = "0.1.0"
	buildTime = "development"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	root := flag.String("root", "", "Override the backup search root")
	device := flag.String("device", "", "Override the device filter (UDID)")
	output := flag.String("output", "", "Override the output directory")
	preserveOriginals := flag.Bool("preserve-originals", false, "Copy original payloads alongside the converted WAVs")
	sidecars := flag.Bool("sidecars", false, "Force-enable JSON sidecar documents")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vmxtract v%s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	if *root != "" {
		cfg.Backup.SearchRoot = *root
	}
	if *device != "" {
		cfg.Backup.DeviceFilter = *device
	}
	if *output != "" {
		cfg.Output.Root = *output
	}
	if *preserveOriginals {
		cfg.Output.PreserveOriginals = true
	}
	if *sidecars {
		cfg.Output.EmitSidecars = true
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Close()

	var historyStore *history.Store
	if cfg.History.DBPath != "" {
		historyStore, err = history.Open(cfg.History.DBPath)
		if err != nil {
			logger.Error("failed to open run history store", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		defer historyStore.Close()
	}

	notifier := notify.NewNotifier(cfg.Notifications)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := &orchestrator.Orchestrator{
		Config:   cfg,
		Log:      logger,
		History:  historyStore,
		Notifier: notifier,
		Progress: &barProgress{},
	}

	if cfg.CronSchedule != "" {
		svc, err := schedule.NewService(cfg.CronSchedule, func(runCtx context.Context) {
			runOnce(runCtx, orch, logger)
		}, logger)
		if err != nil {
			logger.Error("invalid cron schedule", map[string]interface{}{"error": err.Error()})
			os.Exit(2)
		}
		logger.Info("starting scheduled extraction", map[string]interface{}{"cron": cfg.CronSchedule})
		svc.Start(ctx)
		<-ctx.Done()
		svc.Stop()
		os.Exit(0)
	}

	summary, exitCode := orch.Run(ctx)
	reportSummary(summary)
	os.Exit(exitCode)
}

func reportSummary(summary model.RunSummary) {
	elapsed := summary.FinishedAt.Sub(summary.StartedAt)
	fmt.Printf("discovered %d, converted %d, failed %d, skipped %d, already seen %d (%s)\n",
		summary.Discovered, summary.Converted, summary.Failed, summary.Skipped, summary.AlreadySeen, elapsed.Round(time.Millisecond))
}

func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, logger *logging.Logger) {
	summary, exitCode := orch.Run(ctx)
	logger.Info("scheduled extraction run finished", map[string]interface{}{
		"converted": summary.Converted,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"exit_code": exitCode,
	})
}

// barProgress renders per-item conversion progress with progressbar/v3,
// implementing orchestrator.ProgressCallback. This is presentation only;
// the core pipeline never imports it.
type barProgress struct {
	bar   *progressbar.ProgressBar
	total int
}

func (p *barProgress) OnProgress(itemIndex, total int, percent float64) {
	if p.bar == nil || p.total != total {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("converting voicemails"),
			progressbar.OptionClearOnFinish(),
		)
		p.total = total
	}
	p.bar.Describe(fmt.Sprintf("item %d/%d", itemIndex+1, total))
	p.bar.Set(int(percent))
	if percent >= 100 {
		p.bar.Finish()
	}
}
