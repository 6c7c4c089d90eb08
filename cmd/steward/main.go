package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"steward/internal/bootstrap"
	stewardconfig "steward/internal/config"
	"steward/internal/history"
	"steward/internal/ledger"
	"steward/internal/notify"
	"steward/internal/protocol"
	"steward/internal/runner"
	"steward/pkg/config"
	"steward/pkg/logging"
	"steward/pkg/monitoring"
	"steward/pkg/server"
	"steward/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("steward")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Steward (router check-in automation)")

	cfg, err := stewardconfig.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.TotalAccounts() == 0 {
		logger.Warn("No accounts configured; nothing to do")
		os.Exit(0)
	}
	logger.WithFields(logging.Fields{
		"anyrouter":   len(cfg.AnyRouterAccounts),
		"agentrouter": len(cfg.AgentRouterAccounts),
	}).Info("Accounts loaded")

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			logger.WithError(err).Warn("History archive unavailable; continuing without it")
			store = nil
		}
	}

	dispatcher := notify.NewDispatcher(logger,
		notify.NewEmailNotifier(cfg.SMTP, cfg.NotifyEmailTo, logger),
		notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger),
	)

	if cfg.CronSchedule != "" {
		runDaemon(cfg, store, dispatcher, logger)
		return
	}

	report := runOnce(cfg, store, dispatcher, logger)
	if report.Succeeded > 0 {
		os.Exit(0)
	}
	os.Exit(1)
}

// runOnce executes one full check-in pass: fresh ledger state, every
// configured account, then history archival and notifications.
func runOnce(cfg stewardconfig.Config, store *history.Store, dispatcher *notify.Dispatcher, logger logging.Logger) runner.Report {
	runID := uuid.NewString()
	log := logger.WithField("run_id", runID)
	log.Info("Run started")

	led := ledger.Load(cfg.BalanceHashFile, cfg.BalanceDataFile, logger)
	r := runner.New(
		logger,
		bootstrap.New(logger),
		protocol.NewClient(logger),
		led,
		cfg.AccountPacing,
	)

	report := r.RunAll(context.Background(), cfg.Grouped())

	log.WithFields(logging.Fields{
		"accounts":        len(report.Outcomes),
		"success":         report.Succeeded,
		"failed":          report.Failed,
		"balance_changed": report.BalanceChanged,
	}).Info("Run finished")

	if store != nil {
		if err := store.Append(runID, report.Outcomes); err != nil {
			log.WithError(err).Warn("Failed to archive run outcomes")
		}
		if err := store.Prune(cfg.HistoryRetain); err != nil {
			log.WithError(err).Warn("Failed to prune history")
		}
	}

	dispatcher.Dispatch(context.Background(), notify.Report{
		GeneratedAt:    time.Now(),
		Succeeded:      report.Succeeded,
		Failed:         report.Failed,
		BalanceChanged: report.BalanceChanged,
		Outcomes:       report.Outcomes,
	})

	return report
}

// runDaemon schedules runs on a cron expression and serves health and
// metrics endpoints until shutdown.
func runDaemon(cfg stewardconfig.Config, store *history.Store, dispatcher *notify.Dispatcher, logger logging.Logger) {
	healthChecker := monitoring.NewHealthChecker("steward", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("steward", version.Version, version.GitCommit)

	healthChecker.AddCheck("state_dir", monitoring.StateDirHealthCheck(filepath.Dir(cfg.BalanceHashFile)))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"STEWARD_CRON": cfg.CronSchedule,
	}))
	if store != nil {
		if db, err := store.DB(); err == nil {
			healthChecker.AddCheck("history", monitoring.DatabaseHealthCheck(db))
		}
	}

	// SkipIfStillRunning: a slow run must never overlap the next one,
	// sequential processing is the whole point.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.CronSchedule, func() {
		runOnce(cfg, store, dispatcher, logger)
	}); err != nil {
		logger.WithError(err).Fatal("Invalid cron schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.WithFields(logging.Fields{
		"schedule": cfg.CronSchedule,
		"port":     cfg.Port,
	}).Info("Daemon mode: runs scheduled")

	router := server.SetupServiceRouter(logger, "steward", healthChecker, metricsCollector)
	serverConfig := server.DefaultConfig("steward", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
