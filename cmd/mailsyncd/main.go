package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/internal/sync"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	runOnce     = flag.Bool("once", false, "Run one sync pass and exit")
	account     = flag.String("account", "", "Sync only this account")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailsyncd version %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Starting mailsyncd")

	// Initialize record store
	store, err := record.NewSQLiteStore(cfg.StorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize record store")
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.SpoolPath, 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create attachment spool")
	}

	// Initialize sync manager
	manager, err := sync.NewManager(cfg, store, sync.Services{}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create sync manager")
	}
	defer manager.Close()

	runner := sync.NewRunner(manager, logger)

	accounts := manager.AccountNames()
	if *account != "" {
		accounts = []string{*account}
	}

	enqueueAll := func() {
		for _, name := range accounts {
			if err := runner.Enqueue(sync.JobSpec{Name: sync.JobNameGetMessages, Mailbox: name}); err != nil {
				logger.WithError(err).WithField("account", name).Error("Failed to enqueue sync")
			}
		}
	}

	enqueueAll()

	if *runOnce {
		runner.Wait()
		logger.Info("Sync pass complete")
		return
	}

	// Periodic mode: re-enqueue at the configured interval until a
	// shutdown signal arrives.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			enqueueAll()
		case sig := <-sigChan:
			logger.WithField("signal", sig).Info("Received shutdown signal")
			runner.Wait()
			logger.Info("Shutting down mailsyncd")
			return
		}
	}
}
