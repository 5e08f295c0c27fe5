package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/internal/logging"
	"github.com/me/tdist/internal/worker"
)

func main() {
	cfg := config.DefaultWorkerConfig()

	configFile := flag.String("config", "tdist-worker.yaml", "Path to YAML config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "tdist server URL")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Node name (default: hostname-pid)")
	flag.StringVar(&cfg.ListCommand, "list", cfg.ListCommand, "Command printing one test ID per line")
	flag.StringVar(&cfg.Filter, "filter", cfg.Filter, "JavaScript filter expression over test IDs")
	flag.StringVar(&cfg.RunCommand, "run", cfg.RunCommand, "Command template executing one item ({id} is replaced)")
	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Poll interval")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if err := config.LoadFile(*configFile, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	// Flags win over file and environment, but only when actually passed.
	flag.Visit(func(f *flag.Flag) {
		applyFlag(&cfg, f.Name, f.Value.String())
	})
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	w, err := worker.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init worker: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting worker",
		"server", cfg.ServerURL,
		"poll", cfg.PollInterval,
	)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("worker stopped")
}

// applyFlag copies one explicitly-set flag value into cfg.
func applyFlag(cfg *config.WorkerConfig, name, value string) {
	switch name {
	case "server":
		cfg.ServerURL = value
	case "name":
		cfg.Name = value
	case "list":
		cfg.ListCommand = value
	case "filter":
		cfg.Filter = value
	case "run":
		cfg.RunCommand = value
	case "poll":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.PollInterval = d
		}
	case "log-level":
		cfg.LogLevel = value
	case "log-format":
		cfg.LogFormat = value
	}
}
