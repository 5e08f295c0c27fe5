package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/internal/logging"
	"github.com/me/tdist/internal/sched"
	"github.com/me/tdist/internal/server"
	"github.com/me/tdist/internal/session"
	"github.com/me/tdist/internal/store"
	"github.com/me/tdist/pkg/model"
)

func main() {
	cfg := config.DefaultServerConfig()

	configFile := flag.String("config", "tdist.yaml", "Path to YAML config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for ephemeral)")
	flag.IntVar(&cfg.ExpectedNodes, "nodes", cfg.ExpectedNodes, "Workers to wait for before distributing")
	flag.StringVar(&cfg.Policy, "policy", cfg.Policy, "Scheduling policy (bounded-queue, classic)")
	flag.IntVar(&cfg.MinQueueSize, "min-queue", cfg.MinQueueSize, "Queue length below which a node is refilled")
	flag.IntVar(&cfg.MaxQueueSize, "max-queue", cfg.MaxQueueSize, "Queue length a refill tops up to")
	flag.DurationVar(&cfg.SlowThreshold, "slow-threshold", cfg.SlowThreshold, "Item duration above which full queues are not topped up")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	// Precedence: flags > environment > config file > defaults. Flags were
	// already applied to cfg, so reload the file into a copy first.
	fileCfg := config.DefaultServerConfig()
	if err := config.LoadFile(*configFile, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyUnset(&cfg, fileCfg)
	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	sess := session.New(session.Config{
		ExpectedNodes: cfg.ExpectedNodes,
		Policy:        cfg.Policy,
		Sched: sched.Config{
			MinQueueSize:  cfg.MinQueueSize,
			MaxQueueSize:  cfg.MaxQueueSize,
			SlowThreshold: cfg.SlowThreshold,
		},
	}, st, logger)

	srv := server.New(cfg, sess, st, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the session event loop in the background.
	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Error("session stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"expected_nodes", cfg.ExpectedNodes,
			"policy", cfg.Policy,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-sess.Done():
		run := sess.Status().Run
		logger.Info("run finished", "run_id", run.ID, "state", run.State, "failed", run.Failed)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")

	// Exit non-zero when the run ended badly so CI pipelines can gate on it.
	if run := sess.Status().Run; run.State.IsTerminal() && run.State != model.RunStatePassed {
		os.Exit(1)
	}
}

// applyUnset copies file-config values into cfg for every flag the user
// left at its default.
func applyUnset(cfg *config.ServerConfig, file config.ServerConfig) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["addr"] {
		cfg.Addr = file.Addr
	}
	if !set["log-level"] {
		cfg.LogLevel = file.LogLevel
	}
	if !set["log-format"] {
		cfg.LogFormat = file.LogFormat
	}
	if !set["db"] {
		cfg.DBPath = file.DBPath
	}
	if !set["nodes"] {
		cfg.ExpectedNodes = file.ExpectedNodes
	}
	if !set["policy"] {
		cfg.Policy = file.Policy
	}
	if !set["min-queue"] {
		cfg.MinQueueSize = file.MinQueueSize
	}
	if !set["max-queue"] {
		cfg.MaxQueueSize = file.MaxQueueSize
	}
	if !set["slow-threshold"] {
		cfg.SlowThreshold = file.SlowThreshold
	}
}
