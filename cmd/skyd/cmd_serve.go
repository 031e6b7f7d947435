package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/skyd/internal/admin"
	"github.com/user/skyd/internal/dispatch"
	"github.com/user/skyd/internal/handler"
	"github.com/user/skyd/internal/scheduler"
	"github.com/user/skyd/internal/server"
	"github.com/user/skyd/internal/storage"
	"github.com/user/skyd/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the skyd server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create PID dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	readTimeout, _ := cfg.ReadTimeoutDuration()

	if err := os.MkdirAll(cfg.RootPath, 0755); err != nil {
		return fmt.Errorf("create root path: %w", err)
	}

	pidPath := cfg.ResolvedPidFile()
	if err := writePIDFile(pidPath); err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "skyd", version, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	engine := storage.NewEngine()
	registry, err := dispatch.NewRegistry(
		handler.NewAddEvent(cfg.RootPath, engine, handler.WithLogger(logger)),
	)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	srv := server.New(server.Config{
		RootPath:    cfg.RootPath,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Backlog:     cfg.Backlog,
		Workers:     cfg.Workers,
		MaxBodySize: cfg.MaxBodySize,
		ReadTimeout: readTimeout,
	}, registry, server.WithLogger(logger))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info("skyd started",
		"addr", srv.Addr().String(),
		"root_path", cfg.RootPath,
		"workers", cfg.Workers,
		"log_level", cfg.LogLevel,
		"pid_file", pidPath,
	)

	if cfg.Stats.Schedule != "" {
		sched := scheduler.New(logger)
		if err := sched.Add(scheduler.StatsReportJob(cfg.Stats.Schedule, srv.Stats, cfg.RootPath, logger)); err != nil {
			srv.Stop()
			return fmt.Errorf("schedule stats report: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			srv.Stop()
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
		logger.Info("scheduler started", "schedule", cfg.Stats.Schedule)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if cfg.Admin.Enabled {
		adm := admin.NewServer(cfg.RootPath, engine, srv.Stats, logger, admin.WithToken(cfg.Admin.Token))
		g.Go(func() error {
			return adm.ListenAndServe(gctx, cfg.Admin.Listen)
		})
	}
	g.Go(func() error {
		return waitForSignal(gctx, pidPath, cancel)
	})

	err = g.Wait()
	logger.Info("skyd stopped", "requests", srv.Stats().Requests)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitForSignal cancels the server on SIGINT or SIGTERM and re-executes the
// binary on SIGHUP.
func waitForSignal(ctx context.Context, pidPath string, cancel context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					if writeErr := writePIDFile(pidPath); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			slog.Info("shutting down", "signal", sig.String())
			cancel()
			return nil
		}
	}
}
