package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/cohortlens/internal/backup"
	"github.com/tinytelemetry/cohortlens/internal/dataset"
	"github.com/tinytelemetry/cohortlens/internal/duckdb"
	"github.com/tinytelemetry/cohortlens/internal/httpserver"
	"github.com/tinytelemetry/cohortlens/internal/socketrpc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// runServer loads the population and serves it over the HTTP API until a
// signal arrives.
func runServer(cfg appConfig) error {
	logger, err := newLogger(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := duckdb.NewStore(cfg.DBPath, duckdb.Config{
		QueryTimeout: cfg.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	svc := dataset.NewService(store, dataset.Config{Logger: logger})

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	// Queries answer 503 until the first rebuild lands, so the API can come up first.
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, svc, httpserver.Config{Logger: logger})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Local control socket for -query and -stats.
	sockServer := socketrpc.NewServer(cfg.SocketPath, svc, socketrpc.Config{Logger: logger})
	if err := sockServer.Start(); err != nil {
		logger.Warn("server: control socket unavailable", zap.Error(err))
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RebuildOnStart {
		g.Go(func() error {
			// A failed first load leaves the service not ready; the refresher
			// or POST /api/dataset/rebuild can still recover it.
			if err := svc.Rebuild(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("server: initial rebuild failed", zap.Error(err))
			}
			return nil
		})
	}

	refresher := dataset.NewRefresher(svc, dataset.RefreshConfig{
		Interval: cfg.RebuildInterval,
		Logger:   logger,
	})
	if refresher != nil {
		g.Go(func() error {
			<-gctx.Done()
			refresher.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server: errgroup exited with error", zap.Error(err))
	}
	logger.Info("server: stopped", zap.Int("records", svc.Stats().Records))
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// newLogger builds a production zap logger at level, writing JSON lines to
// path. Without a writable path it logs to stderr.
func newLogger(level, path string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log-level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stderr"}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			zcfg.OutputPaths = []string{path}
		}
	}
	return zcfg.Build()
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔═╗╦ ╦╔═╗╦═╗╔╦╗  ╦  ╔═╗╔╗╔╔═╗
    ║  ║ ║╠═╣║ ║╠╦╝ ║   ║  ║╣ ║║║╚═╗
    ╚═╝╚═╝╩ ╩╚═╝╩╚═ ╩   ╩═╝╚═╝╝╚╝╚═╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Population"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, dim.Render(shortenPath(cfg.DBPath))))
	if cfg.RebuildOnStart {
		lines = append(lines, fmt.Sprintf("    %s  Load on start  %s", check, dim.Render("enabled")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Load on start  %s", dot, dim.Render("disabled")))
	}
	if cfg.RebuildInterval > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Refresh        %s", check, dim.Render("every "+cfg.RebuildInterval.String())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Refresh        %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogPath))))

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
