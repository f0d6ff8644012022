package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tab_arbor/internal/agent"
	"github.com/dgnsrekt/tab_arbor/internal/api"
	"github.com/dgnsrekt/tab_arbor/internal/browser"
	"github.com/dgnsrekt/tab_arbor/internal/capture"
	"github.com/dgnsrekt/tab_arbor/internal/cdptabs"
	"github.com/dgnsrekt/tab_arbor/internal/config"
	"github.com/dgnsrekt/tab_arbor/internal/mirrorsync"
	"github.com/dgnsrekt/tab_arbor/internal/netutil"
	"github.com/dgnsrekt/tab_arbor/internal/repository"
	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/tree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"db_path", cfg.DBPath,
		"export_enabled", cfg.ExportEnabled,
		"auto_launch", cfg.AutoLaunch,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	if cfg.AutoLaunch {
		launcher := browser.NewLauncher(browser.Options{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			WindowSize: cfg.WindowSize,
		})
		launchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := launcher.Launch(launchCtx)
		cancel()
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	repo, err := repository.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open snapshot repository", "db_path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = repo.Close() }()

	tabClient := cdptabs.NewClient(cfg.CDPURL())
	if err := tabClient.Connect(context.Background()); err != nil {
		slog.Error("failed to connect tab driver", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = tabClient.Close() }()

	mirror := tree.NewMirror(tree.View{
		ID:    cfg.DefaultViewID,
		Name:  cfg.DefaultViewName,
		Color: cfg.DefaultViewColor,
	})
	watcher := mirrorsync.NewWatcher(cfg.CDPURL(), mirror)
	if err := watcher.Connect(context.Background()); err != nil {
		slog.Error("failed to start mirror sync", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	var exporter *capture.Exporter
	if cfg.ExportEnabled {
		exporter, err = capture.NewExporter(cfg.ExportDir)
		if err != nil {
			slog.Error("failed to prepare export dir", "export_dir", cfg.ExportDir, "error", err)
			os.Exit(1)
		}
	}

	captureSvc := capture.NewService(mirror, repo, exporter)
	engine := restore.NewEngine(tabClient, mirror, time.Duration(cfg.TabTimeoutMS)*time.Millisecond)
	svc := agent.NewService(repo, captureSvc, engine, time.Duration(cfg.OpTimeoutMS)*time.Millisecond)

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc)}

	go func() {
		slog.Info("agent listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("agent shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	w := io.Writer(os.Stdout)
	if filename != "" {
		if err := os.MkdirAll("logs", 0o755); err != nil {
			return err
		}
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
