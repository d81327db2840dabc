package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shrimp/pkg/agent"
	"shrimp/pkg/channels"
	"shrimp/pkg/channels/telegram"
	"shrimp/pkg/channels/web"
	"shrimp/pkg/channels/whatsapp"
	"shrimp/pkg/config"
	"shrimp/pkg/llm"
	_ "shrimp/pkg/llm/autoload" // registers the LLM providers
	"shrimp/pkg/memory"
	"shrimp/pkg/monitor"
	"shrimp/pkg/prompt"
	"shrimp/pkg/server"
	"shrimp/pkg/shell"
	"shrimp/pkg/store"
	"shrimp/pkg/tools"
)

// webChannelPort is where the browser websocket channel listens; the REST
// and SSE surface lives on cfg.Addr.
const webChannelPort = 9453

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	monitor.SetupSlog(cfg.LogLevel)

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client, err := llm.NewFromConfig(cfg)
	if err != nil {
		slog.Error("failed to init LLM client", "provider", cfg.Provider, "error", err)
		os.Exit(1)
	}

	shells := shell.NewManager(shell.Options{
		MaxSessions:    cfg.MaxSessions,
		DefaultTimeout: cfg.CommandTimeout,
		MaxOutputChars: cfg.MaxOutputChars,
	})
	defer shells.Shutdown()

	mem := memory.NewStore(cfg.MemoryPath())

	registry := tools.NewRegistry()
	if err := tools.RegisterAll(registry, shells, mem); err != nil {
		slog.Error("failed to register tools", "error", err)
		os.Exit(1)
	}

	engine := agent.NewEngine(st, client, registry, prompt.NewBuilder(mem), cfg, monitor.NewCLIMonitor())

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The memory file is hand-editable; log when it changes outside the API.
	go func() {
		for range config.WatchFiles(rootCtx, cfg.MemoryPath()) {
			slog.Info("system prompt memory changed on disk")
		}
	}()

	chMgr := channels.NewManager()
	if cfg.TelegramToken != "" {
		chMgr.Register(telegram.New(telegram.Config{Token: cfg.TelegramToken}, engine, st, cfg.DefaultModel))
	}
	chMgr.Register(whatsapp.New(whatsapp.Config{SessionPath: cfg.WhatsAppSessionPath()}, engine, st, cfg.DefaultModel))
	chMgr.Register(web.New(web.Config{Port: webChannelPort}, engine))
	defer chMgr.StopAll()

	// The web channel always comes up; Telegram and WhatsApp are started on
	// demand via /api/channels/start (WhatsApp needs a QR pairing round).
	if err := chMgr.Start(rootCtx, "web"); err != nil {
		slog.Error("failed to start web channel", "error", err)
	}
	if cfg.TelegramToken != "" {
		if err := chMgr.Start(rootCtx, "telegram"); err != nil {
			slog.Error("failed to start telegram channel", "error", err)
		}
	}

	srv := server.New(cfg, st, engine, shells, chMgr)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("http server failed", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		slog.Info("shutdown signal received")
	case <-rootCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
}
