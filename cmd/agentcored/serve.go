package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/authmw"
	"github.com/haasonsaas/nexus/internal/bashapi"
	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/convservice"
	"github.com/haasonsaas/nexus/internal/httpapi"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/obslog"
	"github.com/haasonsaas/nexus/internal/store"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/internal/wsapi"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadFromEnvPath()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := obslog.New(cfg.Logging)
	logger.Info("configuration loaded", "conversations_path", cfg.ConversationsPath, "addr", cfg.Server.Addr)

	st, err := store.New(cfg.ConversationsPath, cfg.WorkspacePath)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	provider, err := llmclient.NewAnthropicProvider(llmclient.AnthropicConfig{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.DefaultModel,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	executor := toolexec.BuiltinExecutor{}
	registry := toolexec.NewRegistry()
	condenserFn := func() condense.Condenser {
		return condense.NewThresholdCondenser(condense.DefaultThresholdConfig(), provider)
	}

	conversations := convservice.New(st, provider, executor, registry, condenserFn, cfg.Webhooks, logger)
	if err := conversations.LoadAll(); err != nil {
		logger.Error("failed to load persisted conversations", "error", err)
	}

	if cfg.CockroachIndexDSN != "" {
		index, err := store.OpenCockroachIndex(ctx, cfg.CockroachIndexDSN)
		if err != nil {
			logger.Error("failed to open cockroach index, continuing without it", "error", err)
		} else {
			conversations.SetCockroachIndex(index)
			defer index.Close()
		}
	}

	checker := authmw.NewChecker(cfg.SessionAPIKeys)
	api := httpapi.New(conversations, logger, time.Now(), cfg.StaticFilesPath, cfg.WorkspacePath)
	engine := api.Router(checker, cfg.AllowCORSOrigins)

	ws := wsapi.New(conversations, checker, logger)
	engine.GET("/sockets/events/:conversation_id", ws.ServeGin)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := os.MkdirAll(cfg.BashEventsDir, 0o755); err != nil {
		return fmt.Errorf("create bash events dir: %w", err)
	}
	bashLog, err := bashapi.Open(filepath.Join(cfg.BashEventsDir, "bash_events.db"))
	if err != nil {
		return fmt.Errorf("open bash events log: %w", err)
	}
	defer bashLog.Close()
	bashSvc := bashapi.New(bashLog, cfg.WorkspacePath)

	bashAuthed := engine.Group("/")
	bashAuthed.Use(authmw.RequireSessionKey(checker))
	bashapi.NewHTTPHandler(bashSvc).Register(bashAuthed)

	bashWS := bashapi.NewWSHandler(bashSvc, logger)
	engine.GET("/sockets/bash-events", bashWS.ServeGin)
	engine.GET("/bash_events/socket", bashWS.ServeGin)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentcored listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutdown signal received, draining conversations")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	conversations.Shutdown()
	logger.Info("agentcored stopped")
	return nil
}
