package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wevn/wevn/config"
	"github.com/wevn/wevn/controller"
	"github.com/wevn/wevn/models"
	"github.com/wevn/wevn/notify"
	"github.com/wevn/wevn/services"
)

func main() {
	cfg := config.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := services.NewChromaStore(cfg.ChromaURL, logger)
	if err != nil {
		logger.Fatalw("failed to create chroma client", "error", err)
	}
	defer store.Close()

	embedder := services.NewOllamaEmbedder(http.DefaultClient, cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedConcurrency, logger)
	embedder.Start(ctx)

	var chat services.ChatModel
	switch cfg.ChatProvider {
	case "gemini":
		gemini, err := services.NewGeminiChat(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatalw("failed to create gemini client", "error", err)
		}
		chat = gemini
	default:
		ollamaChat, err := services.NewOllamaChat(cfg.OllamaURL, cfg.ChatModel, logger)
		if err != nil {
			logger.Fatalw("failed to create ollama chat client", "error", err)
		}
		ollamaChat.Start(ctx)
		chat = ollamaChat
	}

	memory, err := services.NewMemoryService(cfg.SessionDBPath, chat, cfg.HistoryBudget, cfg.KeepRecentTurns, logger)
	if err != nil {
		logger.Fatalw("failed to open session store", "error", err)
	}
	defer memory.Close()

	hub := notify.NewHub(logger)
	go hub.Run()

	graph := services.NewGraphService(store, embedder, hub, cfg.DefaultThreshold, cfg.DefaultMaxResults, logger)

	scanPolicy := services.ScanStringAware
	if !cfg.StringAwareScan {
		scanPolicy = services.ScanNaive
	}
	stream := services.NewStreamService(chat, graph, memory, services.StreamOptions{
		ScanPolicy:        scanPolicy,
		DeltaPartials:     !cfg.AccumulatePartial,
		FinalAttemptParse: cfg.FinalAttemptParse,
		MaxRepairRetries:  cfg.MaxRepairRetries,
	}, logger)

	if cfg.NotesDir != "" {
		if err := services.SetPDFLicense(cfg.UnidocLicenseKey); err != nil {
			logger.Warnw("pdf import disabled", "error", err)
		}
		importer := services.NewImportService(store, embedder, hub, cfg.ImportCollection, logger)
		go func() {
			if err := embedder.WaitReady(ctx); err != nil {
				return
			}
			if err := store.CreateCollection(ctx, cfg.ImportCollection); err != nil {
				logger.Warnw("import collection setup failed", "error", err)
			}
			if err := importer.ScanDirectory(ctx, cfg.NotesDir); err != nil {
				logger.Errorw("initial notes scan failed", "error", err)
			}
			importer.WatchDirectory(ctx, cfg.NotesDir)
		}()
	}

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
	})

	wsCtrl := controller.NewWSController(hub, cfg.WSToken, logger)
	router.GET("/ws", wsCtrl.Connect)

	graphCtrl := controller.NewGraphController(graph)
	queryCtrl := controller.NewQueryController(stream)
	historyCtrl := controller.NewHistoryController(memory, stream, graph)

	api := router.Group("/", controller.APIKeyAuth(cfg.APIKey))
	{
		api.GET("/collections/list", graphCtrl.ListCollections)
		api.POST("/collections/create", graphCtrl.CreateCollection)
		api.POST("/collections/delete", graphCtrl.DeleteCollection)
		api.POST("/collections/rename", graphCtrl.RenameCollection)

		api.POST("/nodes/list", graphCtrl.ListNodes)
		api.POST("/nodes/insert", graphCtrl.InsertNode)
		api.POST("/nodes/update", graphCtrl.UpdateNode)
		api.POST("/nodes/delete", graphCtrl.DeleteNode)
		api.POST("/nodes/refactor", graphCtrl.Refactor)

		api.POST("/search", graphCtrl.Search)

		api.POST("/query/stream", queryCtrl.Stream)
		api.POST("/query/ask", queryCtrl.Ask)

		api.POST("/history/get", historyCtrl.Get)
		api.POST("/history/summarize", historyCtrl.Summarize)
		api.POST("/history/clear", historyCtrl.Clear)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		logger.Infow("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
}
