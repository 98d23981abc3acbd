package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/paperatlas/internal/analyzer"
	"github.com/rpattn/paperatlas/internal/api"
	"github.com/rpattn/paperatlas/internal/config"
	"github.com/rpattn/paperatlas/internal/db"
	"github.com/rpattn/paperatlas/internal/embedding"
	"github.com/rpattn/paperatlas/internal/export"
	"github.com/rpattn/paperatlas/internal/middleware"
	"github.com/rpattn/paperatlas/internal/query"
	"github.com/rpattn/paperatlas/internal/registry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Run migrations before opening the serving pool
	if err := db.RunMigrations(cfg.DB, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	reg, err := registry.NewPaperRegistry()
	if err != nil {
		log.Fatalf("Failed to build field registry: %v", err)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Token:   cfg.Embedding.Token,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	analyzerOpts := []analyzer.Option{}
	if cfg.Query.SeqScanRowWarn > 0 {
		analyzerOpts = append(analyzerOpts, analyzer.WithSeqScanRowThreshold(cfg.Query.SeqScanRowWarn))
	}
	if cfg.Query.NodeSelfTimeWarnMs > 0 {
		analyzerOpts = append(analyzerOpts, analyzer.WithNodeSelfTimeThreshold(cfg.Query.NodeSelfTimeWarnMs))
	}
	planAnalyzer := analyzer.New(analyzerOpts...)

	builder := query.NewBuilder(reg, cfg.Query.PrefilterCap)
	executor := query.NewExecutor(conn.Pool,
		time.Duration(cfg.Query.StatementTimeoutMs)*time.Millisecond, planAnalyzer)
	engine := query.NewEngine(reg, builder, executor, embedder)

	// Fan-out concurrency stays within the connection pool size
	orchestrator, err := query.NewOrchestrator(engine, int(cfg.DB.MaxConns))
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}
	defer orchestrator.Release()

	exporter := export.NewService()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	queryHandler := middleware.LoggingMiddleware(api.NewHTTPHandler(engine, orchestrator, exporter))

	mux := http.NewServeMux()
	mux.Handle("/query", corsHandler.Handler(queryHandler))
	mux.Handle("/multi-query", corsHandler.Handler(queryHandler))
	mux.Handle("/export", corsHandler.Handler(queryHandler))

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting query server on %s", cfg.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
