// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mentor starts the Aleutian Mentor API server.
//
// Aleutian Mentor answers coordinator and teacher questions about an
// academic database. A DeepSeek-backed agent decides which database
// capabilities to invoke, classifies every result, and streams progress
// to the caller's webhook.
//
// Usage:
//
//	DEEPSEEK_API_KEY=... DATABASE_URL=postgres://... go run ./cmd/mentor
//	go run ./cmd/mentor -port 9090 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8001/v1/mentor/health
//
//	# List registered capabilities
//	curl http://localhost:8001/v1/mentor/tools | jq
//
//	# Synchronous coordinator analysis
//	curl -X POST http://localhost:8001/v1/mentor/feedback/coordinator \
//	  -H "Content-Type: application/json" \
//	  -d '{"message": "How did class 5 do on its latest evaluations?"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor"
	"github.com/AleutianAI/AleutianMentor/services/mentor/agent"
	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
	badgerstore "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
	"github.com/AleutianAI/AleutianMentor/services/mentor/tools"
)

const shutdownGrace = 30 * time.Second

func main() {
	port := flag.Int("port", 8001, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so gateway traces continue through
	// the handlers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := run(*port, *debug); err != nil {
		slog.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(port int, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.GetMentorConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	client, err := llm.NewDeepSeekClient()
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	pgTools, err := tools.NewPostgresTools(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pgTools.Close()

	registry := tools.NewRegistry()
	if err := pgTools.RegisterAll(registry); err != nil {
		return fmt.Errorf("registering capabilities: %w", err)
	}
	slog.Info("Capabilities registered", slog.Int("count", registry.Len()))

	// Classification cache. Graceful degradation: without it every
	// result is classified by the secondary model call.
	cache := openVerdictCache(cfg)
	if cache.db != nil {
		defer cache.db.Close()
	}

	service := mentor.NewService(cfg, client, registry, cache.verdicts, slog.Default())
	readyCheck := func(ctx context.Context) error { return pgTools.Pool().Ping(ctx) }
	handlers := mentor.NewHandlers(service, readyCheck, slog.Default())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-mentor"))
	if debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	mentor.RegisterRoutes(v1, handlers)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	printBanner(port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting Aleutian Mentor server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down Aleutian Mentor server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown failed", slog.String("error", err.Error()))
		}

		// Let in-flight async sessions deliver their terminal
		// notifications before resources are released.
		service.Wait()
		return nil
	})

	return g.Wait()
}

type verdictStore struct {
	db       *badgerstore.DB
	verdicts *agent.VerdictCache
}

// openVerdictCache opens the badger-backed classification cache. A
// missing or unopenable directory disables caching rather than failing
// startup.
func openVerdictCache(cfg *config.MentorConfig) verdictStore {
	dir := os.Getenv("MENTOR_CACHE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Warn("Home directory unavailable, classification cache disabled",
				slog.String("error", err.Error()))
			return verdictStore{}
		}
		dir = filepath.Join(home, ".aleutian", "cache", "mentor")
	}

	db, err := badgerstore.Open(dir, slog.Default())
	if err != nil {
		slog.Warn("Classification cache unavailable, every result will be classified",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		return verdictStore{}
	}

	slog.Info("Classification cache opened", slog.String("path", dir))
	return verdictStore{
		db:       db,
		verdicts: agent.NewVerdictCache(db, cfg.Classifier.CacheTTL(), slog.Default()),
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     ALEUTIAN MENTOR SERVER                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  LLM agent for academic feedback over a Postgres database.        ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/mentor/health               │  ║
║  │                                                             │  ║
║  │ # List database capabilities                                │  ║
║  │ curl http://localhost:%d/v1/mentor/tools | jq           │  ║
║  │                                                             │  ║
║  │ # Ask a coordinator question                                │  ║
║  │ curl -X POST http://localhost:%d/v1/mentor/feedback/coordinator \ │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"message": "How are the teams in class 5 doing?"}'   │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Info: /health, /ready, /types, /tools, /metrics              ║
║  ├── Sync: /feedback/coordinator, /feedback/teacher               ║
║  ├── Async: /feedback/{coordinator,teacher}/chat                  ║
║  └── Pipeline: /feedback/team                                     ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port, port)
}
