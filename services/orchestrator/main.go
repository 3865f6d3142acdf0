// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/pkg/extensions"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/handlers"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/routes"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/session"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/store"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/responder"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildResponder picks the response backend from RESPONDER_BACKEND.
func buildResponder() responder.Responder {
	switch os.Getenv("RESPONDER_BACKEND") {
	case "openai":
		rsp, err := responder.NewOpenAIResponder(responder.DefaultOpenAIConfig())
		if err != nil {
			log.Fatalf("Failed to initialize OpenAI responder: %v", err)
		}
		slog.Info("Using OpenAI responder backend")
		return rsp
	case "echo", "":
		slog.Info("Using local echo responder backend")
		return responder.NewEchoResponder()
	default:
		slog.Warn("RESPONDER_BACKEND not recognized, defaulting to echo")
		return responder.NewEchoResponder()
	}
}

// buildSessionConfig applies env overrides on top of defaults.
func buildSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	if v := os.Getenv("MAX_ACTIVE_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxActiveSessions = n
		} else {
			slog.Warn("MAX_ACTIVE_SESSIONS is invalid, using default", "value", v)
		}
	}
	return cfg
}

// buildStreamConfig applies env overrides on top of defaults.
func buildStreamConfig() handlers.StreamConfig {
	cfg := handlers.DefaultStreamConfig()
	if v := os.Getenv("STREAM_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("STREAM_IDLE_TIMEOUT_SECONDS is invalid, using default", "value", v)
		}
	}
	return cfg
}

func main() {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12210"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	chats := store.NewMemoryStore()
	registry := session.NewRegistry(buildResponder(), chats, buildSessionConfig())
	chatHandler := handlers.NewChatHandler(registry, chats, buildStreamConfig())

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))

	routes.SetupRoutes(router, chatHandler, &extensions.NopAuthProvider{})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		slog.Info("starting the orchestrator server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until SIGINT/SIGTERM, then drain workers before closing
	// the listener so in-flight turns terminate cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("session drain incomplete", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
