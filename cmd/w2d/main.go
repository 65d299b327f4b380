package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/w2-extractor/internal/app"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/server"
)

func main() {
	cfg, err := common.LoadConfig(common.NewFlagSet("w2d"), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "w2d: %v\n", err)
		os.Exit(2)
	}

	logger := common.NewLogger(os.Stdout, cfg.LogLevel, true)
	logger.Info("w2d.config", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)

	var diag server.Diagnoser
	if cfg.OCR.Enabled {
		diag = a.OCR
		if d := a.OCR.Diagnose(ctx); !d.Ready() {
			logger.Warn("w2d.ocr.not_ready", "language", d.Language, "language_ok", d.LanguageOK)
		}
	}

	// gRPC
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, hs := server.NewGRPCServer(server.NewExtractorService(a.Processor, diag, logger), logger)
	reflection.Register(grpcServer)

	go func() {
		logger.Info("w2d.grpc.listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
			stop()
		}
	}()

	// HTTP
	handler := server.NewHandler(a.Processor, diag, server.HTTPConfig{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("w2d.http.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
