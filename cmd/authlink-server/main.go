package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/poly-workshop/authlink/internal/api/gateway"
	"github.com/poly-workshop/authlink/internal/application/authlink"
	"github.com/poly-workshop/authlink/internal/infrastructure/bootstrap"
	"github.com/poly-workshop/authlink/internal/infrastructure/configs"
	"github.com/poly-workshop/authlink/internal/infrastructure/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

func init() {
	bootstrap.Init("server")
}

// InterceptorLogger adapts slog logger to interceptor logger.
// This code is simple enough to be copied and not imported.
func InterceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(
		func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
			l.Log(ctx, slog.Level(lvl), msg, fields...)
		},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := configs.Load(bootstrap.Config())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	linkService, err := authlink.New(ctx, cfg.Authlink)
	if err != nil {
		log.Fatalf("failed to create authlink service: %v", err)
	}
	defer func() {
		if err := linkService.Close(context.Background()); err != nil {
			slog.Warn("failed to cleanup service", "error", err)
		}
	}()

	gw, err := gateway.New(linkService, gatewayOptions(cfg))
	if err != nil {
		log.Fatalf("failed to create gateway: %v", err)
	}

	// Health and reflection only; the linking API is served over HTTP.
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			bootstrap.BuildRequestIDInterceptor(),
			logging.UnaryServerInterceptor(InterceptorLogger(slog.Default())),
		),
	)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("failed to listen on gRPC port: %v", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("gRPC server started", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()
	go func() {
		slog.Info("HTTP server started", "port", cfg.HTTPPort, "redirect_uri", cfg.Authlink.RedirectURI)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		slog.Error("server stopped", "error", err)
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown HTTP server", "error", err)
	}
	grpcServer.GracefulStop()
}

func gatewayOptions(cfg configs.Config) gateway.Options {
	opts := gateway.Options{
		AdminDisabled:  cfg.Admin.Disabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.Admin.Disabled {
		slog.Warn("admin authentication is disabled")
	}
	if cfg.Admin.PublicKeyPEM != "" {
		pub, err := security.ParseRSAPublicKeyPEM(cfg.Admin.PublicKeyPEM)
		if err != nil {
			log.Fatalf("failed to parse admin public key: %v", err)
		}
		opts.Admin = security.NewAdminTokenVerifier(pub, cfg.Admin.Issuer)
	} else if !cfg.Admin.Disabled {
		slog.Warn("no admin public key configured, management routes will reject every request")
	}

	if cwd, err := os.Getwd(); err == nil {
		opts.StaticDir = filepath.Join(cwd, "frontend", "dist")
	}
	return opts
}
