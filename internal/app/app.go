// Package app собирает зависимости сервиса и управляет жизненным циклом серверов.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/health"
	"github.com/vladislavdragonenkov/stockwatch/internal/httpapi"
)

const (
	shutdownTimeout       = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
	healthSyncInterval    = 15 * time.Second
	grpcHealthServiceName = "stockwatch"
)

// Run поднимает HTTP-триггер и, если задан GRPCAddr, gRPC health-сервер.
// Возвращает ctx.Err() после остановки по сигналу.
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")

	rt, err := Build(ctx, cfg, BuildOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	httpSrv := newHTTPServer(cfg, rt, promhttp.Handler(), logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP сервер слушает %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var (
		grpcServer   *grpc.Server
		healthServer *grpchealth.Server
	)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			shutdownHTTP(httpSrv, logger)
			return err
		}
		grpcServer, healthServer = newGRPCServer(prometheus.DefaultRegisterer, logger)
		go syncHealth(ctx, rt.Health, healthServer, healthSyncInterval)
		go func() {
			logger.Infof("gRPC health сервер слушает %s", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(httpSrv, logger)
		return err
	}
}

func newHTTPServer(cfg config.Config, rt *Runtime, metricsHandler http.Handler, logger *log.Entry) *http.Server {
	router := httpapi.NewRouter(httpapi.Config{
		Runner:         rt.Service,
		RunTimeout:     cfg.RunTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Health:         rt.Health,
		Metrics:        metricsHandler,
		Logger:         logger.WithField("layer", "http"),
	})
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом, reflection и метриками.
func newGRPCServer(registerer prometheus.Registerer, logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcHealthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// syncHealth переносит результат проверок реестра в статус gRPC health-сервиса.
func syncHealth(ctx context.Context, registry *health.Registry, server *grpchealth.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		applyHealth(ctx, registry, server)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func applyHealth(ctx context.Context, registry *health.Registry, server *grpchealth.Server) {
	status := healthpb.HealthCheckResponse_SERVING
	if registry.Run(ctx).Status == health.StatusUnhealthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	server.SetServingStatus(grpcHealthServiceName, status)
}

func stopGRPC(server *grpc.Server, healthServer *grpchealth.Server, logger *log.Entry) {
	if server == nil {
		return
	}
	healthServer.Shutdown()

	stoppedCh := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
