package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/health"
)

const bufSize = 1024 * 1024

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.Storage.Driver = config.StorageDriverMemory
	cfg.Notify.Store = config.NotifyStoreMemory
	cfg.Watch.SalesSource = config.SalesSourceOzon
	cfg.Kafka.Brokers = nil
	return cfg
}

func buildTestRuntime(t *testing.T, reg *prometheus.Registry) *Runtime {
	t.Helper()
	rt, err := Build(context.Background(), testConfig(t), BuildOptions{
		Registerer: reg,
		Logger:     log.WithField("test", "app"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestNewHTTPServer_ServiceEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := buildTestRuntime(t, reg)
	cfg := testConfig(t)

	srv := newHTTPServer(cfg, rt, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log.WithField("test", "http"))
	assert.Equal(t, cfg.HTTPAddr, srv.Addr)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/livez", wantCode: http.StatusOK, contains: "ok"},
		{path: "/readyz", wantCode: http.StatusOK, contains: "ready"},
		{path: "/healthz", wantCode: http.StatusOK, contains: `"status":"healthy"`},
		{path: "/healthz", wantCode: http.StatusOK, contains: `"commit":"unknown"`},
		{path: "/metrics", wantCode: http.StatusOK, contains: "stockwatch_active_runs"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestGRPCHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	server, healthServer := newGRPCServer(reg, log.WithField("test", "grpc"))

	listener := bufconn.Listen(bufSize)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	ctx := context.Background()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcHealthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	registry := health.NewRegistry("test")
	registry.Register("postgres", health.NewPingChecker("postgres", func(context.Context) error {
		return assert.AnError
	}))
	applyHealth(ctx, registry, healthServer)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcHealthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestNewGRPCServer_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, _ := newGRPCServer(reg, log.WithField("test", "grpc"))
	second, _ := newGRPCServer(reg, log.WithField("test", "grpc"))
	assert.NotNil(t, first)
	assert.NotNil(t, second)
}

func TestShutdownHTTP_NilServer(t *testing.T) {
	assert.NotPanics(t, func() {
		shutdownHTTP(nil, log.WithField("test", "http"))
		stopGRPC(nil, nil, log.WithField("test", "grpc"))
	})
}
