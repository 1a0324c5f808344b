package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/sos-engine/internal/api/grpc/alert"
	httpapi "github.com/oshokin/sos-engine/internal/api/http"
	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/logger"
)

// Options controls the sos-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// GRPCAddress overrides server.grpc_addr.
	GRPCAddress string
	// HTTPAddress overrides server.http_addr.
	HTTPAddress string
}

const (
	// shutdownTimeout bounds draining of servers and in-flight dispatches.
	shutdownTimeout = 20 * time.Second
	// readHeaderTimeout protects the HTTP server from slow clients.
	readHeaderTimeout = 10 * time.Second
)

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the gRPC and HTTP servers and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "sos-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger.Configure(settings.Log.Level, settings.Log.Format)

	grpcAddress, err := resolveListenAddress(settings.Server.GRPCAddress, opts.GRPCAddress)
	if err != nil && !errors.Is(err, ErrNoServerAddress) {
		return fmt.Errorf("resolve grpc address: %w", err)
	}

	httpAddress, err := resolveListenAddress(settings.Server.HTTPAddress, opts.HTTPAddress)
	if err != nil && !errors.Is(err, ErrNoServerAddress) {
		return fmt.Errorf("resolve http address: %w", err)
	}

	if grpcAddress == "" && httpAddress == "" {
		return ErrNoServerAddress
	}

	parts, err := newComponents(ctx, settings)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if grpcAddress != "" {
		group.Go(func() error {
			return serveGRPC(groupCtx, grpcAddress, parts)
		})
	}

	if httpAddress != "" {
		group.Go(func() error {
			return serveHTTP(groupCtx, httpAddress, parts)
		})
	}

	serveErr := group.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := parts.shutdown(shutdownCtx); err != nil {
		logger.WarnKV(ctx, "Engine did not drain in time", "error", err)
	}

	logger.Info(ctx, "Server stopped")

	return serveErr
}

// serveGRPC runs the gRPC server until ctx is done.
func serveGRPC(ctx context.Context, address string, parts *components) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterEmergencyServiceServer(grpcServer, api.NewServer(parts.engine))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	logger.InfoKV(ctx, "GRPC server listening", "listen_address", address)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// serveHTTP runs the REST, websocket and metrics server until ctx is done.
func serveHTTP(ctx context.Context, address string, parts *components) error {
	handler := httpapi.New(ctx, parts.engine,
		httpapi.WithDeviceReporter(parts.devices),
		httpapi.WithEvents(parts.hub),
		httpapi.WithMetrics(parts.metrics.Handler()),
	)

	srv := &http.Server{
		Addr:              address,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	logger.InfoKV(ctx, "HTTP server listening", "listen_address", address)

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// Websocket connections are hijacked and not tracked by Shutdown.
		parts.hub.Close()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}

// resolveListenAddress determines a listen address.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
