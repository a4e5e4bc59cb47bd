package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pampang/federation/gateway"
	"github.com/pampang/federation/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Run loads the configuration at configPath and serves query plans until
// ctx is canceled or the process receives SIGINT or SIGTERM.
func Run(ctx context.Context, configPath string) error {
	opt, err := gateway.LoadOption(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(opt.Logging, opt.ServiceName)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, opt)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), opt.Timeout())
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	gw, err := gateway.NewGateway(ctx, *opt, logger)
	if err != nil {
		return err
	}

	return serve(ctx, opt, gw, logger)
}

func serve(ctx context.Context, opt *gateway.GatewayOption, gw *gateway.Gateway, logger *zap.Logger) error {
	var handler http.Handler = gw
	if opt.Opentelemetry.TracingSetting.Enable {
		handler = otelhttp.NewHandler(gw, "fedplan")
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(opt.Port)),
		Handler:      handler,
		ReadTimeout:  opt.Timeout(),
		WriteTimeout: opt.Timeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("query planner listening", zap.String("addr", srv.Addr), zap.String("endpoint", opt.Endpoint))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), opt.Timeout())
	defer cancel()

	return srv.Shutdown(sctx)
}
