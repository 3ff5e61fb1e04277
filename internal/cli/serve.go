package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tableside/internal/authz"
	"github.com/roach88/tableside/internal/clock"
	"github.com/roach88/tableside/internal/config"
	"github.com/roach88/tableside/internal/engine"
	"github.com/roach88/tableside/internal/httpapi"
	"github.com/roach88/tableside/internal/idempotency"
	"github.com/roach88/tableside/internal/relay"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/telemetry"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Listen   string

	// Ready, when set, receives the bound address once the listener is
	// open. Tests use it with --listen 127.0.0.1:0.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the point-of-sale HTTP API.

Opens (and migrates) the SQLite database, then runs the HTTP server, the
idempotency record sweeper and the session event relay until interrupted.
Events are relayed to Kafka when relay.brokers is configured, otherwise to
the log.

Example:
  tableside serve --db ./tableside.db --listen :8080
  tableside serve --config ./tableside.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
	}()

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	eng := engine.New(st,
		engine.WithOracle(authz.NewCache(authz.NewStoreOracle(st.Reader()), cfg.Auth.CacheTTL, clock.System{})),
		engine.WithTolerance(cfg.Closing.Tolerance),
		engine.WithLogger(logger),
	)
	api := httpapi.New(eng,
		httpapi.WithLogger(logger),
		httpapi.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		httpapi.WithHealthCheck(st.DB().PingContext),
	)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	pub := newPublisher(cfg.Relay, logger)
	defer pub.Close()
	rl := relay.New(st.Reader(), pub,
		relay.WithBatchSize(cfg.Relay.BatchSize),
		relay.WithInterval(cfg.Relay.Interval),
		relay.WithLogger(logger),
	)
	sweeper := idempotency.NewSweeper(st, clock.System{}, cfg.Idempotency.Retention, cfg.Idempotency.SweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", ln.Addr().String())
		if opts.Ready != nil {
			opts.Ready <- ln.Addr().String()
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})
	g.Go(func() error { return ignoreCanceled(sweeper.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(rl.Run(gctx)) })

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// newPublisher picks the relay sink: Kafka when brokers are configured,
// the log otherwise.
func newPublisher(cfg config.Relay, logger *slog.Logger) relay.Publisher {
	if len(cfg.Brokers) == 0 {
		return relay.NewLogPublisher(logger)
	}
	logger.Info("relaying events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return relay.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
