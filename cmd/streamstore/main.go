// Command streamstore runs the in-memory stream store: a RESP2 server for
// the stream, hash and list commands used by the streams and queue
// clients, with optional AOF persistence and a Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/genc-murat/crystalstream/internal/cache"
	"github.com/genc-murat/crystalstream/internal/config"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/logging"
	"github.com/genc-murat/crystalstream/internal/metrics"
	"github.com/genc-murat/crystalstream/internal/server"
	"github.com/genc-murat/crystalstream/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		env        string
		configPath string
		addr       string
		aofPath    string
	)

	cmd := &cobra.Command{
		Use:          "streamstore",
		Short:        "Run the stream store",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, env)
			if err != nil {
				return err
			}
			if aofPath != "" {
				cfg.Storage.Enabled = true
				cfg.Storage.Path = aofPath
			}
			listen := cfg.Server.Address()
			if addr != "" {
				listen = addr
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, listen, logger)
		},
	}

	cmd.Flags().StringVar(&env, "env", config.Env(), "Environment; selects config/<env>.yaml")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a config file, overrides --env")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.host and server.port")
	cmd.Flags().StringVar(&aofPath, "aof", "", "AOF path; enables persistence")
	return cmd
}

func loadConfig(path, env string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadConfig(env)
}

func run(ctx context.Context, cfg *config.Config, listen string, logger *zap.Logger) error {
	var store ports.Storage = storage.Nop{}
	if cfg.Storage.Enabled {
		aof, err := storage.NewAOF(cfg.Storage.Path, logger.Named("aof"))
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Storage.Path, err)
		}
		store = aof
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.NewServer(
		cache.NewMemoryCache(),
		store,
		metrics.NewMetrics(reg),
		server.ServerConfig{
			Password:       cfg.Server.Password,
			MaxConnections: cfg.Server.MaxConnections,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
		},
		logger.Named("server"),
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(listen)
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", metricsServer.Addr), zap.String("path", cfg.Metrics.Path))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if metricsServer != nil {
			err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("store exited", zap.Error(err))
		return err
	}
	return nil
}
