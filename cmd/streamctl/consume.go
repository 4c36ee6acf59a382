package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/genc-murat/crystalstream/internal/config"
	"github.com/genc-murat/crystalstream/internal/metrics"
	"github.com/genc-murat/crystalstream/pkg/streams"
)

type printedMessage struct {
	ID     string         `json:"id"`
	Stream string         `json:"stream"`
	Record streams.Record `json:"record"`
}

// newConsumeCommand constructs the `consume` command.
func newConsumeCommand(a *app) *cobra.Command {
	var (
		stream      string
		group       string
		name        string
		limit       int64
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Join a consumer group, recover pending entries and print new ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := a.cfg.Consumer
			if stream != "" {
				cc.Stream = stream
			}
			if group != "" {
				cc.Group = group
			}
			if name != "" {
				cc.Name = name
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var seen atomic.Int64
			printer := streams.ConsumerFunc(func(_ context.Context, msg streams.Message) (bool, error) {
				if err := printJSON(cmd, printedMessage{ID: msg.ID, Stream: msg.Stream, Record: msg.Record}); err != nil {
					return false, err
				}
				seen.Add(1)
				return true, nil
			})

			reg := prometheus.NewRegistry()
			runtime, err := streams.NewConsumerRuntime(a.client, printer, consumerConfig(cc),
				streams.WithMetrics(metrics.NewConsumerMetrics(reg)),
				streams.WithLogger(a.logger.Named("consumer")),
			)
			if err != nil {
				return err
			}
			run := runtime.Run
			if limit > 0 {
				run = func(ctx context.Context) error {
					return consumeN(ctx, runtime, &seen, limit)
				}
			}
			return runConsumer(ctx, run, reg, metricsAddr, a.logger)
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "", "Stream, overrides consumer.stream")
	cmd.Flags().StringVar(&group, "group", "", "Consumer group, overrides consumer.group")
	cmd.Flags().StringVar(&name, "name", "", "Consumer name, overrides consumer.name")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Stop after N messages (0 = until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve consumer metrics on this address")
	return cmd
}

// consumeN runs the runtime phases by hand and stops polling once seen
// reaches limit, after the last entry has been acknowledged.
func consumeN(ctx context.Context, runtime *streams.ConsumerRuntime, seen *atomic.Int64, limit int64) error {
	if err := runtime.Join(ctx); err != nil {
		return err
	}
	if _, err := runtime.Recover(ctx); err != nil {
		return err
	}
	for seen.Load() < limit {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := runtime.Poll(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runConsumer(ctx context.Context, run func(context.Context) error, reg *prometheus.Registry, metricsAddr string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return run(gctx)
	})

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func consumerConfig(cc config.ConsumerConfig) streams.ConsumerConfig {
	out := streams.ConsumerConfig{
		Stream: cc.Stream,
		Group:  cc.Group,
		Name:   cc.Name,
		Read: streams.ReadOptions{
			Count:        cc.Read.Count,
			Block:        cc.Read.Block,
			BlockForever: cc.Read.BlockForever,
		},
		Recovery: streams.RecoveryOptions{
			Start:     cc.Recovery.Start,
			End:       cc.Recovery.End,
			PageCount: cc.Recovery.PageCount,
			MinIdle:   cc.Recovery.MinIdle,
		},
	}
	if cc.Trim.Enabled {
		out.Trim = &streams.TrimOptions{
			MaxLength: cc.Trim.MaxLength,
			CutPoint:  streams.CutPoint(cc.Trim.CutPoint),
			PageCount: cc.Trim.PageCount,
		}
	}
	return out
}
