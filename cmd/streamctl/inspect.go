package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/genc-murat/crystalstream/pkg/streams"
)

type groupReport struct {
	streams.GroupInfo
	LastAcknowledgedID string
	ConsumerList       []streams.ConsumerInfo
}

type infoReport struct {
	Stream *streams.StreamInfo
	Groups []groupReport
}

// newInfoCommand constructs the `info` command.
func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <stream>",
		Short: "Show a stream, its groups and their consumers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, key := cmd.Context(), args[0]

			info, err := a.client.Info(ctx, key)
			if err != nil {
				return err
			}
			groups, err := a.client.GroupInfo(ctx, key)
			if err != nil {
				return err
			}

			report := infoReport{Stream: info, Groups: make([]groupReport, len(groups))}
			g, gctx := errgroup.WithContext(ctx)
			for i, group := range groups {
				i, group := i, group
				g.Go(func() error {
					consumers, err := a.client.ConsumerInfo(gctx, key, group.Name)
					if err != nil {
						return err
					}
					marker, _, err := a.client.LastAcknowledgedID(gctx, group.Name)
					if err != nil {
						return err
					}
					report.Groups[i] = groupReport{GroupInfo: group, LastAcknowledgedID: marker, ConsumerList: consumers}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

// newPendingCommand constructs the `pending` command.
func newPendingCommand(a *app) *cobra.Command {
	var (
		group    string
		consumer string
		count    int64
		minIdle  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pending <stream>",
		Short: "List entries delivered to a group but not yet acknowledged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if group == "" {
				group = a.cfg.Consumer.Group
			}
			pending, err := a.client.Pending(cmd.Context(), args[0], group, streams.PendingOptions{
				Count:    count,
				MinIdle:  minIdle,
				Consumer: consumer,
			})
			if err != nil {
				return err
			}
			if pending == nil {
				pending = []streams.PendingEntry{}
			}
			return printJSON(cmd, pending)
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Consumer group, defaults to consumer.group")
	cmd.Flags().StringVar(&consumer, "consumer", "", "Only entries owned by this consumer")
	cmd.Flags().Int64Var(&count, "count", 0, "Maximum entries (0 = all pending)")
	cmd.Flags().DurationVar(&minIdle, "min-idle", 0, "Only entries idle at least this long")
	return cmd
}
