package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/genc-murat/crystalstream/pkg/queue"
)

// newQueueCommand constructs the `queue` command group.
func newQueueCommand(a *app) *cobra.Command {
	var name string

	queueCmd := &cobra.Command{Use: "queue", Short: "Queue operations"}
	queueCmd.PersistentFlags().StringVar(&name, "name", "", "Queue name, defaults to queue.name")

	open := func() (*queue.Queue, error) {
		if name == "" {
			name = a.cfg.Queue.Name
		}
		return queue.New(a.rdb, queue.Options{Name: name, Logger: a.logger.Named("queue")})
	}

	queueCmd.AddCommand(newQueuePushCommand(open), newQueuePopCommand(open))
	return queueCmd
}

func newQueuePushCommand(open func() (*queue.Queue, error)) *cobra.Command {
	var left bool

	cmd := &cobra.Command{
		Use:   "push <value> [value ...]",
		Short: "Push values at the tail, or the head with --left",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := open()
			if err != nil {
				return err
			}
			values := make([]interface{}, len(args))
			for i, arg := range args {
				values[i] = arg
			}

			push := q.RightPush
			if left {
				push = q.LeftPush
			}
			n, err := push(cmd.Context(), values...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&left, "left", false, "Push at the head")
	return cmd
}

func newQueuePopCommand(open func() (*queue.Queue, error)) *cobra.Command {
	var (
		right   bool
		timeout time.Duration
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "pop",
		Short: "Pop a value from the head, or the tail with --right",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := open()
			if err != nil {
				return err
			}

			pop := q.BlockingLeftPop
			if right {
				pop = q.BlockingRightPop
			}
			el, err := pop(cmd.Context(), queue.PopOptions{Timeout: timeout, WaitIndefinitely: wait})
			if err != nil {
				return err
			}
			if el == nil {
				return fmt.Errorf("queue %s: nothing to pop within %s", q.Name(), timeout)
			}
			fmt.Fprintln(cmd.OutOrStdout(), el.Value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&right, "right", false, "Pop from the tail")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for a value")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until a value arrives")
	return cmd
}
