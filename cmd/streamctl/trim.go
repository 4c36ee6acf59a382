package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genc-murat/crystalstream/pkg/streams"
)

// newTrimCommand constructs the `trim` command.
func newTrimCommand(a *app) *cobra.Command {
	var (
		group     string
		maxLen    int64
		exact     bool
		cutPoint  string
		pageCount int64
	)

	cmd := &cobra.Command{
		Use:   "trim <stream>",
		Short: "Delete entries a group no longer needs, or cap the stream length",
		Long: "With --group, deletes entries up to the group's cut point once the stream is longer than " +
			"--maxlen, never deleting entries still pending. Without it, caps the stream at --maxlen entries.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxLen < 0 {
				return errors.New("--maxlen must not be negative")
			}

			var (
				deleted int64
				err     error
			)
			if group == "" {
				deleted, err = a.client.Trim(cmd.Context(), args[0], maxLen, exact)
			} else {
				deleted, err = a.client.TrimFromLastID(cmd.Context(), args[0], group, streams.TrimOptions{
					MaxLength: maxLen,
					CutPoint:  streams.CutPoint(cutPoint),
					PageCount: pageCount,
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Trim behind this consumer group")
	cmd.Flags().Int64Var(&maxLen, "maxlen", 0, "Length threshold")
	cmd.Flags().BoolVar(&exact, "exact", false, "Cap exactly instead of approximately (without --group)")
	cmd.Flags().StringVar(&cutPoint, "cut-point", string(streams.CutPointLastAcknowledged), "lastAcknowledged or lastDelivered")
	cmd.Flags().Int64Var(&pageCount, "page-count", 100, "Entries deleted per round trip")
	return cmd
}

// newClearCommand constructs the `clear` command.
func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <stream>",
		Short: "Delete every entry of a stream, keeping its groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.ClearStream(cmd.Context(), args[0])
		},
	}
}
