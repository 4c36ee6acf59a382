package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/genc-murat/crystalstream/pkg/streams"
)

// newProduceCommand constructs the `produce` command.
func newProduceCommand(a *app) *cobra.Command {
	var (
		payload string
		maxLen  int64
		exact   bool
	)

	cmd := &cobra.Command{
		Use:   "produce <stream> [field=value ...]",
		Short: "Append a record to a stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := parseRecord(payload, args[1:])
			if err != nil {
				return err
			}

			var opts *streams.AddOptions
			if maxLen > 0 {
				opts = &streams.AddOptions{MaxLen: maxLen, Exact: exact}
			}
			id, err := streams.NewProducer(a.client, nil).Produce(cmd.Context(), args[0], record, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "json", "", "Record as a JSON object; field=value arguments are merged into it")
	cmd.Flags().Int64Var(&maxLen, "maxlen", 0, "Trim the stream to this many entries (0 = no trim)")
	cmd.Flags().BoolVar(&exact, "exact", false, "Trim exactly instead of approximately")
	return cmd
}

// parseRecord builds a record from an optional JSON object and
// field=value pairs. Values given as pairs stay strings.
func parseRecord(payload string, pairs []string) (streams.Record, error) {
	record := streams.Record{}
	if payload != "" {
		if !gjson.Valid(payload) {
			return nil, errors.New("--json: invalid JSON")
		}
		parsed := gjson.Parse(payload)
		if !parsed.IsObject() {
			return nil, errors.New("--json: expected an object")
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			record[key.String()] = value.Value()
			return true
		})
	}

	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid field %q, expected field=value", pair)
		}
		record[field] = value
	}

	if len(record) == 0 {
		return nil, errors.New("record has no fields")
	}
	return record, nil
}
