// Command streamctl produces to, consumes from and inspects streams and
// queues on a stream store.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/genc-murat/crystalstream/internal/config"
	"github.com/genc-murat/crystalstream/internal/logging"
	"github.com/genc-murat/crystalstream/pkg/streams"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	rdb    *redis.Client
	client *streams.Client
}

func newRootCommand() *cobra.Command {
	var (
		env        string
		configPath string
		addr       string
		prefix     string
	)
	a := &app{}

	root := &cobra.Command{
		Use:          "streamctl",
		Short:        "Stream and queue client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if configPath != "" {
				a.cfg, err = config.Load(configPath)
			} else {
				a.cfg, err = config.LoadConfig(env)
			}
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Store.Addr = addr
			}
			if cmd.Flags().Changed("prefix") {
				a.cfg.Streams.Prefix = prefix
			}

			if a.logger, err = logging.New(a.cfg.Logging); err != nil {
				return err
			}
			a.rdb = redis.NewClient(a.cfg.RedisOptions())
			a.client = streams.NewClient(a.rdb, streams.Options{
				Prefix: a.cfg.Streams.Prefix,
				ID:     a.cfg.Streams.ID,
				Logger: a.logger.Named("streams"),
			})
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&env, "env", config.Env(), "Environment; selects config/<env>.yaml")
	flags.StringVar(&configPath, "config", "", "Path to a config file, overrides --env")
	flags.StringVar(&addr, "addr", "", "Store address, overrides store.addr")
	flags.StringVar(&prefix, "prefix", "", "Key prefix, overrides streams.prefix")

	root.AddCommand(
		newProduceCommand(a),
		newConsumeCommand(a),
		newInfoCommand(a),
		newPendingCommand(a),
		newTrimCommand(a),
		newClearCommand(a),
		newQueueCommand(a),
	)
	return root
}

func (a *app) close() error {
	var err error
	if a.rdb != nil {
		err = multierr.Append(err, a.rdb.Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
