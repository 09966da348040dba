// Command churchtools runs maintenance jobs against a ChurchTools instance
// and serves an aggregating read proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/churchtools-client/internal/config"
	"github.com/Sternrassler/churchtools-client/pkg/client"
	"github.com/Sternrassler/churchtools-client/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands.
type app struct {
	opts      config.Options
	logLevel  string
	logPretty bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "churchtools",
		Short: "ChurchTools API jobs and proxy",
		Long: `churchtools talks to the ChurchTools REST API.

Connection settings come from CHURCHTOOLS_* environment variables
(CHURCHTOOLS_DOMAIN, CHURCHTOOLS_TOKEN, CHURCHTOOLS_REDIS_URL, ...),
an env file, or ~/.config/churchtools/config.yaml.`,
		Version:           client.Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.logPretty, "log-pretty", false, "human readable log output")
	flags.StringVar(&a.opts.EnvFile, "env-file", "", "env file to load (default .env when present)")
	flags.StringVar(&a.opts.ConfigFile, "config", "", "config file (default ~/.config/churchtools/config.yaml)")

	root.AddCommand(
		newSyncMembersCmd(a),
		newExportSongsCmd(a),
		newProxyCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: a.logPretty,
		Output: cmd.ErrOrStderr(),
	})
	a.logger = logging.NewLogger("cli")

	cfg, err := config.Load(a.opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	return nil
}

// connect validates the configuration and creates the API client. The
// returned Redis client is nil when no Redis URL is configured.
func (a *app) connect(ctx context.Context) (*client.Client, *redis.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}

	redisOpts, err := a.cfg.RedisOptions()
	if err != nil {
		return nil, nil, err
	}

	var rdb *redis.Client
	if redisOpts != nil {
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
		}
		a.logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	}

	c, err := client.New(a.cfg.ClientConfig(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	return c, rdb, nil
}

func closeAll(c *client.Client, rdb *redis.Client) {
	c.Close()
	if rdb != nil {
		rdb.Close()
	}
}
