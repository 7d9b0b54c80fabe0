// Command stagehand is a small operational CLI around the provider
// runtime: it validates configuration and runs a headless provider as an
// end-to-end connectivity check.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stagecraft/stagehand"
	"github.com/stagecraft/stagehand/internal/cliconfig"
	"github.com/stagecraft/stagehand/pkg/log"
)

const longHelp = `Connect this process to a workflow engine as a handler provider.

The run command establishes the WebSocket session, registers the provider,
and keeps the connection alive (heartbeat, reconnect) until interrupted.
With no handlers registered it doubles as a credentials/URL check.

Configuration layers, later wins: defaults, config file
(~/.stagehand/config.yaml, or --config; YAML or TOML), STAGEHAND_*
environment variables, flags.`

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:     "stagehand",
		Short:   "Handler-side runtime for a workflow engine",
		Long:    longHelp,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.stagehand/config.yaml)")
	addConfigFlags(root.PersistentFlags(), &cfg)

	root.AddCommand(
		runCommand(&cfg, &cfgPath),
		validateCommand(&cfg, &cfgPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(fs *pflag.FlagSet, cfg *cliconfig.Config) {
	fs.StringVar(&cfg.URL, "url", cfg.URL, "engine URL (http(s) or ws(s))")
	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "provider name to register as")
	fs.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "auth token attached at connect time")
	fs.StringVar(&cfg.AuthHeader, "auth-header", cfg.AuthHeader, "header carrying the auth token")
	fs.StringVar((*string)(&cfg.Mode), "mode", string(cfg.Mode), "connection mode: dial or accept")
	fs.IntVar(&cfg.ListenPort, "listen-port", cfg.ListenPort, "listening port (accept mode)")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "base delay between connect attempts")
	fs.IntVar(&cfg.MaxConnectAttempts, "max-connect-attempts", cfg.MaxConnectAttempts, "initial connect attempt budget (0 = unlimited)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "heartbeat ping interval")
	fs.DurationVar(&cfg.PongTimeout, "pong-timeout", cfg.PongTimeout, "heartbeat pong timeout")
	fs.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "file watched for rotated auth tokens")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
}

// changedFlags records which flags the user set, so file and env layers
// do not override them.
func changedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

func resolve(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	if err := cliconfig.Resolve(cfgPath, cfg, changedFlags(cmd.Flags())); err != nil {
		return err
	}
	return cfg.Validate()
}

func newLogger(debugging bool) log.Logger {
	level := zerolog.InfoLevel
	if debugging {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return log.NewZerologAdapterWithLogger(
		zerolog.New(output).Level(level).With().Timestamp().Logger(),
	)
}

func runCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the engine and stay connected until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			logger := newLogger(cfg.Debug)

			opts := []stagehand.Option{stagehand.WithLogger(logger)}
			if cfg.TokenFile != "" {
				opts = append(opts, stagehand.WithTokenFile(cfg.TokenFile))
			}
			p, err := stagehand.New(cfg.Config, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := p.Start(ctx); err != nil {
				return err
			}
			logger.Info("provider up", log.String("provider", cfg.Provider))

			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return p.Stop(shutdownCtx)
		},
	}
}

func validateCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Resolve and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			fmt.Printf("configuration ok: provider %q, mode %s\n", cfg.Provider, cfg.Mode)
			return nil
		},
	}
}
