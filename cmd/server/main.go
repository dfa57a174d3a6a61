package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openclaw/mpc-relay-go/internal/config"
)

var (
	envFiles []string
	cfg      *config.Config
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mpc-relay",
		Short:         "MPC session coordinator and message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			if err := loaded.Validate(isProduction()); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			cfg = loaded
			setLogLevel(cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment")

	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd(), tokenCmd())
	return root
}

func isProduction() bool {
	return os.Getenv("FLY_APP_NAME") != ""
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
