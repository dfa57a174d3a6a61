package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openclaw/mpc-relay-go/internal/jobs"
	"github.com/openclaw/mpc-relay-go/internal/middleware"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}

			version, err := db.MigrationVersion(ctx)
			if err != nil {
				return err
			}
			log.Info().Int64("version", version).Msg("migrations applied")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass over messages and audit logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := repository.NewPostgresStore(db.DB)
			jobs.NewRetentionJob(store.Messages(), store.AuditLogs(), cfg.Retention).RunOnce(ctx)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		address string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !util.IsAddress(address) {
				return fmt.Errorf("invalid wallet address: %q", address)
			}

			token, err := middleware.IssueToken(cfg.JWTSecret, address, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "wallet address (0x-prefixed hex)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
