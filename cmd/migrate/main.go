package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/albaran/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "ALBARAN_POSTGRES_DSN"
)

type migrateOptions struct {
	dsn     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Миграции схемы PostgreSQL для albaran-service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "общий таймаут операции")

	cmd.AddCommand(newUpCmd(opts))
	cmd.AddCommand(newDownCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	return cmd
}

func newUpCmd(opts *migrateOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Применить up-миграции (steps=0 — все)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateUp(ctx, steps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printStatus(ctx, cmd, store, "migrate up ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "количество миграций (0 = все)")
	return cmd
}

func newDownCmd(opts *migrateOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции (по умолчанию одну)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withStore(cmd, opts, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateDown(ctx, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printStatus(ctx, cmd, store, "migrate down ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "количество откатываемых миграций")
	return cmd
}

func newStatusCmd(opts *migrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Показать текущую версию схемы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *postgres.Store) error {
				return printStatus(ctx, cmd, store, "migration status")
			})
		},
	}
}

// resolveDSN берёт DSN из флага, затем из окружения.
func resolveDSN(flagValue string, lookup func(string) (string, bool)) (string, error) {
	dsn := strings.TrimSpace(flagValue)
	if dsn == "" {
		if v, ok := lookup(envPostgresDSN); ok {
			dsn = strings.TrimSpace(v)
		}
	}
	if dsn == "" {
		return "", fmt.Errorf("%s (or --dsn) is required", envPostgresDSN)
	}
	return dsn, nil
}

func withStore(cmd *cobra.Command, opts *migrateOptions, fn func(ctx context.Context, store *postgres.Store) error) error {
	dsn, err := resolveDSN(opts.dsn, os.LookupEnv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func printStatus(ctx context.Context, cmd *cobra.Command, store *postgres.Store, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), formatStatus(prefix, state))
	return err
}

func formatStatus(prefix string, state postgres.MigrationState) string {
	pending := "none"
	if len(state.Pending) > 0 {
		pending = strings.Join(state.Pending, ",")
	}
	return fmt.Sprintf("%s: version=%d applied=%d pending=%s", prefix, state.Version, state.Applied, pending)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
