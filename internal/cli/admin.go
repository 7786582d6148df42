package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JohnVinyard/annotate-api-sub000/internal/app"
	"github.com/JohnVinyard/annotate-api-sub000/internal/config"
)

// IndexList is the result of the indexes command.
type IndexList struct {
	Backend string   `json:"backend"`
	Indexes []string `json:"indexes"`
}

func (l IndexList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d indexes on %s backend\n", len(l.Indexes), l.Backend)
	for _, name := range l.Indexes {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

// NewIndexesCommand creates the indexes command.
func NewIndexesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Declare collection indexes",
		Long: `Declare the unique and secondary indexes of every collection on the
configured backend. Declaring an existing index is a no-op.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, _ config.Config, b *app.Backend) error {
				names, err := b.EnsureIndexes(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to declare indexes", err)
				}
				return rootOpts.formatter(cmd).Success(IndexList{Backend: b.Name, Indexes: names})
			})
		},
	}
}

// Totals is the result of the stats command, keyed by entity class.
type Totals struct {
	Backend string         `json:"backend"`
	Counts  map[string]int `json:"counts"`
	order   []string
}

func (t Totals) String() string {
	var b strings.Builder
	for _, class := range t.order {
		fmt.Fprintf(&b, "%-12s %d\n", class, t.Counts[class])
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Print entity totals",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, _ config.Config, b *app.Backend) error {
				totals := Totals{Backend: b.Name, Counts: make(map[string]int)}
				for _, repo := range b.Registry.All() {
					n, err := repo.Len(ctx)
					if err != nil {
						return WrapExitError(ExitFailure, "failed to count", err)
					}
					class := repo.Mapper().Class().Name()
					totals.Counts[class] = n
					totals.order = append(totals.order, class)
				}
				return rootOpts.formatter(cmd).Success(totals)
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every document (dev only)",
		Long: `Delete every user, sound and annotation from the configured backend.

Refuses to run unless the configuration enables dev mode.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(rootOpts, cmd, func(ctx context.Context, cfg config.Config, b *app.Backend) error {
				if !cfg.Dev {
					return NewExitError(ExitCommandError, "reset requires dev mode")
				}
				for _, repo := range b.Registry.All() {
					if err := repo.DeleteAll(ctx); err != nil {
						return WrapExitError(ExitFailure, "failed to delete documents", err)
					}
					rootOpts.formatter(cmd).VerboseLog("cleared %s", repo.Mapper().Class().Name())
				}
				return rootOpts.formatter(cmd).Success(fmt.Sprintf("reset %s backend", b.Name))
			})
		},
	}
}

// withBackend runs fn against the configured backend and closes it after.
func withBackend(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, config.Config, *app.Backend) error) error {
	cfg, log, backend, err := opts.open(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		if closeErr := backend.Close(ctx); closeErr != nil {
			log.Error("error closing backend", "error", closeErr)
		}
	}()
	return fn(ctx, cfg, backend)
}
