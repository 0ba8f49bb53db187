package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	redisAdapter "rankkit/adapters/redis"
	"rankkit/core"
	"rankkit/leaderboard"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Board    string
	Polarity string
	Format   string // "json" | "text"

	// client overrides the connection built from Addr; tests point it at miniredis.
	client redis.UniversalClient
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for rankctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankctl",
		Short: "Inspect and edit leaderboards stored in Redis",
		Long: `rankctl reads and writes leaderboards kept as Redis sorted sets,
using the same key layout and rank semantics as the rankkit server.

Ties share a rank and the next distinct score resumes at count+1.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := core.ParsePolarity(opts.Polarity); err != nil {
				return err
			}
			return core.ValidateBoardName(opts.Board)
		},
	}

	defaults := redisAdapter.DefaultConfig()
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", defaults.Addr, "redis address")
	cmd.PersistentFlags().StringVar(&opts.Password, "password", "", "redis password")
	cmd.PersistentFlags().IntVar(&opts.DB, "db", 0, "redis database")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", defaults.KeyPrefix, "board key prefix")
	cmd.PersistentFlags().StringVarP(&opts.Board, "board", "b", "default", "board name")
	cmd.PersistentFlags().StringVarP(&opts.Polarity, "polarity", "p", "desc", "board polarity (desc|asc)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newSetCommand(opts))
	cmd.AddCommand(newIncrCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newAroundCommand(opts))
	cmd.AddCommand(newPageCommand(opts))

	return cmd
}

// openBoard connects to Redis and opens the selected board. The returned
// function closes connections this call opened.
func (o *RootOptions) openBoard(ctx context.Context) (*leaderboard.Board, func(), error) {
	p, err := core.ParsePolarity(o.Polarity)
	if err != nil {
		return nil, nil, err
	}

	client := o.client
	release := func() {}
	if client == nil {
		c := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
		client = c
		release = func() { _ = c.Close() }
	}

	backend := redisAdapter.NewWithClient(client, o.Prefix)
	store, err := backend.Open(ctx, o.Board, p)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open board %s: %w", o.Board, err)
	}
	return leaderboard.New(store, leaderboard.WithName(o.Board)), release, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
