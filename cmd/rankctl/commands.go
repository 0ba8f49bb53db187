package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rankkit/leaderboard"
)

// boardCommand wraps run with board setup and teardown.
func boardCommand(opts *RootOptions, run func(cmd *cobra.Command, b *leaderboard.Board, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		b, release, err := opts.openBoard(cmd.Context())
		if err != nil {
			return err
		}
		defer release()
		return run(cmd, b, args)
	}
}

func parseScore(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", raw, err)
	}
	return v, nil
}

func newSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <score>",
		Short: "Set a score, replacing any previous value",
		Args:  cobra.ExactArgs(2),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			score, err := parseScore(args[1])
			if err != nil {
				return err
			}
			if err := b.SetScore(cmd.Context(), args[0], score); err != nil {
				return err
			}
			return opts.formatter(cmd).Success(map[string]any{"name": args[0], "score": score})
		}),
	}
}

func newIncrCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "incr <name> <delta>",
		Short: "Add delta to a score (absent names start at 0)",
		Args:  cobra.ExactArgs(2),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			delta, err := parseScore(args[1])
			if err != nil {
				return err
			}
			score, err := b.ModifyScore(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(map[string]any{"name": args[0], "score": score})
		}),
	}
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			if err := b.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return opts.formatter(cmd).Success(map[string]any{"removed": args[0]})
		}),
	}
}

func newClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from the board",
		Args:  cobra.NoArgs,
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, _ []string) error {
			if err := b.Clear(cmd.Context()); err != nil {
				return err
			}
			return opts.formatter(cmd).Success(map[string]any{"cleared": b.Name()})
		}),
	}
}

func newCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of entries",
		Args:  cobra.NoArgs,
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, _ []string) error {
			n, err := b.Count(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(n)
		}),
	}
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print an entry's score and rank",
		Args:  cobra.ExactArgs(1),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			e, found, err := b.ScoreAndRank(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s is not on board %s", args[0], b.Name())
			}
			return opts.formatter(cmd).Success(e)
		}),
	}
}

func newAroundCommand(opts *RootOptions) *cobra.Command {
	var radius int
	cmd := &cobra.Command{
		Use:   "around <name>",
		Short: "Print the entries within --radius positions of name",
		Args:  cobra.ExactArgs(1),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			list, err := b.Neighbors(cmd.Context(), args[0], radius)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(list)
		}),
	}
	cmd.Flags().IntVarP(&radius, "radius", "r", 1, "positions on each side")
	return cmd
}

func newPageCommand(opts *RootOptions) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "page [number]",
		Short: "Print one page of the board",
		Args:  cobra.MaximumNArgs(1),
		RunE: boardCommand(opts, func(cmd *cobra.Command, b *leaderboard.Board, args []string) error {
			number := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid page number %q", args[0])
				}
				number = n
			}
			p, err := b.Page(cmd.Context(), number, size)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(p)
		}),
	}
	cmd.Flags().IntVarP(&size, "size", "s", 10, "entries per page")
	return cmd
}
