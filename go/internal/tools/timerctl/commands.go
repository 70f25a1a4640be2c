package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/metagame/metagame/go/internal/models"
	"github.com/metagame/metagame/go/internal/timers"
	"github.com/spf13/cobra"
)

type options struct {
	addr    string
	timeout time.Duration
	team    string
	out     io.Writer
}

func (o *options) client() *timers.Client {
	return timers.NewClient(&http.Client{Timeout: o.timeout}, o.addr)
}

func (o *options) requestedTeam() (models.Team, error) {
	return models.ParseTeam(o.team)
}

func (o *options) print(v interface{}) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	addr := os.Getenv("TIMER_API_URL")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:          "timerctl",
		Short:        "Inspect and drive shared team timers",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "timer API base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&opts.team, "as", "", "team making the request (orange|purple); empty acts as admin")

	root.AddCommand(
		listCmd(opts),
		getCmd(opts),
		stateCmd(opts),
		createCmd(opts),
		deleteCmd(opts),
		resetCmd(opts),
		pauseCmd(opts),
		startCmd(opts),
		switchCmd(opts),
		updateCmd(opts),
	)
	return root
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := opts.client().ListTimers(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(list)
		},
	}
}

func getCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "get <name>", "Show the stored timer row", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		return c.GetTimer(ctx, name)
	})
}

func stateCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "state <name>", "Show the timer reconciled to now", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		return c.GetTimerState(ctx, name)
	})
}

func createCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "create <name>", "Create a paused timer with full budgets", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		return c.CreateTimer(ctx, name)
	})
}

func resetCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "reset <name>", "Restore both budgets and pause", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		return c.ResetTimer(ctx, name)
	})
}

func pauseCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "pause <name>", "Pause and clear the active team", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		return c.PauseTimer(ctx, name)
	})
}

func switchCmd(opts *options) *cobra.Command {
	return timerCmd(opts, "switch <name>", "End the current turn and start the other team's", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		requested, err := opts.requestedTeam()
		if err != nil {
			return nil, err
		}
		return c.SwitchTurn(ctx, name, requested)
	})
}

func deleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteTimer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "deleted %s\n", args[0])
			return nil
		},
	}
}

func startCmd(opts *options) *cobra.Command {
	var team string
	cmd := timerCmd(opts, "start <name>", "Start a team's clock", func(ctx context.Context, c *timers.Client, name string) (interface{}, error) {
		requested, err := opts.requestedTeam()
		if err != nil {
			return nil, err
		}
		target, err := models.ParseTeam(team)
		if err != nil {
			return nil, err
		}
		return c.StartTurn(ctx, name, requested, target)
	})
	cmd.Flags().StringVar(&team, "team", "", "team whose clock starts (orange|purple)")
	cmd.MarkFlagRequired("team")
	return cmd
}

func updateCmd(opts *options) *cobra.Command {
	var (
		team   string
		paused bool
		orange time.Duration
		purple time.Duration
		reason string
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Apply a partial update; unset flags leave fields unchanged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := timers.UpdateTimerRequest{Reason: reason}
			flags := cmd.Flags()

			if flags.Changed("team") {
				parsed, err := models.ParseTeam(team)
				if err != nil {
					return err
				}
				req.ActiveTeam = &parsed
			}
			if flags.Changed("paused") {
				req.IsPaused = &paused
			}
			if flags.Changed("orange") {
				ms := orange.Milliseconds()
				req.OrangeTimeMs = &ms
			}
			if flags.Changed("purple") {
				ms := purple.Milliseconds()
				req.PurpleTimeMs = &ms
			}

			timer, err := opts.client().UpdateTimer(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return opts.print(timer)
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "active team (orange|purple|none)")
	cmd.Flags().BoolVar(&paused, "paused", false, "pause state, e.g. --paused=false")
	cmd.Flags().DurationVar(&orange, "orange", 0, "orange remaining time, e.g. 9h30m")
	cmd.Flags().DurationVar(&purple, "purple", 0, "purple remaining time")
	cmd.Flags().StringVar(&reason, "reason", "", "recorded on the change event")
	return cmd
}

// timerCmd builds a command taking one timer name and printing the result as JSON
func timerCmd(opts *options, use, short string, run func(context.Context, *timers.Client, string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := run(cmd.Context(), opts.client(), args[0])
			if err != nil {
				return err
			}
			return opts.print(result)
		},
	}
}
