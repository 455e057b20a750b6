package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "paralello/backend/internal/errors"
	"paralello/backend/internal/notify"
	"paralello/backend/internal/service"
)

type timerAction func(s *service.TimerService, ctx context.Context, owner string, baseVersion int) (*service.StateView, *apperrors.APIError)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the timer and task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, apiErr := a.timer.GetState(cmd.Context(), localOwner)
			if apiErr != nil {
				return apiError(apiErr)
			}
			printState(cmd.OutOrStdout(), state)
			printTasks(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func newActionCmd(a *app, use, short string, action timerAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, apiErr := action(a.timer, cmd.Context(), localOwner, 0)
			if apiErr != nil {
				return apiError(apiErr)
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the countdown until the phase ends or you interrupt it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, a, cmd.OutOrStdout(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval")
	return cmd
}

func watch(ctx context.Context, a *app, out io.Writer, interval time.Duration) error {
	messages, cancel, apiErr := a.timer.Subscribe(ctx, localOwner)
	if apiErr != nil {
		return apiError(apiErr)
	}
	defer cancel()

	state, apiErr := a.timer.GetState(ctx, localOwner)
	if apiErr != nil {
		return apiError(apiErr)
	}
	if !state.Running {
		printState(out, state)
		fmt.Fprintln(out, "timer is paused; run `pomodoro start` first")
		return nil
	}
	fmt.Fprintf(out, "%s %s", state.PhaseLabel, state.Clock)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case msg := <-messages:
			if msg.Kind == notify.KindStateChanged {
				continue
			}
			fmt.Fprintf(out, "\n%s: %s\n", msg.Title, msg.Body)
		case <-ticker.C:
			state, apiErr = a.timer.GetState(ctx, localOwner)
			if apiErr != nil {
				return apiError(apiErr)
			}
			fmt.Fprintf(out, "\r%s %s", state.PhaseLabel, state.Clock)
			if !state.Running {
				fmt.Fprintln(out)
				drainMessages(out, messages)
				return nil
			}
		}
	}
}

func drainMessages(out io.Writer, messages <-chan notify.Message) {
	for {
		select {
		case msg := <-messages:
			if msg.Kind != notify.KindStateChanged {
				fmt.Fprintf(out, "%s: %s\n", msg.Title, msg.Body)
			}
		default:
			return
		}
	}
}

func printState(out io.Writer, state *service.StateView) {
	status := "paused"
	if state.Running {
		status = "running"
	}
	fmt.Fprintf(out, "%s %s (%s)  cycle %d, focus %d/4\n",
		state.PhaseLabel, state.Clock, status, state.CycleNumber, state.FocusPhasesCompletedInCycle)
}
