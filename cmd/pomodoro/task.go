package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"paralello/backend/internal/service"
)

func newTaskCmd(a *app) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task queue",
	}

	var cycles int
	addCmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task that needs the given number of focus phases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, task, apiErr := a.timer.AddTask(cmd.Context(), localOwner, strings.Join(args, " "), cycles)
			if apiErr != nil {
				return apiError(apiErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %q (%d cycles)\n", task.ID, task.Text, task.TotalCycles)
			return nil
		},
	}
	addCmd.Flags().IntVarP(&cycles, "cycles", "n", 1, "focus phases needed to finish the task")

	rmCmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Remove a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, apiErr := a.timer.DeleteTask(cmd.Context(), localOwner, args[0]); apiErr != nil {
				return apiError(apiErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks in order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, apiErr := a.timer.GetState(cmd.Context(), localOwner)
			if apiErr != nil {
				return apiError(apiErr)
			}
			printTasks(cmd.OutOrStdout(), state)
			return nil
		},
	}

	var clearActive bool
	activeCmd := &cobra.Command{
		Use:   "active [id]",
		Short: "Choose the task the next focus phases count towards",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id *string
			switch {
			case clearActive:
			case len(args) == 1:
				id = &args[0]
			default:
				return fmt.Errorf("pass a task id or --clear")
			}
			state, apiErr := a.timer.SetActiveTask(cmd.Context(), localOwner, id, 0)
			if apiErr != nil {
				return apiError(apiErr)
			}
			printTasks(cmd.OutOrStdout(), state)
			return nil
		},
	}
	activeCmd.Flags().BoolVar(&clearActive, "clear", false, "unset the active task")

	renameCmd := &cobra.Command{
		Use:   "rename <id> <text>",
		Short: "Change a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, apiErr := a.timer.RenameTask(cmd.Context(), localOwner, args[0], strings.Join(args[1:], " "))
			if apiErr != nil {
				return apiError(apiErr)
			}
			printTasks(cmd.OutOrStdout(), state)
			return nil
		},
	}

	taskCmd.AddCommand(addCmd, rmCmd, listCmd, activeCmd, renameCmd)
	return taskCmd
}

func printTasks(out io.Writer, state *service.StateView) {
	if len(state.Tasks) == 0 {
		fmt.Fprintln(out, "no tasks")
		return
	}
	for _, task := range state.Tasks {
		marker := " "
		if state.ActiveTaskID != nil && *state.ActiveTaskID == task.ID {
			marker = "*"
		}
		done := ""
		if task.IsCompleted {
			done = " done"
		}
		fmt.Fprintf(out, "%s %s  %s  [%d/%d]%s\n", marker, task.ID, task.Text, task.CompletedCycles, task.TotalCycles, done)
	}
}
