package main

import (
	"fmt"
	"strings"

	"github.com/amonks/issues/client"
	"github.com/amonks/issues/issue"
	"github.com/spf13/cobra"
)

// issues status
var statusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set an issue's status",
	Long: `Set an issue's status to open, in_progress or done.

An open issue cannot be moved straight to done; start it first.`,
	Args: cobra.ExactArgs(2),
	RunE: runWithClient(func(cmd *cobra.Command, args []string, api *client.Client) error {
		status, err := issue.ParseStatus(args[1])
		if err != nil {
			return err
		}
		return setStatus(cmd, api, args[:1], status, "Moved")
	}),
}

// issues start
var startCmd = &cobra.Command{
	Use:   "start <id>...",
	Short: "Mark one or more issues as in progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: runWithClient(func(cmd *cobra.Command, args []string, api *client.Client) error {
		return setStatus(cmd, api, args, issue.StatusInProgress, "Started")
	}),
}

// issues finish
var finishCmd = &cobra.Command{
	Use:   "finish <id>...",
	Short: "Mark one or more in-progress issues as done",
	Args:  cobra.MinimumNArgs(1),
	RunE: runWithClient(func(cmd *cobra.Command, args []string, api *client.Client) error {
		return setStatus(cmd, api, args, issue.StatusDone, "Finished")
	}),
}

// issues reopen
var reopenCmd = &cobra.Command{
	Use:   "reopen <id>...",
	Short: "Reopen one or more issues",
	Args:  cobra.MinimumNArgs(1),
	RunE: runWithClient(func(cmd *cobra.Command, args []string, api *client.Client) error {
		return setStatus(cmd, api, args, issue.StatusOpen, "Reopened")
	}),
}

// issues assign
var assignCmd = &cobra.Command{
	Use:   "assign <id> [assignee]",
	Short: "Assign an issue",
	Long: `Assign an issue to someone.

Without an assignee the issue is assigned to the signed-in user.
Use --clear to unassign.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWithClient(runAssign),
}

var assignClear bool

// issues delete
var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete one or more issues",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWithClient(runDelete),
}

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, finishCmd, reopenCmd, assignCmd, deleteCmd)
	assignCmd.Flags().BoolVar(&assignClear, "clear", false, "Remove the assignee")
}

// setStatus checks every transition before sending any update so a
// forbidden move in the middle of a batch changes nothing.
func setStatus(cmd *cobra.Command, api *client.Client, args []string, status issue.Status, verb string) error {
	snapshot, items, err := resolveIssues(cmd.Context(), api, args)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := issue.ValidateTransition(item.Status, status); err != nil {
			return fmt.Errorf("issue %s: %w", item.ID, err)
		}
	}

	highlight := snapshotHighlighter(snapshot)
	for _, item := range items {
		updated, err := api.Update(cmd.Context(), item.ID, issue.Patch{Status: issue.StatusPtr(status)})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (%s)\n", verb, highlight(updated.ID), updated.Title, updated.Status.DisplayName())
	}
	return nil
}

func runAssign(cmd *cobra.Command, args []string, api *client.Client) error {
	var assignee string
	switch {
	case assignClear && len(args) > 1:
		return fmt.Errorf("--clear cannot be combined with an assignee")
	case assignClear:
	case len(args) > 1:
		assignee = strings.TrimSpace(args[1])
	default:
		email, err := api.WhoAmI(cmd.Context())
		if err != nil {
			return err
		}
		assignee = email
	}

	snapshot, items, err := resolveIssues(cmd.Context(), api, args[:1])
	if err != nil {
		return err
	}
	updated, err := api.Update(cmd.Context(), items[0].ID, issue.Patch{AssignedTo: issue.StringPtr(assignee)})
	if err != nil {
		return err
	}

	highlight := snapshotHighlighter(snapshot)
	if updated.AssignedTo == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Unassigned %s: %s\n", highlight(updated.ID), updated.Title)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s: %s\n", highlight(updated.ID), updated.AssignedTo, updated.Title)
	return nil
}

func runDelete(cmd *cobra.Command, args []string, api *client.Client) error {
	snapshot, items, err := resolveIssues(cmd.Context(), api, args)
	if err != nil {
		return err
	}
	highlight := snapshotHighlighter(snapshot)
	for _, item := range items {
		if err := api.Delete(cmd.Context(), item.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s: %s\n", highlight(item.ID), item.Title)
	}
	return nil
}
