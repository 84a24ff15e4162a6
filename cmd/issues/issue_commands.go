package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amonks/issues/client"
	"github.com/amonks/issues/internal/editor"
	"github.com/amonks/issues/internal/listflags"
	"github.com/amonks/issues/internal/ui"
	"github.com/amonks/issues/issue"
	"github.com/spf13/cobra"
)

// issues create
var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new issue",
	Long: `Create a new issue.

By default, opens $EDITOR to edit a TOML representation of the issue
when running interactively. Use --no-edit to skip the editor, or
--edit to force opening the editor even when not interactive.

Issues with similar titles are listed on stderr after creation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWithClient(runCreate),
}

var (
	createDescription string
	createPriority    string
	createAssign      string
	createEdit        bool
	createNoEdit      bool
)

// issues similar
var similarCmd = &cobra.Command{
	Use:   "similar <title>",
	Short: "List issues whose titles look like a possible duplicate",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithClient(runSimilar),
}

// issues list
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues, newest first",
	Args:  cobra.NoArgs,
	RunE:  runWithClient(runList),
}

var (
	listFilter listflags.Filter
	listJSON   bool
)

// issues show
var showCmd = &cobra.Command{
	Use:   "show <id>...",
	Short: "Show detailed information about issues",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWithClient(runShow),
}

var showJSON bool

// issues update
var updateCmd = &cobra.Command{
	Use:   "update <id>...",
	Short: "Update one or more issues",
	Long: `Update one or more issues.

By default, opens $EDITOR to edit a TOML representation of the issue
when running interactively and no update flags are provided (one editor
session per ID). Use --no-edit to skip the editor, or --edit to force
opening the editor even when not interactive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWithClient(runUpdate),
}

var (
	updateTitle       string
	updateDescription string
	updatePriority    string
	updateStatus      string
	updateAssign      string
	updateEdit        bool
	updateNoEdit      bool
)

func init() {
	rootCmd.AddCommand(createCmd, similarCmd, listCmd, showCmd, updateCmd)

	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Description (use '-' to read from stdin)")
	createCmd.Flags().StringVarP(&createPriority, "priority", "p", string(issue.DefaultPriority), "Priority (low, medium, high)")
	createCmd.Flags().StringVar(&createAssign, "assign", "", "Assignee")
	createCmd.Flags().BoolVarP(&createEdit, "edit", "e", false, "Open $EDITOR (default if interactive)")
	createCmd.Flags().BoolVar(&createNoEdit, "no-edit", false, "Do not open $EDITOR")

	listflags.AddFilterFlags(listCmd, &listFilter)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description (use '-' to read from stdin)")
	updateCmd.Flags().StringVarP(&updatePriority, "priority", "p", "", "New priority (low, medium, high)")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status (open, in_progress, done)")
	updateCmd.Flags().StringVar(&updateAssign, "assign", "", "New assignee (empty to unassign)")
	updateCmd.Flags().BoolVarP(&updateEdit, "edit", "e", false, "Open $EDITOR (default if interactive and no flags)")
	updateCmd.Flags().BoolVar(&updateNoEdit, "no-edit", false, "Do not open $EDITOR")

	addDescriptionFlagAliases(createCmd, updateCmd)
}

func runCreate(cmd *cobra.Command, args []string, api *client.Client) error {
	description, err := resolveDescriptionFromStdin(createDescription, cmd.InOrStdin())
	if err != nil {
		return err
	}

	hasFlags := len(args) > 0 || hasChangedFlags(cmd, "description", "priority", "assign")
	var in issue.NewIssue
	if shouldUseEditor(hasFlags, createEdit, createNoEdit, editor.IsInteractive()) {
		data := editor.DefaultCreateData()
		if len(args) > 0 {
			data.Title = args[0]
		}
		if cmd.Flags().Changed("priority") {
			data.Priority = createPriority
		}
		data.AssignedTo = createAssign
		data.Description = description

		parsed, err := editor.EditIssue(data)
		if err != nil {
			return err
		}
		in = parsed.ToNewIssue()
	} else {
		if len(args) == 0 {
			return fmt.Errorf("title is required (pass it as an argument or use --edit)")
		}
		in = issue.NewIssue{
			Title:       args[0],
			Description: description,
			Priority:    issue.Priority(createPriority),
			AssignedTo:  createAssign,
		}
	}

	created, similar, err := api.CreateWithSimilar(cmd.Context(), in)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", created.ID, created.Title)
	printSimilarWarning(cmd.ErrOrStderr(), similar)
	return nil
}

func printSimilarWarning(w io.Writer, similar []issue.Issue) {
	if len(similar) == 0 {
		return
	}
	fmt.Fprintln(w, "Possible duplicates:")
	for _, item := range similar {
		fmt.Fprintf(w, "  %s  %s (%s)\n", item.ID, item.Title, item.Status.DisplayName())
	}
}

func runSimilar(cmd *cobra.Command, args []string, api *client.Client) error {
	similar, err := api.Similar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(similar) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No similar issues.")
		return nil
	}
	index := issue.NewIDIndex(similar)
	fmt.Fprint(cmd.OutOrStdout(), formatIssueTable(similar, index.PrefixLengths(), ui.HighlightID, time.Now()))
	return nil
}

func runList(cmd *cobra.Command, args []string, api *client.Client) error {
	filter, err := listFilter.Parse()
	if err != nil {
		return err
	}

	// The full snapshot gives both the prefix lengths and the total for the
	// empty-list message.
	snapshot, err := api.List(cmd.Context(), issue.Filter{})
	if err != nil {
		return err
	}
	visible := issue.Visible(snapshot.Issues, filter)

	if listJSON {
		if visible == nil {
			visible = []issue.Issue{}
		}
		return encodeJSON(cmd.OutOrStdout(), visible)
	}

	if len(visible) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), issueEmptyListMessage(len(snapshot.Issues), filter))
		return nil
	}

	prefixLengths := issue.NewIDIndex(snapshot.Issues).PrefixLengths()
	fmt.Fprint(cmd.OutOrStdout(), formatIssueTable(visible, prefixLengths, ui.HighlightID, time.Now()))
	return nil
}

func runShow(cmd *cobra.Command, args []string, api *client.Client) error {
	snapshot, items, err := resolveIssues(cmd.Context(), api, args)
	if err != nil {
		return err
	}

	if showJSON {
		return encodeJSON(cmd.OutOrStdout(), items)
	}

	highlight := snapshotHighlighter(snapshot)
	now := time.Now()
	for i, item := range items {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "\n---")
			fmt.Fprintln(cmd.OutOrStdout())
		}
		printIssueDetail(cmd.OutOrStdout(), item, highlight, now)
	}
	return nil
}

func runUpdate(cmd *cobra.Command, args []string, api *client.Client) error {
	hasFlags := hasChangedFlags(cmd, "title", "description", "priority", "status", "assign")
	useEditor := shouldUseEditor(hasFlags, updateEdit, updateNoEdit, editor.IsInteractive())
	if !hasFlags && !useEditor {
		return fmt.Errorf("no changes specified (use --title, --description, --priority, --status, --assign or --edit)")
	}

	snapshot, items, err := resolveIssues(cmd.Context(), api, args)
	if err != nil {
		return err
	}
	highlight := snapshotHighlighter(snapshot)

	var flagPatch issue.Patch
	if !useEditor {
		flagPatch, err = updatePatchFromFlags(cmd)
		if err != nil {
			return err
		}
	}

	for _, item := range items {
		patch := flagPatch
		if useEditor {
			parsed, err := editor.EditIssue(editor.DataFromIssue(item))
			if err != nil {
				return err
			}
			patch = parsed.ToPatch(item)
		}
		if patch.IsEmpty() {
			fmt.Fprintf(cmd.OutOrStdout(), "Unchanged %s: %s\n", highlight(item.ID), item.Title)
			continue
		}
		if patch.Status != nil {
			if _, err := issue.ValidateTransition(item.Status, *patch.Status); err != nil {
				return fmt.Errorf("issue %s: %w", item.ID, err)
			}
		}
		updated, err := api.Update(cmd.Context(), item.ID, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", highlight(updated.ID), updated.Title)
	}
	return nil
}

func updatePatchFromFlags(cmd *cobra.Command) (issue.Patch, error) {
	var patch issue.Patch
	if cmd.Flags().Changed("title") {
		patch.Title = issue.StringPtr(updateTitle)
	}
	if cmd.Flags().Changed("description") {
		description, err := resolveDescriptionFromStdin(updateDescription, cmd.InOrStdin())
		if err != nil {
			return patch, err
		}
		patch.Description = issue.StringPtr(description)
	}
	if cmd.Flags().Changed("priority") {
		priority, err := issue.ParsePriority(updatePriority)
		if err != nil {
			return patch, err
		}
		patch.Priority = issue.PriorityPtr(priority)
	}
	if cmd.Flags().Changed("status") {
		status, err := issue.ParseStatus(updateStatus)
		if err != nil {
			return patch, err
		}
		patch.Status = issue.StatusPtr(status)
	}
	if cmd.Flags().Changed("assign") {
		patch.AssignedTo = issue.StringPtr(updateAssign)
	}
	return patch, nil
}

// resolveIssues expands id prefixes against one snapshot and returns the
// matching issues in argument order.
func resolveIssues(ctx context.Context, api *client.Client, prefixes []string) (issue.Snapshot, []issue.Issue, error) {
	snapshot, err := api.List(ctx, issue.Filter{})
	if err != nil {
		return issue.Snapshot{}, nil, err
	}
	index := issue.NewIDIndex(snapshot.Issues)
	items := make([]issue.Issue, 0, len(prefixes))
	for _, prefix := range prefixes {
		id, err := index.Resolve(strings.TrimSpace(prefix))
		if err != nil {
			return snapshot, nil, err
		}
		item, ok := snapshot.Find(id)
		if !ok {
			return snapshot, nil, fmt.Errorf("%w: %s", issue.ErrIssueNotFound, prefix)
		}
		items = append(items, item)
	}
	return snapshot, items, nil
}
