// Package listflags registers the filter flags shared by list-style commands.
package listflags

import (
	"github.com/amonks/issues/issue"
	"github.com/spf13/cobra"
)

// Filter holds the raw flag values until they are parsed.
type Filter struct {
	Status   string
	Priority string
}

// AddFilterFlags adds --status and --priority to cmd.
func AddFilterFlags(cmd *cobra.Command, target *Filter) {
	cmd.Flags().StringVar(&target.Status, "status", issue.FilterAll, "Only show issues with this status (open, in_progress, done, all)")
	cmd.Flags().StringVar(&target.Priority, "priority", issue.FilterAll, "Only show issues with this priority (low, medium, high, all)")
}

// Parse validates the flag values.
func (f Filter) Parse() (issue.Filter, error) {
	status, err := issue.ParseStatusFilter(f.Status)
	if err != nil {
		return issue.Filter{}, err
	}
	priority, err := issue.ParsePriorityFilter(f.Priority)
	if err != nil {
		return issue.Filter{}, err
	}
	return issue.Filter{Status: status, Priority: priority}, nil
}
