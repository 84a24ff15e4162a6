package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/amonks/issues/internal/ui"
	"github.com/amonks/issues/issue"
)

func formatIssueTable(items []issue.Issue, prefixLengths map[string]int, highlight func(string, int) string, now time.Time) string {
	builder := ui.NewTableBuilder([]string{"ID", "PRI", "STATUS", "ASSIGNEE", "AGE", "TITLE"}, len(items))

	for _, item := range items {
		assignee := item.AssignedTo
		if assignee == "" {
			assignee = "-"
		}
		builder.AddRow([]string{
			highlight(item.ID, ui.PrefixLength(prefixLengths, item.ID)),
			item.Priority.DisplayName(),
			item.Status.DisplayName(),
			ui.TruncateTableCell(assignee),
			formatIssueAge(item, now),
			ui.TruncateTableCell(item.Title),
		})
	}

	return builder.String()
}

func formatIssueAge(item issue.Issue, now time.Time) string {
	age, ok := issue.AgeData(item, now)
	if !ok {
		return issue.PendingLabel
	}
	return ui.FormatDurationShort(age)
}

func issueEmptyListMessage(total int, filter issue.Filter) string {
	if total == 0 {
		return "No issues found."
	}

	parts := make([]string, 0, 2)
	if status := string(filter.Status); status != "" && status != issue.FilterAll {
		parts = append(parts, "status "+issue.Status(status).DisplayName())
	}
	if priority := string(filter.Priority); priority != "" && priority != issue.FilterAll {
		parts = append(parts, "priority "+issue.Priority(priority).DisplayName())
	}
	if len(parts) == 0 {
		return "No issues found."
	}
	return fmt.Sprintf("No issues found with %s (%d total).", strings.Join(parts, " and "), total)
}
