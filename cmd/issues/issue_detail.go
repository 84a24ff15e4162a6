package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amonks/issues/internal/markdown"
	"github.com/amonks/issues/issue"
)

const issueDetailLineWidth = 80

func printIssueDetail(w io.Writer, item issue.Issue, highlight func(string) string, now time.Time) {
	assignee := item.AssignedTo
	if assignee == "" {
		assignee = "-"
	}
	fmt.Fprintf(w, "ID:         %s\n", highlight(item.ID))
	fmt.Fprintf(w, "Title:      %s\n", item.Title)
	fmt.Fprintf(w, "Status:     %s\n", item.Status.DisplayName())
	fmt.Fprintf(w, "Priority:   %s\n", item.Priority.DisplayName())
	fmt.Fprintf(w, "Assigned:   %s\n", assignee)
	fmt.Fprintf(w, "Created by: %s\n", item.CreatedBy)
	if item.CreatedAt == nil {
		fmt.Fprintf(w, "Created:    %s\n", issue.PendingLabel)
	} else {
		fmt.Fprintf(w, "Created:    %s (%s)\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"), issue.CreatedLabel(item, now))
	}
	if !item.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:    %s\n", item.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "%-12s%s\n", issue.DurationCaption(item)+":", issue.DurationLabel(item, now))

	if strings.TrimSpace(item.Description) != "" {
		fmt.Fprintf(w, "\nDescription:\n%s\n", formatIssueDescription(item.Description))
	}
}

func formatIssueDescription(value string) string {
	formatted := markdown.SafeRender(issueDetailLineWidth, 2, []byte(value))
	if strings.TrimSpace(string(formatted)) == "" {
		return "  -"
	}
	return string(formatted)
}
