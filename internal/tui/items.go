package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amonks/issues/issue"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

type issueItem struct {
	issue issue.Issue
}

func (item issueItem) FilterValue() string {
	return item.issue.Title
}

type issueItemDelegate struct {
	normalStyle   lipgloss.Style
	selectedStyle lipgloss.Style
	doneStyle     lipgloss.Style
}

func newIssueItemDelegate() issueItemDelegate {
	return issueItemDelegate{
		normalStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		selectedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")),
		doneStyle:     valueMuted,
	}
}

func (d issueItemDelegate) Height() int                             { return 1 }
func (d issueItemDelegate) Spacing() int                            { return 0 }
func (d issueItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d issueItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(issueItem)
	if !ok {
		return
	}

	line := formatIssueItem(item, m.Width())
	style := d.normalStyle
	if index == m.Index() {
		style = d.selectedStyle
	} else if item.issue.Status == issue.StatusDone {
		style = d.doneStyle
	}
	fmt.Fprint(w, style.Render(line))
}

func formatIssueItem(item issueItem, width int) string {
	title := strings.TrimSpace(item.issue.Title)
	if title == "" {
		title = "(untitled)"
	}
	meta := fmt.Sprintf("%s/%s", item.issue.Status.DisplayName(), item.issue.Priority.DisplayName())
	line := fmt.Sprintf("%s  %s  [%s]", item.issue.ID, title, meta)
	return truncateText(line, width)
}

func issueItems(visible []issue.Issue) []list.Item {
	items := make([]list.Item, 0, len(visible))
	for _, item := range visible {
		items = append(items, issueItem{issue: item})
	}
	return items
}

func renderDetail(item issue.Issue, now time.Time, width int) string {
	assigned := item.AssignedTo
	if assigned == "" {
		assigned = "-"
	}
	rows := [][2]string{
		{"ID", item.ID},
		{"Status", item.Status.DisplayName()},
		{"Priority", item.Priority.DisplayName()},
		{"Assigned", assigned},
		{"Created by", item.CreatedBy},
		{"Created", issue.CreatedLabel(item, now)},
		{issue.DurationCaption(item), issue.DurationLabel(item, now)},
	}

	lines := []string{labelStyle.Render(truncateText(item.Title, width)), ""}
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-10s", row[0]))+" "+truncateText(row[1], width-11))
	}
	lines = append(lines, "")
	if strings.TrimSpace(item.Description) == "" {
		lines = append(lines, valueMuted.Render("(no description)"))
	} else {
		wrapped := item.Description
		if width > 0 {
			wrapped = wordwrap.String(item.Description, width)
		}
		for _, line := range strings.Split(wrapped, "\n") {
			lines = append(lines, truncateText(line, width))
		}
	}
	return strings.Join(lines, "\n")
}

func truncateText(value string, width int) string {
	if width <= 0 {
		return value
	}
	return runewidth.Truncate(value, width, "...")
}
