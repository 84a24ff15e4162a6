package editor

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/amonks/issues/internal/validation"
	"github.com/amonks/issues/issue"
)

// IssueData represents the data used to render the TOML template.
type IssueData struct {
	// IsUpdate is true when editing an existing issue.
	IsUpdate bool
	// ID is the issue ID (only for updates).
	ID string

	Title       string
	Priority    string
	AssignedTo  string
	Description string

	// Status is only rendered for updates.
	Status string
}

// DefaultCreateData returns IssueData with default values for a new issue.
func DefaultCreateData() IssueData {
	return IssueData{
		Priority: string(issue.DefaultPriority),
	}
}

// DataFromIssue creates IssueData from an existing issue for editing.
func DataFromIssue(item issue.Issue) IssueData {
	return IssueData{
		IsUpdate:    true,
		ID:          item.ID,
		Title:       item.Title,
		Priority:    string(item.Priority),
		AssignedTo:  item.AssignedTo,
		Status:      string(item.Status),
		Description: item.Description,
	}
}

var issueTemplate = template.Must(template.New("issue").Funcs(template.FuncMap{
	"allowed": func(current string) string {
		return validation.FormatValidValues(issue.AllowedTransitions(issue.Status(current)))
	},
}).Parse(`{{- if .IsUpdate }}# editing {{ .ID }}
{{ end -}}
title = {{ printf "%q" .Title }}
priority = {{ printf "%q" .Priority }} # low, medium, high
assigned_to = {{ printf "%q" .AssignedTo }}
{{- if .IsUpdate }}
status = {{ printf "%q" .Status }} # {{ allowed .Status }}
{{- end }}
---
{{ .Description }}
`))

// RenderIssueTOML renders the issue data as a TOML document for editing.
func RenderIssueTOML(data IssueData) (string, error) {
	var buf bytes.Buffer
	if err := issueTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// ParsedIssue represents the parsed result from the TOML editor output.
type ParsedIssue struct {
	Title       string
	Priority    issue.Priority
	AssignedTo  string
	Description string

	// Status is nil when the document had no status line.
	Status *issue.Status
}

// ParseIssueTOML parses the TOML content from the editor.
func ParseIssueTOML(content string) (*ParsedIssue, error) {
	frontmatter, body := splitFrontmatter(content)

	var raw struct {
		Title      string  `toml:"title"`
		Priority   string  `toml:"priority"`
		AssignedTo string  `toml:"assigned_to"`
		Status     *string `toml:"status"`
	}
	if _, err := toml.Decode(frontmatter, &raw); err != nil {
		return nil, fmt.Errorf("parse TOML: %w", err)
	}

	parsed := ParsedIssue{
		Title:       strings.TrimSpace(raw.Title),
		AssignedTo:  strings.TrimSpace(raw.AssignedTo),
		Description: strings.TrimRight(strings.TrimLeft(body, "\n"), "\n"),
	}
	if err := issue.ValidateTitle(parsed.Title); err != nil {
		return nil, err
	}

	parsed.Priority = issue.DefaultPriority
	if strings.TrimSpace(raw.Priority) != "" {
		priority, err := issue.ParsePriority(raw.Priority)
		if err != nil {
			return nil, err
		}
		parsed.Priority = priority
	}
	if raw.Status != nil {
		status, err := issue.ParseStatus(*raw.Status)
		if err != nil {
			return nil, err
		}
		parsed.Status = &status
	}
	return &parsed, nil
}

func splitFrontmatter(content string) (string, string) {
	content = strings.TrimLeft(content, "\n")
	if content == "" {
		return "", ""
	}

	lines := strings.Split(content, "\n")
	separatorIndex := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			separatorIndex = i
			break
		}
	}
	if separatorIndex == -1 {
		return content, ""
	}

	frontmatter := strings.Join(lines[:separatorIndex], "\n")
	body := strings.Join(lines[separatorIndex+1:], "\n")
	return frontmatter, body
}

// EditIssue opens the editor for data and returns the parsed result.
func EditIssue(data IssueData) (*ParsedIssue, error) {
	content, err := RenderIssueTOML(data)
	if err != nil {
		return nil, err
	}

	tmpfile, err := os.CreateTemp("", "issues-*.toml")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpfile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpfile.WriteString(content); err != nil {
		tmpfile.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpfile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if err := Edit(tmpPath); err != nil {
		return nil, err
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read edited file: %w", err)
	}
	return ParseIssueTOML(string(edited))
}

// ToNewIssue converts the parsed document into a create request.
func (p *ParsedIssue) ToNewIssue() issue.NewIssue {
	return issue.NewIssue{
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		AssignedTo:  p.AssignedTo,
	}
}

// ToPatch returns a patch holding only the fields that differ from existing.
func (p *ParsedIssue) ToPatch(existing issue.Issue) issue.Patch {
	var patch issue.Patch
	if p.Title != existing.Title {
		patch.Title = issue.StringPtr(p.Title)
	}
	if p.Description != existing.Description {
		patch.Description = issue.StringPtr(p.Description)
	}
	if p.Priority != existing.Priority {
		patch.Priority = issue.PriorityPtr(p.Priority)
	}
	if p.AssignedTo != existing.AssignedTo {
		patch.AssignedTo = issue.StringPtr(p.AssignedTo)
	}
	if p.Status != nil && *p.Status != existing.Status {
		patch.Status = issue.StatusPtr(*p.Status)
	}
	return patch
}
