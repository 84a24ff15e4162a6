package main

import (
	"github.com/amonks/issues/internal/ui"
	"github.com/amonks/issues/issue"
)

func logHighlighter(prefixLengths map[string]int, highlight func(string, int) string) func(string) string {
	if prefixLengths == nil {
		prefixLengths = map[string]int{}
	}
	return func(id string) string {
		if id == "" {
			return id
		}
		return highlight(id, ui.PrefixLength(prefixLengths, id))
	}
}

func snapshotHighlighter(snapshot issue.Snapshot) func(string) string {
	return logHighlighter(issue.NewIDIndex(snapshot.Issues).PrefixLengths(), ui.HighlightID)
}
