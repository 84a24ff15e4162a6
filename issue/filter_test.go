package issue

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFilterConjunction(t *testing.T) {
	snapshot := []Issue{
		{ID: "1", Title: "open low", Status: StatusOpen, Priority: PriorityLow},
		{ID: "2", Title: "open high", Status: StatusOpen, Priority: PriorityHigh},
		{ID: "3", Title: "done low", Status: StatusDone, Priority: PriorityLow},
		{ID: "4", Title: "done high", Status: StatusDone, Priority: PriorityHigh},
	}

	cases := []struct {
		name   string
		filter Filter
		want   string
	}{
		{name: "both", filter: Filter{Status: StatusFilter(StatusOpen), Priority: PriorityFilter(PriorityHigh)}, want: "2"},
		{name: "status only", filter: Filter{Status: StatusFilter(StatusDone), Priority: AllPriorities}, want: "3,4"},
		{name: "priority only", filter: Filter{Status: AllStatuses, Priority: PriorityFilter(PriorityLow)}, want: "1,3"},
		{name: "all", filter: Filter{Status: AllStatuses, Priority: AllPriorities}, want: "1,2,3,4"},
		{name: "zero value", filter: Filter{}, want: "1,2,3,4"},
		{name: "nothing", filter: Filter{Status: StatusFilter(StatusInProgress)}, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, item := range Visible(snapshot, tc.filter) {
				got = append(got, item.ID)
			}
			// all CreatedAt are nil so order is store order
			if strings.Join(got, ",") != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, strings.Join(got, ","))
			}
		})
	}
}

func TestVisibleOrdersNewestFirstWithPendingOnTop(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	snapshot := []Issue{
		{ID: "old", CreatedAt: TimePtr(base)},
		{ID: "pending-a"},
		{ID: "new", CreatedAt: TimePtr(base.Add(time.Hour))},
		{ID: "tie-1", CreatedAt: TimePtr(base.Add(time.Minute))},
		{ID: "pending-b"},
		{ID: "tie-2", CreatedAt: TimePtr(base.Add(time.Minute))},
	}

	var got []string
	for _, item := range Visible(snapshot, Filter{}) {
		got = append(got, item.ID)
	}

	want := "pending-a,pending-b,new,tie-1,tie-2,old"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(got, ","))
	}
}

func TestVisibleDoesNotMutateSnapshot(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	snapshot := []Issue{
		{ID: "a", CreatedAt: TimePtr(base)},
		{ID: "b", CreatedAt: TimePtr(base.Add(time.Hour))},
	}

	visible := Visible(snapshot, Filter{})
	visible[0].Title = "changed"

	if snapshot[0].ID != "a" || snapshot[1].ID != "b" {
		t.Fatalf("snapshot order changed: %+v", snapshot)
	}
	if snapshot[0].Title != "" || snapshot[1].Title != "" {
		t.Fatalf("snapshot contents changed: %+v", snapshot)
	}
}

func TestVisibleEmptySnapshot(t *testing.T) {
	if got := Visible(nil, Filter{}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParseFilters(t *testing.T) {
	for _, value := range []string{"", "all", "ALL", " All "} {
		status, err := ParseStatusFilter(value)
		if err != nil || status != AllStatuses {
			t.Fatalf("ParseStatusFilter(%q) = %q, %v", value, status, err)
		}
		priority, err := ParsePriorityFilter(value)
		if err != nil || priority != AllPriorities {
			t.Fatalf("ParsePriorityFilter(%q) = %q, %v", value, priority, err)
		}
	}

	status, err := ParseStatusFilter("In Progress")
	if err != nil || status != StatusFilter(StatusInProgress) {
		t.Fatalf("ParseStatusFilter(In Progress) = %q, %v", status, err)
	}
	priority, err := ParsePriorityFilter("High")
	if err != nil || priority != PriorityFilter(PriorityHigh) {
		t.Fatalf("ParsePriorityFilter(High) = %q, %v", priority, err)
	}

	if _, err := ParseStatusFilter("closed"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := ParsePriorityFilter("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}
