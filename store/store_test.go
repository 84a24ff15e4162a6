package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amonks/issues/issue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(filepath.Join(t.TempDir(), "issues.db"), Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const kim = "kim@example.com"

func TestOpenAppliesPragmasAndVersion(t *testing.T) {
	s := openTestStore(t)

	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}

	var version int
	if err := s.DB().QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("expected user_version %d, got %d", currentSchemaVersion, version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "issues.db")

	first, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Create(context.Background(), kim, issue.NewIssue{Title: "persisted"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	snapshot, err := second.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snapshot.Issues) != 1 || snapshot.Issues[0].Title != "persisted" {
		t.Fatalf("expected persisted issue, got %+v", snapshot.Issues)
	}
	if snapshot.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", snapshot.Seq)
	}
}

func TestCreateAssignsStoreFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "  Fix login bug ", Priority: "High", AssignedTo: "sam@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(created.ID) != 8 {
		t.Fatalf("expected 8-character id, got %q", created.ID)
	}
	if created.Title != "Fix login bug" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if created.Status != issue.StatusOpen || created.Priority != issue.PriorityHigh {
		t.Fatalf("unexpected status/priority %s/%s", created.Status, created.Priority)
	}
	if created.CreatedBy != kim {
		t.Fatalf("expected creator %s, got %s", kim, created.CreatedBy)
	}
	if created.CreatedAt == nil {
		t.Fatal("expected CreatedAt to be set")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != created.Title || got.AssignedTo != "sam@example.com" || !got.CreatedAt.Equal(*created.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, created)
	}
}

func TestCreateRequiresActor(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Create(context.Background(), " ", issue.NewIssue{Title: "x"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCreateValidates(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Create(context.Background(), kim, issue.NewIssue{Title: ""})
	if !errors.Is(err, issue.ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}

	snapshot, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if snapshot.Seq != 0 {
		t.Fatalf("expected rejected write to leave seq at 0, got %d", snapshot.Seq)
	}
}

func TestCreateSameTitleGetsDistinctIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, kim, issue.NewIssue{Title: "dup"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.Create(ctx, kim, issue.NewIssue{Title: "dup"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %s twice", a.ID)
	}
}

func TestUpdateEnforcesTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "Ship it"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = s.Update(ctx, kim, created.ID, issue.Patch{Status: issue.StatusPtr(issue.StatusDone)})
	if !errors.Is(err, issue.ErrForbiddenTransition) {
		t.Fatalf("expected ErrForbiddenTransition, got %v", err)
	}
	got, _ := s.Get(ctx, created.ID)
	if got.Status != issue.StatusOpen {
		t.Fatalf("expected status to stay open, got %s", got.Status)
	}

	started, err := s.Update(ctx, kim, created.ID, issue.Patch{Status: issue.StatusPtr(issue.StatusInProgress)})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != issue.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}
	if !started.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance")
	}

	done, err := s.Update(ctx, "sam@example.com", created.ID, issue.Patch{Status: issue.StatusPtr(issue.StatusDone)})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.CreatedBy != kim {
		t.Fatalf("expected creator to be unchanged, got %s", done.CreatedBy)
	}
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Update(ctx, kim, "nope", issue.Patch{AssignedTo: issue.StringPtr("x")}); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}
	if err := s.Delete(ctx, kim, "nope"); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "temporary"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, kim, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("expected deleted issue to be gone, got %v", err)
	}
}

func TestListKeepsCreationOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := s.Create(ctx, kim, issue.NewIssue{Title: title}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	snapshot, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if snapshot.Seq != 3 {
		t.Fatalf("expected seq 3, got %d", snapshot.Seq)
	}
	for i, want := range []string{"first", "second", "third"} {
		if snapshot.Issues[i].Title != want {
			t.Fatalf("expected %s at %d, got %s", want, i, snapshot.Issues[i].Title)
		}
	}
}

func TestResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "resolve me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := s.Resolve(ctx, created.ID[:4])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, id)
	}
	if _, err := s.Resolve(ctx, "zzzzzzzzz"); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if initial := receive(t, ch); initial.Seq != 0 || len(initial.Issues) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial)
	}

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "live"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pushed := receive(t, ch)
	if pushed.Seq != 1 || len(pushed.Issues) != 1 || pushed.Issues[0].ID != created.ID {
		t.Fatalf("unexpected pushed snapshot %+v", pushed)
	}

	cancel()
	waitClosed(t, ch)
}

func TestSubscribeClosesWithStore(t *testing.T) {
	s := openTestStore(t)

	ch, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	receive(t, ch)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitClosed(t, ch)

	if _, err := s.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Create(context.Background(), kim, issue.NewIssue{Title: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestImportPreservesIDsAndNullTimestamps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	n, err := s.Import(ctx, kim, []issue.Issue{
		{ID: "legacy01", Title: "Legacy", Status: "In Progress", Priority: "Low", CreatedBy: "old@example.com", CreatedAt: &created, UpdatedAt: created},
		{ID: "legacy02", Title: "Pending", Status: "open", Priority: "high"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported, got %d", n)
	}

	snapshot, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snapshot.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(snapshot.Issues))
	}
	legacy, pending := snapshot.Issues[0], snapshot.Issues[1]
	if legacy.ID != "legacy01" || legacy.Status != issue.StatusInProgress || legacy.CreatedBy != "old@example.com" {
		t.Fatalf("unexpected legacy issue %+v", legacy)
	}
	if legacy.CreatedAt == nil || !legacy.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at to round trip, got %v", legacy.CreatedAt)
	}
	if pending.CreatedAt != nil {
		t.Fatalf("expected nil created_at, got %v", pending.CreatedAt)
	}
	if pending.CreatedBy != kim {
		t.Fatalf("expected importer to be creator, got %s", pending.CreatedBy)
	}

	visible := issue.Visible(snapshot.Issues, issue.Filter{})
	if visible[0].ID != "legacy02" {
		t.Fatalf("expected pending issue first, got %s", visible[0].ID)
	}

	if _, err := s.Import(ctx, kim, []issue.Issue{{ID: "legacy01", Title: "Renamed", Status: "done", Priority: "low"}}); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	got, err := s.Get(ctx, "legacy01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Renamed" || got.Status != issue.StatusDone {
		t.Fatalf("expected overwrite, got %+v", got)
	}
	if got.CreatedBy != "old@example.com" || got.CreatedAt == nil || !got.CreatedAt.Equal(created) {
		t.Fatalf("expected creator and creation time to be kept, got %+v", got)
	}
}

func TestImportRejectsInvalidRecords(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Import(context.Background(), kim, []issue.Issue{{ID: "x", Title: "bad", Status: "archived", Priority: "low"}})
	if !errors.Is(err, issue.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestImportCannotRewriteCreatorOrSkipTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "Fix login bug"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	forged := created
	forged.Status = issue.StatusDone
	forged.CreatedBy = "mallory@example.com"
	_, err = s.Import(ctx, "mallory@example.com", []issue.Issue{forged})
	if !errors.Is(err, issue.ErrForbiddenTransition) {
		t.Fatalf("expected ErrForbiddenTransition, got %v", err)
	}
	var transitionErr *issue.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != issue.StatusOpen || got.CreatedBy != kim {
		t.Fatalf("expected rejected import to change nothing, got %+v", got)
	}

	forged.Status = issue.StatusInProgress
	forged.Title = "Fix login bug again"
	forged.CreatedAt = issue.TimePtr(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := s.Import(ctx, "mallory@example.com", []issue.Issue{forged}); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, err = s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != issue.StatusInProgress || got.Title != "Fix login bug again" {
		t.Fatalf("expected allowed fields to update, got %+v", got)
	}
	if got.CreatedBy != kim {
		t.Fatalf("expected creator %s to be kept, got %s", kim, got.CreatedBy)
	}
	if got.CreatedAt == nil || !got.CreatedAt.Equal(*created.CreatedAt) {
		t.Fatalf("expected created_at %v to be kept, got %v", created.CreatedAt, got.CreatedAt)
	}
}

func TestImportRejectsWholeBatchOnForbiddenTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, kim, issue.NewIssue{Title: "Still open"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done := created
	done.Status = issue.StatusDone

	_, err = s.Import(ctx, kim, []issue.Issue{
		{ID: "fresh001", Title: "Brand new", Status: issue.StatusOpen, Priority: issue.PriorityLow},
		done,
	})
	if !errors.Is(err, issue.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.Get(ctx, "fresh001"); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("expected batch to roll back, got %v", err)
	}
}

func TestCreateWithSimilarSeesCollectionBeforeInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, similar, err := s.CreateWithSimilar(ctx, kim, issue.NewIssue{Title: "Fix login bug"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(similar) != 0 {
		t.Fatalf("expected no similar issues for the first create, got %+v", similar)
	}

	second, similar, err := s.CreateWithSimilar(ctx, kim, issue.NewIssue{Title: "login"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(similar) != 1 || similar[0].ID != first.ID {
		t.Fatalf("expected only %s as similar, got %+v", first.ID, similar)
	}
	if similar[0].ID == second.ID {
		t.Fatal("new issue must not match itself")
	}
}

func TestCreateWithSimilarConcurrentCreatesSeeEachOther(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const n = 8
	counts := make([]int, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, similar, err := s.CreateWithSimilar(ctx, kim, issue.NewIssue{Title: "Fix login bug"})
			if err != nil {
				errs <- err
				return
			}
			counts[i] = len(similar)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("create: %v", err)
	}

	// Each create sees every issue committed before it, so the counts are
	// exactly 0 through n-1.
	seen := make(map[int]bool)
	for _, count := range counts {
		if count < 0 || count >= n || seen[count] {
			t.Fatalf("expected distinct similar counts 0..%d, got %v", n-1, counts)
		}
		seen[count] = true
	}
}
