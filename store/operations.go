package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amonks/issues/internal/ids"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/amonks/issues/issue"
)

// Create stores a new issue on behalf of actor, who becomes its creator.
func (s *Store) Create(ctx context.Context, actor string, in issue.NewIssue) (issue.Issue, error) {
	item, _, err := s.create(ctx, actor, in, false)
	return item, err
}

// CreateWithSimilar is Create that also returns the issues whose titles
// look like the new one. They are read in the same transaction as the
// insert, so the list is exactly the collection the new issue joined.
func (s *Store) CreateWithSimilar(ctx context.Context, actor string, in issue.NewIssue) (issue.Issue, []issue.Issue, error) {
	return s.create(ctx, actor, in, true)
}

func (s *Store) create(ctx context.Context, actor string, in issue.NewIssue, withSimilar bool) (issue.Issue, []issue.Issue, error) {
	if internalstrings.IsBlank(actor) {
		return issue.Issue{}, nil, ErrPermissionDenied
	}
	in, err := in.Normalize()
	if err != nil {
		return issue.Issue{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	item := issue.Issue{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      in.Status,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   actor,
		CreatedAt:   issue.TimePtr(now),
		UpdatedAt:   now,
	}

	similar := []issue.Issue{}
	err = s.write(ctx, func(tx *sql.Tx) error {
		if withSimilar {
			before, err := loadSnapshot(ctx, tx)
			if err != nil {
				return err
			}
			similar = issue.FindSimilar(in.Title, before.Issues)
		}
		id, err := newID(ctx, tx, in.Title, now)
		if err != nil {
			return err
		}
		item.ID = id
		return insertIssue(ctx, tx, item)
	})
	if err != nil {
		return issue.Issue{}, nil, err
	}

	s.logger.Debug("created issue", "id", item.ID, "by", actor, "similar", len(similar))
	return item, similar, nil
}

// Update applies patch to the issue with the given id. Status changes are
// checked with issue.ValidateTransition.
func (s *Store) Update(ctx context.Context, actor, id string, patch issue.Patch) (issue.Issue, error) {
	if internalstrings.IsBlank(actor) {
		return issue.Issue{}, ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated issue.Issue
	err := s.write(ctx, func(tx *sql.Tx) error {
		current, err := getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err = patch.Apply(current)
		if err != nil {
			return err
		}
		updated.UpdatedAt = s.now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE issues
			SET title = ?, description = ?, priority = ?, status = ?, assigned_to = ?, updated_at = ?
			WHERE id = ?`,
			updated.Title, updated.Description, string(updated.Priority), string(updated.Status),
			updated.AssignedTo, formatTime(updated.UpdatedAt), id)
		if err != nil {
			return fmt.Errorf("update issue %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return issue.Issue{}, err
	}

	s.logger.Debug("updated issue", "id", id, "by", actor)
	return updated, nil
}

// Delete removes the issue with the given id.
func (s *Store) Delete(ctx context.Context, actor, id string) error {
	if internalstrings.IsBlank(actor) {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete issue %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete issue %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrIssueNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted issue", "id", id, "by", actor)
	return nil
}

// Get returns the issue with the given full id.
func (s *Store) Get(ctx context.Context, id string) (issue.Issue, error) {
	return getIssue(ctx, s.db, id)
}

// List returns every issue in creation order along with the current
// sequence number.
func (s *Store) List(ctx context.Context) (issue.Snapshot, error) {
	return s.snapshot(ctx)
}

// Resolve expands a unique ID prefix to a full ID.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return issue.NewIDIndex(snapshot.Issues).Resolve(prefix)
}

// Subscribe delivers the current snapshot immediately and a new one after
// every committed write. A subscriber that falls behind only ever sees the
// newest snapshot. The channel closes when ctx ends or the store closes.
func (s *Store) Subscribe(ctx context.Context) (<-chan issue.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, snapshot), nil
}

// Import loads exported issues, keeping their IDs and timestamps. Issues
// whose ID already exists are updated in place, keeping their stored creator
// and creation time; a forbidden status change rejects the whole import.
// New issues without a creator are attributed to actor.
func (s *Store) Import(ctx context.Context, actor string, items []issue.Issue) (int, error) {
	if internalstrings.IsBlank(actor) {
		return 0, ErrPermissionDenied
	}

	normalized := make([]issue.Issue, 0, len(items))
	for i, item := range items {
		status, err := issue.ParseStatus(string(item.Status))
		if err != nil {
			return 0, fmt.Errorf("issue %d (%s): %w", i+1, item.ID, err)
		}
		priority, err := issue.ParsePriority(string(item.Priority))
		if err != nil {
			return 0, fmt.Errorf("issue %d (%s): %w", i+1, item.ID, err)
		}
		item.Status = status
		item.Priority = priority
		if item.CreatedBy == "" {
			item.CreatedBy = actor
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = s.now().UTC()
		}
		if err := issue.ValidateIssue(&item); err != nil {
			return 0, fmt.Errorf("issue %d (%s): %w", i+1, item.ID, err)
		}
		normalized = append(normalized, item)
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(ctx, func(tx *sql.Tx) error {
		for _, item := range normalized {
			existing, err := getIssue(ctx, tx, item.ID)
			if errors.Is(err, ErrIssueNotFound) {
				if err := insertIssue(ctx, tx, item); err != nil {
					return fmt.Errorf("import issue %s: %w", item.ID, err)
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("import issue %s: %w", item.ID, err)
			}

			// An existing issue keeps its creator and creation time, and its
			// status moves only along allowed edges.
			if _, err := issue.ValidateTransition(existing.Status, item.Status); err != nil {
				return fmt.Errorf("issue %s: %w", item.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE issues SET
					title = ?, description = ?, priority = ?, status = ?,
					assigned_to = ?, updated_at = ?
				WHERE id = ?`,
				item.Title, item.Description, string(item.Priority), string(item.Status),
				item.AssignedTo, formatTime(item.UpdatedAt), item.ID)
			if err != nil {
				return fmt.Errorf("import issue %s: %w", item.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("imported issues", "count", len(normalized), "by", actor)
	return len(normalized), nil
}

func insertIssue(ctx context.Context, tx *sql.Tx, item issue.Issue) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO issues ("+issueColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		issueArgs(item)...)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func issueArgs(item issue.Issue) []any {
	return []any{
		item.ID, item.Title, item.Description, string(item.Priority), string(item.Status),
		item.AssignedTo, item.CreatedBy, nullableTime(item.CreatedAt), formatTime(item.UpdatedAt),
	}
}

func getIssue(ctx context.Context, q querier, id string) (issue.Issue, error) {
	row := q.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE id = ?", id)
	item, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return issue.Issue{}, fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	return item, err
}

// newID derives an ID from the title and creation time, nudging the
// timestamp on the rare collision.
func newID(ctx context.Context, tx *sql.Tx, title string, now time.Time) (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		id := ids.GenerateWithTimestamp(title, now.Add(time.Duration(attempt)), ids.DefaultLength)
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE id = ?", id).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check id: %w", err)
		}
		if exists == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique id for %q", title)
}
