package issue

import "time"

// Issue is a tracked unit of work.
type Issue struct {
	// ID is assigned by the store on create (8-char base32) and never changes.
	ID string `json:"id" yaml:"id"`

	// Title is the short summary (max 500 bytes).
	Title string `json:"title" yaml:"title"`

	Description string   `json:"description" yaml:"description"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Status      Status   `json:"status" yaml:"status"`

	// AssignedTo is an email or name; empty means unassigned.
	AssignedTo string `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`

	// CreatedBy is the identity that created the issue.
	CreatedBy string `json:"created_by" yaml:"created_by"`

	// CreatedAt is nil until the store has resolved the creation time.
	CreatedAt *time.Time `json:"created_at" yaml:"created_at"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Snapshot is the complete issue collection as of one committed write.
// Issues are in creation order, oldest first.
type Snapshot struct {
	Seq    uint64  `json:"seq"`
	Issues []Issue `json:"issues"`
}

// Find returns the issue with the given full id.
func (s Snapshot) Find(id string) (Issue, bool) {
	for _, item := range s.Issues {
		if item.ID == id {
			return item, true
		}
	}
	return Issue{}, false
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
