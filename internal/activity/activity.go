// Package activity persists the outcome of finished calls: the flattened
// transcript, a reference to the assembled call audio, and the QA score.
//
// The call controller uses fire-and-forget semantics: Log returns an ID
// synchronously and Update patches the entry later (audio assembly and
// scoring finish after the call ends). A failed update never affects the
// call itself.
package activity

import (
	"context"
	"errors"
	"time"
)

// Kind classifies what produced an entry.
type Kind string

const (
	KindSalesCall     Kind = "sales_call"
	KindSupportCall   Kind = "support_call"
	KindTranscription Kind = "transcription"
)

// Entry is one activity log record.
type Entry struct {
	ID        string
	Kind      Kind
	Product   string
	AgentName string
	UserName  string

	// Transcript is the flattened conversation, one line per turn.
	Transcript string
	// AudioRef points at the assembled call audio (a data URI or object key).
	AudioRef string
	// Score and ScoreCategory are filled by the post-call scoring update.
	Score         float64
	ScoreCategory string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch carries the fields an Update may change. Nil pointers leave the
// stored value untouched.
type Patch struct {
	Transcript    *string
	AudioRef      *string
	Score         *float64
	ScoreCategory *string
}

// ErrNotFound is returned by Update and Get for unknown IDs.
var ErrNotFound = errors.New("activity: entry not found")

// Store is the activity log persistence boundary.
type Store interface {
	// Log creates a new entry and returns its ID. The entry's ID field is
	// ignored; CreatedAt/UpdatedAt are set by the store.
	Log(ctx context.Context, entry Entry) (string, error)

	// Update patches an existing entry.
	Update(ctx context.Context, id string, patch Patch) error

	// Get returns one entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns the most recent entries, newest first, up to limit.
	List(ctx context.Context, limit int) ([]Entry, error)
}
