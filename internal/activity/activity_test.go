package activity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxhall/telesuite/internal/activity"
)

func TestMemStore_LogAndGet(t *testing.T) {
	t.Parallel()
	store := activity.NewMemStore()
	ctx := context.Background()

	id, err := store.Log(ctx, activity.Entry{
		Kind:      activity.KindSalesCall,
		Product:   "FiberMax",
		AgentName: "Priya",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if id == "" {
		t.Fatal("Log must return a non-empty ID")
	}

	entry, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Product != "FiberMax" || entry.Kind != activity.KindSalesCall {
		t.Errorf("entry = %+v", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt must be set by the store")
	}
}

func TestMemStore_UpdatePatchesOnlySetFields(t *testing.T) {
	t.Parallel()
	store := activity.NewMemStore()
	ctx := context.Background()

	id, _ := store.Log(ctx, activity.Entry{
		Kind:       activity.KindSalesCall,
		Transcript: "original",
	})

	score := 4.5
	category := "Excellent"
	if err := store.Update(ctx, id, activity.Patch{Score: &score, ScoreCategory: &category}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	entry, _ := store.Get(ctx, id)
	if entry.Score != 4.5 || entry.ScoreCategory != "Excellent" {
		t.Errorf("score patch not applied: %+v", entry)
	}
	if entry.Transcript != "original" {
		t.Errorf("unset field was modified: %q", entry.Transcript)
	}
}

func TestMemStore_UpdateUnknownID(t *testing.T) {
	t.Parallel()
	store := activity.NewMemStore()
	audio := "data:audio/wav;base64,xxxx"
	err := store.Update(context.Background(), "nope", activity.Patch{AudioRef: &audio})
	if !errors.Is(err, activity.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListNewestFirst(t *testing.T) {
	t.Parallel()
	store := activity.NewMemStore()
	ctx := context.Background()

	for range 3 {
		if _, err := store.Log(ctx, activity.Entry{Kind: activity.KindTranscription}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].CreatedAt.Before(entries[1].CreatedAt) {
		t.Error("entries not in newest-first order")
	}
}
