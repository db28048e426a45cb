package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/dataflow/models"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	job := &models.VideoJob{ID: "j1", Status: models.VideoStatusSubmitted, UpdatedAt: time.Now()}
	if err := s.Put(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.Status = models.VideoStatusDone // stored value is a copy

	got, ok, err := s.Get(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
	if got.Status != models.VideoStatusSubmitted {
		t.Errorf("Status = %q, want submitted", got.Status)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("missing job reported as found")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Put(ctx, &models.VideoJob{ID: "old", UpdatedAt: now})
	now = now.Add(2 * time.Minute)

	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Error("expired job still served")
	}
	_ = s.Put(ctx, &models.VideoJob{ID: "new", UpdatedAt: now})
	s.mu.RLock()
	n := len(s.jobs)
	s.mu.RUnlock()
	if n != 1 {
		t.Errorf("len = %d after sweep, want 1", n)
	}
}
