// Package jobstore keeps asynchronous video jobs queryable while they run
// and for a while after they finish.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/dataflow/models"
)

// Store persists video jobs by id.
type Store interface {
	Put(ctx context.Context, job *models.VideoJob) error
	Get(ctx context.Context, id string) (*models.VideoJob, bool, error)
	Close() error
}

// MemoryStore is an in-process Store. Jobs expire ttl after their last update.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.VideoJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryStore creates a MemoryStore. ttl <= 0 keeps jobs forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]models.VideoJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores a copy of job and sweeps expired entries.
func (s *MemoryStore) Put(_ context.Context, job *models.VideoJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.sweep()
	return nil
}

// Get returns a copy of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.VideoJob, bool, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || s.expired(job) {
		return nil, false, nil
	}
	return &job, true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(job models.VideoJob) bool {
	return s.ttl > 0 && s.now().Sub(job.UpdatedAt) > s.ttl
}

// sweep must be called with mu held.
func (s *MemoryStore) sweep() {
	if s.ttl <= 0 {
		return
	}
	for id, job := range s.jobs {
		if s.expired(job) {
			delete(s.jobs, id)
		}
	}
}
