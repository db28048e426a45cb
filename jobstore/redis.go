package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/dataflow/models"
)

// RedisStore keeps jobs in Redis as JSON under prefix+id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Put writes the job and refreshes its expiry.
func (s *RedisStore) Put(ctx context.Context, job *models.VideoJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+job.ID, payload, s.ttl).Err()
}

// Get reads a job. A missing key is reported as not found, not an error.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.VideoJob, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var job models.VideoJob
	if err := json.Unmarshal(val, &job); err != nil {
		return nil, false, err
	}
	return &job, true, nil
}
