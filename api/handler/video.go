package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/dataflow/jobstore"
	"github.com/use-agent/dataflow/models"
	"github.com/use-agent/dataflow/video"
	"github.com/use-agent/dataflow/webhook"
)

// VideoRunner runs one video request, reporting status transitions.
type VideoRunner interface {
	Run(ctx context.Context, req models.VideoRequest, creds models.Credentials, observe video.Observer) (*models.VideoResult, error)
}

// VideoJobs serves asynchronous video generation. Each accepted request runs
// in its own goroutine; its status is kept in a jobstore.Store.
type VideoJobs struct {
	runner       VideoRunner
	store        jobstore.Store
	defaultKey   string
	defaultModel string
	now          func() time.Time
	deliver      func(url, secret string, ev *webhook.Event)
	watchEvery   time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewVideoJobs creates a job manager. defaultKey is used when a request
// carries no api_key.
func NewVideoJobs(runner VideoRunner, store jobstore.Store, defaultKey, defaultModel string) *VideoJobs {
	return &VideoJobs{
		runner:       runner,
		store:        store,
		defaultKey:   defaultKey,
		defaultModel: defaultModel,
		now:          time.Now,
		deliver:      webhook.DeliverAsync,
		watchEvery:   time.Second,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Running returns the number of jobs still in flight.
func (j *VideoJobs) Running() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cancels)
}

// Shutdown stops accepting jobs, cancels every running job and waits for
// them to finish or for ctx to expire.
func (j *VideoJobs) Shutdown(ctx context.Context) error {
	j.mu.Lock()
	j.closed = true
	for _, cancel := range j.cancels {
		cancel()
	}
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post returns a handler for POST /api/v1/video. It responds 202 with the
// submitted job.
func (j *VideoJobs) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.VideoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults(j.defaultModel)

		now := j.now()
		job := &models.VideoJob{
			ID:        "video-" + uuid.NewString(),
			Status:    models.VideoStatusSubmitted,
			Model:     req.Model,
			CreatedAt: now,
			UpdatedAt: now,
		}
		creds := models.Credentials{APIKey: req.APIKey}
		if creds.APIKey == "" {
			creds.APIKey = j.defaultKey
		}

		ctx, cancel := context.WithCancel(context.Background())
		j.mu.Lock()
		if j.closed {
			j.mu.Unlock()
			cancel()
			respondError(c, models.NewError(models.ErrCodeShuttingDown, "server is shutting down", nil))
			return
		}
		j.cancels[job.ID] = cancel
		j.wg.Add(1)
		j.mu.Unlock()

		if err := j.store.Put(c.Request.Context(), job); err != nil {
			j.mu.Lock()
			delete(j.cancels, job.ID)
			j.mu.Unlock()
			cancel()
			j.wg.Done()
			respondError(c, err)
			return
		}

		go j.run(ctx, *job, req, creds)

		c.JSON(http.StatusAccepted, job)
	}
}

// Get returns a handler for GET /api/v1/video/:id.
func (j *VideoJobs) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok, err := j.store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			notFound(c, "video job")
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// Delete returns a handler for DELETE /api/v1/video/:id. Canceling a
// finished job is a no-op that returns its final state.
func (j *VideoJobs) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		job, ok, err := j.store.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			notFound(c, "video job")
			return
		}

		j.mu.Lock()
		cancel, running := j.cancels[id]
		j.mu.Unlock()
		if running {
			cancel()
			c.JSON(http.StatusAccepted, job)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func (j *VideoJobs) run(ctx context.Context, job models.VideoJob, req models.VideoRequest, creds models.Credentials) {
	defer j.wg.Done()
	defer func() {
		j.mu.Lock()
		if cancel, ok := j.cancels[job.ID]; ok {
			cancel()
			delete(j.cancels, job.ID)
		}
		j.mu.Unlock()
	}()

	observe := func(status string) {
		switch status {
		case models.VideoStatusSubmitted, models.VideoStatusPolling:
			if job.Status == status {
				return
			}
			job.Status = status
			j.save(&job)
		}
	}

	res, err := j.runner.Run(ctx, req, creds, observe)
	switch {
	case err == nil:
		job.Status = models.VideoStatusDone
		job.Result = res
		job.Model = res.Model
	case errors.Is(err, context.Canceled):
		job.Status = models.VideoStatusCanceled
	default:
		job.Status = models.VideoStatusFailed
		job.Error = models.AsError(err).ToDetail()
	}
	j.save(&job)

	slog.Info("video job finished", "job_id", job.ID, "status", job.Status, "model", job.Model)

	if req.WebhookURL == "" || job.Status == models.VideoStatusCanceled {
		return
	}
	evType := webhook.EventVideoCompleted
	if job.Status == models.VideoStatusFailed {
		evType = webhook.EventVideoFailed
	}
	j.deliver(req.WebhookURL, req.WebhookSecret, &webhook.Event{
		Type:      evType,
		JobID:     job.ID,
		Timestamp: j.now().Unix(),
		Data:      job,
	})
}

func (j *VideoJobs) save(job *models.VideoJob) {
	job.UpdatedAt = j.now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.store.Put(ctx, job); err != nil {
		slog.Warn("video job store failed", "job_id", job.ID, "error", err)
	}
}
