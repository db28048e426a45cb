package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/use-agent/dataflow/models"
)

var watchUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func finished(status string) bool {
	switch status {
	case models.VideoStatusDone, models.VideoStatusFailed, models.VideoStatusCanceled:
		return true
	}
	return false
}

// Watch returns a handler for GET /api/v1/video/:id/watch. It upgrades to a
// WebSocket, sends the job every time its status changes and closes the
// connection once the job has finished.
func (j *VideoJobs) Watch() gin.HandlerFunc {
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

		conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Debug("watch upgrade failed", "job_id", id, "error", err)
			return
		}
		defer conn.Close()

		// The reader notices when the client goes away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(j.watchEvery)
		defer ticker.Stop()

		last := ""
		for {
			if job.Status != last {
				last = job.Status
				if err := conn.WriteJSON(job); err != nil {
					return
				}
			}
			if finished(job.Status) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.Status),
					time.Now().Add(time.Second))
				return
			}

			select {
			case <-gone:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			next, ok, err := j.store.Get(ctx, id)
			cancel()
			if err != nil || !ok {
				return
			}
			job = next
		}
	}
}
