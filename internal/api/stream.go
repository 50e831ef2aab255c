package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/prospect-research/internal/events"
	"github.com/north-cloud/prospect-research/internal/logger"
)

// stream serves job events over SSE: persisted history first, then live
// events until the job finishes or the client disconnects.
func (s *Server) stream(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}

	sub, err := s.engine.Subscribe(c.Request.Context(), job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return
	}
	defer sub.Cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, canFlush := c.Writer.(http.Flusher)

	write := func(ev events.Event) bool {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			s.log.Error("marshal event", logger.String("job_id", job.ID), logger.Error(err))
			return true
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	for _, ev := range sub.History {
		if !write(ev) {
			return
		}
	}

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case ev, open := <-sub.Live:
			if !open {
				return
			}
			if !write(ev) {
				return
			}
		}
	}
}
