package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealmungchi/dealcrawler/internal/events"
)

// streamEvents forwards bus events as server-sent events until the client
// goes away. ?job= and ?source= narrow the stream.
func (s *Server) streamEvents(c *gin.Context) {
	if s.bus == nil {
		respondError(c, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	jobID, source := c.Query("job"), c.Query("source")

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if (jobID != "" && e.JobID != jobID) || (source != "" && e.Source != source) {
				continue
			}
			if err := writeEvent(c.Writer, e); err != nil {
				s.log.Debug().Err(err).Msg("SSE write failed")
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(w gin.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.Flush()
	return nil
}
