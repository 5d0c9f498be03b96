package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/pressbox/internal/pipeline"
	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/session"
)

// streamEvents streams one run's lifecycle over SSE: start, progress
// updates, then complete or server_error, then done. Connecting to a pending
// session starts its run; the run is bound to the server's lifetime, so a
// client that disconnects mid-stream does not abort it.
func (h *handlers) streamEvents(c *gin.Context) {
	id := c.Param("id")
	sess, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "start", gin.H{
		"session_id": sess.ID,
		"fixture_id": sess.FixtureID,
		"status":     sess.Status,
	})
	c.Writer.Flush()

	// A session past pending has nothing left to stream live; report its
	// current state and close.
	if sess.Status != session.StatusPending {
		h.emitTerminal(c, id)
		return
	}

	updates := make(chan progress.Update, 64)
	runDone := make(chan error, 1)
	go func() {
		runDone <- h.runner.Run(h.baseCtx, id, func(u progress.Update) {
			// A slow client drops updates rather than stalling the run.
			select {
			case updates <- u:
			default:
			}
		})
	}()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case u := <-updates:
			writeSSE(c.Writer, "progress", u)
			c.Writer.Flush()
		case err := <-runDone:
			h.drain(c, updates)
			switch {
			case err == nil:
				h.emitComplete(c, id)
			case errors.Is(err, pipeline.ErrAlreadyRunning):
				// Another stream won the race to start this run; report
				// its current state instead of a failure.
				h.emitTerminal(c, id)
				return
			default:
				writeSSE(c.Writer, "server_error", gin.H{"error": err.Error()})
			}
			writeSSE(c.Writer, "done", gin.H{})
			c.Writer.Flush()
			return
		case <-clientGone:
			return
		}
	}
}

// drain flushes progress updates already queued when the run finished.
func (h *handlers) drain(c *gin.Context, updates chan progress.Update) {
	for {
		select {
		case u := <-updates:
			writeSSE(c.Writer, "progress", u)
		default:
			return
		}
	}
}

// emitTerminal reports the state of a session that is not pending.
func (h *handlers) emitTerminal(c *gin.Context, id string) {
	sess, err := h.store.Get(h.baseCtx, id)
	if err != nil {
		writeSSE(c.Writer, "server_error", gin.H{"error": err.Error()})
	} else if sess.Status == session.StatusError {
		writeSSE(c.Writer, "server_error", gin.H{"error": sess.Error})
	} else if sess.Status == session.StatusCompleted {
		h.emitComplete(c, id)
	} else {
		writeSSE(c.Writer, "progress", gin.H{"status": sess.Status})
	}
	writeSSE(c.Writer, "done", gin.H{})
	c.Writer.Flush()
}

// emitComplete sends the finished session's payload.
func (h *handlers) emitComplete(c *gin.Context, id string) {
	sess, err := h.store.Get(h.baseCtx, id)
	if err != nil {
		writeSSE(c.Writer, "server_error", gin.H{"error": err.Error()})
		return
	}
	writeSSE(c.Writer, "complete", sessionPayload(sess))
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
