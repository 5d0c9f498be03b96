package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/pressbox/internal/pipeline"
	"github.com/zulandar/pressbox/internal/report"
	"github.com/zulandar/pressbox/internal/session"
	"gorm.io/gorm"
)

type handlers struct {
	runner  Runner
	store   session.Store
	db      *gorm.DB
	baseCtx context.Context
}

func registerRoutes(router *gin.Engine, h *handlers) {
	api := router.Group("/api")
	api.POST("/reports", h.createReport)
	api.GET("/reports", h.listReports)
	api.GET("/reports/:id", h.getSession)
	api.GET("/reports/:id/events", h.streamEvents)
	api.POST("/reports/:id/chat", h.chat)
}

type createRequest struct {
	FixtureID string `json:"fixture_id"`
}

func (h *handlers) createReport(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.runner.CreateSession(c.Request.Context(), req.FixtureID)
	if err != nil {
		var vErr *pipeline.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"fixture_id": sess.FixtureID,
		"status":     sess.Status,
	})
}

func (h *handlers) getSession(c *gin.Context) {
	sess, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionPayload(sess))
}

func (h *handlers) listReports(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"reports": []any{}})
		return
	}
	reports, err := report.List(h.db, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := h.runner.Chat(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		var vErr *pipeline.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// sessionPayload is the external view of a session. Raw collected fragments
// stay internal; callers get results and counts.
func sessionPayload(sess *session.Session) gin.H {
	payload := gin.H{
		"session_id": sess.ID,
		"fixture_id": sess.FixtureID,
		"status":     sess.Status,
		"signals":    len(sess.PartialResults),
		"categories": len(sess.CategoryResults),
		"created_at": sess.CreatedAt,
		"updated_at": sess.UpdatedAt,
	}
	if sess.Error != "" {
		payload["error"] = sess.Error
	}
	if len(sess.FinalArtifact) > 0 {
		payload["report"] = json.RawMessage(sess.FinalArtifact)
	}
	return payload
}
