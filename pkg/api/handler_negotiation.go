package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parley-hq/parley/pkg/llm"
)

// listNegotiations handles GET /api/v1/negotiations: every in-memory
// negotiation as its snapshot.
func (s *Server) listNegotiations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"negotiations": s.services.Manager.Snapshots()})
}

// getNegotiation handles GET /api/v1/negotiations/:thread_id. Reads from the
// store, so terminal negotiations stay inspectable after the manager drops
// them.
func (s *Server) getNegotiation(c *gin.Context) {
	snap, err := s.services.Store.Load(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ResumeCounterRequest carries the human-approved draft for an escalated
// thread.
type ResumeCounterRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
}

// resumeCounter handles POST /api/v1/negotiations/:thread_id/resume-counter.
func (s *Server) resumeCounter(c *gin.Context) {
	var req ResumeCounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threadID := c.Param("thread_id")
	outcome, err := s.services.Negotiator.ResumeCounter(c.Request.Context(), threadID,
		llm.Draft{Subject: req.Subject, Body: req.Body})
	if err != nil {
		// A draft the validation gate rejects is a client problem, not a
		// server one.
		if strings.Contains(outcome.Reason, "failed validation") {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": outcome.Reason})
			return
		}
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	s.logger.Info("Approved counter dispatched", "thread_id", threadID)
	c.JSON(http.StatusOK, outcome)
}
