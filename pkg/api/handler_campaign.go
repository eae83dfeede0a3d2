package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IngestCampaignRequest is the campaign webhook body.
type IngestCampaignRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// ingestCampaign handles POST /webhooks/campaigns. Ingest is synchronous:
// the response carries the per-influencer launch report.
func (s *Server) ingestCampaign(c *gin.Context) {
	if s.services.Campaigns == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "campaign ingest is not configured"})
		return
	}

	var req IngestCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.services.Campaigns.IngestTask(c.Request.Context(), req.TaskID)
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	s.logger.Info("Campaign task ingested",
		"task_id", req.TaskID,
		"launched", len(report.Launched),
		"missing", len(report.Missing),
		"failed", len(report.Failed))
	c.JSON(http.StatusOK, report)
}
