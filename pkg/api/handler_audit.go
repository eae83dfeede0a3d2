package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parley-hq/parley/pkg/store"
)

// queryAudit handles GET /api/v1/audit. Exactly one filter applies:
// ?influencer=, ?campaign=, or ?from=&to= (RFC 3339).
func (s *Server) queryAudit(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		entries []store.AuditEntry
		err     error
	)
	switch {
	case c.Query("influencer") != "":
		entries, err = s.services.Audit.QueryByInfluencer(ctx, c.Query("influencer"))

	case c.Query("campaign") != "":
		entries, err = s.services.Audit.QueryByCampaign(ctx, c.Query("campaign"))

	case c.Query("from") != "" && c.Query("to") != "":
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, c.Query("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, c.Query("to"))
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC 3339 timestamps"})
			return
		}
		entries, err = s.services.Audit.QueryByDateRange(ctx, from, to)

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "provide one filter: influencer, campaign, or from and to",
		})
		return
	}

	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
