package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/orchestrator"
)

// PushNotification is the Pub/Sub push envelope Gmail watches deliver.
type PushNotification struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailPush handles POST /webhooks/gmail. The notification itself carries no
// message content; it only tells us to fetch. Messages that arrived after the
// stored change token are queued for the pipeline, then the token advances.
// Any failure before the token advances returns non-2xx so Pub/Sub redelivers;
// the pipeline tolerates redelivered mail.
func (s *Server) gmailPush(c *gin.Context) {
	if s.services.Email == nil || s.services.Watch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email transport is not configured"})
		return
	}

	var push PushNotification
	if err := c.ShouldBindJSON(&push); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The decoded payload ({emailAddress, historyId}) is informational only;
	// fetching always starts from the durable token.
	payload, err := decodePushData(push.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notification data is malformed"})
		return
	}
	s.logger.Debug("Gmail push received",
		"mailbox", payload["emailAddress"], "pubsub_message_id", push.Message.MessageID)

	ctx := c.Request.Context()
	watch, err := s.services.Watch.Get(ctx)
	if errors.Is(err, email.ErrNoWatch) {
		// The renewer has not registered yet; let Pub/Sub retry.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no watch registered"})
		return
	}
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	inbound, nextToken, err := s.services.Email.FetchInbound(ctx, watch.HistoryID)
	if err != nil {
		s.logger.Error("Failed to fetch inbound mail", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "inbound fetch failed"})
		return
	}

	for _, in := range inbound {
		if err := s.services.Dispatcher.Enqueue(in); err != nil {
			// Leave the token where it is; redelivery refetches the batch.
			if errors.Is(err, orchestrator.ErrQueueFull) {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "pipeline queue is full"})
				return
			}
			status, msg := mapError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
	}

	if err := s.services.Watch.UpdateHistoryID(ctx, nextToken); err != nil {
		// Queued work is safe; the stale token only means a redundant refetch.
		s.logger.Error("Failed to advance change token", "error", err)
	}

	s.logger.Info("Gmail push processed", "queued", len(inbound))
	c.Status(http.StatusNoContent)
}

func decodePushData(data string) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
