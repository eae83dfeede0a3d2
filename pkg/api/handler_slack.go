package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-hq/parley/pkg/chat"
)

// slackCommand handles POST /webhooks/slack/commands: /claim and /resume.
// Handoffs are silent; the only output is an ephemeral acknowledgement to
// the operator who typed the command.
func (s *Server) slackCommand(c *gin.Context) {
	if s.services.SlackSigningSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "slack commands are not configured"})
		return
	}

	cmd, err := chat.VerifyAndParseCommand(c.Request, s.services.SlackSigningSecret)
	switch {
	case errors.Is(err, chat.ErrUnknownCommand):
		ephemeral(c, "Unknown command.")
		return
	case errors.Is(err, chat.ErrMissingThreadID):
		ephemeral(c, "Usage: /claim <thread-id> or /resume <thread-id>")
		return
	case err != nil:
		s.logger.Warn("Rejected slash command", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()
	switch cmd.Action {
	case chat.ActionClaim:
		if err := s.services.Ownership.Claim(ctx, cmd.ThreadID, cmd.UserName); err != nil {
			status, msg := mapError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		s.logger.Info("Thread claimed by human",
			"thread_id", cmd.ThreadID, "user", cmd.UserName)
		ephemeral(c, fmt.Sprintf("Thread %s is yours; the agent will stay quiet.", cmd.ThreadID))

	case chat.ActionResume:
		if err := s.services.Ownership.Resume(ctx, cmd.ThreadID); err != nil {
			status, msg := mapError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		s.logger.Info("Thread returned to agent",
			"thread_id", cmd.ThreadID, "user", cmd.UserName)
		ephemeral(c, fmt.Sprintf("Thread %s handed back to the agent.", cmd.ThreadID))
	}
}

// ephemeral replies with a message only the command's author sees. Slack
// expects 200 even for user errors; non-2xx surfaces as a generic failure.
func ephemeral(c *gin.Context, text string) {
	c.JSON(http.StatusOK, gin.H{
		"response_type": "ephemeral",
		"text":          text,
	})
}
