package chat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		text    string
		want    Command
		wantErr error
	}{
		{
			name:    "claim",
			command: "/claim",
			text:    "thread-abc123",
			want:    Command{Action: ActionClaim, ThreadID: "thread-abc123", UserID: "U777", UserName: "jordan"},
		},
		{
			name:    "resume with trailing commentary",
			command: "/resume",
			text:    "thread-abc123 taking this back",
			want:    Command{Action: ActionResume, ThreadID: "thread-abc123", UserID: "U777", UserName: "jordan"},
		},
		{
			name:    "claim with padded text",
			command: "/claim",
			text:    "  thread-abc123  ",
			want:    Command{Action: ActionClaim, ThreadID: "thread-abc123", UserID: "U777", UserName: "jordan"},
		},
		{
			name:    "missing thread id",
			command: "/claim",
			text:    "   ",
			wantErr: ErrMissingThreadID,
		},
		{
			name:    "unknown command",
			command: "/deploy",
			text:    "thread-abc123",
			wantErr: ErrUnknownCommand,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(goslack.SlashCommand{
				Command:  tc.command,
				Text:     tc.text,
				UserID:   "U777",
				UserName: "jordan",
			})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func signedCommandRequest(t *testing.T, secret, command, text string) *http.Request {
	t.Helper()
	form := url.Values{}
	form.Set("command", command)
	form.Set("text", text)
	form.Set("user_id", "U777")
	form.Set("user_name", "jordan")
	body := form.Encode()

	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestVerifyAndParseCommand(t *testing.T) {
	const secret = "shhh-signing-secret"

	req := signedCommandRequest(t, secret, "/claim", "thread-abc123")
	cmd, err := VerifyAndParseCommand(req, secret)
	require.NoError(t, err)
	assert.Equal(t, ActionClaim, cmd.Action)
	assert.Equal(t, "thread-abc123", cmd.ThreadID)
	assert.Equal(t, "U777", cmd.UserID)
}

func TestVerifyAndParseCommandRejectsBadSignature(t *testing.T) {
	req := signedCommandRequest(t, "wrong-secret", "/claim", "thread-abc123")
	_, err := VerifyAndParseCommand(req, "shhh-signing-secret")
	assert.Error(t, err)
}
