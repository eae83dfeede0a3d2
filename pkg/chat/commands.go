package chat

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goslack "github.com/slack-go/slack"
)

// CommandAction names what a slash command asks for.
type CommandAction string

const (
	// ActionClaim hands the thread to a human; the agent stops replying.
	ActionClaim CommandAction = "claim"
	// ActionResume hands the thread back to the agent.
	ActionResume CommandAction = "resume"
)

// Command is a parsed takeover slash command.
type Command struct {
	Action   CommandAction
	ThreadID string
	UserID   string
	UserName string
}

// ErrUnknownCommand is returned for slash commands this service does not own.
var ErrUnknownCommand = errors.New("unknown slash command")

// ErrMissingThreadID is returned when the command text carries no thread ID.
var ErrMissingThreadID = errors.New("slash command requires a thread id argument")

// VerifyAndParseCommand authenticates a Slack slash-command request against
// the signing secret and parses it into a Command. The request body is
// consumed.
func VerifyAndParseCommand(r *http.Request, signingSecret string) (Command, error) {
	verifier, err := goslack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return Command{}, fmt.Errorf("failed to create signature verifier: %w", err)
	}
	r.Body = io.NopCloser(io.TeeReader(r.Body, &verifier))
	slash, err := goslack.SlashCommandParse(r)
	if err != nil {
		return Command{}, fmt.Errorf("failed to parse slash command: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return Command{}, fmt.Errorf("slash command signature verification failed: %w", err)
	}
	return ParseCommand(slash)
}

// ParseCommand interprets an already-verified slash command payload.
func ParseCommand(slash goslack.SlashCommand) (Command, error) {
	var action CommandAction
	switch strings.TrimPrefix(slash.Command, "/") {
	case "claim":
		action = ActionClaim
	case "resume":
		action = ActionResume
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, slash.Command)
	}

	threadID := strings.TrimSpace(slash.Text)
	if threadID == "" {
		return Command{}, ErrMissingThreadID
	}
	// Take the first token; anything after it is commentary.
	if i := strings.IndexAny(threadID, " \t"); i >= 0 {
		threadID = threadID[:i]
	}

	return Command{
		Action:   action,
		ThreadID: threadID,
		UserID:   slash.UserID,
		UserName: slash.UserName,
	}, nil
}
