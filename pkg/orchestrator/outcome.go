package orchestrator

import (
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/triggers"
)

// Action is the pipeline's verdict for one inbound email. Exactly one is
// returned per invocation.
type Action string

// Pipeline actions.
const (
	ActionSend     Action = "send"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionEscalate Action = "escalate"
	ActionSkip     Action = "skip"
	ActionError    Action = "error"
)

// Skip and error reasons surfaced in outcomes.
const (
	ReasonHumanManaged          = "human_managed"
	ReasonHumanTakeoverDetected = "human_takeover_detected"
	ReasonUnknownThread         = "unknown_thread"
	ReasonInvalidTransition     = "invalid_transition"
	ReasonDuplicateInbound      = "duplicate_inbound"
)

// Outcome describes what the pipeline did with one inbound email.
type Outcome struct {
	Action   Action            `json:"action"`
	ThreadID string            `json:"thread_id"`
	State    negotiation.State `json:"state,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Triggers []triggers.Result `json:"triggers,omitempty"`
	Draft    *llm.Draft        `json:"draft,omitempty"`
}
