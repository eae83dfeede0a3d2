// Package negotiation holds the negotiation lifecycle: the state machine, the
// persisted snapshot shape, and the in-memory registry of live negotiations.
package negotiation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// State is a position in the negotiation lifecycle.
type State string

// Negotiation states. Agreed and rejected are terminal.
const (
	StateInitialOffer    State = "initial_offer"
	StateAwaitingReply   State = "awaiting_reply"
	StateCounterReceived State = "counter_received"
	StateCounterSent     State = "counter_sent"
	StateAgreed          State = "agreed"
	StateRejected        State = "rejected"
	StateEscalated       State = "escalated"
	StateStale           State = "stale"
)

// IsValid checks if the state is one of the defined lifecycle states.
func (s State) IsValid() bool {
	switch s {
	case StateInitialOffer, StateAwaitingReply, StateCounterReceived, StateCounterSent,
		StateAgreed, StateRejected, StateEscalated, StateStale:
		return true
	}
	return false
}

// IsTerminal reports whether the state admits no further events.
func (s State) IsTerminal() bool {
	return s == StateAgreed || s == StateRejected
}

// TerminalStates returns the terminal state names, sorted. Used by the store
// to filter recovery queries.
func TerminalStates() []string {
	return []string{string(StateAgreed), string(StateRejected)}
}

// Event is a stimulus applied to the state machine.
type Event string

// Negotiation events.
const (
	EventSendOffer     Event = "send_offer"
	EventReceiveReply  Event = "receive_reply"
	EventTimeout       Event = "timeout"
	EventSendCounter   Event = "send_counter"
	EventAccept        Event = "accept"
	EventReject        Event = "reject"
	EventEscalate      Event = "escalate"
	EventResumeCounter Event = "resume_counter"
)

// IsValid checks if the event is one of the defined events.
func (e Event) IsValid() bool {
	switch e {
	case EventSendOffer, EventReceiveReply, EventTimeout, EventSendCounter,
		EventAccept, EventReject, EventEscalate, EventResumeCounter:
		return true
	}
	return false
}

type transitionKey struct {
	from  State
	event Event
}

// transitions is the complete legal transition map. Any (state, event) pair
// absent here is rejected, which also makes terminal states reject everything.
var transitions = map[transitionKey]State{
	{StateInitialOffer, EventSendOffer}:      StateAwaitingReply,
	{StateAwaitingReply, EventReceiveReply}:  StateCounterReceived,
	{StateAwaitingReply, EventTimeout}:       StateStale,
	{StateCounterReceived, EventSendCounter}: StateCounterSent,
	{StateCounterReceived, EventAccept}:      StateAgreed,
	{StateCounterReceived, EventReject}:      StateRejected,
	{StateCounterReceived, EventEscalate}:    StateEscalated,
	{StateCounterSent, EventReceiveReply}:    StateCounterReceived,
	{StateCounterSent, EventTimeout}:         StateStale,
	{StateEscalated, EventResumeCounter}:     StateCounterSent,
	{StateEscalated, EventReject}:            StateRejected,
	{StateStale, EventReceiveReply}:          StateCounterReceived,
	{StateStale, EventReject}:                StateRejected,
}

// InvalidTransitionError reports an event that is not legal from the current
// state. The machine's state is unchanged when this is returned.
type InvalidTransitionError struct {
	From  State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("negotiation: no transition from %q on event %q", e.From, e.Event)
}

// Transition is one applied state change. It serializes as a
// [from, event, to] JSON triple.
type Transition struct {
	From  State
	Event Event
	To    State
}

// MarshalJSON encodes the transition as a three-element string array.
func (t Transition) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{string(t.From), string(t.Event), string(t.To)})
}

// UnmarshalJSON decodes a [from, event, to] triple, rejecting malformed
// entries so corrupted history surfaces at load time.
func (t *Transition) UnmarshalJSON(data []byte) error {
	var triple []string
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("history entry is not a string array: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("history entry must have exactly 3 elements, got %d", len(triple))
	}
	from, event, to := State(triple[0]), Event(triple[1]), State(triple[2])
	if !from.IsValid() {
		return fmt.Errorf("history entry has unknown state %q", triple[0])
	}
	if !to.IsValid() {
		return fmt.Errorf("history entry has unknown state %q", triple[2])
	}
	if !event.IsValid() {
		return fmt.Errorf("history entry has unknown event %q", triple[1])
	}
	*t = Transition{From: from, Event: event, To: to}
	return nil
}

// Machine enforces the negotiation lifecycle. State changes only through
// Trigger; there is no setter.
type Machine struct {
	state   State
	history []Transition
}

// NewMachine returns a machine at the start of the lifecycle.
func NewMachine() *Machine {
	return &Machine{state: StateInitialOffer}
}

// FromSnapshot reconstructs a machine at a persisted state with its recorded
// history. No events are replayed.
func FromSnapshot(state State, history []Transition) (*Machine, error) {
	if !state.IsValid() {
		return nil, fmt.Errorf("negotiation: unknown state %q", state)
	}
	m := &Machine{state: state}
	if len(history) > 0 {
		m.history = make([]Transition, len(history))
		copy(m.history, history)
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Trigger applies an event. On success it appends the transition to the
// history and returns the new state; on an illegal event it returns
// InvalidTransitionError and leaves the state untouched.
func (m *Machine) Trigger(event Event) (State, error) {
	to, ok := transitions[transitionKey{from: m.state, event: event}]
	if !ok {
		return m.state, &InvalidTransitionError{From: m.state, Event: event}
	}
	m.history = append(m.history, Transition{From: m.state, Event: event, To: to})
	m.state = to
	return to, nil
}

// ValidEvents returns the events legal from the current state in
// lexicographic order, so callers that enumerate choices behave
// deterministically.
func (m *Machine) ValidEvents() []Event {
	var events []Event
	for key := range transitions {
		if key.from == m.state {
			events = append(events, key.event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// History returns a copy of the applied transitions in order.
func (m *Machine) History() []Transition {
	if len(m.history) == 0 {
		return nil
	}
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
