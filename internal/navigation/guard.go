// Package navigation guards cursor moves away from a meter whose reading was
// entered but not confirmed.
package navigation

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/meter-route-service/internal/domain"
)

var (
	// ErrNoPending is returned when resolving without an open prompt.
	ErrNoPending = errors.New("no pending navigation")
	// ErrUnknownChoice is returned for a prompt answer other than confirm, leave or cancel.
	ErrUnknownChoice = errors.New("unknown navigation choice")
)

// ActionKind names what the reader asked for.
type ActionKind string

const (
	ActionHome     ActionKind = "home"
	ActionNext     ActionKind = "next"
	ActionPrevious ActionKind = "previous"
	ActionSelect   ActionKind = "select"
	ActionReview   ActionKind = "review"
	ActionSummary  ActionKind = "summary"
)

// Action is a requested navigation with its resolved target cursor.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target Cursor     `json:"target"`
}

// State is the guard's position for the current navigation attempt.
type State int

const (
	StateNoPending State = iota
	// StatePrompting holds an action while the reader chooses what to do.
	StatePrompting
	// StateAwaitingConfirmation holds an action until the confirm flow ends.
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StatePrompting:
		return "prompting"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "no_pending"
	}
}

// Decision is the guard's answer to a navigation request.
type Decision string

const (
	// DecisionProceed means the caller may move the cursor now.
	DecisionProceed Decision = "proceed"
	// DecisionPrompt means the reader must choose confirm, leave or cancel.
	DecisionPrompt Decision = "prompt"
	// DecisionSuppressed means another dialog owns the interaction; nothing happens.
	DecisionSuppressed Decision = "suppressed"
)

// Choice is the reader's answer to a prompt.
type Choice string

const (
	ChoiceConfirm Choice = "confirm"
	ChoiceLeave   Choice = "leave"
	ChoiceCancel  Choice = "cancel"
)

// Outcome tells the caller what to do after a prompt is resolved.
type Outcome string

const (
	OutcomeNavigate     Outcome = "navigate"
	OutcomeConfirmFirst Outcome = "confirm_first"
	OutcomeCancelled    Outcome = "cancelled"
)

// Resolution is the result of resolving a prompt.
type Resolution struct {
	Outcome Outcome
	Action  Action
}

// Request describes the screen being left.
type Request struct {
	Current      Cursor
	MeterCount   int
	Session      domain.ReadingSession
	WorkflowOpen bool
}

// Guard is the per-route navigation state machine. It holds an inspectable
// pending action instead of a callback.
type Guard struct {
	state   State
	pending Action
}

// NewGuard returns a guard with nothing pending.
func NewGuard() *Guard { return &Guard{} }

// State returns the current state.
func (g *Guard) State() State { return g.state }

// Pending returns the held action, if any.
func (g *Guard) Pending() (Action, bool) {
	if g.state == StateNoPending {
		return Action{}, false
	}
	return g.pending, true
}

// Check decides whether action may run now.
func (g *Guard) Check(req Request, action Action) Decision {
	if g.state != StateNoPending || req.WorkflowOpen {
		return DecisionSuppressed
	}
	if !req.Current.IsMeter(req.MeterCount) || action.Target == req.Current {
		return DecisionProceed
	}
	if !req.Session.HasPendingInput() {
		return DecisionProceed
	}
	g.state = StatePrompting
	g.pending = action
	return DecisionPrompt
}

// Resolve applies the reader's choice to an open prompt.
func (g *Guard) Resolve(choice Choice) (Resolution, error) {
	if g.state != StatePrompting {
		return Resolution{}, ErrNoPending
	}
	action := g.pending
	switch choice {
	case ChoiceLeave:
		g.clear()
		return Resolution{Outcome: OutcomeNavigate, Action: action}, nil
	case ChoiceConfirm:
		g.state = StateAwaitingConfirmation
		return Resolution{Outcome: OutcomeConfirmFirst, Action: action}, nil
	case ChoiceCancel:
		g.clear()
		return Resolution{Outcome: OutcomeCancelled, Action: action}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}
}

// ConfirmationCompleted releases the held action once the reading is confirmed.
func (g *Guard) ConfirmationCompleted() (Action, bool) {
	if g.state != StateAwaitingConfirmation {
		return Action{}, false
	}
	action := g.pending
	g.clear()
	return action, true
}

// ConfirmationAbandoned drops the held action when the confirm flow is cancelled or fails.
func (g *Guard) ConfirmationAbandoned() {
	if g.state == StateAwaitingConfirmation {
		g.clear()
	}
}

// Reset drops any pending state.
func (g *Guard) Reset() { g.clear() }

func (g *Guard) clear() {
	g.state = StateNoPending
	g.pending = Action{}
}
