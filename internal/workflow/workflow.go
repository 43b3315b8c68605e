// Package workflow implements the verification dialog that gates
// confirmation of a non-normal reading.
package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/meter-route-service/internal/domain"
)

var (
	// ErrNotRequired is returned when a workflow is requested for a normal reading.
	ErrNotRequired = errors.New("classification does not require verification")
	// ErrIncomplete is returned by Complete while required fields are missing.
	ErrIncomplete = errors.New("verification details incomplete")
	// ErrWrongStep is returned when an action does not apply to the current step.
	ErrWrongStep = errors.New("action not valid in current step")
	// ErrClosed is returned for any action after the workflow completed or was abandoned.
	ErrClosed = errors.New("verification workflow closed")
	// ErrInvalidMonths is returned for a residence duration that is not a non-negative integer.
	ErrInvalidMonths = errors.New("residence months must be a non-negative whole number")
)

// State is the lifecycle position of a workflow.
type State int

const (
	StateIdle State = iota
	StateClassified
	StateCollectingDetails
	StateCompleted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassified:
		return "classified"
	case StateCollectingDetails:
		return "collecting_details"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Step is the form page shown while collecting details.
type Step int

const (
	StepNone Step = iota
	// StepAcknowledge shows the computed figures for a negative or high reading.
	StepAcknowledge
	// StepDoor asks whether the resident answered the door.
	StepDoor
	// StepResident collects issues and residence duration after an answered door.
	StepResident
	// StepPremises asks whether an unanswered house looks inhabited.
	StepPremises
)

func (s Step) String() string {
	switch s {
	case StepAcknowledge:
		return "acknowledge"
	case StepDoor:
		return "door"
	case StepResident:
		return "resident"
	case StepPremises:
		return "premises"
	default:
		return "none"
	}
}

// Figures are the numbers shown to the reader and stored with the record.
type Figures struct {
	Candidate float64
	Previous  float64
	Average   float64
}

// Consumption is the candidate minus the previous reading.
func (f Figures) Consumption() float64 { return f.Candidate - f.Previous }

// Workflow is one confirmation attempt for one meter. It is not safe for
// concurrent use; the owning route session serializes access.
type Workflow struct {
	meterID   string
	inputText string
	kind      domain.Classification
	figures   Figures
	state     State
	step      Step

	answeredDoor     *bool
	hadIssues        *bool
	issueDescription string
	residenceMonths  string
	looksLivedIn     *bool
}

// New creates a workflow in the Classified state. The input text is kept so
// the owner can tell whether the reading changed while the dialog was open.
func New(meterID, inputText string, kind domain.Classification, figures Figures) (*Workflow, error) {
	if !kind.RequiresVerification() {
		return nil, fmt.Errorf("%w: %s", ErrNotRequired, kind)
	}
	return &Workflow{
		meterID:   meterID,
		inputText: inputText,
		kind:      kind,
		figures:   figures,
		state:     StateClassified,
	}, nil
}

// Open moves the workflow to its first step.
func (w *Workflow) Open() error {
	if w.state != StateClassified {
		return fmt.Errorf("%w: open from %s", ErrWrongStep, w.state)
	}
	w.state = StateCollectingDetails
	if w.kind == domain.ClassificationLow {
		w.step = StepDoor
	} else {
		w.step = StepAcknowledge
	}
	return nil
}

func (w *Workflow) MeterID() string { return w.meterID }
func (w *Workflow) InputText() string { return w.inputText }
func (w *Workflow) Kind() domain.Classification { return w.kind }
func (w *Workflow) Figures() Figures { return w.figures }
func (w *Workflow) State() State { return w.state }
func (w *Workflow) Step() Step { return w.step }
func (w *Workflow) Active() bool { return w.state == StateClassified || w.state == StateCollectingDetails }

// Acknowledge confirms the figures of a negative or high reading and
// completes the workflow.
func (w *Workflow) Acknowledge() (domain.VerificationRecord, error) {
	if err := w.requireStep(StepAcknowledge); err != nil {
		return domain.VerificationRecord{}, err
	}
	return w.Complete()
}

// SetAnsweredDoor answers step one of the low-consumption form and moves to
// the branch it selects. Changing the answer discards the other branch's fields.
func (w *Workflow) SetAnsweredDoor(answered bool) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	if w.step != StepDoor && w.step != StepResident && w.step != StepPremises {
		return fmt.Errorf("%w: want %s, at %s", ErrWrongStep, StepDoor, w.step)
	}
	w.answeredDoor = &answered
	if answered {
		w.looksLivedIn = nil
		w.step = StepResident
	} else {
		w.hadIssues = nil
		w.issueDescription = ""
		w.residenceMonths = ""
		w.step = StepPremises
	}
	return nil
}

// SetIssues records whether the resident reported water issues. The
// description is kept only when issues were reported.
func (w *Workflow) SetIssues(hadIssues bool, description string) error {
	if err := w.requireStep(StepResident); err != nil {
		return err
	}
	w.hadIssues = &hadIssues
	w.issueDescription = ""
	if hadIssues {
		w.issueDescription = strings.TrimSpace(description)
	}
	return nil
}

// SetResidenceMonths records how long the resident has lived at the address.
func (w *Workflow) SetResidenceMonths(months string) error {
	if err := w.requireStep(StepResident); err != nil {
		return err
	}
	months = strings.TrimSpace(months)
	if n, err := strconv.Atoi(months); err != nil || n < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidMonths, months)
	}
	w.residenceMonths = months
	return nil
}

// SetLooksLivedIn records whether an unanswered house appears inhabited.
func (w *Workflow) SetLooksLivedIn(lived bool) error {
	if err := w.requireStep(StepPremises); err != nil {
		return err
	}
	w.looksLivedIn = &lived
	return nil
}

// CanComplete reports whether every required field of the current branch is set.
func (w *Workflow) CanComplete() bool {
	if w.state != StateCollectingDetails {
		return false
	}
	switch w.step {
	case StepAcknowledge:
		return true
	case StepResident:
		return w.residenceMonths != ""
	case StepPremises:
		return w.looksLivedIn != nil
	default:
		return false
	}
}

// Complete finishes the workflow and returns the verification record. The
// record's details hold exactly the fields of the branch taken.
func (w *Workflow) Complete() (domain.VerificationRecord, error) {
	if err := w.requireOpen(); err != nil {
		return domain.VerificationRecord{}, err
	}
	if !w.CanComplete() {
		return domain.VerificationRecord{}, fmt.Errorf("%w: step %s", ErrIncomplete, w.step)
	}

	rec := domain.NewVerificationRecord(w.details(), w.figures.Consumption(), domain.KnownPrevious(w.figures.Previous))
	w.state = StateCompleted
	w.step = StepNone
	return rec, nil
}

// Cancel abandons the workflow. Nothing is written; the reading stays unconfirmed.
func (w *Workflow) Cancel() {
	if !w.Active() {
		return
	}
	w.state = StateAbandoned
	w.step = StepNone
}

func (w *Workflow) details() domain.VerificationDetails {
	switch w.kind {
	case domain.ClassificationNegative:
		return domain.NegativeDetails{CurrentReading: w.figures.Candidate, PreviousReading: w.figures.Previous}
	case domain.ClassificationHigh:
		return domain.HighDetails{
			CurrentReading:     w.figures.Candidate,
			PreviousReading:    w.figures.Previous,
			AverageConsumption: w.figures.Average,
		}
	default:
		d := domain.LowDetails{AnsweredDoor: *w.answeredDoor}
		if d.AnsweredDoor {
			issues := w.hadIssues != nil && *w.hadIssues
			d.HadIssues = &issues
			d.IssueDescription = w.issueDescription
			d.ResidenceMonths = w.residenceMonths
		} else {
			lived := *w.looksLivedIn
			d.LooksLivedIn = &lived
		}
		return d
	}
}

func (w *Workflow) requireOpen() error {
	if w.state == StateCompleted || w.state == StateAbandoned {
		return ErrClosed
	}
	if w.state != StateCollectingDetails {
		return fmt.Errorf("%w: workflow not opened", ErrWrongStep)
	}
	return nil
}

func (w *Workflow) requireStep(step Step) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	if w.step != step {
		return fmt.Errorf("%w: want %s, at %s", ErrWrongStep, step, w.step)
	}
	return nil
}
