package route

import (
	"fmt"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/workflow"
)

// WorkflowView returns the open verification dialog, if any.
func (s *Session) WorkflowView() *WorkflowView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return workflowView(s.workflow)
}

// Acknowledge accepts the figures of a negative or high reading.
func (s *Session) Acknowledge() (ConfirmResult, error) {
	return s.finishWorkflow(func(w *workflow.Workflow) (domain.VerificationRecord, error) {
		return w.Acknowledge()
	})
}

// AnswerDoor records whether the resident answered the door.
func (s *Session) AnswerDoor(answered bool) (*WorkflowView, error) {
	return s.updateWorkflow(func(w *workflow.Workflow) error { return w.SetAnsweredDoor(answered) })
}

// ReportIssues records whether the resident reported water issues.
func (s *Session) ReportIssues(hadIssues bool, description string) (*WorkflowView, error) {
	return s.updateWorkflow(func(w *workflow.Workflow) error { return w.SetIssues(hadIssues, description) })
}

// SetResidenceMonths records how long the resident has lived there.
func (s *Session) SetResidenceMonths(months string) (*WorkflowView, error) {
	return s.updateWorkflow(func(w *workflow.Workflow) error { return w.SetResidenceMonths(months) })
}

// SetLooksLivedIn records whether an unanswered house looks inhabited.
func (s *Session) SetLooksLivedIn(lived bool) (*WorkflowView, error) {
	return s.updateWorkflow(func(w *workflow.Workflow) error { return w.SetLooksLivedIn(lived) })
}

// CompleteWorkflow saves the collected details and confirms the reading.
func (s *Session) CompleteWorkflow() (ConfirmResult, error) {
	return s.finishWorkflow(func(w *workflow.Workflow) (domain.VerificationRecord, error) {
		return w.Complete()
	})
}

// CancelWorkflow closes the dialog without confirming. A navigation that was
// waiting on this confirmation is dropped.
func (s *Session) CancelWorkflow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNoWorkflow
	}
	s.workflow.Cancel()
	s.metrics.Workflows.WithLabelValues(string(s.workflow.Kind()), "abandoned").Inc()
	s.logger.Info("verification abandoned", "meter_id", s.workflow.MeterID(), "classification", s.workflow.Kind())
	s.workflow = nil
	s.guard.ConfirmationAbandoned()
	return nil
}

func (s *Session) updateWorkflow(fn func(*workflow.Workflow) error) (*WorkflowView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return nil, ErrNoWorkflow
	}
	if err := fn(s.workflow); err != nil {
		return nil, err
	}
	return workflowView(s.workflow), nil
}

func (s *Session) finishWorkflow(fn func(*workflow.Workflow) (domain.VerificationRecord, error)) (ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.workflow
	if w == nil {
		return ConfirmResult{}, ErrNoWorkflow
	}
	rec, err := fn(w)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := s.markConfirmed(w.MeterID(), &rec); err != nil {
		// The completed workflow cannot be reused; the reading stays
		// unconfirmed and a new Confirm starts over.
		s.workflow = nil
		s.guard.ConfirmationAbandoned()
		s.metrics.Workflows.WithLabelValues(string(w.Kind()), "failed").Inc()
		return ConfirmResult{}, fmt.Errorf("confirm meter %s: %w", w.MeterID(), err)
	}
	s.workflow = nil
	s.metrics.Workflows.WithLabelValues(string(w.Kind()), "completed").Inc()
	s.metrics.Confirmations.WithLabelValues(string(w.Kind())).Inc()
	s.logger.Info("reading confirmed with verification",
		"meter_id", w.MeterID(),
		"classification", w.Kind(),
		"consumption", rec.Consumption,
	)

	res := ConfirmResult{Classification: w.Kind(), Confirmed: true}
	if action, ok := s.guard.ConfirmationCompleted(); ok {
		if err := s.moveTo(action.Target); err != nil {
			return res, err
		}
		res.Navigated = &action
	}
	return res, nil
}
