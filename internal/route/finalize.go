package route

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
)

// Submitter stores a finalized route with the persistence service.
type Submitter interface {
	SubmitRouteReadings(ctx context.Context, sub domain.Submission) error
}

// Notifier hands a finalized route to the notification service.
type Notifier interface {
	Notify(ctx context.Context, sub domain.Submission) error
}

// Finalize builds the submission payload and sends it to the persistence
// service. If that fails nothing is cleared, so the reader can retry. On
// success the notifier is called, every reading session is cleared and the
// cursor moves to the summary screen. A notifier failure is logged only; the
// route is already stored.
func (s *Session) Finalize(ctx context.Context) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireNoDialog(); err != nil {
		return domain.Submission{}, err
	}

	inputs := make([]domain.SubmissionInput, 0, len(s.meters))
	for _, m := range s.meters {
		sess, err := s.store.Get(m.ID)
		if err != nil {
			return domain.Submission{}, fmt.Errorf("load session for meter %s: %w", m.ID, err)
		}
		summary := domain.ComputeSummary(s.historyFor(m), s.target)
		inputs = append(inputs, domain.SubmissionInput{Meter: m, Session: sess, Previous: previousOf(summary)})
	}
	sub := domain.BuildSubmission(uuid.NewString(), s.routeID, s.target, inputs)

	if err := s.submitter.SubmitRouteReadings(ctx, sub); err != nil {
		s.metrics.Submissions.WithLabelValues("error").Inc()
		s.logger.Error("route submission failed", "route_id", s.routeID, "submission_id", sub.SubmissionID, "error", err)
		return domain.Submission{}, fmt.Errorf("submit route readings: %w", err)
	}
	s.metrics.Submissions.WithLabelValues("success").Inc()

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, sub); err != nil {
			s.metrics.NotificationErrors.Inc()
			s.logger.Warn("submission notification failed", "route_id", s.routeID, "submission_id", sub.SubmissionID, "error", err)
		}
	}

	if err := s.clearRouteState(); err != nil {
		return sub, err
	}
	s.submission = &sub
	s.cursor = navigation.SummaryCursor(len(s.meters))

	s.logger.Info("route finalized",
		"route_id", s.routeID,
		"submission_id", sub.SubmissionID,
		"completed", sub.Stats.CompletedMeters,
		"skipped", sub.Stats.SkippedMeters,
	)
	return sub, nil
}

// LastSubmission returns the most recent finalized submission.
func (s *Session) LastSubmission() (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submission == nil {
		return domain.Submission{}, ErrNoSubmission
	}
	return *s.submission, nil
}
