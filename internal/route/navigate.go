package route

import (
	"fmt"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
	"github.com/couchcryptid/meter-route-service/internal/session"
)

// Navigate asks to move the cursor. index is used only by ActionSelect.
// Leaving a meter with an entered but unconfirmed reading opens a prompt
// instead of moving; see ResolveNavigation.
func (s *Session) Navigate(kind navigation.ActionKind, index int) (NavigationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.resolveTarget(kind, index)
	if err != nil {
		return NavigationResult{}, err
	}
	action := navigation.Action{Kind: kind, Target: target}

	req := navigation.Request{
		Current:      s.cursor,
		MeterCount:   len(s.meters),
		WorkflowOpen: s.workflow != nil || s.unconfirmMeter != "",
	}
	if _, meter, err := s.currentMeter(); err == nil {
		sess, err := s.store.Get(meter.ID)
		if err != nil {
			return NavigationResult{}, fmt.Errorf("load session for meter %s: %w", meter.ID, err)
		}
		req.Session = sess
	}

	decision := s.guard.Check(req, action)
	res := NavigationResult{Decision: decision}
	switch decision {
	case navigation.DecisionProceed:
		if err := s.moveTo(target); err != nil {
			return NavigationResult{}, err
		}
	case navigation.DecisionPrompt:
		s.metrics.NavigationPrompt.WithLabelValues("prompted").Inc()
		res.Pending = &action
	case navigation.DecisionSuppressed:
		s.metrics.NavigationPrompt.WithLabelValues("suppressed").Inc()
	}
	res.Screen = s.cursor.Screen(len(s.meters))
	res.Cursor = cursorJSON(s.cursor)
	return res, nil
}

// ResolveNavigation answers the open navigation prompt.
//
// Leave moves at once and keeps the reading unconfirmed. Cancel stays put.
// Confirm runs the confirm flow first: a normal reading is confirmed and the
// move happens now; otherwise the move waits for the verification dialog and
// is dropped if the dialog is cancelled.
func (s *Session) ResolveNavigation(choice navigation.Choice) (NavigationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolution, err := s.guard.Resolve(choice)
	if err != nil {
		return NavigationResult{}, err
	}
	s.metrics.NavigationPrompt.WithLabelValues(string(choice)).Inc()
	res := NavigationResult{Outcome: resolution.Outcome}

	switch resolution.Outcome {
	case navigation.OutcomeNavigate:
		if err := s.moveTo(resolution.Action.Target); err != nil {
			return NavigationResult{}, err
		}
	case navigation.OutcomeConfirmFirst:
		confirm, err := s.confirm()
		if err != nil {
			s.guard.ConfirmationAbandoned()
			return NavigationResult{}, err
		}
		res.Confirm = &confirm
		if confirm.Confirmed {
			if action, ok := s.guard.ConfirmationCompleted(); ok {
				if err := s.moveTo(action.Target); err != nil {
					return NavigationResult{}, err
				}
				confirm.Navigated = &action
			}
		} else {
			pending := resolution.Action
			res.Pending = &pending
		}
	case navigation.OutcomeCancelled:
	}

	res.Screen = s.cursor.Screen(len(s.meters))
	res.Cursor = cursorJSON(s.cursor)
	return res, nil
}

func (s *Session) resolveTarget(kind navigation.ActionKind, index int) (navigation.Cursor, error) {
	n := len(s.meters)
	switch kind {
	case navigation.ActionHome:
		return navigation.Home, nil
	case navigation.ActionNext:
		if s.cursor >= navigation.ReviewCursor(n) {
			return s.cursor, nil
		}
		return s.cursor + 1, nil
	case navigation.ActionPrevious:
		if s.cursor == navigation.Home {
			return navigation.Home, nil
		}
		return s.cursor - 1, nil
	case navigation.ActionSelect:
		if !navigation.MeterCursor(index).IsMeter(n) {
			return 0, fmt.Errorf("%w: meter index %d", ErrInvalidTarget, index)
		}
		return navigation.MeterCursor(index), nil
	case navigation.ActionReview:
		return navigation.ReviewCursor(n), nil
	case navigation.ActionSummary:
		return navigation.SummaryCursor(n), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, kind)
	}
}

// moveTo sets the cursor and persists the reader's position.
func (s *Session) moveTo(target navigation.Cursor) error {
	s.cursor = target
	if target.IsMeter(len(s.meters)) {
		if err := s.store.SetLastViewedIndex(int(target)); err != nil {
			return fmt.Errorf("save last viewed index: %w", err)
		}
	}
	if err := s.store.SaveSnapshot(s.user, session.Snapshot{
		RouteID:      s.routeID,
		Cursor:       int(target),
		TargetPeriod: s.target,
		UpdatedAt:    domain.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("cursor moved", "route_id", s.routeID, "screen", target.Screen(len(s.meters)), "cursor", int(target))
	return nil
}
