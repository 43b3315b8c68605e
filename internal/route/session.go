// Package route composes the per-meter reading flow into one route session:
// the ordered meters, their reading sessions, the cursor, the navigation guard
// and the open verification dialog.
//
// Every operation takes the session lock, so the HTTP layer can call it from
// concurrent requests. Only history refresh releases the lock while the
// persistence service is queried.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/couchcryptid/meter-route-service/internal/session"
	"github.com/couchcryptid/meter-route-service/internal/workflow"
)

var (
	ErrEmptyRoute         = errors.New("route has no meters")
	ErrNoMeterSelected    = errors.New("no meter selected")
	ErrReadingLocked      = errors.New("reading is confirmed; unconfirm it first")
	ErrWorkflowOpen       = errors.New("a verification dialog is open")
	ErrPromptOpen         = errors.New("a confirmation prompt is open")
	ErrNoWorkflow         = errors.New("no verification dialog is open")
	ErrNotConfirmed       = errors.New("reading is not confirmed")
	ErrNoUnconfirmPending = errors.New("no unconfirm prompt is open")
	ErrInvalidTarget      = errors.New("invalid navigation target")
	ErrNoSubmission       = errors.New("route has not been finalized")
)

// Options configure a Session.
type Options struct {
	RouteID string
	// User keys the resume snapshot.
	User string
	// TargetPeriod is the billing period being read. A zero value means the
	// snapshot's period, or the current month.
	TargetPeriod domain.PeriodKey
}

// Session is one reader's pass over a route.
type Session struct {
	mu sync.Mutex

	routeID string
	user    string
	target  domain.PeriodKey
	meters  []domain.MeterRecord
	byID    map[string]int

	store    *session.Store
	guard    *navigation.Guard
	loader   *historyLoader
	workflow *workflow.Workflow
	// unconfirmMeter is set while the unconfirm prompt for that meter is open.
	unconfirmMeter string
	cursor         navigation.Cursor

	histories       map[string]domain.History
	historyWarnings map[string]string

	submitter  Submitter
	notifier   Notifier
	submission *domain.Submission

	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a session over meters and restores the reader's position from
// the store. notifier may be nil.
func New(opts Options, meters []domain.MeterRecord, store *session.Store, history HistorySource,
	submitter Submitter, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) (*Session, error) {
	if len(meters) == 0 {
		return nil, ErrEmptyRoute
	}
	byID := make(map[string]int, len(meters))
	for i, m := range meters {
		if _, dup := byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate meter id %q", m.ID)
		}
		byID[m.ID] = i
	}

	s := &Session{
		routeID:         opts.RouteID,
		user:            opts.User,
		target:          opts.TargetPeriod,
		meters:          meters,
		byID:            byID,
		store:           store,
		guard:           navigation.NewGuard(),
		loader:          newHistoryLoader(history),
		cursor:          navigation.Home,
		histories:       make(map[string]domain.History),
		historyWarnings: make(map[string]string),
		submitter:       submitter,
		notifier:        notifier,
		logger:          logger,
		metrics:         metrics,
	}
	if err := s.restore(); err != nil {
		return nil, err
	}
	if s.target.IsZero() {
		s.target = domain.CurrentPeriod()
	}

	metrics.RouteMeters.Set(float64(len(meters)))
	metrics.RouteLoaded.Set(1)
	logger.Info("route session ready",
		"route_id", s.routeID,
		"meters", len(meters),
		"period", s.target.String(),
		"screen", s.cursor.Screen(len(meters)),
	)
	return s, nil
}

// restore picks the cursor from the user's snapshot, falling back to the
// last viewed meter index.
func (s *Session) restore() error {
	snap, ok, err := s.store.LoadSnapshot(s.user)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if ok && snap.RouteID == s.routeID {
		if s.target.IsZero() {
			s.target = snap.TargetPeriod
		}
		if c := navigation.Cursor(snap.Cursor); c.Screen(len(s.meters)) != navigation.ScreenInvalid {
			s.cursor = c
			return nil
		}
	}

	idx, ok, err := s.store.LastViewedIndex()
	if err != nil {
		return fmt.Errorf("load last viewed index: %w", err)
	}
	if ok && navigation.MeterCursor(idx).IsMeter(len(s.meters)) {
		s.cursor = navigation.MeterCursor(idx)
	}
	return nil
}

// CheckReadiness returns nil once the route's meters are loaded.
func (s *Session) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.meters) == 0 {
		return ErrEmptyRoute
	}
	return nil
}

// RouteID returns the route being read.
func (s *Session) RouteID() string { return s.routeID }

// Period returns the target billing period.
func (s *Session) Period() domain.PeriodKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// View returns the route overview.
func (s *Session) View() (RouteView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := RouteView{
		RouteID: s.routeID,
		Period:  s.target,
		Screen:  s.cursor.Screen(len(s.meters)),
		Cursor:  cursorJSON(s.cursor),
		Meters:  make([]MeterItem, 0, len(s.meters)),
	}
	for i, m := range s.meters {
		sess, err := s.store.Get(m.ID)
		if err != nil {
			return RouteView{}, fmt.Errorf("load session for meter %s: %w", m.ID, err)
		}
		status := statusOf(sess)
		if status == StatusConfirmed {
			view.Confirmed++
		}
		view.Meters = append(view.Meters, MeterItem{Index: i, ID: m.ID, Address: m.Address, Status: status})
	}
	return view, nil
}

// Current returns the meter screen under the cursor.
func (s *Session) Current() (MeterView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, meter, err := s.currentMeter()
	if err != nil {
		return MeterView{}, err
	}
	sess, err := s.store.Get(meter.ID)
	if err != nil {
		return MeterView{}, fmt.Errorf("load session for meter %s: %w", meter.ID, err)
	}
	history := s.historyFor(meter)
	summary := domain.ComputeSummary(history, s.target)

	view := MeterView{
		Index:            idx,
		Meter:            domain.MeterRecord{ID: meter.ID, Address: meter.Address},
		History:          history,
		Summary:          summary,
		DisplayAverage:   summary.DisplayAverage(),
		Previous:         previousOf(summary),
		Session:          sess,
		Workflow:         workflowView(s.workflow),
		UnconfirmPending: s.unconfirmMeter == meter.ID,
		HistoryWarning:   s.historyWarnings[meter.ID],
	}
	if a, ok := s.guard.Pending(); ok {
		view.PendingNav = &a
	}
	return view, nil
}

// EnterReading stores the text typed for the current meter.
func (s *Session) EnterReading(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, meter, err := s.currentMeter()
	if err != nil {
		return err
	}
	if err := s.requireNoDialog(); err != nil {
		return err
	}
	sess, err := s.store.Get(meter.ID)
	if err != nil {
		return fmt.Errorf("load session for meter %s: %w", meter.ID, err)
	}
	if sess.IsConfirmed {
		return ErrReadingLocked
	}
	if err := s.store.SetReading(meter.ID, text); err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

// Confirm validates and classifies the current meter's reading. A normal
// reading is confirmed at once; any other classification opens a
// verification dialog that must be completed or cancelled.
func (s *Session) Confirm() (ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireNoDialog(); err != nil {
		return ConfirmResult{}, err
	}
	return s.confirm()
}

func (s *Session) confirm() (ConfirmResult, error) {
	_, meter, err := s.currentMeter()
	if err != nil {
		return ConfirmResult{}, err
	}
	sess, err := s.store.Get(meter.ID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("load session for meter %s: %w", meter.ID, err)
	}
	if sess.IsConfirmed {
		res := ConfirmResult{Classification: domain.ClassificationNormal, Confirmed: true, AlreadyConfirmed: true}
		if sess.Verification != nil {
			res.Classification = sess.Verification.Classification
		}
		return res, nil
	}

	value, err := domain.ParseReading(sess.InputText)
	if err != nil {
		return ConfirmResult{}, err
	}
	summary := domain.ComputeSummary(s.historyFor(meter), s.target)
	var previous *float64
	if summary.Anchor != nil {
		previous = summary.Anchor.Value
	}
	kind := domain.Classify(value, previous, summary.AverageConsumption)

	if !kind.RequiresVerification() {
		if err := s.markConfirmed(meter.ID, nil); err != nil {
			return ConfirmResult{}, err
		}
		s.metrics.Confirmations.WithLabelValues(string(kind)).Inc()
		s.logger.Info("reading confirmed", "meter_id", meter.ID, "classification", kind)
		return ConfirmResult{Classification: kind, Confirmed: true}, nil
	}

	wf, err := workflow.New(meter.ID, sess.InputText, kind, workflow.Figures{
		Candidate: value,
		Previous:  *previous,
		Average:   summary.AverageConsumption,
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := wf.Open(); err != nil {
		return ConfirmResult{}, err
	}
	s.workflow = wf
	s.logger.Info("verification required",
		"meter_id", meter.ID,
		"classification", kind,
		"consumption", wf.Figures().Consumption(),
	)
	return ConfirmResult{Classification: kind, Workflow: workflowView(wf)}, nil
}

// markConfirmed writes the verification record before the confirmed flag and
// undoes whichever write succeeded when the other fails, so a meter is never
// left confirmed without its record.
func (s *Session) markConfirmed(meterID string, rec *domain.VerificationRecord) error {
	if err := s.store.SetVerification(meterID, rec); err != nil {
		if rec != nil {
			s.rollbackConfirm(meterID)
		}
		return fmt.Errorf("save verification: %w", err)
	}
	if err := s.store.SetConfirmed(meterID, true); err != nil {
		s.rollbackConfirm(meterID)
		return fmt.Errorf("save confirmed flag: %w", err)
	}
	return nil
}

func (s *Session) rollbackConfirm(meterID string) {
	if err := s.store.SetVerification(meterID, nil); err != nil {
		s.logger.Error("rollback verification", "meter_id", meterID, "error", err)
	}
	if err := s.store.SetConfirmed(meterID, false); err != nil {
		s.logger.Error("rollback confirmed flag", "meter_id", meterID, "error", err)
	}
}

// RequestUnconfirm opens the prompt that must be accepted before a confirmed
// reading can be edited again.
func (s *Session) RequestUnconfirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, meter, err := s.currentMeter()
	if err != nil {
		return err
	}
	if err := s.requireNoDialog(); err != nil {
		return err
	}
	sess, err := s.store.Get(meter.ID)
	if err != nil {
		return fmt.Errorf("load session for meter %s: %w", meter.ID, err)
	}
	if !sess.IsConfirmed {
		return ErrNotConfirmed
	}
	s.unconfirmMeter = meter.ID
	return nil
}

// ResolveUnconfirm closes the unconfirm prompt. Accepting clears the
// confirmed flag and discards any verification record.
func (s *Session) ResolveUnconfirm(accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meterID := s.unconfirmMeter
	if meterID == "" {
		return ErrNoUnconfirmPending
	}
	s.unconfirmMeter = ""
	if !accept {
		return nil
	}
	if err := s.store.SetConfirmed(meterID, false); err != nil {
		return fmt.Errorf("clear confirmed flag: %w", err)
	}
	s.logger.Info("reading unconfirmed", "meter_id", meterID)
	return nil
}

// Reset discards every reading of the route and returns home.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.clearRouteState(); err != nil {
		return err
	}
	s.submission = nil
	s.cursor = navigation.Home
	s.logger.Info("route session reset", "route_id", s.routeID)
	return nil
}

func (s *Session) clearRouteState() error {
	if err := s.store.ClearAll(); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	if err := s.store.ClearLastViewedIndex(); err != nil {
		return fmt.Errorf("clear last viewed index: %w", err)
	}
	if err := s.store.DeleteSnapshot(s.user); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	s.workflow = nil
	s.unconfirmMeter = ""
	s.guard.Reset()
	s.loader.invalidate()
	return nil
}

func (s *Session) currentMeter() (int, domain.MeterRecord, error) {
	if !s.cursor.IsMeter(len(s.meters)) {
		return 0, domain.MeterRecord{}, ErrNoMeterSelected
	}
	idx := int(s.cursor)
	return idx, s.meters[idx], nil
}

func (s *Session) requireNoDialog() error {
	if s.workflow != nil {
		return ErrWorkflowOpen
	}
	if s.unconfirmMeter != "" || s.guard.State() != navigation.StateNoPending {
		return ErrPromptOpen
	}
	return nil
}

// historyFor prefers a fetched history over the route dataset's.
func (s *Session) historyFor(m domain.MeterRecord) domain.History {
	if h, ok := s.histories[m.ID]; ok {
		return h
	}
	return domain.ParseHistory(m.History)
}

func previousOf(summary domain.ConsumptionSummary) domain.PreviousReading {
	if summary.Anchor == nil {
		return domain.PreviousReading{}
	}
	return domain.PreviousReading{Value: summary.Anchor.Value}
}
