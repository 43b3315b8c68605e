package route

import (
	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
	"github.com/couchcryptid/meter-route-service/internal/workflow"
)

// MeterStatus is the progress of one meter on the route.
type MeterStatus string

const (
	StatusPending   MeterStatus = "pending"
	StatusEntered   MeterStatus = "entered"
	StatusConfirmed MeterStatus = "confirmed"
)

func statusOf(s domain.ReadingSession) MeterStatus {
	switch {
	case s.IsConfirmed:
		return StatusConfirmed
	case s.InputText != "":
		return StatusEntered
	default:
		return StatusPending
	}
}

// MeterItem is one row of the route overview.
type MeterItem struct {
	Index   int         `json:"index"`
	ID      string      `json:"id"`
	Address string      `json:"address"`
	Status  MeterStatus `json:"status"`
}

// RouteView is the route overview shown on the home and review screens.
type RouteView struct {
	RouteID   string            `json:"routeId"`
	Period    domain.PeriodKey  `json:"period"`
	Screen    navigation.Screen `json:"screen"`
	Cursor    *int              `json:"cursor"`
	Meters    []MeterItem       `json:"meters"`
	Confirmed int               `json:"confirmed"`
}

// FiguresView are the numbers shown in a verification dialog.
type FiguresView struct {
	Candidate   float64 `json:"candidate"`
	Previous    float64 `json:"previous"`
	Average     float64 `json:"average"`
	Consumption float64 `json:"consumption"`
}

// WorkflowView describes an open verification dialog.
type WorkflowView struct {
	MeterID     string                `json:"meterId"`
	Kind        domain.Classification `json:"kind"`
	State       string                `json:"state"`
	Step        string                `json:"step"`
	Figures     FiguresView           `json:"figures"`
	CanComplete bool                  `json:"canComplete"`
}

func workflowView(w *workflow.Workflow) *WorkflowView {
	if w == nil {
		return nil
	}
	f := w.Figures()
	return &WorkflowView{
		MeterID: w.MeterID(),
		Kind:    w.Kind(),
		State:   w.State().String(),
		Step:    w.Step().String(),
		Figures: FiguresView{
			Candidate:   f.Candidate,
			Previous:    f.Previous,
			Average:     f.Average,
			Consumption: f.Consumption(),
		},
		CanComplete: w.CanComplete(),
	}
}

// MeterView is everything the meter screen needs.
type MeterView struct {
	Index            int                       `json:"index"`
	Meter            domain.MeterRecord        `json:"meter"`
	History          domain.History            `json:"history"`
	Summary          domain.ConsumptionSummary `json:"summary"`
	DisplayAverage   float64                   `json:"displayAverage"`
	Previous         domain.PreviousReading    `json:"previousReading"`
	Session          domain.ReadingSession     `json:"session"`
	Workflow         *WorkflowView             `json:"workflow,omitempty"`
	PendingNav       *navigation.Action        `json:"pendingNavigation,omitempty"`
	UnconfirmPending bool                      `json:"unconfirmPending"`
	HistoryWarning   string                    `json:"historyWarning,omitempty"`
}

// ConfirmResult is the outcome of a confirm attempt.
type ConfirmResult struct {
	Classification   domain.Classification `json:"classification"`
	Confirmed        bool                  `json:"confirmed"`
	AlreadyConfirmed bool                  `json:"alreadyConfirmed,omitempty"`
	Workflow         *WorkflowView         `json:"workflow,omitempty"`
	Navigated        *navigation.Action    `json:"navigated,omitempty"`
}

// NavigationResult is the outcome of a navigation request or prompt resolution.
type NavigationResult struct {
	Decision navigation.Decision `json:"decision,omitempty"`
	Outcome  navigation.Outcome  `json:"outcome,omitempty"`
	Pending  *navigation.Action  `json:"pending,omitempty"`
	Screen   navigation.Screen   `json:"screen"`
	Cursor   *int                `json:"cursor"`
	Confirm  *ConfirmResult      `json:"confirm,omitempty"`
}

// HistoryResult reports what a history refresh did.
type HistoryResult struct {
	MeterID string `json:"meterId"`
	Applied bool   `json:"applied"`
	Stale   bool   `json:"stale,omitempty"`
	Entries int    `json:"entries"`
	Warning string `json:"warning,omitempty"`
}

func cursorJSON(c navigation.Cursor) *int {
	if c == navigation.Home {
		return nil
	}
	v := int(c)
	return &v
}
