package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
	"github.com/couchcryptid/meter-route-service/internal/report"
	"github.com/couchcryptid/meter-route-service/internal/route"
	"github.com/couchcryptid/meter-route-service/internal/workflow"
)

// RouteService is the route session driven by the API. *route.Session
// satisfies it.
type RouteService interface {
	CheckReadiness(ctx context.Context) error
	View() (route.RouteView, error)
	Current() (route.MeterView, error)
	Navigate(kind navigation.ActionKind, index int) (route.NavigationResult, error)
	ResolveNavigation(choice navigation.Choice) (route.NavigationResult, error)
	EnterReading(text string) error
	Confirm() (route.ConfirmResult, error)
	WorkflowView() *route.WorkflowView
	Acknowledge() (route.ConfirmResult, error)
	AnswerDoor(answered bool) (*route.WorkflowView, error)
	ReportIssues(hadIssues bool, description string) (*route.WorkflowView, error)
	SetResidenceMonths(months string) (*route.WorkflowView, error)
	SetLooksLivedIn(lived bool) (*route.WorkflowView, error)
	CompleteWorkflow() (route.ConfirmResult, error)
	CancelWorkflow() error
	RequestUnconfirm() error
	ResolveUnconfirm(accept bool) error
	RefreshHistory(ctx context.Context) (route.HistoryResult, error)
	Finalize(ctx context.Context) (domain.Submission, error)
	LastSubmission() (domain.Submission, error)
	Reset() error
}

type routeAPI struct {
	svc    RouteService
	logger *slog.Logger
}

func (a *routeAPI) register(r *mux.Router) {
	r.HandleFunc("", a.handleView).Methods(http.MethodGet)
	r.HandleFunc("/current", a.handleCurrent).Methods(http.MethodGet)
	r.HandleFunc("/navigate", a.handleNavigate).Methods(http.MethodPost)
	r.HandleFunc("/navigation/resolve", a.handleResolveNavigation).Methods(http.MethodPost)
	r.HandleFunc("/reading", a.handleReading).Methods(http.MethodPut)
	r.HandleFunc("/confirm", a.handleConfirm).Methods(http.MethodPost)
	r.HandleFunc("/workflow", a.handleWorkflowView).Methods(http.MethodGet)
	r.HandleFunc("/workflow", a.handleWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/unconfirm", a.handleUnconfirm).Methods(http.MethodPost)
	r.HandleFunc("/unconfirm/resolve", a.handleResolveUnconfirm).Methods(http.MethodPost)
	r.HandleFunc("/history/refresh", a.handleRefreshHistory).Methods(http.MethodPost)
	r.HandleFunc("/finalize", a.handleFinalize).Methods(http.MethodPost)
	r.HandleFunc("/submission", a.handleSubmission).Methods(http.MethodGet)
	r.HandleFunc("/report.csv", a.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/reset", a.handleReset).Methods(http.MethodPost)
}

func (a *routeAPI) handleView(w http.ResponseWriter, _ *http.Request) {
	view, err := a.svc.View()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *routeAPI) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	view, err := a.svc.Current()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type navigateRequest struct {
	Target string `json:"target"`
	Index  int    `json:"index"`
}

func (a *routeAPI) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind := navigation.ActionKind(req.Target)
	if req.Target == "meter" {
		kind = navigation.ActionSelect
	}
	res, err := a.svc.Navigate(kind, req.Index)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resolveNavigationRequest struct {
	Choice navigation.Choice `json:"choice"`
}

func (a *routeAPI) handleResolveNavigation(w http.ResponseWriter, r *http.Request) {
	var req resolveNavigationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := a.svc.ResolveNavigation(req.Choice)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type readingRequest struct {
	Text string `json:"text"`
}

func (a *routeAPI) handleReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.svc.EnterReading(req.Text); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *routeAPI) handleConfirm(w http.ResponseWriter, _ *http.Request) {
	res, err := a.svc.Confirm()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *routeAPI) handleWorkflowView(w http.ResponseWriter, _ *http.Request) {
	view := a.svc.WorkflowView()
	if view == nil {
		a.writeError(w, route.ErrNoWorkflow)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type workflowRequest struct {
	Action      string `json:"action"`
	Answered    bool   `json:"answered"`
	HadIssues   bool   `json:"hadIssues"`
	Description string `json:"description"`
	Months      string `json:"months"`
	LivedIn     bool   `json:"livedIn"`
}

// handleWorkflow applies one action to the open verification dialog. Actions
// that finish the dialog answer with a ConfirmResult, the others with the
// updated dialog.
func (a *routeAPI) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		view *route.WorkflowView
		res  route.ConfirmResult
		err  error
	)
	switch req.Action {
	case "acknowledge":
		res, err = a.svc.Acknowledge()
	case "complete":
		res, err = a.svc.CompleteWorkflow()
	case "cancel":
		if err := a.svc.CancelWorkflow(); err != nil {
			a.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	case "answer_door":
		view, err = a.svc.AnswerDoor(req.Answered)
	case "issues":
		view, err = a.svc.ReportIssues(req.HadIssues, req.Description)
	case "residence":
		view, err = a.svc.SetResidenceMonths(req.Months)
	case "lived_in":
		view, err = a.svc.SetLooksLivedIn(req.LivedIn)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown workflow action " + req.Action})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	if view != nil {
		writeJSON(w, http.StatusOK, view)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *routeAPI) handleUnconfirm(w http.ResponseWriter, _ *http.Request) {
	if err := a.svc.RequestUnconfirm(); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resolveUnconfirmRequest struct {
	Accept bool `json:"accept"`
}

func (a *routeAPI) handleResolveUnconfirm(w http.ResponseWriter, r *http.Request) {
	var req resolveUnconfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.svc.ResolveUnconfirm(req.Accept); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *routeAPI) handleRefreshHistory(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.RefreshHistory(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *routeAPI) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sub, err := a.svc.Finalize(r.Context())
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			a.logger.Error("finalize failed", "error", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
			return
		}
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *routeAPI) handleSubmission(w http.ResponseWriter, _ *http.Request) {
	sub, err := a.svc.LastSubmission()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *routeAPI) handleReport(w http.ResponseWriter, _ *http.Request) {
	sub, err := a.svc.LastSubmission()
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sub.RouteID+`.csv"`)
	if err := report.WriteCSV(w, sub); err != nil {
		a.logger.Error("write csv report", "route_id", sub.RouteID, "error", err)
	}
}

func (a *routeAPI) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := a.svc.Reset(); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (a *routeAPI) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("route api error", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, workflow.ErrInvalidMonths):
		return http.StatusUnprocessableEntity
	case errors.Is(err, route.ErrInvalidTarget), errors.Is(err, navigation.ErrUnknownChoice):
		return http.StatusBadRequest
	case errors.Is(err, route.ErrNoSubmission):
		return http.StatusNotFound
	case errors.Is(err, route.ErrNoMeterSelected),
		errors.Is(err, route.ErrReadingLocked),
		errors.Is(err, route.ErrWorkflowOpen),
		errors.Is(err, route.ErrPromptOpen),
		errors.Is(err, route.ErrNoWorkflow),
		errors.Is(err, route.ErrNotConfirmed),
		errors.Is(err, route.ErrNoUnconfirmPending),
		errors.Is(err, navigation.ErrNoPending),
		errors.Is(err, workflow.ErrIncomplete),
		errors.Is(err, workflow.ErrWrongStep),
		errors.Is(err, workflow.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
