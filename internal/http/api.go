package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"evcentral/internal/service"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 1000
)

// Central is the façade served by the API.
type Central interface {
	AddCharger(ctx context.Context, chargerID string) (service.ChargerView, error)
	ListChargers(ctx context.Context) ([]service.ChargerView, error)
	StartCharging(ctx context.Context, chargerID string) (service.CommandOutcome, error)
	StopCharging(ctx context.Context, chargerID string) (service.CommandOutcome, error)
	ListTransactions(ctx context.Context, limit int) ([]service.TransactionView, error)
}

type addChargerRequest struct {
	ID string `json:"id" validate:"required,max=64,excludesall=/?#"`
}

// API exposes the façade operations as JSON endpoints.
type API struct {
	central  Central
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAPI builds the API handlers.
func NewAPI(central Central, logger *zap.Logger) *API {
	return &API{central: central, validate: validator.New(), logger: logger}
}

// AddCharger handles POST /api/chargers.
func (a *API) AddCharger(w http.ResponseWriter, r *http.Request) {
	var req addChargerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid charger id")
		return
	}

	view, err := a.central.AddCharger(r.Context(), req.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListChargers handles GET /api/chargers.
func (a *API) ListChargers(w http.ResponseWriter, r *http.Request) {
	views, err := a.central.ListChargers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// StartCharging handles POST /api/chargers/{chargerID}/start.
func (a *API) StartCharging(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.central.StartCharging(r.Context(), chi.URLParam(r, "chargerID"))
	a.command(w, r, outcome, err)
}

// StopCharging handles POST /api/chargers/{chargerID}/stop.
func (a *API) StopCharging(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.central.StopCharging(r.Context(), chi.URLParam(r, "chargerID"))
	a.command(w, r, outcome, err)
}

// ListTransactions handles GET /api/transactions?limit=N.
func (a *API) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxTransactionLimit)
	}

	views, err := a.central.ListTransactions(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type commandResponse struct {
	service.CommandOutcome
	Error string `json:"error,omitempty"`
}

// command reports the outcome even on failure so callers see the charger status.
func (a *API) command(w http.ResponseWriter, r *http.Request, outcome service.CommandOutcome, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, outcome)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, status, commandResponse{CommandOutcome: outcome, Error: err.Error()})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
