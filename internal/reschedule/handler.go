package reschedule

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/internal/observability/metrics"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// RescheduleRequest is the webhook payload sent by the voice agent. Only
// phone and new_datetime are required; the remaining fields, when present,
// let the handler skip the client search entirely.
type RescheduleRequest struct {
	Phone                string `json:"phone"`
	NewDatetime          string `json:"new_datetime"`
	AppointmentServiceID string `json:"appointment_service_id"`
	ServiceID            string `json:"service_id"`
	ClientID             string `json:"client_id"`
	Stylist              string `json:"stylist"`
	ConcurrencyCheck     string `json:"concurrency_check"`
}

// RescheduleResponse is the webhook reply. The agent reads the message or
// error field aloud, so both are written in caller-facing language. HTTP
// status is always 200; success carries the outcome.
type RescheduleResponse struct {
	Success              bool   `json:"success"`
	Rescheduled          bool   `json:"rescheduled,omitempty"`
	NewDatetime          string `json:"new_datetime,omitempty"`
	Message              string `json:"message,omitempty"`
	AppointmentServiceID string `json:"appointment_service_id,omitempty"`
	ServicesRescheduled  int    `json:"services_rescheduled,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Handler serves the reschedule webhook and the health check.
type Handler struct {
	api      *meevo.Client
	locator  *Locator
	executor *Executor
	logger   *logging.Logger
	metrics  *metrics.RescheduleMetrics

	environment string
	location    string
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(api *meevo.Client, locator *Locator, executor *Executor, logger *logging.Logger, m *metrics.RescheduleMetrics, environment, location string) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		api:         api,
		locator:     locator,
		executor:    executor,
		logger:      logger,
		metrics:     m,
		environment: environment,
		location:    location,
	}
}

// Reschedule handles POST /reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	outcome := "error"
	defer func() {
		h.metrics.ObserveRequest(outcome, time.Since(started).Seconds())
	}()

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body")
		return
	}

	h.logger.Info("reschedule request received",
		"phone_present", req.Phone != "",
		"new_datetime", req.NewDatetime,
		"appointment_service_id", req.AppointmentServiceID,
	)

	// Validation happens before any vendor call. Phone is optional when the
	// caller already carries the appointment service id.
	if req.NewDatetime == "" {
		h.writeError(w, "new date and time is required")
		return
	}
	newStart, err := parseVendorTime(req.NewDatetime)
	if err != nil {
		h.writeError(w, "new date and time is not in a recognized format")
		return
	}
	if req.AppointmentServiceID == "" && req.Phone == "" {
		h.writeError(w, "an appointment service ID or phone number is required")
		return
	}

	ctx := r.Context()

	// Warm the token cache so an auth failure surfaces here instead of being
	// swallowed by the page scans.
	if _, err := h.api.Token(ctx); err != nil {
		h.logger.Error("vendor authentication failed", "error", err)
		h.writeError(w, "the scheduling system is temporarily unavailable, please try again shortly")
		return
	}

	target, err := h.locator.Locate(ctx, LocateRequest{
		Phone:                req.Phone,
		AppointmentServiceID: req.AppointmentServiceID,
		ServiceID:            req.ServiceID,
		ClientID:             req.ClientID,
		Stylist:              req.Stylist,
		ConcurrencyCheck:     req.ConcurrencyCheck,
	})
	if err != nil {
		h.logger.Info("could not resolve reschedule target", "error", err)
		outcome = "not_found"
		h.writeError(w, vendorMessage(err))
		return
	}

	result, err := h.executor.Execute(ctx, target, newStart, req.NewDatetime)
	if err != nil {
		h.logger.Error("reschedule failed", "error", err)
		// The agent reads this aloud, so surface the vendor's own message
		// rather than the wrapped error chain.
		h.writeError(w, vendorMessage(err))
		return
	}

	outcome = "rescheduled"
	message := "Your appointment has been rescheduled."
	if result.ServicesRescheduled > 1 {
		message = "Your appointment and all of its services have been rescheduled."
	}
	h.writeJSON(w, RescheduleResponse{
		Success:              true,
		Rescheduled:          true,
		NewDatetime:          req.NewDatetime,
		Message:              message,
		AppointmentServiceID: result.AppointmentServiceID,
		ServicesRescheduled:  result.ServicesRescheduled,
	})
}

// Health handles GET /health. It reports service identity only and never
// calls the vendor, so it stays green during vendor outages.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":      "ok",
		"environment": h.environment,
		"location":    h.location,
		"service":     "Reschedule Appointment",
		"version":     "2.0.0",
		"features": []string{
			"linked profile support",
			"add-on preservation",
			"offset maintenance",
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string) {
	h.writeJSON(w, RescheduleResponse{Success: false, Error: msg})
}

// writeJSON always replies 200: the voice agent treats non-2xx as a dead
// webhook and hangs up, so failures are carried in the body instead.
func (h *Handler) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
