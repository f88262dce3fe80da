// Package rest is the thin HTTP layer over the provisioning service. It
// translates requests and error categories; business logic stays in the
// service.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/idforge/idforge/internal/directory"
	"github.com/idforge/idforge/internal/mailbox"
	"github.com/idforge/idforge/internal/names"
	"github.com/idforge/idforge/internal/provision"
)

// Service is the provisioning surface the handlers delegate to.
type Service interface {
	CreateIdentity(ctx context.Context, req provision.CreateRequest) (*directory.Record, string, error)
	UpdateIdentity(ctx context.Context, employeeID string, req provision.UpdateRequest) (*directory.Record, []directory.Change, error)
	GetIdentity(ctx context.Context, employeeID string) (*directory.Record, error)
	EnableMailbox(ctx context.Context, employeeID string) (mailbox.EnableResult, error)
	DisableMailbox(ctx context.Context, employeeID string) error
}

// Handler wires identity endpoints to the provisioning service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("subsystem", "rest")}
}

// Register mounts the identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identities", h.handleCreate)
	r.Get("/identities/{employeeID}", h.handleGet)
	r.Patch("/identities/{employeeID}", h.handleUpdate)
	r.Post("/identities/{employeeID}/mailbox", h.handleEnableMailbox)
	r.Delete("/identities/{employeeID}/mailbox", h.handleDisableMailbox)
}

// createResponse returns the record together with the one-time credential.
type createResponse struct {
	Identity *directory.Record `json:"identity"`
	Password string            `json:"password"`
}

type updateResponse struct {
	Identity *directory.Record  `json:"identity"`
	Changes  []directory.Change `json:"changes"`
}

type mailboxResponse struct {
	Enabled        bool `json:"enabled"`
	AlreadyEnabled bool `json:"alreadyEnabled,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	var req provision.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, requestID, http.StatusBadRequest, "malformed request body")
		return
	}

	rec, password, err := h.service.CreateIdentity(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, requestID, "create identity", err)
		return
	}

	h.logger.InfoContext(r.Context(), "identity created",
		"request_id", requestID,
		"employee_id", rec.EmployeeID,
		"short_name", rec.ShortName,
		"duration_ms", time.Since(start).Milliseconds())
	h.writeJSON(w, http.StatusCreated, createResponse{Identity: rec, Password: password})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	employeeID := chi.URLParam(r, "employeeID")

	rec, err := h.service.GetIdentity(r.Context(), employeeID)
	if err != nil {
		h.writeServiceError(w, r, requestID, "get identity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	employeeID := chi.URLParam(r, "employeeID")
	start := time.Now()

	var req provision.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, requestID, http.StatusBadRequest, "malformed request body")
		return
	}

	rec, changes, err := h.service.UpdateIdentity(r.Context(), employeeID, req)
	if err != nil {
		h.writeServiceError(w, r, requestID, "update identity", err)
		return
	}

	h.logger.InfoContext(r.Context(), "identity update handled",
		"request_id", requestID,
		"employee_id", employeeID,
		"changes", len(changes),
		"duration_ms", time.Since(start).Milliseconds())
	if changes == nil {
		changes = []directory.Change{}
	}
	h.writeJSON(w, http.StatusOK, updateResponse{Identity: rec, Changes: changes})
}

func (h *Handler) handleEnableMailbox(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	employeeID := chi.URLParam(r, "employeeID")

	result, err := h.service.EnableMailbox(r.Context(), employeeID)
	if err != nil {
		h.writeServiceError(w, r, requestID, "enable mailbox", err)
		return
	}
	h.writeJSON(w, http.StatusOK, mailboxResponse{Enabled: true, AlreadyEnabled: result.AlreadyEnabled})
}

func (h *Handler) handleDisableMailbox(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	employeeID := chi.URLParam(r, "employeeID")

	if err := h.service.DisableMailbox(r.Context(), employeeID); err != nil {
		h.writeServiceError(w, r, requestID, "disable mailbox", err)
		return
	}
	h.writeJSON(w, http.StatusOK, mailboxResponse{Enabled: false})
}

// writeServiceError maps error categories onto status codes: not-found and
// the disabled-container guard to 404, conflicts and short name exhaustion
// to 409, validation to 400, everything else to 500 with the failing
// operation named.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, requestID, op string, err error) {
	var (
		vErr      *provision.ValidationError
		exhausted *names.ShortNamesExhaustedError
	)

	status := http.StatusInternalServerError
	message := op + " failed"

	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
		message = vErr.Error()
	case errors.As(err, &exhausted):
		status = http.StatusConflict
		message = exhausted.Error()
	case directory.IsNotFound(err):
		status = http.StatusNotFound
		message = "identity not found"
	case directory.IsConflict(err):
		status = http.StatusConflict
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", requestID,
			"error", err)
	} else {
		h.logger.InfoContext(r.Context(), op+" rejected",
			"request_id", requestID,
			"status", status,
			"error", err)
	}

	h.writeError(w, requestID, status, message)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestID"`
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, RequestID: requestID})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
