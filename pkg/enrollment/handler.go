package enrollment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campusorch/enrollcore/internal/httpserver"
)

// Handler provides HTTP handlers for the enrollment API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates an enrollment Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes returns a chi.Router with enrollment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleEnroll)
	r.Get("/", h.handleList)
	r.Delete("/{id}", h.handleDrop)
	return r
}

// enrollRequest is the body of POST /enrollments.
type enrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required,uuid"`
	Semester  string `json:"semester" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
}

// enrollmentResponse is the JSON shape of a successful enroll()/drop() call.
type enrollmentResponse struct {
	EnrollmentID     uuid.UUID `json:"enrollment_id"`
	Status           string    `json:"status"`
	WaitlistPosition int       `json:"waitlist_position,omitempty"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.service.Enroll(r.Context(), req.StudentID, req.SectionID, req.ActorID, req.Semester)
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, enrollmentResponse{
		EnrollmentID:     outcome.EnrollmentID,
		Status:           string(outcome.Status),
		WaitlistPosition: outcome.WaitlistPosition,
	})
}

func (h *Handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid enrollment id")
		return
	}
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "actor_id query parameter is required")
		return
	}

	outcome, err := h.service.Drop(r.Context(), id, actorID)
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, enrollmentResponse{
		EnrollmentID: outcome.EnrollmentID,
		Status:       string(outcome.Status),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "student_id query parameter is required")
		return
	}
	semester := r.URL.Query().Get("semester")

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	rows, err := h.service.ListEnrollments(r.Context(), studentID, semester)
	if err != nil {
		h.logger.Error("listing enrollments", "error", err, "student_id", studentID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list enrollments")
		return
	}

	total := len(rows)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(rows[start:end], params, total))
}

// respondEnrollError maps the enrollment Service's error surface onto HTTP
// status codes.
func (h *Handler) respondEnrollError(w http.ResponseWriter, err error) {
	var policyErr *PolicyDeniedError
	var concurrencyErr *ConcurrencyConflictError

	switch {
	case errors.As(err, &policyErr):
		httpserver.Respond(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "policy_denied",
			"message":        policyErr.Reason,
			"violated_rules": policyErr.ViolatedRules,
			"metadata":       policyErr.Metadata,
		})
	case errors.As(err, &concurrencyErr):
		httpserver.RespondError(w, http.StatusConflict, "concurrency_conflict", concurrencyErr.Error())
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrAlreadyEnrolled):
		httpserver.RespondError(w, http.StatusConflict, "already_enrolled", err.Error())
	case errors.Is(err, ErrSectionFull):
		httpserver.RespondError(w, http.StatusConflict, "section_full", err.Error())
	case errors.Is(err, ErrLockTimeout):
		httpserver.RespondError(w, http.StatusServiceUnavailable, "lock_timeout", err.Error())
	case errors.Is(err, ErrAuditFailure):
		h.logger.Error("audit chain append failed, enrollment not acknowledged", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "audit_failure", "enrollment could not be durably recorded")
	default:
		h.logger.Error("enrollment operation failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "enrollment operation failed")
	}
}
