package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campusorch/enrollcore/internal/httpserver"
)

// Handler exposes read-only HTTP access to the audit chain: a
// cursor-paginated listing and an on-demand integrity check.
type Handler struct {
	logger *slog.Logger
	store  *PostgresStore
	chain  *Chain
}

// NewHandler creates an audit Handler over the given store. The chain it
// verifies is rebuilt from the same store, so a verify call always sees the
// persisted entries.
func NewHandler(logger *slog.Logger, store *PostgresStore) *Handler {
	return &Handler{logger: logger, store: store, chain: NewChain(store)}
}

// Routes returns a chi.Router with audit routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/verify", h.handleVerify)
	return r
}

// auditEntryResponse is the JSON shape of one audit entry.
type auditEntryResponse struct {
	ID           uuid.UUID      `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	ActorID      string         `json:"actor_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	EntryHash    string         `json:"entry_hash"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var afterTime *time.Time
	var afterID uuid.UUID
	if params.After != nil {
		afterTime = &params.After.CreatedAt
		afterID = params.After.ID
	}

	entries, err := h.store.Page(r.Context(), afterTime, afterID, params.Limit+1)
	if err != nil {
		h.logger.Error("listing audit entries", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit entries")
		return
	}

	items := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditEntryResponse{
			ID:           e.ID,
			Timestamp:    e.Timestamp,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			ActorID:      e.ActorID,
			Metadata:     e.Metadata,
			PreviousHash: e.PreviousHash,
			EntryHash:    e.EntryHash,
		})
	}

	page := httpserver.NewCursorPage(items, params.Limit, func(e auditEntryResponse) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.Timestamp, ID: e.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := h.chain.Verify(r.Context()); err != nil {
		h.logger.Error("audit chain integrity check failed", "error", err)
		httpserver.Respond(w, http.StatusConflict, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"valid": true})
}
