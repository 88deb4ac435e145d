package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/httpserver"
	"github.com/chillbot-io/openlabels/pkg/tenant"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	db     db.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(pool db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{db: pool, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseListParams(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ti := tenant.FromContext(r.Context())
	if ti == nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "bad_request", "tenant not resolved")
		return
	}

	arg := db.ListAuditLogsParams{
		TenantID: ti.ID,
		Since:    params.Since,
		Until:    params.Until,
		Limit:    int32(params.Limit + 1),
	}
	if params.Before != nil {
		arg.BeforeTime = params.Before.Time
		arg.BeforeID = params.Before.ID
	}

	entries, err := db.New(h.db).ListAuditLogs(r.Context(), arg)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	page := httpserver.NewPage(entries, params.Limit, func(e db.AuditLog) httpserver.PageKey {
		return httpserver.PageKey{Time: e.CreatedAt, ID: e.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}
