package audithandler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"statpay/internal/domain/audit"
	"statpay/internal/transport/http/api"
	"statpay/internal/transport/http/middleware"
	"statpay/internal/transport/http/shared"
)

const exportLimit = 10000

type Store interface {
	Count(ctx context.Context, filter audit.Filter) (int, error)
	List(ctx context.Context, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service Store
	log     *zap.Logger
}

func NewHandler(service Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.L()
	}
	return &Handler{Service: service, log: log.Named("http.audit")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", h.handleListEvents)
		r.Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		Action:        q.Get("action"),
		EntityType:    q.Get("entityType"),
		EntityID:      q.Get("entityId"),
		EmployerTaxID: q.Get("employerTaxId"),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 100, 500)
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	filter := filterFrom(r)

	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		h.log.Warn("audit count failed", zap.Error(err))
	}

	events, err := h.Service.List(r.Context(), filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		h.log.Error("audit list failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.List(r.Context(), filterFrom(r), false, exportLimit, 0)
	if err != nil {
		h.log.Error("audit export failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	rows := make([]*audit.Event, 0, len(events))
	for i := range events {
		rows = append(rows, &events[i])
	}
	data, err := gocsv.MarshalBytes(rows)
	if err != nil {
		h.log.Error("audit export encode failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}
	api.File(w, "text/csv", "audit-events.csv", data)
}
