package jobshandler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"statpay/internal/platform/jobs"
	"statpay/internal/transport/http/api"
	"statpay/internal/transport/http/middleware"
	"statpay/internal/transport/http/shared"
)

type Store interface {
	ListRuns(ctx context.Context, filter jobs.RunFilter, limit, offset int) ([]jobs.Run, error)
	CountRuns(ctx context.Context, filter jobs.RunFilter) (int, error)
	RunByID(ctx context.Context, runID string) (jobs.Run, error)
	RunNow(ctx context.Context, jobType string, run jobs.RunFunc) (any, error)
}

type Handler struct {
	Service       Store
	FiscalRefresh jobs.RunFunc
	log           *zap.Logger
}

func NewHandler(service Store, fiscalRefresh jobs.RunFunc, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.L()
	}
	return &Handler{Service: service, FiscalRefresh: fiscalRefresh, log: log.Named("http.jobs")}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{runID}", h.handleGetRun)
		r.Post("/fiscal-refresh", h.handleFiscalRefresh)
	})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	filter := jobs.RunFilter{
		JobType: r.URL.Query().Get("jobType"),
		Status:  r.URL.Query().Get("status"),
	}
	v := shared.NewValidator()
	filter.StartedFrom = parseTime(v, "startedFrom", r.URL.Query().Get("startedFrom"))
	filter.StartedTo = parseTime(v, "startedTo", r.URL.Query().Get("startedTo"))
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	total, err := h.Service.CountRuns(r.Context(), filter)
	if err != nil {
		h.log.Warn("job run count failed", zap.Error(err))
	}
	runs, err := h.Service.ListRuns(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		h.log.Error("job run list failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.RunByID(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, jobs.ErrRunNotFound) {
			api.Fail(w, http.StatusNotFound, jobs.ErrRunNotFound.Error(), "job run not found", middleware.GetRequestID(r.Context()))
			return
		}
		h.log.Error("job run lookup failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to load job run", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleFiscalRefresh(w http.ResponseWriter, r *http.Request) {
	details, err := h.Service.RunNow(r.Context(), jobs.JobFiscalRefresh, h.FiscalRefresh)
	if err != nil {
		api.Fail(w, http.StatusUnprocessableEntity, "fiscal_refresh_failed", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

func parseTime(v *shared.Validator, field, raw string) *time.Time {
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		v.Add(field, "must be an RFC3339 timestamp")
		return nil
	}
	return &parsed
}
