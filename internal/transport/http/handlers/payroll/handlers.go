package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"statpay/internal/domain/payroll"
	"statpay/internal/transport/http/api"
	"statpay/internal/transport/http/middleware"
	"statpay/internal/transport/http/shared"
)

// Service is the part of payroll.Service the HTTP layer uses.
type Service interface {
	SaveRecord(ctx context.Context, record payroll.CompensationRecord) (payroll.CompensationRecord, error)
	Preview(ctx context.Context, record payroll.CompensationRecord) (payroll.CalculationResult, error)
	LastPayslip(ctx context.Context, employeeID string) (payroll.LastPayslip, error)
	PayslipPDF(ctx context.Context, employeeID string) (payroll.ExportFile, error)
	Declare(ctx context.Context, in payroll.DeclareInput) (payroll.RunSummary, payroll.DeclarationBatch, error)
	GetRun(ctx context.Context, runID string) (payroll.RunSummary, payroll.DeclarationBatch, error)
	ListRuns(ctx context.Context, employerTaxID string, limit, offset int) ([]payroll.RunSummary, error)
	Export(ctx context.Context, runID, format string) (payroll.ExportFile, error)
	FiscalParameters() payroll.FiscalParameters
}

type Handler struct {
	Service Service
	log     *zap.Logger
}

func NewHandler(service Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.L()
	}
	return &Handler{Service: service, log: log.Named("http.payroll")}
}

type runResponse struct {
	Run   payroll.RunSummary       `json:"run"`
	Batch payroll.DeclarationBatch `json:"batch"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Post("/records", h.handleSaveRecord)
		r.Post("/records/import", h.handleImportRecords)
		r.Post("/preview", h.handlePreview)
		r.Get("/employees/{employeeID}/last-payslip", h.handleLastPayslip)
		r.Get("/employees/{employeeID}/last-payslip/pdf", h.handleLastPayslipPDF)
		r.Get("/declarations", h.handleListDeclarations)
		r.Post("/declarations", h.handleDeclare)
		r.Get("/declarations/{runID}", h.handleGetDeclaration)
		r.Get("/declarations/{runID}/export", h.handleExportDeclaration)
		r.Get("/fiscal-parameters", h.handleFiscalParameters)
		r.Get("/declaration-id", h.handleDeclarationID)
	})
}

func (h *Handler) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var payload payroll.CompensationRecord
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if validateRecord(payload).Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	saved, err := h.Service.SaveRecord(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Created(w, saved, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var payload payroll.CompensationRecord
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	result, err := h.Service.Preview(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleLastPayslip(w http.ResponseWriter, r *http.Request) {
	last, err := h.Service.LastPayslip(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, last, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleLastPayslipPDF(w http.ResponseWriter, r *http.Request) {
	file, err := h.Service.PayslipPDF(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.File(w, file.ContentType, file.Name, file.Data)
}

func (h *Handler) handleDeclare(w http.ResponseWriter, r *http.Request) {
	var payload payroll.DeclareInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Required("employerTaxId", payload.EmployerTaxID, "is required")
	v.Period("month", payload.Month, "year", payload.Year)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	run, batch, err := h.Service.Declare(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Created(w, runResponse{Run: run, Batch: batch}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListDeclarations(w http.ResponseWriter, r *http.Request) {
	employerTaxID := strings.TrimSpace(r.URL.Query().Get("employerTaxId"))
	v := shared.NewValidator()
	v.Required("employerTaxId", employerTaxID, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	page := shared.ParsePagination(r, 20, 100)
	runs, err := h.Service.ListRuns(r.Context(), employerTaxID, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []payroll.RunSummary{}
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetDeclaration(w http.ResponseWriter, r *http.Request) {
	run, batch, err := h.Service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, runResponse{Run: run, Batch: batch}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportDeclaration(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	v := shared.NewValidator()
	v.Enum("format", format, []string{payroll.ExportFormatPDF, payroll.ExportFormatCSV}, "must be pdf or csv")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	if format == "" {
		format = payroll.ExportFormatPDF
	}
	file, err := h.Service.Export(r.Context(), chi.URLParam(r, "runID"), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.File(w, file.ContentType, file.Name, file.Data)
}

func (h *Handler) handleFiscalParameters(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Service.FiscalParameters(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeclarationID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := shared.NewValidator()
	month := queryInt(v, q.Get("month"), "month")
	year := queryInt(v, q.Get("year"), "year")
	workedDays := queryInt(v, q.Get("workedDays"), "workedDays")
	v.Required("employerTaxId", q.Get("employerTaxId"), "is required")
	v.Required("employeeTaxId", q.Get("employeeTaxId"), "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	regime := q.Get("regimeCode")
	if regime == "" {
		regime = payroll.RegimeCode(q.Get("riskCategory"))
	}
	id, err := payroll.BuildDeclarationID(month, q.Get("employerTaxId"), regime, year, q.Get("employeeTaxId"), workedDays)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, map[string]string{"declarationId": id}, middleware.GetRequestID(r.Context()))
}

// recordRow is one line of a compensation import. line_items holds
// "label=amount" pairs separated by ";".
type recordRow struct {
	EmployeeID         string `csv:"employee_id"`
	EmployerTaxID      string `csv:"employer_tax_id"`
	EmployeeTaxID      string `csv:"employee_tax_id"`
	PeriodMonth        int    `csv:"period_month"`
	PeriodYear         int    `csv:"period_year"`
	BaseSalary         string `csv:"base_salary"`
	TransportAllowance string `csv:"transport_allowance"`
	HousingAllowance   string `csv:"housing_allowance"`
	WorkedDays         int    `csv:"worked_days"`
	RiskCategory       string `csv:"risk_category"`
	LineItems          string `csv:"line_items"`
}

type importResult struct {
	Imported int                      `json:"imported"`
	Errors   []shared.ValidationIssue `json:"errors"`
}

func (h *Handler) handleImportRecords(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "unable to read csv payload", middleware.GetRequestID(r.Context()))
		return
	}
	var rows []*recordRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid csv payload", middleware.GetRequestID(r.Context()))
		return
	}

	result := importResult{Errors: []shared.ValidationIssue{}}
	for i, row := range rows {
		line := "row " + strconv.Itoa(i+2)
		record, err := row.record()
		if err != nil {
			result.Errors = append(result.Errors, shared.ValidationIssue{Field: line, Reason: err.Error()})
			continue
		}
		if issues := validateRecord(record).Issues(); len(issues) > 0 {
			result.Errors = append(result.Errors, shared.ValidationIssue{Field: line, Reason: issues[0].Field + " " + issues[0].Reason})
			continue
		}
		if _, err := h.Service.SaveRecord(r.Context(), record); err != nil {
			if isClientError(err) {
				result.Errors = append(result.Errors, shared.ValidationIssue{Field: line, Reason: err.Error()})
				continue
			}
			h.fail(w, r, err)
			return
		}
		result.Imported++
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (row recordRow) record() (payroll.CompensationRecord, error) {
	record := payroll.CompensationRecord{
		EmployeeID:    strings.TrimSpace(row.EmployeeID),
		EmployerTaxID: strings.TrimSpace(row.EmployerTaxID),
		EmployeeTaxID: strings.TrimSpace(row.EmployeeTaxID),
		PeriodMonth:   row.PeriodMonth,
		PeriodYear:    row.PeriodYear,
		WorkedDays:    row.WorkedDays,
		RiskCategory:  strings.TrimSpace(row.RiskCategory),
	}
	var err error
	if record.BaseSalary, err = parseAmount("base_salary", row.BaseSalary); err != nil {
		return payroll.CompensationRecord{}, err
	}
	if record.TransportAllowance, err = parseAmount("transport_allowance", row.TransportAllowance); err != nil {
		return payroll.CompensationRecord{}, err
	}
	if record.HousingAllowance, err = parseAmount("housing_allowance", row.HousingAllowance); err != nil {
		return payroll.CompensationRecord{}, err
	}
	for _, pair := range strings.Split(row.LineItems, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		label, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return payroll.CompensationRecord{}, errors.New("line_items must be label=amount pairs")
		}
		amount, err := parseAmount("line_items", raw)
		if err != nil {
			return payroll.CompensationRecord{}, err
		}
		record.LineItems = append(record.LineItems, payroll.EarningsLineItem{Label: strings.TrimSpace(label), Amount: amount})
	}
	return record, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New(field + " must be a number")
	}
	return value, nil
}

func validateRecord(record payroll.CompensationRecord) *shared.Validator {
	v := shared.NewValidator()
	v.Required("employeeId", record.EmployeeID, "is required")
	v.Required("employerTaxId", record.EmployerTaxID, "is required")
	v.Period("periodMonth", record.PeriodMonth, "periodYear", record.PeriodYear)
	v.IntRange("workedDays", record.WorkedDays, 0, 31)
	v.NonNegative("baseSalary", record.BaseSalary)
	v.NonNegative("transportAllowance", record.TransportAllowance)
	v.NonNegative("housingAllowance", record.HousingAllowance)
	return v
}

func queryInt(v *shared.Validator, raw, field string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		v.Add(field, "must be an integer")
		return 0
	}
	return value
}

func isClientError(err error) bool {
	status, _ := statusFor(err)
	return status < http.StatusInternalServerError
}

func statusFor(err error) (int, string) {
	for _, known := range []struct {
		err    error
		status int
	}{
		{payroll.ErrInvalidRecord, http.StatusBadRequest},
		{payroll.ErrInvalidDeclaration, http.StatusBadRequest},
		{payroll.ErrDeclarationField, http.StatusBadRequest},
		{payroll.ErrUnsupportedFormat, http.StatusBadRequest},
		{payroll.ErrRecordNotFound, http.StatusNotFound},
		{payroll.ErrSnapshotNotFound, http.StatusNotFound},
		{payroll.ErrRunNotFound, http.StatusNotFound},
		{payroll.ErrInvalidTransition, http.StatusConflict},
		{payroll.ErrSnapshotInvalid, http.StatusUnprocessableEntity},
	} {
		if errors.Is(err, known.err) {
			return known.status, known.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	reqID := middleware.GetRequestID(r.Context())
	if status == http.StatusInternalServerError {
		h.log.Error("payroll request failed", zap.String("path", r.URL.Path), zap.String("requestId", reqID), zap.Error(err))
		api.Fail(w, status, code, "internal server error", reqID)
		return
	}
	api.Fail(w, status, code, err.Error(), reqID)
}
