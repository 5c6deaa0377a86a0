/*
handlers.go - HTTP handler implementations

PURPOSE:
  Binds every exposed operation of the leave service to a JSON endpoint.
  Handlers decode the DTO, resolve the acting identity, delegate to the
  service, and map errors onto status codes. No business rules live here.

ACTOR IDENTITY:
  Authentication is an external concern. The gateway in front of this
  service injects the verified identity as headers:
    X-Actor-Id    the acting user's id
    X-Actor-Role  employee | manager | hr

ERROR MAPPING:
  ValidationError             -> 400
  NotFoundError               -> 404
  ConflictError               -> 409 (stale version, overlap, duplicate)
  PolicyViolationError        -> 422
  StateTransitionError        -> 422
  InsufficientBalanceError    -> 422
  BlockedPeriodError          -> 422
  anything else               -> 500

SEE ALSO:
  - dto.go: Wire shapes
  - server.go: Route table
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/leave"
)

// Handler holds the service and its HTTP concerns.
type Handler struct {
	Service   *leave.Service
	Directory leave.Directory
	Log       *logrus.Logger

	// SaveEmployee mirrors directory rows into local storage. Nil
	// disables the endpoint for deployments with an external directory.
	SaveEmployee func(r *http.Request, e leave.Employee) error
}

func NewHandler(svc *leave.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{Service: svc, Directory: svc.Directory, Log: log}
}

// =============================================================================
// REQUEST WORKFLOW
// =============================================================================

// SubmitRequest handles POST /api/requests.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var dto SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	from, err := parseDate(dto.From, "from")
	if err != nil {
		h.writeError(w, err)
		return
	}
	to, err := parseDate(dto.To, "to")
	if err != nil {
		h.writeError(w, err)
		return
	}

	actor := actorFrom(r)
	req, err := h.Service.SubmitRequest(r.Context(), leave.SubmitInput{
		EmployeeID:       leave.EmployeeID(dto.EmployeeID),
		LeaveTypeID:      leave.LeaveTypeID(dto.LeaveTypeID),
		From:             from,
		To:               to,
		Justification:    dto.Justification,
		AttachmentID:     dto.AttachmentID,
		PostLeave:        dto.PostLeave,
		BlockedException: dto.BlockedException,
	}, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// GetRequest handles GET /api/requests/{id}.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))
	req, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListPendingRequests handles GET /api/requests/pending.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Service.Store.ListRequestsByStatus(r.Context(),
		leave.StatusSubmitted, leave.StatusManagerApproved)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]LeaveRequestDTO, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestDTO(&reqs[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ManagerApprove handles POST /api/requests/{id}/manager-approve.
func (h *Handler) ManagerApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id leave.RequestID, actor leave.Actor, dto DecisionDTO) (*leave.LeaveRequest, error) {
		return h.Service.ManagerApprove(r.Context(), id, actor, dto.ExpectedVersion)
	})
}

// ManagerReject handles POST /api/requests/{id}/manager-reject.
func (h *Handler) ManagerReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id leave.RequestID, actor leave.Actor, dto DecisionDTO) (*leave.LeaveRequest, error) {
		return h.Service.ManagerReject(r.Context(), id, actor, dto.Reason, dto.ExpectedVersion)
	})
}

// ReturnForCorrection handles POST /api/requests/{id}/return.
func (h *Handler) ReturnForCorrection(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id leave.RequestID, actor leave.Actor, dto DecisionDTO) (*leave.LeaveRequest, error) {
		return h.Service.ReturnForCorrection(r.Context(), id, actor, dto.Reason, dto.ExpectedVersion)
	})
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id leave.RequestID, actor leave.Actor, dto DecisionDTO) (*leave.LeaveRequest, error) {
		return h.Service.CancelRequest(r.Context(), id, actor, dto.ExpectedVersion)
	})
}

// decide is the shared shape of the single-verb transition endpoints.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(leave.RequestID, leave.Actor, DecisionDTO) (*leave.LeaveRequest, error)) {
	id := leave.RequestID(chi.URLParam(r, "id"))
	var dto DecisionDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
			return
		}
	}
	req, err := fn(id, actorFrom(r), dto)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// Resubmit handles POST /api/requests/{id}/resubmit.
func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))
	var dto ResubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	var corr leave.Corrections
	if dto.From != nil {
		t, err := parseDate(*dto.From, "from")
		if err != nil {
			h.writeError(w, err)
			return
		}
		corr.From = &t
	}
	if dto.To != nil {
		t, err := parseDate(*dto.To, "to")
		if err != nil {
			h.writeError(w, err)
			return
		}
		corr.To = &t
	}
	corr.Justification = dto.Justification
	corr.AttachmentID = dto.AttachmentID

	actor := actorFrom(r)
	req, err := h.Service.ResubmitCorrectedRequest(r.Context(), id, leave.EmployeeID(actor.ID), corr, dto.ExpectedVersion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// HRFinalize handles POST /api/requests/{id}/finalize.
func (h *Handler) HRFinalize(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))
	var dto FinalizeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	req, err := h.Service.HRFinalize(r.Context(), id, actorFrom(r), leave.FinalizeInput{
		Decision:      leave.FinalizeDecision(dto.Decision),
		AllowNegative: dto.AllowNegative,
		IsOverride:    dto.IsOverride,
		Reason:        dto.Reason,
	}, dto.ExpectedVersion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListEmployeeRequests handles GET /api/employees/{id}/requests.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	reqs, err := h.Service.ListEmployeeRequests(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]LeaveRequestDTO, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestDTO(&reqs[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// BALANCES
// =============================================================================

// GetEmployeeBalances handles GET /api/employees/{id}/balances?year=N.
func (h *Handler) GetEmployeeBalances(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	year := 0
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			h.writeError(w, &leave.ValidationError{Field: "year", Message: "year must be an integer"})
			return
		}
		year = parsed
	}

	balances, err := h.Service.GetEmployeeBalances(r.Context(), id, year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]BalanceDTO, 0, len(balances))
	for i := range balances {
		adjs := make([]AdjustmentDTO, 0, len(balances[i].Adjustments))
		for _, a := range balances[i].Adjustments {
			adjs = append(adjs, toAdjustmentDTO(a))
		}
		out = append(out, BalanceDTO{
			Entitlement: toEntitlementDTO(&balances[i].Entitlement),
			Adjustments: adjs,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// AssignEntitlement handles POST /api/admin/entitlements.
func (h *Handler) AssignEntitlement(w http.ResponseWriter, r *http.Request) {
	var dto AssignEntitlementDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	yearly, err := parseDecimal(dto.YearlyEntitlement, "yearly_entitlement")
	if err != nil {
		h.writeError(w, err)
		return
	}
	ent, err := h.Service.AssignEntitlement(r.Context(), leave.EntitlementKey{
		EmployeeID:  leave.EmployeeID(dto.EmployeeID),
		LeaveTypeID: leave.LeaveTypeID(dto.LeaveTypeID),
		Year:        dto.Year,
	}, yearly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toEntitlementDTO(ent))
}

// CreateAdjustment handles POST /api/admin/adjustments.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var dto CreateAdjustmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	amount, err := parseDecimal(dto.Amount, "amount")
	if err != nil {
		h.writeError(w, err)
		return
	}
	ent, err := h.Service.CreateAdjustment(r.Context(), leave.EntitlementKey{
		EmployeeID:  leave.EmployeeID(dto.EmployeeID),
		LeaveTypeID: leave.LeaveTypeID(dto.LeaveTypeID),
		Year:        dto.Year,
	}, amount, dto.Reason, actorFrom(r), dto.AllowNegative)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}

// =============================================================================
// ENGINE TRIGGERS (admin)
// =============================================================================

// RunAccrual handles POST /api/admin/accrual/run.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var dto RunAccrualDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	ref, err := parseDate(dto.ReferenceDate, "reference_date")
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.Service.RunAccrual(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// CarryForward handles POST /api/admin/carry-forward.
func (h *Handler) CarryForward(w http.ResponseWriter, r *http.Request) {
	dto, rules, ref, ok := h.decodeCarryForward(w, r)
	if !ok {
		return
	}
	results, err := h.Service.CarryForward(r.Context(), ref, rules, dto.DryRun)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCarryForwardResults(w, results)
}

// PreviewCarryForward handles POST /api/admin/carry-forward/preview.
func (h *Handler) PreviewCarryForward(w http.ResponseWriter, r *http.Request) {
	_, rules, ref, ok := h.decodeCarryForward(w, r)
	if !ok {
		return
	}
	results, err := h.Service.PreviewCarryForward(r.Context(), ref, rules)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCarryForwardResults(w, results)
}

func (h *Handler) decodeCarryForward(w http.ResponseWriter, r *http.Request) (CarryForwardDTO, leave.CarryForwardRules, time.Time, bool) {
	var dto CarryForwardDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return dto, leave.CarryForwardRules{}, time.Time{}, false
	}
	ref, err := parseDate(dto.ReferenceDate, "reference_date")
	if err != nil {
		h.writeError(w, err)
		return dto, leave.CarryForwardRules{}, time.Time{}, false
	}
	rules := leave.CarryForwardRules{
		Cap:          parseDecimalOrZero(dto.Cap),
		ExpiryMonths: dto.ExpiryMonths,
	}
	return dto, rules, ref, true
}

func (h *Handler) writeCarryForwardResults(w http.ResponseWriter, results []leave.CarryForwardComputation) {
	out := make([]CarryForwardComputationDTO, 0, len(results))
	for _, c := range results {
		out = append(out, toCarryForwardDTO(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// OverrideCarryForward handles POST /api/admin/carry-forward/override.
func (h *Handler) OverrideCarryForward(w http.ResponseWriter, r *http.Request) {
	var dto OverrideCarryForwardDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	days, err := parseDecimal(dto.Days, "days")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var expiry time.Time
	if dto.ExpiryDate != "" {
		expiry, err = parseDate(dto.ExpiryDate, "expiry_date")
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	rec, err := h.Service.OverrideCarryForward(r.Context(),
		leave.EmployeeID(dto.EmployeeID), leave.LeaveTypeID(dto.LeaveTypeID),
		dto.TargetYear, days, expiry, dto.Reason, actorFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCarryForwardRecordDTO(*rec))
}

// CarryForwardReport handles GET /api/admin/carry-forward/report?year=N.
func (h *Handler) CarryForwardReport(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		h.writeError(w, &leave.ValidationError{Field: "year", Message: "year must be an integer"})
		return
	}
	recs, err := h.Service.GetCarryForwardReport(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]CarryForwardRecordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCarryForwardRecordDTO(rec))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ResetLeaveYear handles POST /api/admin/reset-year.
func (h *Handler) ResetLeaveYear(w http.ResponseWriter, r *http.Request) {
	var dto ResetYearDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	cfg := leave.ResetConfig{
		TargetYear: dto.TargetYear,
		Strategy:   leave.ResetStrategy(dto.Strategy),
		DryRun:     dto.DryRun,
	}
	if dto.CustomBoundary != "" {
		b, err := parseDate(dto.CustomBoundary, "custom_boundary")
		if err != nil {
			h.writeError(w, err)
			return
		}
		cfg.CustomBoundary = b
	}
	for _, id := range dto.EmployeeIDs {
		cfg.EmployeeIDs = append(cfg.EmployeeIDs, leave.EmployeeID(id))
	}
	summary, err := h.Service.ResetLeaveYear(r.Context(), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// RunEscalation handles POST /api/admin/escalations/run.
func (h *Handler) RunEscalation(w http.ResponseWriter, r *http.Request) {
	var dto EscalationRunDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	summary, err := h.Service.CheckAndEscalateOverdue(r.Context(), leave.EscalationConfig{
		Threshold: time.Duration(dto.ThresholdHours) * time.Hour,
		Scope:     leave.DedupScope(dto.Scope),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// PAYROLL
// =============================================================================

// UnpaidDeduction handles POST /api/payroll/unpaid-deduction.
func (h *Handler) UnpaidDeduction(w http.ResponseWriter, r *http.Request) {
	var dto UnpaidDeductionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	salary, err := parseDecimal(dto.BaseSalary, "base_salary")
	if err != nil {
		h.writeError(w, err)
		return
	}
	days, err := parseDecimal(dto.UnpaidDays, "unpaid_days")
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := leave.CalculateUnpaidDeduction(leave.UnpaidDeductionInput{
		BaseSalary:      salary,
		WorkDaysInMonth: dto.WorkDaysInMonth,
		UnpaidDays:      days,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"daily_rate": result.DailyRate.Round(4).String(),
		"deduction":  result.Deduction.String(),
	})
}

// Encashment handles POST /api/payroll/encashment.
func (h *Handler) Encashment(w http.ResponseWriter, r *http.Request) {
	var dto EncashmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	rate, err := parseDecimal(dto.DailyRate, "daily_rate")
	if err != nil {
		h.writeError(w, err)
		return
	}
	days, err := parseDecimal(dto.UnusedDays, "unused_days")
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := leave.CalculateEncashment(leave.EncashmentInput{
		DailyRate:         rate,
		UnusedDays:        days,
		MaxEncashableDays: parseDecimalOrZero(dto.MaxEncashableDays),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"encashed_days": result.EncashedDays.String(),
		"payout":        result.Payout.String(),
		"capped":        result.Capped,
	})
}

// =============================================================================
// CALENDAR AND TYPES
// =============================================================================

// SaveCalendar handles PUT /api/calendars/{year}.
func (h *Handler) SaveCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, &leave.ValidationError{Field: "year", Message: "year must be an integer"})
		return
	}
	var dto CalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	cal := leave.Calendar{Year: year}
	for _, hd := range dto.Holidays {
		d, err := parseDate(hd.Date, "holidays.date")
		if err != nil {
			h.writeError(w, err)
			return
		}
		cal.Holidays = append(cal.Holidays, leave.Holiday{Date: d, Reason: hd.Reason})
	}
	for _, b := range dto.Blocked {
		from, err := parseDate(b.From, "blocked_periods.from")
		if err != nil {
			h.writeError(w, err)
			return
		}
		to, err := parseDate(b.To, "blocked_periods.to")
		if err != nil {
			h.writeError(w, err)
			return
		}
		cal.Blocked = append(cal.Blocked, leave.BlockedPeriod{From: from, To: to, Reason: b.Reason})
	}

	if err := h.Service.SaveCalendar(r.Context(), cal); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCalendarDTO(&cal))
}

// GetCalendar handles GET /api/calendars/{year}.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, &leave.ValidationError{Field: "year", Message: "year must be an integer"})
		return
	}
	cal, err := h.Service.GetCalendar(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCalendarDTO(cal))
}

// SaveLeaveType handles PUT /api/leave-types/{id}.
func (h *Handler) SaveLeaveType(w http.ResponseWriter, r *http.Request) {
	var dto LeaveTypeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	dto.ID = chi.URLParam(r, "id")
	if err := h.Service.SaveLeaveType(r.Context(), dto.toDomain()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// ListLeaveTypes handles GET /api/leave-types?active=true.
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	types, err := h.Service.ListLeaveTypes(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]LeaveTypeDTO, 0, len(types))
	for i := range types {
		out = append(out, toLeaveTypeDTO(&types[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// DIRECTORY MIRROR
// =============================================================================

// PutEmployee handles PUT /api/employees/{id}. Present only when the
// deployment mirrors its directory locally.
func (h *Handler) PutEmployee(w http.ResponseWriter, r *http.Request) {
	if h.SaveEmployee == nil {
		h.writeError(w, &leave.NotFoundError{Kind: "endpoint", ID: "employees"})
		return
	}
	var dto EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, &leave.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	dto.ID = chi.URLParam(r, "id")
	hire, err := parseDate(dto.HireDate, "hire_date")
	if err != nil {
		h.writeError(w, err)
		return
	}
	emp := leave.Employee{
		ID:        leave.EmployeeID(dto.ID),
		Name:      dto.Name,
		Email:     dto.Email,
		HireDate:  hire,
		ManagerID: leave.EmployeeID(dto.ManagerID),
		Active:    dto.Active,
	}
	if err := h.SaveEmployee(r, emp); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// GetEmployee handles GET /api/employees/{id}.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Employee(r.Context(), leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EmployeeDTO{
		ID:        string(emp.ID),
		Name:      emp.Name,
		Email:     emp.Email,
		HireDate:  emp.HireDate.Format(dateLayout),
		ManagerID: string(emp.ManagerID),
		Active:    emp.Active,
	})
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

func actorFrom(r *http.Request) leave.Actor {
	role := leave.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case leave.RoleEmployee, leave.RoleManager, leave.RoleHR, leave.RoleSystem:
	default:
		role = leave.RoleEmployee
	}
	return leave.Actor{ID: r.Header.Get("X-Actor-Id"), Role: role}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := ""

	switch {
	case errors.Is(err, leave.ErrValidation):
		status = http.StatusBadRequest
		kind = "validation"
	case errors.Is(err, leave.ErrNotFound):
		status = http.StatusNotFound
		kind = "not_found"
	case errors.Is(err, leave.ErrConflict):
		status = http.StatusConflict
		kind = "conflict"
	case errors.Is(err, leave.ErrPolicyViolation):
		status = http.StatusUnprocessableEntity
		kind = "policy_violation"
	case errors.Is(err, leave.ErrStateTransition):
		status = http.StatusUnprocessableEntity
		kind = "state_transition"
	}

	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed")
		h.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	h.writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.WithError(err).Warn("response encoding failed")
	}
}
