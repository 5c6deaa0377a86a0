/*
dto.go - HTTP request/response shapes

PURPOSE:
  JSON contracts of the HTTP layer. Day and money amounts travel as
  strings so no precision is lost in transit; dates travel as
  "2006-01-02". Conversion to core types happens here, never in
  handlers.

SEE ALSO:
  - handlers.go: Users of these shapes
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUESTS
// =============================================================================

type SubmitRequestDTO struct {
	EmployeeID       string `json:"employee_id"`
	LeaveTypeID      string `json:"leave_type_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	Justification    string `json:"justification,omitempty"`
	AttachmentID     string `json:"attachment_id,omitempty"`
	PostLeave        bool   `json:"post_leave,omitempty"`
	BlockedException bool   `json:"blocked_exception,omitempty"`
}

type DecisionDTO struct {
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type FinalizeDTO struct {
	Decision        string `json:"decision"`
	Reason          string `json:"reason,omitempty"`
	AllowNegative   bool   `json:"allow_negative,omitempty"`
	IsOverride      bool   `json:"is_override,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type ResubmitDTO struct {
	From            *string `json:"from,omitempty"`
	To              *string `json:"to,omitempty"`
	Justification   *string `json:"justification,omitempty"`
	AttachmentID    *string `json:"attachment_id,omitempty"`
	ExpectedVersion int64   `json:"expected_version,omitempty"`
}

type StageStampDTO struct {
	Status  string    `json:"status"`
	ActorID string    `json:"actor_id"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

type LeaveRequestDTO struct {
	ID             string          `json:"id"`
	EmployeeID     string          `json:"employee_id"`
	LeaveTypeID    string          `json:"leave_type_id"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	DurationDays   string          `json:"duration_days"`
	Justification  string          `json:"justification,omitempty"`
	AttachmentID   string          `json:"attachment_id,omitempty"`
	PostLeave      bool            `json:"post_leave,omitempty"`
	Status         string          `json:"status"`
	Stages         []StageStampDTO `json:"stages"`
	ReturnReason   string          `json:"return_reason,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	Irregular      bool            `json:"irregular,omitempty"`
	StageEnteredAt time.Time       `json:"stage_entered_at"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toRequestDTO(r *leave.LeaveRequest) LeaveRequestDTO {
	stages := make([]StageStampDTO, 0, len(r.Stages))
	for _, s := range r.Stages {
		stages = append(stages, StageStampDTO{
			Status: string(s.Status), ActorID: s.ActorID, Note: s.Note, At: s.At,
		})
	}
	return LeaveRequestDTO{
		ID:             string(r.ID),
		EmployeeID:     string(r.EmployeeID),
		LeaveTypeID:    string(r.LeaveTypeID),
		From:           r.From.Format(dateLayout),
		To:             r.To.Format(dateLayout),
		DurationDays:   r.DurationDays.String(),
		Justification:  r.Justification,
		AttachmentID:   r.AttachmentID,
		PostLeave:      r.PostLeave,
		Status:         string(r.Status),
		Stages:         stages,
		ReturnReason:   r.ReturnReason,
		RejectReason:   r.RejectReason,
		Irregular:      r.Irregular,
		StageEnteredAt: r.StageEnteredAt,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

type EntitlementDTO struct {
	EmployeeID        string    `json:"employee_id"`
	LeaveTypeID       string    `json:"leave_type_id"`
	Year              int       `json:"year"`
	YearlyEntitlement string    `json:"yearly_entitlement"`
	AccruedActual     string    `json:"accrued_actual"`
	AccruedRounded    string    `json:"accrued_rounded"`
	CarryForward      string    `json:"carry_forward"`
	ManualAdjust      string    `json:"manual_adjust"`
	Taken             string    `json:"taken"`
	Remaining         string    `json:"remaining"`
	AccruedThrough    string    `json:"accrued_through"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toEntitlementDTO(e *leave.Entitlement) EntitlementDTO {
	return EntitlementDTO{
		EmployeeID:        string(e.Key.EmployeeID),
		LeaveTypeID:       string(e.Key.LeaveTypeID),
		Year:              e.Key.Year,
		YearlyEntitlement: e.YearlyEntitlement.String(),
		AccruedActual:     e.AccruedActual.String(),
		AccruedRounded:    e.AccruedRounded.String(),
		CarryForward:      e.CarryForward.String(),
		ManualAdjust:      e.ManualAdjust.String(),
		Taken:             e.Taken.String(),
		Remaining:         e.Remaining.String(),
		AccruedThrough:    e.AccruedThrough.Format(dateLayout),
		Version:           e.Version,
		UpdatedAt:         e.UpdatedAt,
	}
}

type AdjustmentDTO struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	ActualAmount string    `json:"actual_amount,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ActorID      string    `json:"actor_id"`
	Override     bool      `json:"override,omitempty"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAdjustmentDTO(a leave.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:           a.ID,
		Type:         string(a.Type),
		Amount:       a.Amount.String(),
		ActualAmount: a.ActualAmount.String(),
		Reason:       a.Reason,
		ActorID:      a.ActorID,
		Override:     a.Override,
		ReferenceID:  a.ReferenceID,
		CreatedAt:    a.CreatedAt,
	}
}

type BalanceDTO struct {
	Entitlement EntitlementDTO  `json:"entitlement"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
}

type AssignEntitlementDTO struct {
	EmployeeID        string `json:"employee_id"`
	LeaveTypeID       string `json:"leave_type_id"`
	Year              int    `json:"year"`
	YearlyEntitlement string `json:"yearly_entitlement"`
}

type CreateAdjustmentDTO struct {
	EmployeeID    string `json:"employee_id"`
	LeaveTypeID   string `json:"leave_type_id"`
	Year          int    `json:"year"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
	AllowNegative bool   `json:"allow_negative,omitempty"`
}

// =============================================================================
// ENGINES
// =============================================================================

type RunAccrualDTO struct {
	ReferenceDate string `json:"reference_date"`
}

type CarryForwardDTO struct {
	ReferenceDate string `json:"reference_date"`
	Cap           string `json:"cap,omitempty"`
	ExpiryMonths  int    `json:"expiry_months,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type CarryForwardComputationDTO struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	SourceYear  int    `json:"source_year"`
	TargetYear  int    `json:"target_year"`
	Remaining   string `json:"remaining"`
	Carry       string `json:"carry"`
	Capped      bool   `json:"capped,omitempty"`
	ExpiryDate  string `json:"expiry_date"`
}

func toCarryForwardDTO(c leave.CarryForwardComputation) CarryForwardComputationDTO {
	return CarryForwardComputationDTO{
		EmployeeID:  string(c.Key.EmployeeID),
		LeaveTypeID: string(c.Key.LeaveTypeID),
		SourceYear:  c.Key.Year,
		TargetYear:  c.TargetYear,
		Remaining:   c.Remaining.String(),
		Carry:       c.Carry.String(),
		Capped:      c.Capped,
		ExpiryDate:  c.ExpiryDate.Format(dateLayout),
	}
}

type OverrideCarryForwardDTO struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	TargetYear  int    `json:"target_year"`
	Days        string `json:"days"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
	Reason      string `json:"reason"`
}

type CarryForwardRecordDTO struct {
	EmployeeID  string    `json:"employee_id"`
	LeaveTypeID string    `json:"leave_type_id"`
	TargetYear  int       `json:"target_year"`
	Days        string    `json:"days"`
	ExpiryDate  string    `json:"expiry_date"`
	Reason      string    `json:"reason,omitempty"`
	Overridden  bool      `json:"overridden,omitempty"`
	Expired     bool      `json:"expired,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCarryForwardRecordDTO(r leave.CarryForwardRecord) CarryForwardRecordDTO {
	return CarryForwardRecordDTO{
		EmployeeID:  string(r.EmployeeID),
		LeaveTypeID: string(r.LeaveTypeID),
		TargetYear:  r.TargetYear,
		Days:        r.Days.String(),
		ExpiryDate:  r.ExpiryDate.Format(dateLayout),
		Reason:      r.Reason,
		Overridden:  r.Overridden,
		Expired:     r.Expired,
		CreatedAt:   r.CreatedAt,
	}
}

type ResetYearDTO struct {
	TargetYear     int      `json:"target_year"`
	Strategy       string   `json:"strategy,omitempty"`
	CustomBoundary string   `json:"custom_boundary,omitempty"`
	EmployeeIDs    []string `json:"employee_ids,omitempty"`
	DryRun         bool     `json:"dry_run,omitempty"`
}

type EscalationRunDTO struct {
	ThresholdHours int    `json:"threshold_hours"`
	Scope          string `json:"scope,omitempty"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type UnpaidDeductionDTO struct {
	BaseSalary      string `json:"base_salary"`
	WorkDaysInMonth int    `json:"work_days_in_month"`
	UnpaidDays      string `json:"unpaid_days"`
}

type EncashmentDTO struct {
	DailyRate         string `json:"daily_rate"`
	UnusedDays        string `json:"unused_days"`
	MaxEncashableDays string `json:"max_encashable_days,omitempty"`
}

// =============================================================================
// CALENDAR AND TYPES
// =============================================================================

type HolidayDTO struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

type BlockedPeriodDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type CalendarDTO struct {
	Year     int                `json:"year"`
	Holidays []HolidayDTO       `json:"holidays"`
	Blocked  []BlockedPeriodDTO `json:"blocked_periods"`
}

func toCalendarDTO(c *leave.Calendar) CalendarDTO {
	dto := CalendarDTO{Year: c.Year, Holidays: []HolidayDTO{}, Blocked: []BlockedPeriodDTO{}}
	for _, h := range c.Holidays {
		dto.Holidays = append(dto.Holidays, HolidayDTO{Date: h.Date.Format(dateLayout), Reason: h.Reason})
	}
	for _, b := range c.Blocked {
		dto.Blocked = append(dto.Blocked, BlockedPeriodDTO{
			From: b.From.Format(dateLayout), To: b.To.Format(dateLayout), Reason: b.Reason,
		})
	}
	return dto
}

type LeavePolicyDTO struct {
	AccrualMethod       string `json:"accrual_method"`
	MonthlyRate         string `json:"monthly_rate,omitempty"`
	YearlyRate          string `json:"yearly_rate,omitempty"`
	Rounding            string `json:"rounding,omitempty"`
	CarryForwardAllowed bool   `json:"carry_forward_allowed,omitempty"`
	MaxCarryForward     string `json:"max_carry_forward,omitempty"`
	ExpiryAfterMonths   int    `json:"expiry_after_months,omitempty"`
	MinNoticeDays       int    `json:"min_notice_days,omitempty"`
	MaxConsecutiveDays  int    `json:"max_consecutive_days,omitempty"`
}

type LeaveTypeDTO struct {
	ID                 string         `json:"id"`
	Code               string         `json:"code"`
	Name               string         `json:"name"`
	CategoryID         string         `json:"category_id,omitempty"`
	Paid               bool           `json:"paid"`
	Deductible         bool           `json:"deductible"`
	RequiresAttachment bool           `json:"requires_attachment,omitempty"`
	AttachmentKind     string         `json:"attachment_kind,omitempty"`
	MinTenureMonths    int            `json:"min_tenure_months,omitempty"`
	MaxDurationDays    int            `json:"max_duration_days,omitempty"`
	Active             bool           `json:"active"`
	Policy             LeavePolicyDTO `json:"policy"`
}

func toLeaveTypeDTO(lt *leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                 string(lt.ID),
		Code:               lt.Code,
		Name:               lt.Name,
		CategoryID:         lt.CategoryID,
		Paid:               lt.Paid,
		Deductible:         lt.Deductible,
		RequiresAttachment: lt.RequiresAttachment,
		AttachmentKind:     lt.AttachmentKind,
		MinTenureMonths:    lt.MinTenureMonths,
		MaxDurationDays:    lt.MaxDurationDays,
		Active:             lt.Active,
		Policy: LeavePolicyDTO{
			AccrualMethod:       string(lt.Policy.AccrualMethod),
			MonthlyRate:         lt.Policy.MonthlyRate.String(),
			YearlyRate:          lt.Policy.YearlyRate.String(),
			Rounding:            string(lt.Policy.Rounding),
			CarryForwardAllowed: lt.Policy.CarryForwardAllowed,
			MaxCarryForward:     lt.Policy.MaxCarryForward.String(),
			ExpiryAfterMonths:   lt.Policy.ExpiryAfterMonths,
			MinNoticeDays:       lt.Policy.MinNoticeDays,
			MaxConsecutiveDays:  lt.Policy.MaxConsecutiveDays,
		},
	}
}

func (dto LeaveTypeDTO) toDomain() leave.LeaveType {
	return leave.LeaveType{
		ID:                 leave.LeaveTypeID(dto.ID),
		Code:               dto.Code,
		Name:               dto.Name,
		CategoryID:         dto.CategoryID,
		Paid:               dto.Paid,
		Deductible:         dto.Deductible,
		RequiresAttachment: dto.RequiresAttachment,
		AttachmentKind:     dto.AttachmentKind,
		MinTenureMonths:    dto.MinTenureMonths,
		MaxDurationDays:    dto.MaxDurationDays,
		Active:             dto.Active,
		Policy: leave.LeavePolicy{
			AccrualMethod:       leave.AccrualMethod(dto.Policy.AccrualMethod),
			MonthlyRate:         parseDecimalOrZero(dto.Policy.MonthlyRate),
			YearlyRate:          parseDecimalOrZero(dto.Policy.YearlyRate),
			Rounding:            leave.RoundingRule(dto.Policy.Rounding),
			CarryForwardAllowed: dto.Policy.CarryForwardAllowed,
			MaxCarryForward:     parseDecimalOrZero(dto.Policy.MaxCarryForward),
			ExpiryAfterMonths:   dto.Policy.ExpiryAfterMonths,
			MinNoticeDays:       dto.Policy.MinNoticeDays,
			MaxConsecutiveDays:  dto.Policy.MaxConsecutiveDays,
		},
	}
}

type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	HireDate  string `json:"hire_date"`
	ManagerID string `json:"manager_id,omitempty"`
	Active    bool   `json:"active"`
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDate(s, field string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &leave.ValidationError{Field: field, Message: "expected date as YYYY-MM-DD"}
	}
	return t, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &leave.ValidationError{Field: field, Message: "malformed decimal amount"}
	}
	return d, nil
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return leave.MustParseDecimal(s)
}
