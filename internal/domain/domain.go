package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage layout of work-day dates.
const DateLayout = "2006-01-02"

type CheckrStatus string

const (
	CheckrNotStarted CheckrStatus = "NOT_STARTED"
	CheckrPending    CheckrStatus = "PENDING"
	CheckrClear      CheckrStatus = "CLEAR"
	CheckrConsider   CheckrStatus = "CONSIDER"
	CheckrSuspended  CheckrStatus = "SUSPENDED"
	CheckrDispute    CheckrStatus = "DISPUTE"
)

type ContractorStatus string

const (
	ContractorOnboarding    ContractorStatus = "ONBOARDING"
	ContractorPendingCheckr ContractorStatus = "PENDING_CHECKR"
	ContractorActive        ContractorStatus = "ACTIVE"
	ContractorPaused        ContractorStatus = "PAUSED"
	ContractorOffboarded    ContractorStatus = "OFFBOARDED"
)

type TimeEntrySource string

const (
	SourceInsightful TimeEntrySource = "INSIGHTFUL"
	SourceManual     TimeEntrySource = "MANUAL"
	SourceInhouse    TimeEntrySource = "INHOUSE"
)

type Contractor struct {
	ID              string           `json:"id"`
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	Email           string           `json:"email"`
	Country         string           `json:"country,omitempty"`
	HourlyRate      decimal.Decimal  `json:"hourly_rate"`
	Status          ContractorStatus `json:"status"`
	CheckrStatus    CheckrStatus     `json:"checkr_status"`
	PaymentEligible bool             `json:"payment_eligible"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	UpdatedAt       string           `json:"updated_at" format:"date-time"`
}

// Name is the display name used for ordering proposals and in error messages.
func (c Contractor) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CanPay reports whether the contractor may receive a payment right now.
// Both the background check and the eligibility override must hold.
func (c Contractor) CanPay() bool {
	return c.CheckrStatus == CheckrClear && c.PaymentEligible
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Client    string `json:"client,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TimeEntry struct {
	ID              string           `json:"id"`
	ContractorID    string           `json:"contractor_id"`
	ProjectID       *string          `json:"project_id,omitempty"`
	Date            string           `json:"date" format:"date"`
	TotalHours      decimal.Decimal  `json:"total_hours"`
	ProductiveHours *decimal.Decimal `json:"productive_hours,omitempty"`
	Source          TimeEntrySource  `json:"source"`
	Approved        bool             `json:"approved"`
	ApprovedAt      *string          `json:"approved_at,omitempty" format:"date-time"`
	ApprovedBy      *string          `json:"approved_by,omitempty"`
	PaymentID       *string          `json:"payment_id,omitempty"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
}

// Payable reports whether the entry can still be consumed by a payment.
func (t TimeEntry) Payable() bool {
	return t.Approved && t.PaymentID == nil
}

type Payment struct {
	ID           string          `json:"id"`
	ContractorID string          `json:"contractor_id"`
	PeriodStart  string          `json:"period_start" format:"date"`
	PeriodEnd    string          `json:"period_end" format:"date"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	Status       PaymentStatus   `json:"status"`
	PaidAt       *string         `json:"paid_at,omitempty" format:"date-time"`
	Version      int             `json:"version"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
	UpdatedAt    string          `json:"updated_at" format:"date-time"`
}

// Proposal is a computed, not yet persisted payment for one contractor.
type Proposal struct {
	ContractorID    string          `json:"contractor_id"`
	ContractorName  string          `json:"contractor_name"`
	Email           string          `json:"email"`
	CheckrStatus    CheckrStatus    `json:"checkr_status"`
	PaymentEligible bool            `json:"payment_eligible"`
	CanPay          bool            `json:"can_pay"`
	PeriodStart     string          `json:"period_start"`
	PeriodEnd       string          `json:"period_end"`
	TotalHours      decimal.Decimal `json:"total_hours"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	EntryIDs        []string        `json:"entry_ids"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
