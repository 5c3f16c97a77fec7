package server

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
	"payops/internal/engine"
)

// Amounts and hours travel as decimal strings so no precision is lost to
// floating point on either side.

// Request payloads

type PaymentInputRequest struct {
	ContractorID string   `json:"contractor_id"`
	PeriodStart  string   `json:"period_start" example:"2026-01-01"`
	PeriodEnd    string   `json:"period_end" example:"2026-01-15"`
	TotalHours   string   `json:"total_hours" example:"18.5"`
	HourlyRate   string   `json:"hourly_rate" example:"20.00"`
	GrossAmount  string   `json:"gross_amount" example:"370.00"`
	EntryIDs     []string `json:"entry_ids"`
}

type CreateBatchRequest struct {
	Payments []PaymentInputRequest `json:"payments"`
}

type TransitionRequest struct {
	To              string `json:"to" enum:"PENDING,PROCESSING,IN_TRANSIT,PAID,FAILED,CANCELLED"`
	ExpectedVersion int    `json:"expected_version,omitempty" doc:"Reject the change unless the payment is at this version"`
}

type ApproveRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

type CreateContractorRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Country    string `json:"country,omitempty" example:"US"`
	HourlyRate string `json:"hourly_rate" example:"25.00"`
}

type UpdateContractorRequest struct {
	FirstName       *string `json:"first_name,omitempty"`
	LastName        *string `json:"last_name,omitempty"`
	Country         *string `json:"country,omitempty"`
	HourlyRate      *string `json:"hourly_rate,omitempty"`
	Status          *string `json:"status,omitempty" enum:"ONBOARDING,PENDING_CHECKR,ACTIVE,PAUSED,OFFBOARDED"`
	CheckrStatus    *string `json:"checkr_status,omitempty" enum:"NOT_STARTED,PENDING,CLEAR,CONSIDER,SUSPENDED,DISPUTE"`
	PaymentEligible *bool   `json:"payment_eligible,omitempty"`
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, engine.ValidationError{Field: field, Message: "must be a decimal number"}
	}
	return d, nil
}

func paymentInputs(items []PaymentInputRequest) ([]engine.PaymentInput, error) {
	inputs := make([]engine.PaymentInput, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("payments[%d].", i)
		hours, err := parseDecimal(prefix+"total_hours", item.TotalHours)
		if err != nil {
			return nil, err
		}
		rate, err := parseDecimal(prefix+"hourly_rate", item.HourlyRate)
		if err != nil {
			return nil, err
		}
		gross, err := parseDecimal(prefix+"gross_amount", item.GrossAmount)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, engine.PaymentInput{
			ContractorID: strings.TrimSpace(item.ContractorID),
			PeriodStart:  item.PeriodStart,
			PeriodEnd:    item.PeriodEnd,
			TotalHours:   hours,
			HourlyRate:   rate,
			GrossAmount:  gross,
			EntryIDs:     item.EntryIDs,
		})
	}
	return inputs, nil
}

func (r CreateContractorRequest) toInput() (engine.NewContractor, error) {
	rate, err := parseDecimal("hourly_rate", r.HourlyRate)
	if err != nil {
		return engine.NewContractor{}, err
	}
	return engine.NewContractor{
		FirstName:  strings.TrimSpace(r.FirstName),
		LastName:   strings.TrimSpace(r.LastName),
		Email:      r.Email,
		Country:    strings.ToUpper(strings.TrimSpace(r.Country)),
		HourlyRate: rate,
	}, nil
}

func (r UpdateContractorRequest) toUpdate() (engine.ContractorUpdate, error) {
	u := engine.ContractorUpdate{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Country:         r.Country,
		PaymentEligible: r.PaymentEligible,
	}
	if r.HourlyRate != nil {
		rate, err := parseDecimal("hourly_rate", *r.HourlyRate)
		if err != nil {
			return u, err
		}
		u.HourlyRate = &rate
	}
	if r.Status != nil {
		s := domain.ContractorStatus(*r.Status)
		u.Status = &s
	}
	if r.CheckrStatus != nil {
		s := domain.CheckrStatus(*r.CheckrStatus)
		u.CheckrStatus = &s
	}
	return u, nil
}

// Response payloads

type MeResponse struct {
	Subject      string   `json:"subject"`
	Email        string   `json:"email,omitempty"`
	Source       string   `json:"source"`
	Roles        []string `json:"roles"`
	Capabilities []string `json:"capabilities"`
	ContractorID *string  `json:"contractor_id,omitempty"`
}

type ProposalResponse struct {
	ContractorID    string   `json:"contractor_id"`
	ContractorName  string   `json:"contractor_name"`
	Email           string   `json:"email"`
	CheckrStatus    string   `json:"checkr_status"`
	PaymentEligible bool     `json:"payment_eligible"`
	CanPay          bool     `json:"can_pay"`
	PeriodStart     string   `json:"period_start"`
	PeriodEnd       string   `json:"period_end"`
	TotalHours      string   `json:"total_hours"`
	HourlyRate      string   `json:"hourly_rate"`
	GrossAmount     string   `json:"gross_amount"`
	EntryIDs        []string `json:"entry_ids"`
}

type ProposalsResponse struct {
	Items      []ProposalResponse `json:"items"`
	GrossTotal string             `json:"gross_total"`
	Payable    int                `json:"payable"`
}

type PaymentResponse struct {
	ID           string  `json:"id"`
	ContractorID string  `json:"contractor_id"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
	TotalHours   string  `json:"total_hours"`
	HourlyRate   string  `json:"hourly_rate"`
	GrossAmount  string  `json:"gross_amount"`
	NetAmount    string  `json:"net_amount"`
	Status       string  `json:"status"`
	PaidAt       *string `json:"paid_at,omitempty"`
	Version      int     `json:"version"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type PaymentsResponse struct {
	Items []PaymentResponse `json:"items"`
}

type BatchResponse struct {
	Payments   []PaymentResponse `json:"payments"`
	Count      int               `json:"count"`
	GrossTotal string            `json:"gross_total"`
}

type TimeEntryResponse struct {
	ID              string  `json:"id"`
	ContractorID    string  `json:"contractor_id"`
	ProjectID       *string `json:"project_id,omitempty"`
	Date            string  `json:"date"`
	TotalHours      string  `json:"total_hours"`
	ProductiveHours *string `json:"productive_hours,omitempty"`
	Source          string  `json:"source"`
	Approved        bool    `json:"approved"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	PaymentID       *string `json:"payment_id,omitempty"`
}

type TimeEntriesResponse struct {
	Items []TimeEntryResponse `json:"items"`
}

type ApproveResponse struct {
	Approved int64 `json:"approved"`
}

type ContractorResponse struct {
	ID              string `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Country         string `json:"country,omitempty"`
	HourlyRate      string `json:"hourly_rate"`
	Status          string `json:"status"`
	CheckrStatus    string `json:"checkr_status"`
	PaymentEligible bool   `json:"payment_eligible"`
	CanPay          bool   `json:"can_pay"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type MonthlyEarningsResponse struct {
	Month   string `json:"month"`
	Paid    string `json:"paid"`
	Pending string `json:"pending"`
}

type ContractorSummaryResponse struct {
	Contractor    ContractorResponse        `json:"contractor"`
	TotalEarned   string                    `json:"total_earned"`
	PendingAmount string                    `json:"pending_amount"`
	TotalHours    string                    `json:"total_hours"`
	Monthly       []MonthlyEarningsResponse `json:"monthly"`
}

type StatsResponse struct {
	ActiveContractors    int    `json:"active_contractors"`
	PendingPayments      int    `json:"pending_payments"`
	PendingPaymentAmount string `json:"pending_payment_amount"`
	PendingHours         string `json:"pending_hours"`
	PeriodStart          string `json:"period_start"`
	PeriodHours          string `json:"period_hours"`
	PendingCheckr        int    `json:"pending_checkr"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func proposalsResponse(items []domain.Proposal) ProposalsResponse {
	resp := ProposalsResponse{Items: []ProposalResponse{}}
	total := decimal.Zero
	for _, p := range items {
		resp.Items = append(resp.Items, ProposalResponse{
			ContractorID:    p.ContractorID,
			ContractorName:  p.ContractorName,
			Email:           p.Email,
			CheckrStatus:    string(p.CheckrStatus),
			PaymentEligible: p.PaymentEligible,
			CanPay:          p.CanPay,
			PeriodStart:     p.PeriodStart,
			PeriodEnd:       p.PeriodEnd,
			TotalHours:      p.TotalHours.String(),
			HourlyRate:      money(p.HourlyRate),
			GrossAmount:     money(p.GrossAmount),
			EntryIDs:        nonNilSlice(p.EntryIDs),
		})
		if p.CanPay {
			resp.Payable++
			total = total.Add(p.GrossAmount)
		}
	}
	resp.GrossTotal = money(total)
	return resp
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:           p.ID,
		ContractorID: p.ContractorID,
		PeriodStart:  p.PeriodStart,
		PeriodEnd:    p.PeriodEnd,
		TotalHours:   p.TotalHours.String(),
		HourlyRate:   money(p.HourlyRate),
		GrossAmount:  money(p.GrossAmount),
		NetAmount:    money(p.NetAmount),
		Status:       string(p.Status),
		PaidAt:       p.PaidAt,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func paymentResponses(items []domain.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, paymentResponse(p))
	}
	return out
}

func batchResponse(items []domain.Payment) BatchResponse {
	total := decimal.Zero
	for _, p := range items {
		total = total.Add(p.GrossAmount)
	}
	return BatchResponse{Payments: paymentResponses(items), Count: len(items), GrossTotal: money(total)}
}

func timeEntryResponses(items []domain.TimeEntry) []TimeEntryResponse {
	out := make([]TimeEntryResponse, 0, len(items))
	for _, t := range items {
		r := TimeEntryResponse{
			ID:           t.ID,
			ContractorID: t.ContractorID,
			ProjectID:    t.ProjectID,
			Date:         t.Date,
			TotalHours:   t.TotalHours.String(),
			Source:       string(t.Source),
			Approved:     t.Approved,
			ApprovedAt:   t.ApprovedAt,
			ApprovedBy:   t.ApprovedBy,
			PaymentID:    t.PaymentID,
		}
		if t.ProductiveHours != nil {
			s := t.ProductiveHours.String()
			r.ProductiveHours = &s
		}
		out = append(out, r)
	}
	return out
}

func contractorResponse(c domain.Contractor) ContractorResponse {
	return ContractorResponse{
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Country:         c.Country,
		HourlyRate:      money(c.HourlyRate),
		Status:          string(c.Status),
		CheckrStatus:    string(c.CheckrStatus),
		PaymentEligible: c.PaymentEligible,
		CanPay:          c.CanPay(),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func contractorSummaryResponse(s engine.ContractorSummary) ContractorSummaryResponse {
	resp := ContractorSummaryResponse{
		Contractor:    contractorResponse(s.Contractor),
		TotalEarned:   money(s.TotalEarned),
		PendingAmount: money(s.PendingAmount),
		TotalHours:    s.TotalHours.String(),
		Monthly:       []MonthlyEarningsResponse{},
	}
	for _, m := range s.Monthly {
		resp.Monthly = append(resp.Monthly, MonthlyEarningsResponse{Month: m.Month, Paid: money(m.Paid), Pending: money(m.Pending)})
	}
	return resp
}

func statsResponse(s engine.Stats) StatsResponse {
	return StatsResponse{
		ActiveContractors:    s.ActiveContractors,
		PendingPayments:      s.PendingPayments,
		PendingPaymentAmount: money(s.PendingPaymentAmount),
		PendingHours:         s.PendingHours.String(),
		PeriodStart:          s.PeriodStart,
		PeriodHours:          s.PeriodHours.String(),
		PendingCheckr:        s.PendingCheckr,
	}
}
