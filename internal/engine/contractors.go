package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
	"payops/internal/events"
	"payops/internal/repo"
)

type NewContractor struct {
	FirstName  string          `json:"first_name" validate:"required,max=100"`
	LastName   string          `json:"last_name" validate:"required,max=100"`
	Email      string          `json:"email" validate:"required,email"`
	Country    string          `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// ContractorUpdate lists every field an operator may change. Nil fields are
// left as they are.
type ContractorUpdate struct {
	FirstName       *string                  `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName        *string                  `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	Country         *string                  `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	HourlyRate      *decimal.Decimal         `json:"hourly_rate,omitempty"`
	Status          *domain.ContractorStatus `json:"status,omitempty" validate:"omitempty,oneof=ONBOARDING PENDING_CHECKR ACTIVE PAUSED OFFBOARDED"`
	CheckrStatus    *domain.CheckrStatus     `json:"checkr_status,omitempty" validate:"omitempty,oneof=NOT_STARTED PENDING CLEAR CONSIDER SUSPENDED DISPUTE"`
	PaymentEligible *bool                    `json:"payment_eligible,omitempty"`
}

// apply copies set fields onto c and returns the names of changed fields.
func (u ContractorUpdate) apply(c *domain.Contractor) []string {
	var changed []string
	if u.FirstName != nil && *u.FirstName != c.FirstName {
		c.FirstName = *u.FirstName
		changed = append(changed, "first_name")
	}
	if u.LastName != nil && *u.LastName != c.LastName {
		c.LastName = *u.LastName
		changed = append(changed, "last_name")
	}
	if u.Country != nil && *u.Country != c.Country {
		c.Country = *u.Country
		changed = append(changed, "country")
	}
	if u.HourlyRate != nil && !u.HourlyRate.Equal(c.HourlyRate) {
		c.HourlyRate = *u.HourlyRate
		changed = append(changed, "hourly_rate")
	}
	if u.Status != nil && *u.Status != c.Status {
		c.Status = *u.Status
		changed = append(changed, "status")
	}
	if u.CheckrStatus != nil && *u.CheckrStatus != c.CheckrStatus {
		c.CheckrStatus = *u.CheckrStatus
		changed = append(changed, "checkr_status")
	}
	if u.PaymentEligible != nil && *u.PaymentEligible != c.PaymentEligible {
		c.PaymentEligible = *u.PaymentEligible
		changed = append(changed, "payment_eligible")
	}
	return changed
}

func (u ContractorUpdate) empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Country == nil && u.HourlyRate == nil &&
		u.Status == nil && u.CheckrStatus == nil && u.PaymentEligible == nil
}

func (e Engine) CreateContractor(ctx context.Context, in NewContractor, actorID string) (domain.Contractor, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return domain.Contractor{}, validationFailure("", err)
	}
	if in.HourlyRate.IsNegative() {
		return domain.Contractor{}, ValidationError{Field: "hourly_rate", Message: "must not be negative"}
	}
	if _, err := e.Repo.GetContractorByEmail(ctx, in.Email); err == nil {
		return domain.Contractor{}, ConflictError{Message: fmt.Sprintf("contractor with email %s already exists", in.Email)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Contractor{}, err
	}
	now := e.timestamp()
	c := domain.Contractor{
		ID:           newID(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Country:      in.Country,
		HourlyRate:   in.HourlyRate,
		Status:       domain.ContractorOnboarding,
		CheckrStatus: domain.CheckrNotStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contractor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContractor(ctx, tx, c); err != nil {
		return domain.Contractor{}, fmt.Errorf("insert contractor: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ContractorCreated, "contractor", c.ID, actorID, events.EventPayload{"email": c.Email}); err != nil {
		return domain.Contractor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

func (e Engine) UpdateContractor(ctx context.Context, id string, u ContractorUpdate, actorID string) (domain.Contractor, error) {
	if u.empty() {
		return domain.Contractor{}, ValidationError{Message: "no fields to update"}
	}
	if err := validate.Struct(u); err != nil {
		return domain.Contractor{}, validationFailure("", err)
	}
	if u.HourlyRate != nil && u.HourlyRate.IsNegative() {
		return domain.Contractor{}, ValidationError{Field: "hourly_rate", Message: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contractor{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractorTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Contractor{}, NotFoundError{Kind: "contractor", ID: id}
	}
	if err != nil {
		return domain.Contractor{}, err
	}
	changed := u.apply(&c)
	if len(changed) == 0 {
		return c, nil
	}
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateContractor(ctx, tx, c); err != nil {
		return domain.Contractor{}, fmt.Errorf("update contractor: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ContractorUpdated, "contractor", c.ID, actorID, events.EventPayload{
		"fields":           changed,
		"checkr_status":    string(c.CheckrStatus),
		"payment_eligible": c.PaymentEligible,
	}); err != nil {
		return domain.Contractor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

func (e Engine) GetContractor(ctx context.Context, id string) (domain.Contractor, error) {
	c, err := e.Repo.GetContractor(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return c, NotFoundError{Kind: "contractor", ID: id}
	}
	return c, err
}

// ContractorByEmail resolves the contractor record of a signed-in user.
func (e Engine) ContractorByEmail(ctx context.Context, email string) (domain.Contractor, error) {
	c, err := e.Repo.GetContractorByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return c, NotFoundError{Kind: "contractor", ID: email}
	}
	return c, err
}

type MonthlyEarnings struct {
	Month   string          `json:"month"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

type ContractorSummary struct {
	Contractor    domain.Contractor
	TotalEarned   decimal.Decimal
	PendingAmount decimal.Decimal
	TotalHours    decimal.Decimal
	Monthly       []MonthlyEarnings
}

// ContractorSummary totals a contractor's paid and outstanding net amounts and
// breaks them down by the month their period ends in.
func (e Engine) ContractorSummary(ctx context.Context, id string) (ContractorSummary, error) {
	c, err := e.GetContractor(ctx, id)
	if err != nil {
		return ContractorSummary{}, err
	}
	payments, err := e.Repo.ListPayments(ctx, repo.PaymentFilter{ContractorID: id, Limit: 10000})
	if err != nil {
		return ContractorSummary{}, err
	}
	entries, err := e.Repo.ListContractorEntries(ctx, id)
	if err != nil {
		return ContractorSummary{}, err
	}
	s := ContractorSummary{Contractor: c, TotalEarned: decimal.Zero, PendingAmount: decimal.Zero, TotalHours: decimal.Zero}
	months := map[string]*MonthlyEarnings{}
	for _, p := range payments {
		month := p.PeriodEnd
		if len(month) >= 7 {
			month = month[:7]
		}
		m, ok := months[month]
		if !ok {
			m = &MonthlyEarnings{Month: month, Paid: decimal.Zero, Pending: decimal.Zero}
			months[month] = m
		}
		switch {
		case p.Status == domain.PaymentPaid:
			s.TotalEarned = s.TotalEarned.Add(p.NetAmount)
			m.Paid = m.Paid.Add(p.NetAmount)
		case p.Status.Outstanding():
			s.PendingAmount = s.PendingAmount.Add(p.NetAmount)
			m.Pending = m.Pending.Add(p.NetAmount)
		}
	}
	for _, entry := range entries {
		s.TotalHours = s.TotalHours.Add(entry.TotalHours)
	}
	for _, m := range months {
		s.Monthly = append(s.Monthly, *m)
	}
	sort.Slice(s.Monthly, func(i, j int) bool { return s.Monthly[i].Month < s.Monthly[j].Month })
	return s, nil
}

func (e Engine) ContractorPayments(ctx context.Context, id string) ([]domain.Payment, error) {
	if _, err := e.GetContractor(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListPayments(ctx, repo.PaymentFilter{ContractorID: id})
}
