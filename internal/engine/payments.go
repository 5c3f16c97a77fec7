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
	"payops/internal/logging"
	"payops/internal/repo"
)

// PaymentInput is one operator-selected proposal submitted for creation.
type PaymentInput struct {
	ContractorID string          `json:"contractor_id" validate:"required"`
	PeriodStart  string          `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd    string          `json:"period_end" validate:"required,datetime=2006-01-02"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	EntryIDs     []string        `json:"entry_ids" validate:"required,min=1,unique,dive,required"`
}

// FromProposal turns a computed proposal into a creation input.
func FromProposal(p domain.Proposal) PaymentInput {
	return PaymentInput{
		ContractorID: p.ContractorID,
		PeriodStart:  p.PeriodStart,
		PeriodEnd:    p.PeriodEnd,
		TotalHours:   p.TotalHours,
		HourlyRate:   p.HourlyRate,
		GrossAmount:  p.GrossAmount,
		EntryIDs:     append([]string(nil), p.EntryIDs...),
	}
}

func grossFor(hours, rate decimal.Decimal) decimal.Decimal {
	return hours.Mul(rate).Round(2)
}

// ComputeProposals groups approved, unlinked time entries into one proposed
// payment per contractor, ordered by contractor name.
func (e Engine) ComputeProposals(ctx context.Context) ([]domain.Proposal, error) {
	entries, err := e.Repo.ListPayableEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payable entries: %w", err)
	}
	groups := map[string][]domain.TimeEntry{}
	var ids []string
	for _, entry := range entries {
		if _, ok := groups[entry.ContractorID]; !ok {
			ids = append(ids, entry.ContractorID)
		}
		groups[entry.ContractorID] = append(groups[entry.ContractorID], entry)
	}
	contractors, err := e.Repo.ContractorsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load contractors: %w", err)
	}

	proposals := make([]domain.Proposal, 0, len(ids))
	for _, id := range ids {
		c, ok := contractors[id]
		if !ok {
			continue
		}
		group := groups[id]
		p := domain.Proposal{
			ContractorID:    c.ID,
			ContractorName:  c.Name(),
			Email:           c.Email,
			CheckrStatus:    c.CheckrStatus,
			PaymentEligible: c.PaymentEligible,
			CanPay:          c.CanPay(),
			HourlyRate:      c.HourlyRate,
			TotalHours:      decimal.Zero,
			PeriodStart:     group[0].Date,
			PeriodEnd:       group[0].Date,
		}
		for _, entry := range group {
			p.TotalHours = p.TotalHours.Add(entry.TotalHours)
			if entry.Date < p.PeriodStart {
				p.PeriodStart = entry.Date
			}
			if entry.Date > p.PeriodEnd {
				p.PeriodEnd = entry.Date
			}
			p.EntryIDs = append(p.EntryIDs, entry.ID)
		}
		p.GrossAmount = grossFor(p.TotalHours, p.HourlyRate)
		proposals = append(proposals, p)
	}
	sort.SliceStable(proposals, func(i, j int) bool {
		a, b := strings.ToLower(proposals[i].ContractorName), strings.ToLower(proposals[j].ContractorName)
		if a != b {
			return a < b
		}
		return proposals[i].ContractorID < proposals[j].ContractorID
	})
	return proposals, nil
}

func validatePaymentInputs(inputs []PaymentInput) error {
	if len(inputs) == 0 {
		return ValidationError{Message: "no payments to create"}
	}
	seen := map[string]int{}
	for i, in := range inputs {
		prefix := fmt.Sprintf("payments[%d]", i)
		if err := validate.Struct(in); err != nil {
			return validationFailure(prefix, err)
		}
		if in.PeriodStart > in.PeriodEnd {
			return ValidationError{Field: prefix + ".period_start", Message: "must not be after period_end"}
		}
		if in.TotalHours.IsNegative() {
			return ValidationError{Field: prefix + ".total_hours", Message: "must not be negative"}
		}
		if in.HourlyRate.IsNegative() {
			return ValidationError{Field: prefix + ".hourly_rate", Message: "must not be negative"}
		}
		if in.GrossAmount.IsNegative() {
			return ValidationError{Field: prefix + ".gross_amount", Message: "must not be negative"}
		}
		if want := grossFor(in.TotalHours, in.HourlyRate); !want.Equal(in.GrossAmount.Round(2)) {
			return ValidationError{Field: prefix + ".gross_amount", Message: fmt.Sprintf("must equal total_hours x hourly_rate (%s)", want.StringFixed(2))}
		}
		for _, id := range in.EntryIDs {
			if prev, ok := seen[id]; ok {
				return ValidationError{Field: prefix + ".entry_ids", Message: fmt.Sprintf("entry %s is already part of payments[%d]", id, prev)}
			}
			seen[id] = i
		}
	}
	return nil
}

// CreatePayments persists the selected proposals as PENDING payments and
// links their time entries, all in one transaction. Any failure rejects the
// whole batch.
func (e Engine) CreatePayments(ctx context.Context, inputs []PaymentInput, actorID string) ([]domain.Payment, error) {
	log := logging.FromContext(ctx, e.logger())
	created, err := e.createPayments(ctx, inputs, actorID)
	if err != nil {
		log.Warn("payment batch rejected", "proposals", len(inputs), "error", err)
		return nil, err
	}
	total := decimal.Zero
	for _, p := range created {
		total = total.Add(p.GrossAmount)
	}
	log.Info("payment batch created", "payments", len(created), "gross_total", total.StringFixed(2), "actor_id", actorID)
	return created, nil
}

func (e Engine) createPayments(ctx context.Context, inputs []PaymentInput, actorID string) ([]domain.Payment, error) {
	if err := validatePaymentInputs(inputs); err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	contractors := make([]domain.Contractor, len(inputs))
	for i, in := range inputs {
		c, err := e.Repo.GetContractorTx(ctx, tx, in.ContractorID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, NotFoundError{Kind: "contractor", ID: in.ContractorID}
		}
		if err != nil {
			return nil, fmt.Errorf("load contractor %s: %w", in.ContractorID, err)
		}
		if !c.CanPay() {
			return nil, EligibilityError{ContractorID: c.ID, Name: c.Name(), CheckrStatus: c.CheckrStatus, PaymentEligible: c.PaymentEligible}
		}
		contractors[i] = c
	}

	now := e.timestamp()
	created := make([]domain.Payment, 0, len(inputs))
	for i, in := range inputs {
		gross := in.GrossAmount.Round(2)
		p := domain.Payment{
			ID:           newID(),
			ContractorID: in.ContractorID,
			PeriodStart:  in.PeriodStart,
			PeriodEnd:    in.PeriodEnd,
			TotalHours:   in.TotalHours,
			HourlyRate:   in.HourlyRate,
			GrossAmount:  gross,
			NetAmount:    gross,
			Status:       domain.PaymentPending,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
			return nil, fmt.Errorf("insert payment: %w", err)
		}
		n, err := e.Repo.LinkEntries(ctx, tx, p.ID, in.ContractorID, in.EntryIDs)
		if err != nil {
			return nil, fmt.Errorf("link time entries: %w", err)
		}
		if n != int64(len(in.EntryIDs)) {
			return nil, ConflictError{
				Message:  fmt.Sprintf("%d of %d time entries for %s are no longer payable; reload proposals", int64(len(in.EntryIDs))-n, len(in.EntryIDs), contractors[i].Name()),
				EntityID: in.ContractorID,
			}
		}
		linked, err := e.Repo.LinkedEntryTotals(ctx, tx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("read linked entries: %w", err)
		}
		if !linked.Hours.Equal(in.TotalHours) || linked.FirstDate != in.PeriodStart || linked.LastDate != in.PeriodEnd {
			return nil, ConflictError{
				Message: fmt.Sprintf("proposal for %s is stale: entries total %s hours from %s to %s; reload proposals",
					contractors[i].Name(), linked.Hours.String(), linked.FirstDate, linked.LastDate),
				EntityID: in.ContractorID,
			}
		}
		if err := e.events().Append(ctx, tx, events.PaymentCreated, "payment", p.ID, actorID, events.EventPayload{
			"contractor_id": p.ContractorID,
			"gross_amount":  p.GrossAmount.StringFixed(2),
			"total_hours":   p.TotalHours.String(),
			"entry_ids":     in.EntryIDs,
		}); err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// TransitionInput moves a payment along the disbursement state machine.
// ExpectedVersion is optional; zero skips the version check.
type TransitionInput struct {
	PaymentID       string               `json:"payment_id" validate:"required"`
	To              domain.PaymentStatus `json:"to" validate:"required,oneof=PENDING PROCESSING IN_TRANSIT PAID FAILED CANCELLED"`
	ExpectedVersion int                  `json:"expected_version" validate:"gte=0"`
}

func (e Engine) TransitionPayment(ctx context.Context, in TransitionInput, actorID string) (domain.Payment, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Payment{}, validationFailure("", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPaymentTx(ctx, tx, in.PaymentID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Payment{}, NotFoundError{Kind: "payment", ID: in.PaymentID}
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if in.ExpectedVersion != 0 && in.ExpectedVersion != p.Version {
		return domain.Payment{}, ConflictError{Message: fmt.Sprintf("payment %s is at version %d, not %d", p.ID, p.Version, in.ExpectedVersion), EntityID: p.ID}
	}
	if err := domain.EnsurePaymentTransition(p.Status, in.To); err != nil {
		return domain.Payment{}, ConflictError{Message: err.Error(), EntityID: p.ID}
	}
	now := e.timestamp()
	var paidAt *string
	if in.To == domain.PaymentPaid {
		paidAt = &now
	}
	ok, err := e.Repo.TransitionPayment(ctx, tx, p.ID, p.Status, in.To, p.Version, paidAt, now)
	if err != nil {
		return domain.Payment{}, err
	}
	if !ok {
		return domain.Payment{}, ConflictError{Message: fmt.Sprintf("payment %s changed concurrently", p.ID), EntityID: p.ID}
	}
	if err := e.events().Append(ctx, tx, events.PaymentTransitioned, "payment", p.ID, actorID, events.EventPayload{
		"from": string(p.Status),
		"to":   string(in.To),
	}); err != nil {
		return domain.Payment{}, err
	}
	updated, err := e.Repo.GetPaymentTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	logging.FromContext(ctx, e.logger()).Info("payment transitioned", "payment_id", p.ID, "from", p.Status, "to", in.To)
	return updated, nil
}

func (e Engine) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	p, err := e.Repo.GetPayment(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, NotFoundError{Kind: "payment", ID: id}
	}
	return p, err
}

func (e Engine) ListPayments(ctx context.Context, f repo.PaymentFilter) ([]domain.Payment, error) {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return nil, ValidationError{Field: "status", Message: fmt.Sprintf("unknown payment status %q", s)}
		}
	}
	return e.Repo.ListPayments(ctx, f)
}
