package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
)

type Stats struct {
	ActiveContractors    int
	PendingPayments      int
	PendingPaymentAmount decimal.Decimal
	PendingHours         decimal.Decimal
	PeriodStart          string
	PeriodHours          decimal.Decimal
	PendingCheckr        int
}

// Stats summarises the operations dashboard. The period is the current
// calendar month in UTC.
func (e Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	now := e.now().UTC()
	s.PeriodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)

	if s.ActiveContractors, err = e.Repo.CountContractors(ctx, domain.ContractorActive); err != nil {
		return s, err
	}
	if s.PendingPayments, s.PendingPaymentAmount, err = e.Repo.PaymentTotals(ctx, domain.PaymentPending); err != nil {
		return s, err
	}
	if s.PendingHours, err = e.Repo.UnapprovedHours(ctx); err != nil {
		return s, err
	}
	if s.PeriodHours, err = e.Repo.HoursSince(ctx, s.PeriodStart); err != nil {
		return s, err
	}
	if s.PendingCheckr, err = e.Repo.CountContractorsByCheckr(ctx, domain.CheckrPending); err != nil {
		return s, err
	}
	return s, nil
}
