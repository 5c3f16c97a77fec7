package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
	"payops/internal/repo"
)

type SeedResult struct {
	Projects    int `json:"projects"`
	Contractors int `json:"contractors"`
	Payments    int `json:"payments"`
	TimeEntries int `json:"time_entries"`
}

type seedContractor struct {
	first, last, email, country string
	rate                        int64
	status                      domain.ContractorStatus
	checkr                      domain.CheckrStatus
	eligible                    bool
}

var seedProjects = []domain.Project{
	{Name: "Coactive AI", Code: "COACTIVE", Client: "Coactive"},
	{Name: "Treeswift", Code: "TREESWIFT", Client: "Treeswift"},
	{Name: "AGI Inc", Code: "AGI", Client: "AGI Inc"},
}

var seedContractors = []seedContractor{
	{"Alex", "Thompson", "alex.thompson@example.com", "US", 25, domain.ContractorActive, domain.CheckrClear, true},
	{"Jordan", "Lee", "jordan.lee@example.com", "CA", 20, domain.ContractorActive, domain.CheckrClear, true},
	{"Sam", "Rivera", "sam.rivera@example.com", "MX", 18, domain.ContractorPendingCheckr, domain.CheckrPending, false},
	{"Casey", "Morgan", "casey.morgan@example.com", "GB", 22, domain.ContractorActive, domain.CheckrClear, true},
	{"Taylor", "Kim", "taylor.kim@example.com", "KR", 20, domain.ContractorOnboarding, domain.CheckrNotStarted, false},
}

// Seed loads demo projects, contractors, payment history and two weeks of
// time entries. Records that already exist are left alone.
func (e Engine) Seed(ctx context.Context, actorID string) (SeedResult, error) {
	var res SeedResult
	for _, p := range seedProjects {
		if _, err := e.Repo.GetProjectByCode(ctx, p.Code); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		p.ID = newID()
		p.Status = "ACTIVE"
		p.CreatedAt = e.timestamp()
		if err := e.inTx(ctx, func(tx *sql.Tx) error { return e.Repo.InsertProject(ctx, tx, p) }); err != nil {
			return res, fmt.Errorf("seed project %s: %w", p.Code, err)
		}
		res.Projects++
	}

	created := map[string]domain.Contractor{}
	for _, sc := range seedContractors {
		if _, err := e.Repo.GetContractorByEmail(ctx, sc.email); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		c, err := e.CreateContractor(ctx, NewContractor{
			FirstName: sc.first, LastName: sc.last, Email: sc.email, Country: sc.country,
			HourlyRate: decimal.NewFromInt(sc.rate),
		}, actorID)
		if err != nil {
			return res, fmt.Errorf("seed contractor %s: %w", sc.email, err)
		}
		status, checkr, eligible := sc.status, sc.checkr, sc.eligible
		if c, err = e.UpdateContractor(ctx, c.ID, ContractorUpdate{Status: &status, CheckrStatus: &checkr, PaymentEligible: &eligible}, actorID); err != nil {
			return res, fmt.Errorf("seed contractor %s: %w", sc.email, err)
		}
		created[sc.email] = c
		res.Contractors++
	}

	if alex, ok := created["alex.thompson@example.com"]; ok {
		n, err := e.seedPaymentHistory(ctx, alex)
		if err != nil {
			return res, err
		}
		res.Payments = n
		if n, err = e.seedTimeEntries(ctx, alex, "COACTIVE", actorID); err != nil {
			return res, err
		}
		res.TimeEntries += n
	}
	for _, email := range []string{"jordan.lee@example.com", "sam.rivera@example.com"} {
		if c, ok := created[email]; ok {
			n, err := e.seedTimeEntries(ctx, c, "TREESWIFT", actorID)
			if err != nil {
				return res, err
			}
			res.TimeEntries += n
		}
	}
	return res, nil
}

func (e Engine) seedPaymentHistory(ctx context.Context, c domain.Contractor) (int, error) {
	history := []struct {
		start, end string
		hours      int64
		status     domain.PaymentStatus
		paidAt     string
	}{
		{"2025-12-01", "2025-12-15", 16, domain.PaymentPaid, "2025-12-18T00:00:00Z"},
		{"2025-12-16", "2025-12-31", 20, domain.PaymentPaid, "2026-01-03T00:00:00Z"},
		{"2026-01-01", "2026-01-15", 18, domain.PaymentPaid, "2026-01-18T00:00:00Z"},
		{"2026-01-16", "2026-01-31", 14, domain.PaymentPaid, "2026-02-03T00:00:00Z"},
		{"2026-02-01", "2026-02-04", 16, domain.PaymentInTransit, ""},
	}
	now := e.timestamp()
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, h := range history {
			hours := decimal.NewFromInt(h.hours)
			amount := grossFor(hours, c.HourlyRate)
			p := domain.Payment{
				ID: newID(), ContractorID: c.ID, PeriodStart: h.start, PeriodEnd: h.end,
				TotalHours: hours, HourlyRate: c.HourlyRate, GrossAmount: amount, NetAmount: amount,
				Status: h.status, Version: 1, CreatedAt: now, UpdatedAt: now,
			}
			if h.paidAt != "" {
				paidAt := h.paidAt
				p.PaidAt = &paidAt
			}
			if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
				return fmt.Errorf("seed payment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(history), nil
}

// seedTimeEntries records weekday entries for the last 14 days. Entries
// older than five days are approved.
func (e Engine) seedTimeEntries(ctx context.Context, c domain.Contractor, project, actorID string) (int, error) {
	today := e.now().UTC()
	var approve []string
	n := 0
	for i := 0; i < 14; i++ {
		day := today.AddDate(0, 0, -i)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		hours := decimal.NewFromInt(int64(4 + (i*3)%5))
		productive := hours.Mul(decimal.RequireFromString("0.9")).Round(2)
		entry, err := e.RecordTimeEntry(ctx, TimeEntryInput{
			ContractorID:    c.ID,
			ProjectCode:     project,
			Date:            day.Format(domain.DateLayout),
			TotalHours:      hours,
			ProductiveHours: &productive,
			Source:          domain.SourceInsightful,
		}, actorID)
		if err != nil {
			return n, fmt.Errorf("seed time entry: %w", err)
		}
		n++
		if i > 5 {
			approve = append(approve, entry.ID)
		}
	}
	if len(approve) > 0 {
		if _, err := e.ApproveTimeEntries(ctx, ApproveInput{EntryIDs: approve}, actorID); err != nil {
			return n, err
		}
	}
	return n, nil
}
