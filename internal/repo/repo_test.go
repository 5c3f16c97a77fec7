package repo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payops/internal/db"
	"payops/internal/domain"
	"payops/internal/migrate"
)

const testTS = "2026-01-15T10:00:00Z"

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, db.SQLite))
	return Repo{DB: conn, Dialect: db.SQLite}
}

func seedContractor(t *testing.T, r Repo, id, email string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertContractor(ctx, tx, domain.Contractor{
		ID: id, FirstName: "Test", LastName: id, Email: email,
		HourlyRate: decimal.RequireFromString("20.00"), Status: domain.ContractorActive,
		CheckrStatus: domain.CheckrClear, PaymentEligible: true, CreatedAt: testTS, UpdatedAt: testTS,
	}))
	require.NoError(t, tx.Commit())
}

func seedEntry(t *testing.T, r Repo, id, contractorID, date, hours string, approved bool) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertTimeEntry(ctx, tx, domain.TimeEntry{
		ID: id, ContractorID: contractorID, Date: date, TotalHours: decimal.RequireFromString(hours),
		Source: domain.SourceManual, Approved: approved, CreatedAt: testTS,
	}))
	require.NoError(t, tx.Commit())
}

func insertPayment(t *testing.T, r Repo, id, contractorID string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	amount := decimal.RequireFromString("160.00")
	require.NoError(t, r.InsertPayment(ctx, tx, domain.Payment{
		ID: id, ContractorID: contractorID, PeriodStart: "2026-01-05", PeriodEnd: "2026-01-05",
		TotalHours: decimal.RequireFromString("8"), HourlyRate: decimal.RequireFromString("20.00"),
		GrossAmount: amount, NetAmount: amount, Status: domain.PaymentPending, CreatedAt: testTS, UpdatedAt: testTS,
	}))
	require.NoError(t, tx.Commit())
}

func TestContractorRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "Alex@Example.com")

	c, err := r.GetContractorByEmail(ctx, "alex@example.com")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.True(t, c.HourlyRate.Equal(decimal.RequireFromString("20")))
	require.True(t, c.CanPay())

	_, err = r.GetContractor(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	byID, err := r.ContractorsByID(ctx, []string{"c1", "missing"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
}

func TestListPayableEntriesSkipsUnapprovedAndLinked(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	seedEntry(t, r, "e1", "c1", "2026-01-05", "8", true)
	seedEntry(t, r, "e2", "c1", "2026-01-06", "4", false)
	seedEntry(t, r, "e3", "c1", "2026-01-03", "2.5", true)

	entries, err := r.ListPayableEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e3", entries[0].ID)
	require.Equal(t, "e1", entries[1].ID)

	pending, err := r.ListPendingEntries(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "e2", pending[0].ID)
}

func TestApproveEntriesOnlyTouchesUnapproved(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	seedEntry(t, r, "e1", "c1", "2026-01-05", "8", true)
	seedEntry(t, r, "e2", "c1", "2026-01-06", "4", false)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err := r.ApproveEntries(ctx, tx, []string{"e1", "e2", "nope"}, testTS, "ops@example.com")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.EqualValues(t, 1, n)

	e, err := r.GetTimeEntry(ctx, "e2")
	require.NoError(t, err)
	require.True(t, e.Approved)
	require.NotNil(t, e.ApprovedBy)
	require.Equal(t, "ops@example.com", *e.ApprovedBy)
}

func TestLinkEntriesIsConditional(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	seedContractor(t, r, "c2", "c2@example.com")
	seedEntry(t, r, "e1", "c1", "2026-01-05", "8", true)
	seedEntry(t, r, "e2", "c1", "2026-01-06", "4", false)
	seedEntry(t, r, "e3", "c2", "2026-01-06", "4", true)
	insertPayment(t, r, "p1", "c1")
	insertPayment(t, r, "p2", "c1")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err := r.LinkEntries(ctx, tx, "p1", "c1", []string{"e1", "e2", "e3"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "unapproved and foreign entries are not linked")
	require.NoError(t, tx.Commit())

	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err = r.LinkEntries(ctx, tx, "p2", "c1", []string{"e1"})
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "already linked entry is not relinked")
	require.NoError(t, tx.Rollback())

	linked, err := r.EntriesForPayment(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	require.Equal(t, "e1", linked[0].ID)
}

func TestTransitionPaymentCompareAndSwap(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	insertPayment(t, r, "p1", "c1")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	ok, err := r.TransitionPayment(ctx, tx, "p1", domain.PaymentPending, domain.PaymentProcessing, 1, nil, testTS)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.TransitionPayment(ctx, tx, "p1", domain.PaymentPending, domain.PaymentProcessing, 1, nil, testTS)
	require.NoError(t, err)
	require.False(t, ok, "stale version must not match")
	require.NoError(t, tx.Commit())

	p, err := r.GetPayment(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentProcessing, p.Status)
	require.Equal(t, 2, p.Version)
	require.Nil(t, p.PaidAt)

	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = r.TransitionPayment(ctx, tx, "p1", domain.PaymentProcessing, domain.PaymentPaid, 2, nil, testTS)
	require.Error(t, err, "PAID without paid_at violates the table check")
}

func TestStatsAggregates(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	seedEntry(t, r, "e1", "c1", "2026-01-05", "8.25", false)
	seedEntry(t, r, "e2", "c1", "2025-12-30", "1.75", false)
	insertPayment(t, r, "p1", "c1")

	n, err := r.CountContractors(ctx, domain.ContractorActive)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, total, err := r.PaymentTotals(ctx, domain.PaymentPending)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, "160.00", total.StringFixed(2))

	hours, err := r.UnapprovedHours(ctx)
	require.NoError(t, err)
	require.Equal(t, "10", hours.String())

	month, err := r.HoursSince(ctx, "2026-01-01")
	require.NoError(t, err)
	require.Equal(t, "8.25", month.String())
}

func TestActorRolesAcceptsEmailOrSubject(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.GrantRole(ctx, tx, "Ops@Example.com", "ops", now))
	require.NoError(t, r.GrantRole(ctx, tx, "ops@example.com", "ops", now))
	require.NoError(t, r.GrantRole(ctx, tx, "user-1", "disbursement", now))
	require.NoError(t, tx.Commit())

	roles, err := r.ActorRoles(ctx, "user-1", "ops@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"disbursement", "ops"}, roles)

	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	removed, err := r.RevokeRole(ctx, tx, "ops@example.com", "ops")
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, tx.Commit())

	roles, err = r.ActorRoles(ctx, "ops@example.com")
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestAPIKeyLookup(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "ops@example.com", Name: "cli", KeyHash: HashAPIKey("secret")}))

	key, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" secret "))
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", key.ActorID)

	_, err = r.GetAPIKeyByHash(ctx, HashAPIKey("other"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConditionalWritesRebindForPostgres(t *testing.T) {
	pg := Repo{Dialect: db.Postgres}
	require.Equal(t,
		`UPDATE time_entries SET payment_id=$1 WHERE id IN ($2,$3) AND contractor_id=$4 AND approved=$5 AND payment_id IS NULL`,
		pg.q(linkEntriesSQL(2)))
	require.Equal(t,
		`UPDATE payments SET status=$1, paid_at=$2, version=version+1, updated_at=$3 WHERE id=$4 AND status=$5 AND version=$6`,
		pg.q(transitionPaymentSQL))
	require.Equal(t,
		`SELECT total_hours, date FROM time_entries WHERE payment_id=$1`,
		pg.q(linkedTotalsSQL))

	lite := Repo{Dialect: db.SQLite}
	require.Equal(t, linkEntriesSQL(1), lite.q(linkEntriesSQL(1)))
}

func TestLinkedEntryTotals(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedContractor(t, r, "c1", "c1@example.com")
	seedEntry(t, r, "e1", "c1", "2026-01-07", "6.5", true)
	seedEntry(t, r, "e2", "c1", "2026-01-03", "8", true)
	seedEntry(t, r, "e3", "c1", "2026-01-09", "4", true)
	insertPayment(t, r, "p1", "c1")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	empty, err := r.LinkedEntryTotals(ctx, tx, "p1")
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.True(t, empty.Hours.IsZero())

	n, err := r.LinkEntries(ctx, tx, "p1", "c1", []string{"e1", "e2"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	totals, err := r.LinkedEntryTotals(ctx, tx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, totals.Count)
	require.Equal(t, "14.5", totals.Hours.String())
	require.Equal(t, "2026-01-03", totals.FirstDate)
	require.Equal(t, "2026-01-07", totals.LastDate)
}
