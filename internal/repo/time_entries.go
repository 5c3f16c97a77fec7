package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
)

const timeEntryColumns = `id,contractor_id,project_id,date,total_hours,productive_hours,source,approved,approved_at,approved_by,payment_id,created_at`

func scanTimeEntry(row rowScanner) (domain.TimeEntry, error) {
	var (
		e                     domain.TimeEntry
		projectID, approvedAt sql.NullString
		approvedBy, paymentID sql.NullString
		productive            decimal.NullDecimal
	)
	err := row.Scan(&e.ID, &e.ContractorID, &projectID, &e.Date, &e.TotalHours, &productive,
		&e.Source, &e.Approved, &approvedAt, &approvedBy, &paymentID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.ProjectID = stringPtr(projectID)
	e.ApprovedAt = stringPtr(approvedAt)
	e.ApprovedBy = stringPtr(approvedBy)
	e.PaymentID = stringPtr(paymentID)
	if productive.Valid {
		p := productive.Decimal
		e.ProductiveHours = &p
	}
	return e, nil
}

func scanTimeEntries(rows *sql.Rows) ([]domain.TimeEntry, error) {
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	var productive any
	if e.ProductiveHours != nil {
		productive = *e.ProductiveHours
	}
	_, err := r.exec(ctx, tx, `INSERT INTO time_entries(id,contractor_id,project_id,date,total_hours,productive_hours,source,approved,approved_at,approved_by,payment_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ContractorID, nullableStringPtr(e.ProjectID), e.Date, e.TotalHours, productive,
		string(e.Source), e.Approved, nullableStringPtr(e.ApprovedAt), nullableStringPtr(e.ApprovedBy),
		nullableStringPtr(e.PaymentID), e.CreatedAt)
	return err
}

func (r Repo) GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	return scanTimeEntry(r.queryRow(ctx, r.DB, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id=?`, id))
}

// ListPayableEntries returns every approved entry not yet linked to a payment,
// ordered by contractor then date.
func (r Repo) ListPayableEntries(ctx context.Context) ([]domain.TimeEntry, error) {
	rows, err := r.query(ctx, r.DB, `SELECT `+timeEntryColumns+` FROM time_entries WHERE approved=? AND payment_id IS NULL ORDER BY contractor_id, date, id`, true)
	if err != nil {
		return nil, err
	}
	return scanTimeEntries(rows)
}

// ListPendingEntries returns unapproved entries, optionally for one contractor.
func (r Repo) ListPendingEntries(ctx context.Context, contractorID string, limit int) ([]domain.TimeEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE approved=?`
	args := []any{false}
	if contractorID != "" {
		query += ` AND contractor_id=?`
		args = append(args, contractorID)
	}
	query += ` ORDER BY contractor_id, date DESC, id LIMIT ?`
	args = append(args, limit)
	rows, err := r.query(ctx, r.DB, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTimeEntries(rows)
}

func (r Repo) ListContractorEntries(ctx context.Context, contractorID string) ([]domain.TimeEntry, error) {
	rows, err := r.query(ctx, r.DB, `SELECT `+timeEntryColumns+` FROM time_entries WHERE contractor_id=? ORDER BY date, id`, contractorID)
	if err != nil {
		return nil, err
	}
	return scanTimeEntries(rows)
}

// ApproveEntries marks the given unapproved entries approved. Entries already
// approved are left untouched; the number of rows changed is returned.
func (r Repo) ApproveEntries(ctx context.Context, tx *sql.Tx, ids []string, approvedAt, approvedBy string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{true, approvedAt, nullable(approvedBy)}
	args = append(args, stringArgs(ids)...)
	args = append(args, false)
	res, err := r.exec(ctx, tx, `UPDATE time_entries SET approved=?, approved_at=?, approved_by=? WHERE id IN (`+placeholders(len(ids))+`) AND approved=?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func linkEntriesSQL(n int) string {
	return `UPDATE time_entries SET payment_id=? WHERE id IN (` + placeholders(n) + `) AND contractor_id=? AND approved=? AND payment_id IS NULL`
}

// LinkEntries attaches entries to a payment only while they are still approved,
// unlinked and owned by the contractor. Callers compare the returned count with
// len(ids) to detect entries consumed by a concurrent batch.
func (r Repo) LinkEntries(ctx context.Context, tx *sql.Tx, paymentID, contractorID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{paymentID}
	args = append(args, stringArgs(ids)...)
	args = append(args, contractorID, true)
	res, err := r.exec(ctx, tx, linkEntriesSQL(len(ids)), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) EntriesForPayment(ctx context.Context, paymentID string) ([]domain.TimeEntry, error) {
	rows, err := r.query(ctx, r.DB, `SELECT `+timeEntryColumns+` FROM time_entries WHERE payment_id=? ORDER BY date, id`, paymentID)
	if err != nil {
		return nil, err
	}
	return scanTimeEntries(rows)
}

const linkedTotalsSQL = `SELECT total_hours, date FROM time_entries WHERE payment_id=?`

// LinkedTotals summarises the entries currently linked to one payment.
type LinkedTotals struct {
	Count     int
	Hours     decimal.Decimal
	FirstDate string
	LastDate  string
}

// LinkedEntryTotals reads the entries linked to paymentID inside tx. Hours are
// summed in Go since sqlite stores them as text.
func (r Repo) LinkedEntryTotals(ctx context.Context, tx *sql.Tx, paymentID string) (LinkedTotals, error) {
	rows, err := r.query(ctx, tx, linkedTotalsSQL, paymentID)
	if err != nil {
		return LinkedTotals{}, err
	}
	defer rows.Close()
	t := LinkedTotals{Hours: decimal.Zero}
	for rows.Next() {
		var hours decimal.Decimal
		var date string
		if err := rows.Scan(&hours, &date); err != nil {
			return LinkedTotals{}, err
		}
		t.Count++
		t.Hours = t.Hours.Add(hours)
		if t.FirstDate == "" || date < t.FirstDate {
			t.FirstDate = date
		}
		if date > t.LastDate {
			t.LastDate = date
		}
	}
	return t, rows.Err()
}
