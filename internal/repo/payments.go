package repo

import (
	"context"
	"database/sql"
	"strings"

	"payops/internal/domain"
)

const paymentColumns = `id,contractor_id,period_start,period_end,total_hours,hourly_rate,gross_amount,net_amount,status,paid_at,version,created_at,updated_at`

type PaymentFilter struct {
	ContractorID string
	Statuses     []domain.PaymentStatus
	Limit        int
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var p domain.Payment
	var paidAt sql.NullString
	err := row.Scan(&p.ID, &p.ContractorID, &p.PeriodStart, &p.PeriodEnd, &p.TotalHours, &p.HourlyRate,
		&p.GrossAmount, &p.NetAmount, &p.Status, &paidAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.PaidAt = stringPtr(paidAt)
	return p, err
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	_, err := r.exec(ctx, tx, `INSERT INTO payments(id,contractor_id,period_start,period_end,total_hours,hourly_rate,gross_amount,net_amount,status,paid_at,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ContractorID, p.PeriodStart, p.PeriodEnd, p.TotalHours, p.HourlyRate, p.GrossAmount, p.NetAmount,
		string(p.Status), nullableStringPtr(p.PaidAt), p.Version, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return r.getPayment(ctx, r.DB, id)
}

func (r Repo) GetPaymentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Payment, error) {
	return r.getPayment(ctx, tx, id)
}

func (r Repo) getPayment(ctx context.Context, qr querier, id string) (domain.Payment, error) {
	return scanPayment(r.queryRow(ctx, qr, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
}

func (r Repo) ListPayments(ctx context.Context, f PaymentFilter) ([]domain.Payment, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ContractorID != "" {
		clauses = append(clauses, "contractor_id=?")
		args = append(args, f.ContractorID)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	rows, err := r.query(ctx, r.DB, `SELECT `+paymentColumns+` FROM payments WHERE `+strings.Join(clauses, " AND ")+` ORDER BY period_end DESC, created_at DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const transitionPaymentSQL = `UPDATE payments SET status=?, paid_at=?, version=version+1, updated_at=? WHERE id=? AND status=? AND version=?`

// TransitionPayment moves a payment from one status to another only if it is
// still at the expected status and version. It reports whether a row changed.
func (r Repo) TransitionPayment(ctx context.Context, tx *sql.Tx, id string, from, to domain.PaymentStatus, version int, paidAt *string, updatedAt string) (bool, error) {
	res, err := r.exec(ctx, tx, transitionPaymentSQL,
		string(to), nullableStringPtr(paidAt), updatedAt, id, string(from), version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
