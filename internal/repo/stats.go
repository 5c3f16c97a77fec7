package repo

import (
	"context"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
)

func (r Repo) CountContractors(ctx context.Context, status domain.ContractorStatus) (int, error) {
	var n int
	err := r.queryRow(ctx, r.DB, `SELECT COUNT(*) FROM contractors WHERE status=?`, string(status)).Scan(&n)
	return n, err
}

func (r Repo) CountContractorsByCheckr(ctx context.Context, status domain.CheckrStatus) (int, error) {
	var n int
	err := r.queryRow(ctx, r.DB, `SELECT COUNT(*) FROM contractors WHERE checkr_status=?`, string(status)).Scan(&n)
	return n, err
}

// sumColumn adds up a decimal column in Go. Amounts are stored as text in
// SQLite, so SUM() there would go through floating point.
func (r Repo) sumColumn(ctx context.Context, query string, args ...any) (decimal.Decimal, int, error) {
	rows, err := r.query(ctx, r.DB, query, args...)
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer rows.Close()
	total := decimal.Zero
	n := 0
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, 0, err
		}
		total = total.Add(v)
		n++
	}
	return total, n, rows.Err()
}

// PaymentTotals returns the count and gross sum of payments in a status.
func (r Repo) PaymentTotals(ctx context.Context, status domain.PaymentStatus) (int, decimal.Decimal, error) {
	total, n, err := r.sumColumn(ctx, `SELECT gross_amount FROM payments WHERE status=?`, string(status))
	return n, total, err
}

func (r Repo) UnapprovedHours(ctx context.Context) (decimal.Decimal, error) {
	total, _, err := r.sumColumn(ctx, `SELECT total_hours FROM time_entries WHERE approved=?`, false)
	return total, err
}

// HoursSince sums hours of every entry dated on or after the given date.
func (r Repo) HoursSince(ctx context.Context, date string) (decimal.Decimal, error) {
	total, _, err := r.sumColumn(ctx, `SELECT total_hours FROM time_entries WHERE date>=?`, date)
	return total, err
}
