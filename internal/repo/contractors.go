package repo

import (
	"context"
	"database/sql"
	"strings"

	"payops/internal/domain"
)

const contractorColumns = `id,first_name,last_name,email,COALESCE(country,''),hourly_rate,status,checkr_status,payment_eligible,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContractor(row rowScanner) (domain.Contractor, error) {
	var c domain.Contractor
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Country, &c.HourlyRate,
		&c.Status, &c.CheckrStatus, &c.PaymentEligible, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertContractor(ctx context.Context, tx *sql.Tx, c domain.Contractor) error {
	_, err := r.exec(ctx, tx, `INSERT INTO contractors(id,first_name,last_name,email,country,hourly_rate,status,checkr_status,payment_eligible,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.FirstName, c.LastName, strings.ToLower(c.Email), nullable(c.Country), c.HourlyRate,
		string(c.Status), string(c.CheckrStatus), c.PaymentEligible, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateContractor(ctx context.Context, tx *sql.Tx, c domain.Contractor) error {
	res, err := r.exec(ctx, tx, `UPDATE contractors SET first_name=?, last_name=?, country=?, hourly_rate=?, status=?, checkr_status=?, payment_eligible=?, updated_at=? WHERE id=?`,
		c.FirstName, c.LastName, nullable(c.Country), c.HourlyRate, string(c.Status), string(c.CheckrStatus), c.PaymentEligible, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetContractor(ctx context.Context, id string) (domain.Contractor, error) {
	return r.getContractor(ctx, r.DB, id)
}

func (r Repo) GetContractorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contractor, error) {
	return r.getContractor(ctx, tx, id)
}

func (r Repo) getContractor(ctx context.Context, qr querier, id string) (domain.Contractor, error) {
	return scanContractor(r.queryRow(ctx, qr, `SELECT `+contractorColumns+` FROM contractors WHERE id=?`, id))
}

func (r Repo) GetContractorByEmail(ctx context.Context, email string) (domain.Contractor, error) {
	return scanContractor(r.queryRow(ctx, r.DB, `SELECT `+contractorColumns+` FROM contractors WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

// ContractorsByID loads the given contractors keyed by id. Unknown ids are
// simply absent from the result.
func (r Repo) ContractorsByID(ctx context.Context, ids []string) (map[string]domain.Contractor, error) {
	res := make(map[string]domain.Contractor, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	rows, err := r.query(ctx, r.DB, `SELECT `+contractorColumns+` FROM contractors WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		res[c.ID] = c
	}
	return res, rows.Err()
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.exec(ctx, tx, `INSERT INTO projects(id,name,code,client,status,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.Code, nullable(p.Client), p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetProjectByCode(ctx context.Context, code string) (domain.Project, error) {
	var p domain.Project
	err := r.queryRow(ctx, r.DB, `SELECT id,name,code,COALESCE(client,''),status,created_at FROM projects WHERE code=?`, code).
		Scan(&p.ID, &p.Name, &p.Code, &p.Client, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}
