package repo

import (
	"context"
	"database/sql"
	"strings"
)

// GrantRole records a role for an actor. Granting an existing role is a no-op.
func (r Repo) GrantRole(ctx context.Context, tx *sql.Tx, actorID, roleID, now string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO actor_roles(actor_id, role_id, granted_at) VALUES (?,?,?) ON CONFLICT (actor_id, role_id) DO NOTHING`,
		normalizeActor(actorID), roleID, now)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID, roleID string) (bool, error) {
	res, err := r.exec(ctx, tx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, normalizeActor(actorID), roleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ActorRoles returns the roles granted to any of the given actor identifiers
// (subject id and email are both accepted).
func (r Repo) ActorRoles(ctx context.Context, actorIDs ...string) ([]string, error) {
	var ids []string
	for _, id := range actorIDs {
		if id = normalizeActor(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.DB, `SELECT DISTINCT role_id FROM actor_roles WHERE actor_id IN (`+placeholders(len(ids))+`) ORDER BY role_id`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func normalizeActor(id string) string {
	id = strings.TrimSpace(id)
	if strings.Contains(id, "@") {
		return strings.ToLower(id)
	}
	return id
}
