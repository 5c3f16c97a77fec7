package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"payops/internal/domain"
	"payops/internal/repo"
)

func (e Engine) knownRole(role string) error {
	if e.Config == nil {
		return nil
	}
	if _, ok := e.Config.Auth.Roles[role]; !ok {
		return ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	return nil
}

// GrantRole gives an actor (subject id or email) a configured role.
func (e Engine) GrantRole(ctx context.Context, actorID, role string) error {
	actorID, role = strings.TrimSpace(actorID), strings.TrimSpace(role)
	if actorID == "" {
		return ValidationError{Field: "actor", Message: "is required"}
	}
	if err := e.knownRole(role); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.GrantRole(ctx, tx, actorID, role, e.timestamp()); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actorID, role string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	removed, err := e.Repo.RevokeRole(ctx, tx, actorID, role)
	if err != nil {
		return err
	}
	if !removed {
		return NotFoundError{Kind: "role grant", ID: actorID + "/" + role}
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for an actor. Only the hash is stored; the plain
// key is returned once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, ValidationError{Field: "actor", Message: "is required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "pk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

func (e Engine) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}
