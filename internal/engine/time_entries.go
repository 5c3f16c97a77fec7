package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payops/internal/domain"
	"payops/internal/events"
	"payops/internal/logging"
	"payops/internal/repo"
)

var maxDailyHours = decimal.NewFromInt(24)

type TimeEntryInput struct {
	ContractorID    string                 `json:"contractor_id" validate:"required"`
	ProjectCode     string                 `json:"project_code,omitempty"`
	Date            string                 `json:"date" validate:"required,datetime=2006-01-02"`
	TotalHours      decimal.Decimal        `json:"total_hours"`
	ProductiveHours *decimal.Decimal       `json:"productive_hours,omitempty"`
	Source          domain.TimeEntrySource `json:"source,omitempty" validate:"omitempty,oneof=INSIGHTFUL MANUAL INHOUSE"`
}

// RecordTimeEntry stores a new unapproved entry.
func (e Engine) RecordTimeEntry(ctx context.Context, in TimeEntryInput, actorID string) (domain.TimeEntry, error) {
	if err := validate.Struct(in); err != nil {
		return domain.TimeEntry{}, validationFailure("", err)
	}
	if in.TotalHours.IsNegative() || in.TotalHours.GreaterThan(maxDailyHours) {
		return domain.TimeEntry{}, ValidationError{Field: "total_hours", Message: "must be between 0 and 24"}
	}
	if in.ProductiveHours != nil && (in.ProductiveHours.IsNegative() || in.ProductiveHours.GreaterThan(in.TotalHours)) {
		return domain.TimeEntry{}, ValidationError{Field: "productive_hours", Message: "must be between 0 and total_hours"}
	}
	if in.Source == "" {
		in.Source = domain.SourceManual
	}
	if _, err := e.Repo.GetContractor(ctx, in.ContractorID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TimeEntry{}, NotFoundError{Kind: "contractor", ID: in.ContractorID}
		}
		return domain.TimeEntry{}, err
	}
	entry := domain.TimeEntry{
		ID:              newID(),
		ContractorID:    in.ContractorID,
		Date:            in.Date,
		TotalHours:      in.TotalHours,
		ProductiveHours: in.ProductiveHours,
		Source:          in.Source,
		CreatedAt:       e.timestamp(),
	}
	if in.ProjectCode != "" {
		p, err := e.Repo.GetProjectByCode(ctx, in.ProjectCode)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TimeEntry{}, NotFoundError{Kind: "project", ID: in.ProjectCode}
		}
		if err != nil {
			return domain.TimeEntry{}, err
		}
		entry.ProjectID = &p.ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.TimeEntryRecorded, "time_entry", entry.ID, actorID, events.EventPayload{
		"contractor_id": entry.ContractorID,
		"date":          entry.Date,
		"total_hours":   entry.TotalHours.String(),
	}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

type ApproveInput struct {
	EntryIDs []string `json:"entry_ids" validate:"required,min=1,unique,dive,required"`
}

// ApproveTimeEntries approves the listed entries that are still unapproved and
// returns how many changed. Already approved ids are ignored.
func (e Engine) ApproveTimeEntries(ctx context.Context, in ApproveInput, actorID string) (int64, error) {
	if err := validate.Struct(in); err != nil {
		return 0, validationFailure("", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.Repo.ApproveEntries(ctx, tx, in.EntryIDs, e.timestamp(), actorID)
	if err != nil {
		return 0, fmt.Errorf("approve time entries: %w", err)
	}
	if n > 0 {
		if err := e.events().Append(ctx, tx, events.TimeEntryApproved, "time_entry", "", actorID, events.EventPayload{
			"entry_ids": in.EntryIDs,
			"approved":  n,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logging.FromContext(ctx, e.logger()).Info("time entries approved", "requested", len(in.EntryIDs), "approved", n)
	return n, nil
}

func (e Engine) PendingTimeEntries(ctx context.Context, contractorID string, limit int) ([]domain.TimeEntry, error) {
	return e.Repo.ListPendingEntries(ctx, contractorID, limit)
}
