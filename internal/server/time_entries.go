package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"payops/internal/engine"
	"payops/internal/engine/auth"
	"payops/internal/logging"
)

func registerTimeEntries(api huma.API, e engine.Engine, p *auth.Policy) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pending-time-entries",
		Method:      http.MethodGet,
		Path:        "/time-entries/pending",
		Summary:     "Time entries awaiting approval",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ContractorID string `query:"contractor_id"`
		Limit        int    `query:"limit" default:"200"`
	}) (*struct {
		Body TimeEntriesResponse `json:"body"`
	}, error) {
		if _, err := requireCapability(ctx, p, auth.HoursRead); err != nil {
			return nil, err
		}
		entries, err := e.PendingTimeEntries(ctx, strings.TrimSpace(input.ContractorID), normalizeLimit(input.Limit, 200, 1000))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeEntriesResponse `json:"body"`
		}{Body: TimeEntriesResponse{Items: timeEntryResponses(entries)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-time-entries",
		Method:      http.MethodPost,
		Path:        "/time-entries/approve",
		Summary:     "Approve time entries",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body ApproveRequest `json:"body"`
	}) (*struct {
		Body ApproveResponse `json:"body"`
	}, error) {
		principal, err := requireCapability(ctx, p, auth.HoursApprove)
		if err != nil {
			return nil, err
		}
		ctx = logging.WithActor(ctx, principal.ActorID())
		n, err := e.ApproveTimeEntries(ctx, engine.ApproveInput{EntryIDs: input.Body.EntryIDs}, principal.ActorID())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApproveResponse `json:"body"`
		}{Body: ApproveResponse{Approved: n}}, nil
	})
}
