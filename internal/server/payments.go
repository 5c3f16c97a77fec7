package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"payops/internal/domain"
	"payops/internal/engine"
	"payops/internal/engine/auth"
	"payops/internal/logging"
	"payops/internal/repo"
)

func registerPayments(api huma.API, e engine.Engine, p *auth.Policy) {
	huma.Register(api, huma.Operation{
		OperationID: "list-payment-proposals",
		Method:      http.MethodGet,
		Path:        "/payments/proposals",
		Summary:     "Proposed payments from approved, unpaid time entries",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProposalsResponse `json:"body"`
	}, error) {
		if _, err := requireCapability(ctx, p, auth.ProposalsRead); err != nil {
			return nil, err
		}
		proposals, err := e.ComputeProposals(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalsResponse `json:"body"`
		}{Body: proposalsResponse(proposals)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-payment-batch",
		Method:        http.MethodPost,
		Path:          "/payments/batches",
		Summary:       "Create payments for the selected proposals",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBatchRequest `json:"body"`
	}) (*struct {
		Body BatchResponse `json:"body"`
	}, error) {
		principal, err := requireCapability(ctx, p, auth.PaymentsCreate)
		if err != nil {
			return nil, err
		}
		inputs, err := paymentInputs(input.Body.Payments)
		if err != nil {
			return nil, handleError(err)
		}
		ctx = logging.WithActor(ctx, principal.ActorID())
		created, err := e.CreatePayments(ctx, inputs, principal.ActorID())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchResponse `json:"body"`
		}{Body: batchResponse(created)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/payments",
		Summary:     "List payments, newest period first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ContractorID string `query:"contractor_id"`
		Status       string `query:"status" doc:"Comma separated payment statuses"`
		Limit        int    `query:"limit" default:"100"`
	}) (*struct {
		Body PaymentsResponse `json:"body"`
	}, error) {
		if _, err := requireCapability(ctx, p, auth.PaymentsRead); err != nil {
			return nil, err
		}
		filter := repo.PaymentFilter{
			ContractorID: strings.TrimSpace(input.ContractorID),
			Limit:        normalizeLimit(input.Limit, 100, 500),
		}
		for _, s := range strings.Split(input.Status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, domain.PaymentStatus(strings.ToUpper(s)))
			}
		}
		payments, err := e.ListPayments(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentsResponse `json:"body"`
		}{Body: PaymentsResponse{Items: paymentResponses(payments)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/transitions",
		Summary:     "Move a payment to its next disbursement status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PaymentID string            `path:"payment_id"`
		Body      TransitionRequest `json:"body"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		principal, err := requireCapability(ctx, p, auth.PaymentsDisburse)
		if err != nil {
			return nil, err
		}
		ctx = logging.WithActor(ctx, principal.ActorID())
		updated, err := e.TransitionPayment(ctx, engine.TransitionInput{
			PaymentID:       input.PaymentID,
			To:              domain.PaymentStatus(input.Body.To),
			ExpectedVersion: input.Body.ExpectedVersion,
		}, principal.ActorID())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(updated)}, nil
	})
}
