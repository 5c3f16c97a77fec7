package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"payops/internal/engine"
	"payops/internal/engine/auth"
	"payops/internal/logging"
)

func registerContractors(api huma.API, e engine.Engine, p *auth.Policy) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contractor",
		Method:        http.MethodPost,
		Path:          "/contractors",
		Summary:       "Create contractor",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateContractorRequest `json:"body"`
	}) (*struct {
		Body ContractorResponse `json:"body"`
	}, error) {
		principal, err := requireCapability(ctx, p, auth.ContractorsWrite)
		if err != nil {
			return nil, err
		}
		in, err := input.Body.toInput()
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.CreateContractor(logging.WithActor(ctx, principal.ActorID()), in, principal.ActorID())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorResponse `json:"body"`
		}{Body: contractorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contractor",
		Method:      http.MethodPatch,
		Path:        "/contractors/{contractor_id}",
		Summary:     "Update contractor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ContractorID string                  `path:"contractor_id"`
		Body         UpdateContractorRequest `json:"body"`
	}) (*struct {
		Body ContractorResponse `json:"body"`
	}, error) {
		principal, err := requireCapability(ctx, p, auth.ContractorsWrite)
		if err != nil {
			return nil, err
		}
		u, err := input.Body.toUpdate()
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.UpdateContractor(logging.WithActor(ctx, principal.ActorID()), input.ContractorID, u, principal.ActorID())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorResponse `json:"body"`
		}{Body: contractorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contractor-summary",
		Method:      http.MethodGet,
		Path:        "/contractors/{contractor_id}/summary",
		Summary:     "Contractor earnings summary",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ContractorID string `path:"contractor_id"`
	}) (*struct {
		Body ContractorSummaryResponse `json:"body"`
	}, error) {
		if err := requireContractorAccess(ctx, e, p, input.ContractorID); err != nil {
			return nil, err
		}
		s, err := e.ContractorSummary(ctx, input.ContractorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorSummaryResponse `json:"body"`
		}{Body: contractorSummaryResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contractor-payments",
		Method:      http.MethodGet,
		Path:        "/contractors/{contractor_id}/payments",
		Summary:     "Contractor payment history",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ContractorID string `path:"contractor_id"`
	}) (*struct {
		Body PaymentsResponse `json:"body"`
	}, error) {
		if err := requireContractorAccess(ctx, e, p, input.ContractorID); err != nil {
			return nil, err
		}
		payments, err := e.ContractorPayments(ctx, input.ContractorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentsResponse `json:"body"`
		}{Body: PaymentsResponse{Items: paymentResponses(payments)}}, nil
	})
}
