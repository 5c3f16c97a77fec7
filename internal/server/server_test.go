package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payops/internal/config"
	"payops/internal/db"
	"payops/internal/domain"
	"payops/internal/engine"
	"payops/internal/engine/auth"
	"payops/internal/migrate"
	"payops/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, db.SQLite))

	cfg := config.Default()
	cfg.Auth.OpsEmails = []string{"ops@example.com"}
	e := engine.New(conn, db.SQLite, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowDevHeaders: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, Engine: e, client: srv.Client()}
}

func token(t *testing.T, subject, email string, roles ...string) map[string]string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, subject, email, roles, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func opsHeaders(t *testing.T) map[string]string {
	return token(t, "ops-user", "ops@example.com")
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func (s *testServer) contractor(t *testing.T, first, email, rate string, checkr domain.CheckrStatus, eligible bool) domain.Contractor {
	t.Helper()
	ctx := context.Background()
	c, err := s.Engine.CreateContractor(ctx, engine.NewContractor{
		FirstName: first, LastName: "Test", Email: email, HourlyRate: decimal.RequireFromString(rate),
	}, "tester")
	require.NoError(t, err)
	c, err = s.Engine.UpdateContractor(ctx, c.ID, engine.ContractorUpdate{CheckrStatus: &checkr, PaymentEligible: &eligible}, "tester")
	require.NoError(t, err)
	return c
}

func (s *testServer) approvedEntry(t *testing.T, contractorID, date, hours string) string {
	t.Helper()
	ctx := context.Background()
	entry, err := s.Engine.RecordTimeEntry(ctx, engine.TimeEntryInput{
		ContractorID: contractorID, Date: date, TotalHours: decimal.RequireFromString(hours),
	}, "tester")
	require.NoError(t, err)
	_, err = s.Engine.ApproveTimeEntries(ctx, engine.ApproveInput{EntryIDs: []string{entry.ID}}, "ops@example.com")
	require.NoError(t, err)
	return entry.ID
}

func batchFrom(p ProposalResponse) map[string]any {
	return map[string]any{"payments": []map[string]any{{
		"contractor_id": p.ContractorID,
		"period_start":  p.PeriodStart,
		"period_end":    p.PeriodEnd,
		"total_hours":   p.TotalHours,
		"hourly_rate":   p.HourlyRate,
		"gross_amount":  p.GrossAmount,
		"entry_ids":     p.EntryIDs,
	}}}
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_credentials", decode[errorEnvelope](t, data).Error.Code)
}

func TestContractorCannotCreatePayments(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v1/payments/batches", map[string]any{"payments": []any{}},
		token(t, "contractor-1", "someone@contractors.test"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	env := decode[errorEnvelope](t, data)
	require.Equal(t, "forbidden", env.Error.Code)
	require.Equal(t, "payments.create", env.Error.Details["capability"])
}

func TestPaymentBatchLifecycle(t *testing.T) {
	srv := newTestServer(t)
	c := srv.contractor(t, "Jordan", "jordan@example.com", "20", domain.CheckrClear, true)
	srv.approvedEntry(t, c.ID, "2026-01-05", "10")
	srv.approvedEntry(t, c.ID, "2026-01-09", "8.5")

	res, data := srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	proposals := decode[ProposalsResponse](t, data)
	require.Len(t, proposals.Items, 1)
	p := proposals.Items[0]
	require.Equal(t, "370.00", p.GrossAmount)
	require.Equal(t, "18.5", p.TotalHours)
	require.Equal(t, "2026-01-05", p.PeriodStart)
	require.Equal(t, "2026-01-09", p.PeriodEnd)
	require.True(t, p.CanPay)
	require.Equal(t, "370.00", proposals.GrossTotal)

	res, data = srv.do(t, http.MethodPost, "/v1/payments/batches", batchFrom(p), opsHeaders(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	batch := decode[BatchResponse](t, data)
	require.Equal(t, 1, batch.Count)
	require.Equal(t, "PENDING", batch.Payments[0].Status)
	require.Equal(t, "370.00", batch.Payments[0].NetAmount)

	res, data = srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, decode[ProposalsResponse](t, data).Items)

	res, data = srv.do(t, http.MethodPost, "/v1/payments/batches", batchFrom(p), opsHeaders(t))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	require.Equal(t, "conflict", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodGet, "/v1/payments?status=pending", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[PaymentsResponse](t, data).Items, 1)
}

func TestPaymentBatchRejectsIneligibleContractor(t *testing.T) {
	srv := newTestServer(t)
	ok := srv.contractor(t, "Alex", "alex@example.com", "25", domain.CheckrClear, true)
	blocked := srv.contractor(t, "Sam", "sam@example.com", "18", domain.CheckrPending, true)
	srv.approvedEntry(t, ok.ID, "2026-01-05", "8")
	srv.approvedEntry(t, blocked.ID, "2026-01-05", "6")

	res, data := srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode)
	proposals := decode[ProposalsResponse](t, data)
	require.Len(t, proposals.Items, 2)
	require.Equal(t, 1, proposals.Payable)

	body := map[string]any{"payments": []any{
		batchFrom(proposals.Items[0])["payments"].([]map[string]any)[0],
		batchFrom(proposals.Items[1])["payments"].([]map[string]any)[0],
	}}
	res, data = srv.do(t, http.MethodPost, "/v1/payments/batches", body, opsHeaders(t))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env := decode[errorEnvelope](t, data)
	require.Equal(t, "payment_ineligible", env.Error.Code)
	require.Equal(t, blocked.ID, env.Error.Details["contractor_id"])
	require.Equal(t, "PENDING", env.Error.Details["checkr_status"])

	payments, err := srv.Engine.ListPayments(context.Background(), repo.PaymentFilter{})
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestPaymentBatchValidation(t *testing.T) {
	srv := newTestServer(t)
	c := srv.contractor(t, "Casey", "casey@example.com", "20", domain.CheckrClear, true)
	srv.approvedEntry(t, c.ID, "2026-01-05", "8")
	res, data := srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode)
	p := decode[ProposalsResponse](t, data).Items[0]

	cases := map[string]func(p *ProposalResponse){
		"gross mismatch": func(p *ProposalResponse) { p.GrossAmount = "999.00" },
		"bad decimal":    func(p *ProposalResponse) { p.HourlyRate = "twenty" },
		"no entries":     func(p *ProposalResponse) { p.EntryIDs = []string{} },
		"bad period":     func(p *ProposalResponse) { p.PeriodStart = "2026-02-30" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bad := p
			mutate(&bad)
			res, data := srv.do(t, http.MethodPost, "/v1/payments/batches", batchFrom(bad), opsHeaders(t))
			require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
			require.Equal(t, "validation_error", decode[errorEnvelope](t, data).Error.Code)
		})
	}

	res, data = srv.do(t, http.MethodPost, "/v1/payments/batches", map[string]any{"payments": []any{}}, opsHeaders(t))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestTransitionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	c := srv.contractor(t, "Jordan", "jordan@example.com", "20", domain.CheckrClear, true)
	srv.approvedEntry(t, c.ID, "2026-01-05", "8")
	res, data := srv.do(t, http.MethodGet, "/v1/payments/proposals", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data = srv.do(t, http.MethodPost, "/v1/payments/batches", batchFrom(decode[ProposalsResponse](t, data).Items[0]), opsHeaders(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	paymentID := decode[BatchResponse](t, data).Payments[0].ID
	path := "/v1/payments/" + paymentID + "/transitions"

	res, data = srv.do(t, http.MethodPost, path, map[string]any{"to": "PROCESSING"}, opsHeaders(t))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	disburser := token(t, "treasury-bot", "", "disbursement")
	res, data = srv.do(t, http.MethodPost, path, map[string]any{"to": "PROCESSING", "expected_version": 1}, disburser)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[PaymentResponse](t, data)
	require.Equal(t, "PROCESSING", updated.Status)
	require.Equal(t, 2, updated.Version)

	res, data = srv.do(t, http.MethodPost, path, map[string]any{"to": "PAID"}, disburser)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, path, map[string]any{"to": "IN_TRANSIT", "expected_version": 1}, disburser)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, _ = srv.do(t, http.MethodPost, "/v1/payments/missing/transitions", map[string]any{"to": "PROCESSING"}, disburser)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestApproveAndPendingEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := srv.contractor(t, "Alex", "alex@example.com", "25", domain.CheckrClear, true)
	entry, err := srv.Engine.RecordTimeEntry(context.Background(), engine.TimeEntryInput{
		ContractorID: c.ID, Date: "2026-01-06", TotalHours: decimal.NewFromInt(7),
	}, "tester")
	require.NoError(t, err)

	res, data := srv.do(t, http.MethodGet, "/v1/time-entries/pending", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[TimeEntriesResponse](t, data).Items, 1)

	res, data = srv.do(t, http.MethodPost, "/v1/time-entries/approve", map[string]any{"entry_ids": []string{entry.ID}},
		token(t, "contractor-1", "alex@example.com"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v1/time-entries/approve", map[string]any{"entry_ids": []string{entry.ID}}, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.EqualValues(t, 1, decode[ApproveResponse](t, data).Approved)

	res, data = srv.do(t, http.MethodGet, "/v1/time-entries/pending", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, decode[TimeEntriesResponse](t, data).Items)
}

func TestContractorEndpoints(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v1/contractors", map[string]any{
		"first_name": "Taylor", "last_name": "Kim", "email": "Taylor.Kim@example.com", "country": "kr", "hourly_rate": "20",
	}, opsHeaders(t))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	created := decode[ContractorResponse](t, data)
	require.Equal(t, "taylor.kim@example.com", created.Email)
	require.Equal(t, "KR", created.Country)
	require.Equal(t, "ONBOARDING", created.Status)
	require.False(t, created.CanPay)

	res, data = srv.do(t, http.MethodPost, "/v1/contractors", map[string]any{
		"first_name": "Taylor", "last_name": "Kim", "email": "taylor.kim@example.com", "hourly_rate": "20",
	}, opsHeaders(t))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPatch, "/v1/contractors/"+created.ID, map[string]any{
		"checkr_status": "CLEAR", "payment_eligible": true, "hourly_rate": "22.50",
	}, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[ContractorResponse](t, data)
	require.True(t, updated.CanPay)
	require.Equal(t, "22.50", updated.HourlyRate)

	res, _ = srv.do(t, http.MethodPatch, "/v1/contractors/missing", map[string]any{"payment_eligible": false}, opsHeaders(t))
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	self := token(t, "taylor-sub", "taylor.kim@example.com")
	res, data = srv.do(t, http.MethodGet, "/v1/contractors/"+created.ID+"/summary", nil, self)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	summary := decode[ContractorSummaryResponse](t, data)
	require.Equal(t, "0.00", summary.TotalEarned)

	other := token(t, "other-sub", "someone.else@example.com")
	res, _ = srv.do(t, http.MethodGet, "/v1/contractors/"+created.ID+"/payments", nil, other)
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, "/v1/contractors/"+created.ID+"/payments", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Empty(t, decode[PaymentsResponse](t, data).Items)
}

func TestMeWithDevHeaderAndAPIKey(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Actor-Email": "ops@example.com"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[MeResponse](t, data)
	require.Equal(t, "dev_header", me.Source)
	require.Contains(t, me.Roles, "ops")
	require.Contains(t, me.Capabilities, "payments.create")

	c := srv.contractor(t, "Jordan", "jordan@example.com", "20", domain.CheckrClear, true)
	plain, _, err := srv.Engine.CreateAPIKey(context.Background(), "jordan@example.com", "laptop")
	require.NoError(t, err)
	res, data = srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Api-Key": plain})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me = decode[MeResponse](t, data)
	require.Equal(t, "api_key", me.Source)
	require.NotContains(t, me.Roles, "ops")
	require.NotNil(t, me.ContractorID)
	require.Equal(t, c.ID, *me.ContractorID)

	res, _ = srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Api-Key": "pk_wrong"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	c := srv.contractor(t, "Alex", "alex@example.com", "25", domain.CheckrClear, true)
	_, err := srv.Engine.RecordTimeEntry(context.Background(), engine.TimeEntryInput{
		ContractorID: c.ID, Date: "2026-01-06", TotalHours: decimal.NewFromInt(7),
	}, "tester")
	require.NoError(t, err)

	res, data := srv.do(t, http.MethodGet, "/v1/stats", nil, opsHeaders(t))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	stats := decode[StatsResponse](t, data)
	require.Equal(t, "7", stats.PendingHours)
	require.Equal(t, 0, stats.PendingPayments)
	require.Equal(t, "0.00", stats.PendingPaymentAmount)

	res, _ = srv.do(t, http.MethodGet, "/v1/stats", nil, token(t, "c", "alex@example.com"))
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestOpenAPIDocumentIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode[map[string]any](t, data)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, paths, "/v1/payments/batches")
}
