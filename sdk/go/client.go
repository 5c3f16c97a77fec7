package payopssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal payops HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API prefix,
// e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Amounts and hours are decimal strings exactly as the server renders them.

type Proposal struct {
	ContractorID    string   `json:"contractor_id"`
	ContractorName  string   `json:"contractor_name"`
	Email           string   `json:"email"`
	CheckrStatus    string   `json:"checkr_status"`
	PaymentEligible bool     `json:"payment_eligible"`
	CanPay          bool     `json:"can_pay"`
	PeriodStart     string   `json:"period_start"`
	PeriodEnd       string   `json:"period_end"`
	TotalHours      string   `json:"total_hours"`
	HourlyRate      string   `json:"hourly_rate"`
	GrossAmount     string   `json:"gross_amount"`
	EntryIDs        []string `json:"entry_ids"`
}

type Proposals struct {
	Items      []Proposal `json:"items"`
	GrossTotal string     `json:"gross_total"`
	Payable    int        `json:"payable"`
}

// PaymentInput is one line of a batch request.
type PaymentInput struct {
	ContractorID string   `json:"contractor_id"`
	PeriodStart  string   `json:"period_start"`
	PeriodEnd    string   `json:"period_end"`
	TotalHours   string   `json:"total_hours"`
	HourlyRate   string   `json:"hourly_rate"`
	GrossAmount  string   `json:"gross_amount"`
	EntryIDs     []string `json:"entry_ids"`
}

// Input converts a proposal into the matching batch line.
func (p Proposal) Input() PaymentInput {
	return PaymentInput{
		ContractorID: p.ContractorID,
		PeriodStart:  p.PeriodStart,
		PeriodEnd:    p.PeriodEnd,
		TotalHours:   p.TotalHours,
		HourlyRate:   p.HourlyRate,
		GrossAmount:  p.GrossAmount,
		EntryIDs:     p.EntryIDs,
	}
}

type Payment struct {
	ID           string  `json:"id"`
	ContractorID string  `json:"contractor_id"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
	TotalHours   string  `json:"total_hours"`
	HourlyRate   string  `json:"hourly_rate"`
	GrossAmount  string  `json:"gross_amount"`
	NetAmount    string  `json:"net_amount"`
	Status       string  `json:"status"`
	PaidAt       *string `json:"paid_at,omitempty"`
	Version      int     `json:"version"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type Batch struct {
	Payments   []Payment `json:"payments"`
	Count      int       `json:"count"`
	GrossTotal string    `json:"gross_total"`
}

// Me describes the authenticated caller.
type Me struct {
	Subject      string   `json:"subject"`
	Email        string   `json:"email,omitempty"`
	Source       string   `json:"source"`
	Roles        []string `json:"roles"`
	Capabilities []string `json:"capabilities"`
	ContractorID *string  `json:"contractor_id,omitempty"`
}

type Stats struct {
	ActiveContractors    int    `json:"active_contractors"`
	PendingPayments      int    `json:"pending_payments"`
	PendingPaymentAmount string `json:"pending_payment_amount"`
	PendingHours         string `json:"pending_hours"`
	PeriodStart          string `json:"period_start"`
	PeriodHours          string `json:"period_hours"`
	PendingCheckr        int    `json:"pending_checkr"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Proposals returns the current payment proposals.
func (c *Client) Proposals(ctx context.Context) (Proposals, error) {
	var resp Proposals
	err := c.do(ctx, http.MethodGet, "payments/proposals", nil, &resp)
	return resp, err
}

// CreateBatch creates every payment in one all-or-nothing batch.
func (c *Client) CreateBatch(ctx context.Context, payments []PaymentInput) (Batch, error) {
	body := map[string]any{"payments": payments}
	var resp Batch
	err := c.do(ctx, http.MethodPost, "payments/batches", body, &resp)
	return resp, err
}

// Payments lists payments, optionally narrowed to a contractor and statuses.
func (c *Client) Payments(ctx context.Context, contractorID string, statuses ...string) ([]Payment, error) {
	q := url.Values{}
	if contractorID != "" {
		q.Set("contractor_id", contractorID)
	}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	endpoint := "payments"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Payment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Transition moves a payment to status to. expectedVersion 0 skips the
// version check.
func (c *Client) Transition(ctx context.Context, paymentID, to string, expectedVersion int) (Payment, error) {
	body := map[string]any{"to": to}
	if expectedVersion > 0 {
		body["expected_version"] = expectedVersion
	}
	var resp Payment
	endpoint := fmt.Sprintf("payments/%s/transitions", url.PathEscape(paymentID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ApproveTimeEntries approves entries and returns how many changed.
func (c *Client) ApproveTimeEntries(ctx context.Context, entryIDs []string) (int64, error) {
	body := map[string]any{"entry_ids": entryIDs}
	var resp struct {
		Approved int64 `json:"approved"`
	}
	err := c.do(ctx, http.MethodPost, "time-entries/approve", body, &resp)
	return resp.Approved, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
