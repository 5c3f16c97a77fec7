package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payops/internal/config"
	"payops/internal/db"
	"payops/internal/engine"
	"payops/internal/migrate"
)

type capturedDelivery struct {
	signature string
	eventType string
	body      []byte
}

func TestWebhookDeliversSignedEventsAfterStart(t *testing.T) {
	var mu sync.Mutex
	var got []capturedDelivery
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, capturedDelivery{
			signature: r.Header.Get(SignatureHeader),
			eventType: r.Header.Get("X-Payops-Event"),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn, db.SQLite))
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{"contractor.created"}}}
	e := engine.New(conn, db.SQLite, cfg)

	_, err = e.CreateContractor(ctx, engine.NewContractor{FirstName: "Old", LastName: "Event", Email: "old@example.com", HourlyRate: decimal.NewFromInt(10)}, "tester")
	require.NoError(t, err)

	d := newWebhookDispatcher(e, nil)
	require.NotNil(t, d)
	d.dispatchAll(ctx)
	require.Empty(t, got)

	c, err := e.CreateContractor(ctx, engine.NewContractor{FirstName: "New", LastName: "Event", Email: "new@example.com", HourlyRate: decimal.NewFromInt(10)}, "tester")
	require.NoError(t, err)
	eligible := true
	_, err = e.UpdateContractor(ctx, c.ID, engine.ContractorUpdate{PaymentEligible: &eligible}, "tester")
	require.NoError(t, err)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, "contractor.created", got[0].eventType)
	require.Equal(t, signPayload("s3cret", got[0].body), got[0].signature)
	var evt webhookEvent
	require.NoError(t, json.Unmarshal(got[0].body, &evt))
	require.Equal(t, c.ID, evt.EntityID)
	require.Equal(t, "tester", evt.ActorID)
}

func TestWebhookDispatcherDisabledWithoutHooks(t *testing.T) {
	require.Nil(t, newWebhookDispatcher(engine.Engine{Config: config.Default()}, nil))
}

func TestEventFilter(t *testing.T) {
	require.True(t, newEventFilter(nil).match("payment.created"))
	require.True(t, newEventFilter([]string{" "}).match("payment.created"))
	f := newEventFilter([]string{"payment.created"})
	require.True(t, f.match("payment.created"))
	require.False(t, f.match("payment.transitioned"))
}
