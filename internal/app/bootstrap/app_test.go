package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                  "test",
		UseMemoryStore:       true,
		UseMemoryQueue:       true,
		WorkerCount:          1,
		TwilioClinicMapJSON:  `{"+576015550000":"clinic-1"}`,
		TurnLockTTL:          5 * time.Second,
		OutboxBatchSize:      10,
		OutboxInterval:       time.Second,
		FollowUpBatchSize:    10,
		FollowUpInterval:     time.Minute,
		SweepInterval:        time.Minute,
		SweepBatchSize:       10,
		EmergencyAbuseLimit:  2,
		SlotSearchHorizonDay: 14,
		ClassifierTimeout:    time.Second,
	}
}

func buildMemoryApp(t *testing.T) *App {
	t.Helper()
	app, err := Build(context.Background(), memoryConfig(), logging.Discard(), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestBuildMemoryModeServesWebchat(t *testing.T) {
	app := buildMemoryApp(t)
	assert.Nil(t, app.Pool)
	assert.Nil(t, app.Redis)

	handler := app.Handler(http.NotFoundHandler())
	body := `{"clinic_id":"clinic-1","phone":"+573001112233","text":"hola"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		SessionID string `json:"session_id"`
		Reply     string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Reply)
}

func TestBuildResolvesStaticClinicNumbers(t *testing.T) {
	app := buildMemoryApp(t)
	id, err := app.Resolver.ResolveClinicID(context.Background(), "+576015550000")
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", id)
}

func TestBuildRejectsBadClinicMap(t *testing.T) {
	cfg := memoryConfig()
	cfg.TwilioClinicMapJSON = "{not json"
	_, err := Build(context.Background(), cfg, logging.Discard(), Options{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestStartBackgroundStopsOnCancel(t *testing.T) {
	app := buildMemoryApp(t)
	opts := app.AllBackground()
	assert.True(t, opts.TurnWorker)

	ctx, cancel := context.WithCancel(context.Background())
	wait := app.StartBackground(ctx, opts)
	cancel()

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background loops did not stop")
	}
}

func TestSweepOnceOnEmptyStore(t *testing.T) {
	app := buildMemoryApp(t)
	report, err := app.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Nudged+report.Abandoned+report.Closed)
}

func TestMemoryModeRollsBackOutboxWithFailedTurn(t *testing.T) {
	app := buildMemoryApp(t)
	ctx := context.Background()
	boom := errors.New("turn failed")

	err := app.Conversation.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, app.Outbox.Record(ctx, "clinic-1", events.ConversationEndedV1{ClinicID: "clinic-1", ConversationID: "conv-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := app.Outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
