package notifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"event":"conversion.approved"}`)

	sig := Sign("super-secret", body)
	assert.Len(t, sig, 64) // hex sha256

	assert.True(t, VerifySignature("super-secret", body, sig))
	assert.False(t, VerifySignature("wrong-secret", body, sig))
	assert.False(t, VerifySignature("super-secret", []byte("tampered"), sig))
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"first attempt", time.Second, 1, time.Second},
		{"second attempt", time.Second, 2, 4 * time.Second},
		{"third attempt", time.Second, 3, 16 * time.Second},
		{"non-positive base defaults", 0, 2, 4 * time.Second},
		{"capped", time.Minute, 5, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.base, tt.attempt))
		})
	}
}

type stubSettingsRepo struct {
	settings *models.WebhookSettings
}

func (r *stubSettingsRepo) ByCompanyID(ctx context.Context, companyID uint) (*models.WebhookSettings, error) {
	return r.settings, nil
}

func (r *stubSettingsRepo) Upsert(ctx context.Context, settings *models.WebhookSettings) error {
	r.settings = settings
	return nil
}

type stubDeliveryLogRepo struct {
	mu      sync.Mutex
	entries []*models.WebhookDeliveryLog
}

func (r *stubDeliveryLogRepo) Save(ctx context.Context, entry *models.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubDeliveryLogRepo) saved() []*models.WebhookDeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.WebhookDeliveryLog, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *stubDeliveryLogRepo) ByID(ctx context.Context, id uint) (*models.WebhookDeliveryLog, error) {
	return nil, nil
}

func (r *stubDeliveryLogRepo) ByFilter(ctx context.Context, filter models.WebhookDeliveryLogFilter, orderBy string, limit, offset int) ([]*models.WebhookDeliveryLog, error) {
	return nil, nil
}

func (r *stubDeliveryLogRepo) SaveBatch(ctx context.Context, entries []*models.WebhookDeliveryLog) error {
	return nil
}

func (r *stubDeliveryLogRepo) Count(ctx context.Context, filter models.WebhookDeliveryLogFilter) (int64, error) {
	return int64(len(r.entries)), nil
}

func (r *stubDeliveryLogRepo) Exists(ctx context.Context, filter models.WebhookDeliveryLogFilter) (bool, error) {
	return len(r.entries) > 0, nil
}

func (r *stubDeliveryLogRepo) ListByCompany(ctx context.Context, companyID uint, limit, offset int) ([]*models.WebhookDeliveryLog, error) {
	return r.saved(), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestNotifierDeliversSignedEvent(t *testing.T) {
	var mu sync.Mutex
	var gotSignature string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSignature = r.Header.Get(SignatureHeader)
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settingsRepo := &stubSettingsRepo{settings: &models.WebhookSettings{
		CompanyID:   7,
		Endpoint:    server.URL,
		Secret:      "super-secret",
		Enabled:     true,
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
	}}
	logRepo := &stubDeliveryLogRepo{}

	n := New(settingsRepo, logRepo, config.WebhookConfig{Workers: 1, QueueSize: 8})
	stop := n.Start(context.Background())
	defer stop()

	err := n.Publish(context.Background(), 7, models.WebhookEventConversionApproved, map[string]any{"conversion_id": 12})
	require.NoError(t, err)

	waitFor(t, func() bool { return len(logRepo.saved()) == 1 })

	entries := logRepo.saved()
	assert.True(t, entries[0].Success)
	assert.Equal(t, 1, entries[0].Attempt)
	assert.Equal(t, http.StatusOK, entries[0].StatusCode)
	assert.Equal(t, models.WebhookEventConversionApproved, entries[0].EventType)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, VerifySignature("super-secret", gotBody, gotSignature))
}

func TestNotifierRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settingsRepo := &stubSettingsRepo{settings: &models.WebhookSettings{
		CompanyID:   7,
		Endpoint:    server.URL,
		Secret:      "super-secret",
		Enabled:     true,
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
	}}
	logRepo := &stubDeliveryLogRepo{}

	n := New(settingsRepo, logRepo, config.WebhookConfig{Workers: 1, QueueSize: 8})
	stop := n.Start(context.Background())
	defer stop()

	require.NoError(t, n.Publish(context.Background(), 7, models.WebhookEventInvoicePaid, map[string]any{"invoice_id": 3}))

	waitFor(t, func() bool {
		entries := logRepo.saved()
		return len(entries) == 3 && entries[2].Success
	})

	entries := logRepo.saved()
	assert.False(t, entries[0].Success)
	assert.False(t, entries[1].Success)
	assert.Equal(t, 3, entries[2].Attempt)
}

func TestNotifierSkipsDisabledSettings(t *testing.T) {
	settingsRepo := &stubSettingsRepo{settings: &models.WebhookSettings{
		CompanyID: 7,
		Endpoint:  "http://127.0.0.1:1", // Never reached
		Secret:    "super-secret",
		Enabled:   false,
	}}
	logRepo := &stubDeliveryLogRepo{}

	n := New(settingsRepo, logRepo, config.WebhookConfig{Workers: 1, QueueSize: 8})
	stop := n.Start(context.Background())

	require.NoError(t, n.Publish(context.Background(), 7, models.WebhookEventPayoutCreated, nil))

	// Give the worker a moment, then drain.
	time.Sleep(50 * time.Millisecond)
	stop()

	assert.Empty(t, logRepo.saved())
}

func TestPublishRejectsWhenQueueFull(t *testing.T) {
	settingsRepo := &stubSettingsRepo{}
	logRepo := &stubDeliveryLogRepo{}

	// Never started, so the queue only drains by capacity.
	n := New(settingsRepo, logRepo, config.WebhookConfig{Workers: 1, QueueSize: 1})

	require.NoError(t, n.Publish(context.Background(), 7, models.WebhookEventConversionCreated, nil))
	assert.Error(t, n.Publish(context.Background(), 7, models.WebhookEventConversionCreated, nil))
}
