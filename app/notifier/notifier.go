// Package notifier delivers webhook events to per-company endpoints on a
// background worker pool
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Deliveries partitioned by event type and outcome
	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"event", "outcome"},
	)

	webhookDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Webhook delivery latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	webhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_depth",
			Help: "Number of webhook events waiting for a worker",
		},
	)
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body keyed with
// the company's shared secret
const SignatureHeader = "X-Affiliate-Signature"

// envelope is the wire shape of every delivered event
type envelope struct {
	Event     models.WebhookEventType `json:"event"`
	Timestamp string                  `json:"timestamp"`
	Data      any                     `json:"data"`
}

type job struct {
	companyID uint
	event     models.WebhookEventType
	body      []byte
}

// Notifier implements the event publisher contract over a bounded queue and a
// fixed worker pool. Delivery happens outside any database transaction.
type Notifier struct {
	settingsRepo repository.WebhookSettingsRepository
	logRepo      repository.WebhookDeliveryLogRepository
	client       *http.Client
	logger       *log.Logger
	jobs         chan job
	workers      int
}

// New creates a notifier with the configured pool size and queue depth
func New(
	settingsRepo repository.WebhookSettingsRepository,
	logRepo repository.WebhookDeliveryLogRepository,
	cfg config.WebhookConfig,
) *Notifier {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}

	return &Notifier{
		settingsRepo: settingsRepo,
		logRepo:      logRepo,
		client:       &http.Client{Timeout: timeout},
		logger:       log.New(out, "notifier ", log.LstdFlags|log.Lmicroseconds|log.LUTC),
		jobs:         make(chan job, queueSize),
		workers:      workers,
	}
}

// Start launches the worker pool and returns a stop function that drains
// in-flight deliveries before returning
func (n *Notifier) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	var wg sync.WaitGroup
	wg.Add(n.workers)
	for i := 0; i < n.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-n.jobs:
					if !ok {
						return
					}
					webhookQueueDepth.Dec()
					n.deliver(ctx, j)
				}
			}
		}()
	}

	n.logger.Printf("started %d delivery workers", n.workers)

	return func() {
		cancel()
		wg.Wait()
		n.logger.Printf("stopped")
	}
}

// Publish enqueues one event for asynchronous delivery. A full queue drops
// the event rather than blocking the caller's transaction path.
func (n *Notifier) Publish(ctx context.Context, companyID uint, event models.WebhookEventType, payload any) error {
	body, err := json.Marshal(envelope{
		Event:     event,
		Timestamp: utils.UTCNowRFC3339(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	select {
	case n.jobs <- job{companyID: companyID, event: event, body: body}:
		webhookQueueDepth.Inc()
		return nil
	default:
		webhookDeliveriesTotal.With(prometheus.Labels{"event": string(event), "outcome": "dropped"}).Inc()
		n.logger.Printf("queue full, dropped %s for company %d", event, companyID)
		return fmt.Errorf("webhook queue full")
	}
}

// deliver posts one event with retries. Each attempt is logged; retries stop
// on the first 2xx, on context cancel, or once max attempts is reached.
func (n *Notifier) deliver(ctx context.Context, j job) {
	settings, err := n.settingsRepo.ByCompanyID(ctx, j.companyID)
	if err != nil {
		n.logger.Printf("settings lookup failed for company %d: %v", j.companyID, err)
		return
	}
	if settings == nil || !settings.Enabled {
		return
	}

	signature := Sign(settings.Secret, j.body)

	for attempt := 1; attempt <= settings.MaxAttempts; attempt++ {
		status, duration, err := n.post(ctx, settings.Endpoint, signature, j)
		success := err == nil && status >= 200 && status < 300

		n.recordAttempt(ctx, j, settings.Endpoint, attempt, status, duration, success, err)

		outcome := "failure"
		if success {
			outcome = "success"
		}
		webhookDeliveriesTotal.With(prometheus.Labels{"event": string(j.event), "outcome": outcome}).Inc()
		webhookDeliveryDuration.With(prometheus.Labels{"event": string(j.event)}).Observe(duration.Seconds())

		if success {
			return
		}
		if attempt == settings.MaxAttempts {
			n.logger.Printf("gave up on %s for company %d after %d attempts", j.event, j.companyID, attempt)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(Backoff(settings.BackoffBase, attempt)):
		}
	}
}

func (n *Notifier) post(ctx context.Context, endpoint, signature string, j job) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(j.body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	start := time.Now()
	resp, err := n.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return 0, duration, err
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, duration, nil
}

func (n *Notifier) recordAttempt(ctx context.Context, j job, endpoint string, attempt, status int, duration time.Duration, success bool, attemptErr error) {
	var errMsg *string
	if attemptErr != nil {
		msg := attemptErr.Error()
		errMsg = &msg
	}
	entry := &models.WebhookDeliveryLog{
		CompanyID:  j.companyID,
		EventType:  j.event,
		URL:        endpoint,
		Attempt:    attempt,
		StatusCode: status,
		DurationMS: duration.Milliseconds(),
		Success:    success,
		Error:      errMsg,
	}
	if err := n.logRepo.Save(ctx, entry); err != nil {
		n.logger.Printf("failed to record delivery attempt: %v", err)
	}
}

// Sign computes the hex HMAC-SHA256 of body keyed with secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header matches the body's expected signature
func VerifySignature(secret string, body []byte, header string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

// Backoff returns the wait before the next retry, base times 4^(attempt-1),
// capped at five minutes
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 4
		if d > 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}
