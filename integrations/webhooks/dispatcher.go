// Package webhooks pushes committed vault events to an operator endpoint.
// Every body is signed with HMAC-SHA256 so receivers can authenticate it.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"stablevault/core/events"
	"stablevault/observability"
)

const (
	HeaderEvent     = "X-Stablevault-Event"
	HeaderDelivery  = "X-Stablevault-Delivery"
	HeaderSignature = "X-Stablevault-Signature"

	signaturePrefix = "sha256="
	sinkName        = "webhook"
	meterName       = "stablevault/webhooks"
	deliveryMetric  = "stablevault.webhook.deliveries"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 256
)

// Payload is the JSON body of one delivery.
type Payload struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Dispatcher delivers events with retry and exponential backoff. It
// implements events.Emitter and never blocks the caller: when the queue is
// full the event is dropped and counted.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	types       []string
	client      *http.Client
	logger      *slog.Logger
	clock       func() time.Time
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	meter       metric.MeterProvider
	deliveries  metric.Int64Counter

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTypes restricts deliveries to events whose type starts with one of
// prefixes. No prefixes means every event is delivered.
func WithTypes(prefixes ...string) Option {
	return func(d *Dispatcher) {
		for _, p := range prefixes {
			if p = strings.TrimSpace(p); p != "" {
				d.types = append(d.types, p)
			}
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithQueueSize bounds the number of pending deliveries.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithMeterProvider sets where delivery outcomes are counted. The global
// provider is used otherwise.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if provider != nil {
			d.meter = provider
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
		clock:       time.Now,
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.deliveries = deliveryCounter(d.meter)
	d.queue = make(chan delivery, d.queueSize)
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Close stops the dispatcher and waits for the in-flight delivery to finish.
// Queued deliveries that have not started are abandoned.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit queues e for delivery when it matches the configured types.
func (d *Dispatcher) Emit(e events.Event) {
	if d == nil || e == nil {
		return
	}
	rendered := events.Render(e)
	if !d.matches(rendered.Type) {
		return
	}
	payload := Payload{
		DeliveryID: uuid.NewString(),
		Type:       rendered.Type,
		Attributes: rendered.Attributes,
		EmittedAt:  d.clock().UTC(),
	}
	if err := d.enqueue(payload); err != nil {
		observability.Events().RecordDropped(sinkName)
		d.record("dropped")
		d.logger.Warn("webhook delivery dropped",
			slog.String("type", payload.Type),
			slog.String("deliveryId", payload.DeliveryID),
			slog.Any("error", err))
	}
}

func (d *Dispatcher) matches(eventType string) bool {
	if len(d.types) == 0 {
		return true
	}
	for _, prefix := range d.types {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) enqueue(payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if d.ctx.Err() != nil {
		return errors.New("webhook: dispatcher closed")
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}:
		return nil
	default:
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	timeout := d.client.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backoff := d.minBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, timeout)
		retry, err := d.send(ctx, job)
		cancel()
		if err == nil {
			d.record("delivered")
			return
		}
		if !retry || attempt >= d.maxAttempts {
			observability.Events().RecordDropped(sinkName)
			d.record("failed")
			d.logger.Error("webhook delivery failed",
				slog.String("type", job.eventType),
				slog.String("deliveryId", job.id),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		d.record("retried")
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func deliveryCounter(provider metric.MeterProvider) metric.Int64Counter {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	counter, err := provider.Meter(meterName).Int64Counter(deliveryMetric,
		metric.WithDescription("Webhook delivery attempts segmented by outcome."))
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(deliveryMetric)
	}
	return counter
}

func (d *Dispatcher) record(outcome string) {
	d.deliveries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// send posts one attempt. The boolean reports whether a failure is worth
// retrying; client errors other than 408 and 429 are final.
func (d *Dispatcher) send(ctx context.Context, job delivery) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderDelivery, job.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return true, err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, err
	}
	return true, err
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates body under secret.
func Verify(secret, body []byte, signature string) bool {
	raw, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(raw)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
