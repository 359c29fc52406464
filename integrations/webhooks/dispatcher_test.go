package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"stablevault/core/events"
	"stablevault/crypto"
)

type capture struct {
	body      []byte
	event     string
	signature string
}

func owner() crypto.Address {
	raw := make([]byte, 20)
	raw[0] = 9
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, reader
}

// deliveryCounts sums the delivery counter by outcome.
func deliveryCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != deliveryMetric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "unexpected aggregation %T", m.Data)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				out[outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestDispatcherSignsPayload(t *testing.T) {
	received := make(chan capture, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capture{body: body, event: r.Header.Get(HeaderEvent), signature: r.Header.Get(HeaderSignature)}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(events.VaultCreated{ID: 4, Owner: owner()})

	select {
	case got := <-received:
		require.Equal(t, events.TypeVaultCreated, got.event)
		require.True(t, Verify([]byte("secret"), got.body, got.signature))
		require.False(t, Verify([]byte("other"), got.body, got.signature))
		var payload Payload
		require.NoError(t, json.Unmarshal(got.body, &payload))
		require.Equal(t, "4", payload.Attributes["vaultId"])
		require.NotEmpty(t, payload.DeliveryID)
	case <-time.After(2 * time.Second):
		t.Fatalf("no delivery received")
	}
}

func TestDispatcherRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, reader := newMeter(t)
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithRetryPolicy(5, 10*time.Millisecond, 20*time.Millisecond), WithMeterProvider(provider))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(events.VaultPaused{Paused: true, By: owner()})

	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, 2*time.Second)
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	require.Eventually(t, func() bool { return deliveryCounts(t, reader)["delivered"] == 1 }, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 2, deliveryCounts(t, reader)["retried"])
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, reader := newMeter(t)
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithRetryPolicy(5, 5*time.Millisecond, 5*time.Millisecond), WithMeterProvider(provider))
	require.NoError(t, err)
	dispatcher.Emit(events.VaultCreated{ID: 1, Owner: owner()})
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 1 }, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	dispatcher.Close()
	require.EqualValues(t, 1, atomic.LoadInt32(&attempts))
	counts := deliveryCounts(t, reader)
	require.EqualValues(t, 1, counts["failed"])
	require.Zero(t, counts["retried"])
}

func TestDispatcherFiltersTypes(t *testing.T) {
	var deliveries int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&deliveries, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithTypes("vault.created"))
	require.NoError(t, err)
	dispatcher.Emit(events.VaultPaused{Paused: true, By: owner()})
	dispatcher.Emit(events.VaultCreated{ID: 2, Owner: owner()})
	waitFor(func() bool { return atomic.LoadInt32(&deliveries) >= 1 }, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	dispatcher.Close()
	require.EqualValues(t, 1, atomic.LoadInt32(&deliveries))
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(" ", []byte("secret"))
	require.Error(t, err)
	_, err = NewDispatcher("http://localhost", nil)
	require.Error(t, err)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	provider, reader := newMeter(t)
	dispatcher, err := NewDispatcher("http://127.0.0.1:1", []byte("secret"), WithMeterProvider(provider))
	require.NoError(t, err)
	dispatcher.Close()
	dispatcher.Emit(events.VaultCreated{ID: 3, Owner: owner()})
	require.Empty(t, dispatcher.queue)
	require.EqualValues(t, 1, deliveryCounts(t, reader)["dropped"])
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
