package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// findMetric returns the sample of family name carrying labels, or nil when
// it has not been observed yet.
func findMetric(t *testing.T, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	if m := findMetric(t, name, labels); m != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestEventCountersNormaliseLabels(t *testing.T) {
	published := map[string]string{"type": "vault.created"}
	before := counterValue(t, "stablevault_events_published_total", published)
	Events().RecordPublished("  Vault.Created ")
	require.Equal(t, before+1, counterValue(t, "stablevault_events_published_total", published))

	unknown := map[string]string{"sink": "unknown"}
	before = counterValue(t, "stablevault_events_dropped_total", unknown)
	Events().RecordDropped(" ")
	require.Equal(t, before+1, counterValue(t, "stablevault_events_dropped_total", unknown))
}

func TestModuleObserveSplitsOutcome(t *testing.T) {
	errLabels := map[string]string{"module": "rpc", "method": "vault_test", "outcome": "error"}
	statusLabels := map[string]string{"module": "rpc", "method": "vault_test", "status": "409"}
	beforeErr := counterValue(t, "stablevault_module_requests_total", errLabels)
	beforeStatus := counterValue(t, "stablevault_module_errors_total", statusLabels)

	ModuleMetrics().Observe("rpc", "vault_test", 409, 3*time.Millisecond)
	ModuleMetrics().Observe("rpc", "vault_test", 200, time.Millisecond)

	require.Equal(t, beforeErr+1, counterValue(t, "stablevault_module_requests_total", errLabels))
	require.Equal(t, beforeStatus+1, counterValue(t, "stablevault_module_errors_total", statusLabels))
	latency := findMetric(t, "stablevault_module_request_duration_seconds", map[string]string{"module": "rpc", "method": "vault_test"})
	require.NotNil(t, latency)
	require.GreaterOrEqual(t, latency.GetHistogram().GetSampleCount(), uint64(2))
}

func TestLedgerGaugesTrackTotals(t *testing.T) {
	ledger := Ledger()
	ledger.RecordTotals(3, big.NewInt(1_000_000), big.NewInt(250_000))
	ledger.SetPause(true)

	require.EqualValues(t, 3, findMetric(t, "stablevault_ledger_positions_open", nil).GetGauge().GetValue())
	require.EqualValues(t, 1_000_000, findMetric(t, "stablevault_ledger_collateral_locked", nil).GetGauge().GetValue())
	require.EqualValues(t, 250_000, findMetric(t, "stablevault_ledger_debt_outstanding", nil).GetGauge().GetValue())
	require.EqualValues(t, 1, findMetric(t, "stablevault_ledger_pause_engaged", nil).GetGauge().GetValue())

	ledger.SetPause(false)
	require.Zero(t, findMetric(t, "stablevault_ledger_pause_engaged", nil).GetGauge().GetValue())

	failed := map[string]string{"method": "vault_borrow", "outcome": "error"}
	before := counterValue(t, "stablevault_ledger_calls_total", failed)
	ledger.ObserveCall("vault_borrow", time.Millisecond, errors.New("rejected"))
	require.Equal(t, before+1, counterValue(t, "stablevault_ledger_calls_total", failed))
}
