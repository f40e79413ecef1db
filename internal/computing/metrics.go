package computing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

var (
	jobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_job_transitions_total",
		Help: "Lifecycle operations by operation and outcome",
	}, []string{"operation", "outcome"})

	payoutsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_payout_units_total",
		Help: "Reward units paid out through submitted jobs",
	})

	reconciledEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_reconciled_events_total",
		Help: "JobCreated events folded into the ledger by result",
	}, []string{"result"})

	syncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_sync_passes_total",
		Help: "Sync passes by outcome",
	}, []string{"outcome"})

	syncedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_synced_block",
		Help: "Last block whose JobCreated events were reconciled",
	})
)

// outcome labels a lifecycle result with its error kind, or "ok".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := models.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}
