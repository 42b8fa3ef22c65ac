package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_purchases_total",
			Help: "Case purchases by outcome",
		},
		[]string{"status"},
	)

	Draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_draws_total",
			Help: "Draws by verdict and reason",
		},
		[]string{"verdict", "reason"},
	)

	PrizePaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "case_prize_paid_total",
			Help: "Total prize value credited",
		},
	)

	PurchaseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "case_purchase_duration_seconds",
			Help:    "Wall time of a purchase transaction",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Purchases, Draws, PrizePaid, PurchaseDuration)
	})
}

func ObservePurchase(status string, d time.Duration) {
	Purchases.WithLabelValues(status).Inc()
	PurchaseDuration.Observe(d.Seconds())
}

func ObserveDraw(verdict, reason string, paid float64) {
	Draws.WithLabelValues(verdict, reason).Inc()
	if paid > 0 {
		PrizePaid.Add(paid)
	}
}
