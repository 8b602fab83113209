package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义管线业务监控指标
type BusinessMetrics struct {
	SessionCreatedTotal   prometheus.Counter
	SessionTerminalTotal  *prometheus.CounterVec // label: state (success/error/aborted)
	CeremonyLockContended prometheus.Counter
	CeremonyDuration      prometheus.Histogram
	GasFallbackTotal      *prometheus.CounterVec // label: method (sponsored/usdc/eth)
	SafetyScore           prometheus.Histogram
	SafetyPartialTotal    prometheus.Counter
	DeployAttemptTotal    *prometheus.CounterVec // label: outcome
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		SessionCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_session_created_total",
			Help: "The total number of transaction sessions created",
		}),
		SessionTerminalTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_session_terminal_total",
			Help: "Sessions reaching a terminal state",
		}, []string{"state"}),
		CeremonyLockContended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_ceremony_lock_contended_total",
			Help: "Failed fast-path acquisitions of the ceremony lock",
		}),
		CeremonyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_ceremony_duration_seconds",
			Help:    "Duration of authenticator ceremonies",
			Buckets: []float64{1, 5, 10, 30, 60},
		}),
		GasFallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_gas_method_total",
			Help: "Terminal gas payment method chosen at submission",
		}, []string{"method"}),
		SafetyScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_safety_score",
			Help:    "Distribution of aggregated safety scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		SafetyPartialTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_safety_partial_total",
			Help: "Safety analyses with at least one failed sub-check",
		}),
		DeployAttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_deploy_attempt_total",
			Help: "Smart account deployment attempts by outcome",
		}, []string{"outcome"}),
	}
}
