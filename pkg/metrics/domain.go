package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const Subsystem = "dropship"

var registerDomainOnce sync.Once

// RegisterDomain registers the payment collectors. Safe to call repeatedly.
func RegisterDomain(logger Logger) {
	registerDomainOnce.Do(func() {
		for _, def := range DomainMetrics {
			register(def, Subsystem, logger)
		}
	})
}

func counterVec(def *Metric) *prometheus.CounterVec {
	RegisterDomain(nil)
	cv, _ := def.MetricCollector.(*prometheus.CounterVec)
	return cv
}

func IncCheckoutClaim(result string) {
	if cv := counterVec(MetricsCheckoutClaim); cv != nil {
		cv.WithLabelValues(result).Inc()
	}
}

func IncPaymentCallback(provider, result string) {
	if cv := counterVec(MetricsPaymentCallback); cv != nil {
		cv.WithLabelValues(provider, result).Inc()
	}
}

func IncOrderSync(result string) {
	if cv := counterVec(MetricsOrderSync); cv != nil {
		cv.WithLabelValues(result).Inc()
	}
}

func AddCheckoutExpired(n int) {
	RegisterDomain(nil)
	if c, ok := MetricsCheckoutExpired.MetricCollector.(prometheus.Counter); ok && n > 0 {
		c.Add(float64(n))
	}
}

// ObserveProcess records how long a named background step took.
func ObserveProcess(kind, subtype string, start time.Time) {
	RegisterDomain(nil)
	if hv, ok := MetricsBusinessProcess.MetricCollector.(*prometheus.HistogramVec); ok {
		hv.WithLabelValues(kind, subtype).Observe(MillisecondsSince(start))
	}
}
