package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes. A discarded result was first counted as a success
// by the resolver, so discarded is a subset of success and the applied
// count is success minus discarded.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

var (
	locationResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipping_location_resolutions_total",
			Help: "Location resolution attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	ipLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shipping_ip_lookup_duration_seconds",
			Help:    "Duration of IP geolocation lookups in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	ipCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipping_ip_cache_requests_total",
			Help: "IP location cache lookups by result",
		},
		[]string{"result"},
	)

	submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipping_submissions_total",
			Help: "Shipping submissions by result code",
		},
		[]string{"result"},
	)

	addressBookOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipping_address_book_operations_total",
			Help: "Address book operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// ObserveResolution counts one resolution step.
func ObserveResolution(source, outcome string) {
	locationResolutions.WithLabelValues(source, outcome).Inc()
}

// ObserveIPLookup records the latency of one upstream IP lookup.
func ObserveIPLookup(start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	ipLookupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// ObserveIPCache counts a cache hit or miss.
func ObserveIPCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ipCacheRequests.WithLabelValues(result).Inc()
}

// ObserveSubmission counts a submission by its result code, "committed" on
// success.
func ObserveSubmission(result string) {
	submissions.WithLabelValues(result).Inc()
}

// ObserveAddressBook counts an address book operation.
func ObserveAddressBook(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	addressBookOperations.WithLabelValues(operation, outcome).Inc()
}
