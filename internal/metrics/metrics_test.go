package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveResolution(t *testing.T) {
	before := testutil.ToFloat64(locationResolutions.WithLabelValues("ip", OutcomeFailed))

	ObserveResolution("ip", OutcomeFailed)
	ObserveResolution("ip", OutcomeFailed)

	assert.Equal(t, before+2, testutil.ToFloat64(locationResolutions.WithLabelValues("ip", OutcomeFailed)))
}

func TestObserveResolution_DiscardedIsCountedOnTopOfSuccess(t *testing.T) {
	success := testutil.ToFloat64(locationResolutions.WithLabelValues("device", OutcomeSuccess))
	discarded := testutil.ToFloat64(locationResolutions.WithLabelValues("device", OutcomeDiscarded))

	// One resolution that succeeded and was then dropped as stale.
	ObserveResolution("device", OutcomeSuccess)
	ObserveResolution("device", OutcomeDiscarded)

	gotSuccess := testutil.ToFloat64(locationResolutions.WithLabelValues("device", OutcomeSuccess)) - success
	gotDiscarded := testutil.ToFloat64(locationResolutions.WithLabelValues("device", OutcomeDiscarded)) - discarded
	assert.Equal(t, 1.0, gotSuccess)
	assert.Equal(t, 1.0, gotDiscarded)
	assert.Equal(t, 0.0, gotSuccess-gotDiscarded, "applied results")
}

func TestObserveIPCache(t *testing.T) {
	hits := testutil.ToFloat64(ipCacheRequests.WithLabelValues("hit"))
	misses := testutil.ToFloat64(ipCacheRequests.WithLabelValues("miss"))

	ObserveIPCache(true)
	ObserveIPCache(false)
	ObserveIPCache(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(ipCacheRequests.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(ipCacheRequests.WithLabelValues("miss")))
}

func TestObserveAddressBook(t *testing.T) {
	failed := testutil.ToFloat64(addressBookOperations.WithLabelValues("delete", OutcomeFailed))

	ObserveAddressBook("delete", errors.New("boom"))
	ObserveAddressBook("delete", nil)

	assert.Equal(t, failed+1, testutil.ToFloat64(addressBookOperations.WithLabelValues("delete", OutcomeFailed)))
}

func TestObserveIPLookup(t *testing.T) {
	ObserveIPLookup(time.Now().Add(-100*time.Millisecond), nil)

	assert.Equal(t, 1, testutil.CollectAndCount(ipLookupDuration))
}
