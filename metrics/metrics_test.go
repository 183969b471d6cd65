package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEvents.WithLabelValues("login", "failure"))
	RecordAuthEvent("login", false)
	assert.Equal(t, before+1, testutil.ToFloat64(authEvents.WithLabelValues("login", "failure")))
}

func TestRecordHTTPRequestUnmatchedPath(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404"))
	RecordHTTPRequest("GET", "", "404", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestInFlight(t *testing.T) {
	before := testutil.ToFloat64(httpInFlight)
	done := InFlight()
	assert.Equal(t, before+1, testutil.ToFloat64(httpInFlight))
	done()
	assert.Equal(t, before, testutil.ToFloat64(httpInFlight))
}
