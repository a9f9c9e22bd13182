package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingCreated.WithLabelValues("created"))
	IncBooking("created")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingCreated.WithLabelValues("created")))

	before = testutil.ToFloat64(admissionEvents.WithLabelValues("discharged"))
	IncAdmissionEvent("discharged")
	assert.Equal(t, before+1, testutil.ToFloat64(admissionEvents.WithLabelValues("discharged")))

	before = testutil.ToFloat64(panics)
	IncPanic()
	assert.Equal(t, before+1, testutil.ToFloat64(panics))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	Register()
	IncSlotQuery("ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hms_slot_queries_total"))
}
