package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/":                    "/",
		"/healthz":             "/healthz",
		"/accounts":            "/accounts",
		"/accounts/0xabc":      "/accounts/:account",
		"/accounts/0xabc/more": "/accounts/:account",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestRecordExecution(t *testing.T) {
	before := testutil.ToFloat64(Executions.WithLabelValues("owner", "success"))
	RecordExecution("owner", true)
	assert.Equal(t, before+1, testutil.ToFloat64(Executions.WithLabelValues("owner", "success")))

	beforeUnknown := testutil.ToFloat64(Executions.WithLabelValues("unknown", "failure"))
	RecordExecution("", false)
	assert.Equal(t, beforeUnknown+1, testutil.ToFloat64(Executions.WithLabelValues("unknown", "failure")))
}

func TestRecordSettlementFailure(t *testing.T) {
	before := testutil.ToFloat64(SettlementFailures)
	RecordSettlementFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(SettlementFailures))
}

func TestInstrumentHandler(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/accounts/:account", "404"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/0x01", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/accounts/:account", "404")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordValidation("succeeded")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "smartaccount_account_validations_total")
}
