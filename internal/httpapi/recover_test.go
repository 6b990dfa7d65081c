package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskd/internal/reqctx"
)

func TestRecovererAnswersJSONAndCounts(t *testing.T) {
	var logs bytes.Buffer
	h := reqctx.Middleware(zerolog.New(&logs))(recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	before := testutil.ToFloat64(panicsTotal)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(reqctx.HeaderRequestID, "rid-7")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	e := decodeError(t, rec)
	assert.Equal(t, kindInternal, e.Kind)
	assert.Equal(t, "rid-7", e.RequestID)
	assert.Equal(t, before+1, testutil.ToFloat64(panicsTotal))
	assert.Contains(t, logs.String(), `"stack"`)
	assert.Contains(t, logs.String(), `"request_id":"rid-7"`)
}

func TestRecovererRepanicsAbortHandler(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	before := testutil.ToFloat64(panicsTotal)
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, before, testutil.ToFloat64(panicsTotal))
}
