package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwheel-io/pinwheel/service"
	"github.com/pinwheel-io/pinwheel/service/lines"
)

func newTestServer(t *testing.T) (*Server, *lines.Stub) {
	t.Helper()
	stub := lines.NewStub()
	runtime, err := service.NewService(service.Config{}, service.Dependencies{
		Log:      zerolog.Nop(),
		Provider: stub,
	})
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close() })
	s, err := New(Config{}, zerolog.Nop(), runtime)
	require.NoError(t, err)
	return s, stub
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestMonitorLifecycle(t *testing.T) {
	s, stub := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/monitors/17",
		`{"edge":"rising","debounce":"5ms"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, stub.IsClaimed(17))

	// Duplicate attach conflicts.
	rec = doRequest(s, http.MethodPost, "/api/v1/monitors/17", `{"edge":"rising"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/pins", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result []PinInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, 17, result[0].Pin)
	assert.Equal(t, "interrupt", result[0].Driver)
	assert.Equal(t, "rising", result[0].Edge)

	rec = doRequest(s, http.MethodDelete, "/api/v1/monitors/17", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, stub.IsClaimed(17))
}

func TestMonitorBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/monitors/abc", `{"edge":"rising"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/monitors/17", `{"edge":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/monitors/17", `{"edge":"rising","debounce":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPWMLifecycle(t *testing.T) {
	s, stub := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/pwm/18",
		`{"frequency_hz":200,"duty_percent":50,"backend":"software"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, stub.IsClaimed(18))

	// Updating duty picks the value up.
	rec = doRequest(s, http.MethodPut, "/api/v1/pwm/18", `{"duty_percent":75}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/pins", "")
	var result []PinInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "pwm", result[0].Driver)
	assert.Equal(t, 75.0, result[0].DutyPercent)

	rec = doRequest(s, http.MethodDelete, "/api/v1/pwm/18", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, stub.IsClaimed(18))

	// Updating a stopped channel is not found.
	rec = doRequest(s, http.MethodPut, "/api/v1/pwm/18", `{"duty_percent":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPWMUpdatePartial(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/pwm/18",
		`{"frequency_hz":200,"duty_percent":75,"backend":"software"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A frequency-only update must not touch the duty cycle.
	rec = doRequest(s, http.MethodPut, "/api/v1/pwm/18", `{"frequency_hz":400}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/pins", "")
	var result []PinInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, 400.0, result[0].FrequencyHz)
	assert.Equal(t, 75.0, result[0].DutyPercent)

	// Duty-only updates keep the frequency.
	rec = doRequest(s, http.MethodPut, "/api/v1/pwm/18", `{"duty_percent":25}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/pins", "")
	result = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, 400.0, result[0].FrequencyHz)
	assert.Equal(t, 25.0, result[0].DutyPercent)

	// An empty body has nothing to apply.
	rec = doRequest(s, http.MethodPut, "/api/v1/pwm/18", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrossDriverConflict(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/monitors/17", `{"edge":"both"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/pwm/17",
		`{"duty_percent":50,"backend":"software"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
