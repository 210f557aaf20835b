package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping() error { return p.err }

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(&fakePinger{})
	rec := httptest.NewRecorder()

	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeResponse(t, rec).Status)
}

func TestReadiness_DatabaseOK(t *testing.T) {
	h := NewHealthHandler(&fakePinger{})
	rec := httptest.NewRecorder()

	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeResponse(t, rec).Status)
}

func TestReadiness_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(&fakePinger{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()

	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Error, "database unreachable")
}

func TestReadiness_NilPinger(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()

	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
