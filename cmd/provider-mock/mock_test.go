package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(rate float64) (*MockProvider, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	m := NewMockProvider(rate, 0, 0)
	return m, SetupRouter(m)
}

func TestMockProvider_SendEmail(t *testing.T) {
	m, r := newTestRouter(1)

	body, _ := json.Marshal(SendEmailRequest{ID: "e1", From: "studio@example.com", To: []string{"ana@example.com"}, Subject: "Booking Confirmed"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/emails", bytes.NewReader(body)))

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp SendEmailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.ID)
	assert.Equal(t, m.providerID, resp.Provider)
	assert.Len(t, m.emails, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/emails", bytes.NewReader([]byte(`{"id":"e2"}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMockProvider_FailingEmail(t *testing.T) {
	_, r := newTestRouter(0)

	body, _ := json.Marshal(SendEmailRequest{ID: "e1", From: "a@b.c", To: []string{"x@y.z"}, Subject: "s"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/emails", bytes.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMockProvider_Push(t *testing.T) {
	m, r := newTestRouter(1)

	req := httptest.NewRequest(http.MethodPost, "/push/abc", bytes.NewReader([]byte("cipher")))
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Urgency", "high")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, m.pushes, 1)
	assert.Equal(t, "high", m.pushes[0].Urgency)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/push/gone-abc", nil))
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestMockProvider_HealthReportsHealthy(t *testing.T) {
	_, r := newTestRouter(1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
}
