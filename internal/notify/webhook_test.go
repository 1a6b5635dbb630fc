package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dctwin/internal/domain"
)

func sampleAnomalies() []domain.Anomaly {
	return []domain.Anomaly{
		{ID: "a-1", SiteID: "S1", Type: domain.AnomalyMissing, Severity: domain.SeverityCritical},
		{ID: "a-2", SiteID: "S1", Type: domain.AnomalyAttributeMismatch, Severity: domain.SeverityLow},
		{ID: "a-3", SiteID: "S1", Type: domain.AnomalyUnexpected, Severity: domain.SeverityHigh},
	}
}

func TestWebhook_SendsAnomaliesAboveThreshold(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(Options{URL: srv.URL, Token: "secret", MinSeverity: domain.SeverityHigh}, nil)
	require.NoError(t, hook.Notify(context.Background(), "S1", sampleAnomalies()))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "S1", got.SiteID)
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Anomalies, 2)
	assert.Equal(t, "a-1", got.Anomalies[0].ID)
	assert.Equal(t, "a-3", got.Anomalies[1].ID)
}

func TestWebhook_SkipsWhenNothingQualifies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	hook := NewWebhook(Options{URL: srv.URL, MinSeverity: domain.SeverityCritical}, nil)
	low := []domain.Anomaly{{ID: "a-2", Severity: domain.SeverityMedium}}
	require.NoError(t, hook.Notify(context.Background(), "S1", low))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(Options{URL: srv.URL}, nil)
	err := hook.Notify(context.Background(), "S1", sampleAnomalies())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
