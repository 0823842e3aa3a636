package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"throttle-gateway/middleware/throttle/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleServer_ReportsHaveOwnQuota(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	h, err := newServer(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), stats)
	require.NoError(t, err)

	call := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
		req.Header.Set("X-Api-Key", "k1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		w := call("/reports")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := call("/reports")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	retryAt, err := http.ParseTime(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), retryAt, 2*time.Second)
	// o header de quota é o do decorator (3/min), escrito por último
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))

	w = call("/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total infra.Counters `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body.Total.Throttled)
	assert.Positive(t, body.Total.Allowed)
}
