package hydraulic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLevelForFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hydraulic/gate-level", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ST01", req["stationCode"])
		assert.Equal(t, 8.0, req["targetFlowRate"])

		json.NewEncoder(w).Encode(map[string]int{"gateLevel": 3})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	level, err := c.GateLevelForFlow(context.Background(), "ST01", 8.0)
	require.NoError(t, err)
	assert.Equal(t, 3, level)
}

func TestGateLevelForFlow_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.GateLevelForFlow(context.Background(), "ST01", 8.0)
	assert.Error(t, err)
}
