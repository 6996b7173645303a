package routeraccess

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/netpesa/hotspot-billing/domains/access/be/service"
	tenants "github.com/netpesa/hotspot-billing/domains/tenants/be/service"
)

func TestRevokeSendsRequest(t *testing.T) {
	router := tenants.Router{ID: uuid.New(), Name: "lobby", Address: "10.0.0.1"}

	var gotPath, gotAuth string
	var got revokeBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Token: "secret"})
	res := c.Revoke(context.Background(), service.RevokeRequest{Identity: "+254700000001", MACAddress: "AA:BB:CC:DD:EE:FF", Router: router})

	require.True(t, res.Success, res.Detail)
	require.Equal(t, "/v1/routers/"+router.ID.String()+"/revoke", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, revokeBody{Identity: "+254700000001", MACAddress: "AA:BB:CC:DD:EE:FF", RouterAddress: "10.0.0.1"}, got)
}

func TestRevokeIdentityOnlyOmitsMAC(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	res := c.Revoke(context.Background(), service.RevokeRequest{Identity: "+254700000001", Router: tenants.Router{ID: uuid.New()}})

	require.True(t, res.Success)
	require.NotContains(t, raw, "mac_address")
}

func TestRevokeReportsStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "router offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	res := c.Revoke(context.Background(), service.RevokeRequest{Identity: "x", Router: tenants.Router{ID: uuid.New(), Name: "lobby"}})

	require.False(t, res.Success)
	require.Contains(t, res.Detail, "502")
	require.Contains(t, res.Detail, "router offline")
}

func TestRevokeReportsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	res := c.Revoke(context.Background(), service.RevokeRequest{Identity: "x", Router: tenants.Router{ID: uuid.New(), Name: "lobby"}})

	require.False(t, res.Success)
	require.Contains(t, res.Detail, "unreachable")
}
