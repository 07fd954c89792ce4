package collector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func startAdminServer(t *testing.T) (*httptest.Server, *Server, *Collector, chan error) {
	t.Helper()
	srv, c, _, served := startTestServer(t, nil)

	r := chi.NewRouter()
	NewHandler(c, srv).RegisterRoutes(r)
	admin := httptest.NewServer(r)
	t.Cleanup(admin.Close)

	return admin, srv, c, served
}

func TestHandlerStatus(t *testing.T) {
	admin, _, _, _ := startAdminServer(t)

	resp, err := http.Get(admin.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, RolePrimary, st.Role)
	require.Equal(t, "accepting", st.Phase)
	require.Equal(t, 2, st.TotalVoters)
	require.Equal(t, 0, st.ReceivedBallots)
}

func TestHandlerClose(t *testing.T) {
	admin, _, c, served := startAdminServer(t)

	resp, err := http.Post(admin.URL+"/close", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body closeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "closing", body.Status)
	require.Equal(t, PhaseAggregating, c.Phase())

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("voting endpoint did not stop after admin close")
	}

	// A second close reports the state instead of repeating the transition.
	resp2, err := http.Post(admin.URL+"/close", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	require.Equal(t, "already closed", body.Status)
}
