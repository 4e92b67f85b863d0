package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/infrastructure/metrics"
	"github.com/sagaflow/lra-coordinator/internal/lra"
	"github.com/sagaflow/lra-coordinator/internal/lra/audit"
	"github.com/sagaflow/lra-coordinator/internal/lra/store"
)

const testBase = "http://coordinator.test/lra-coordinator"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.New("test", "error", "json")
	auditLogger := audit.New(io.Discard)
	cfg := lra.DefaultConfig(testBase)
	engine := lra.NewEngine(cfg, store.NewMemory(), logger, auditLogger)
	recovery, err := lra.NewRecovery(engine, "@every 1h", logger)
	require.NoError(t, err)

	// Each test server needs its own registry: metrics.New() registers
	// collectors on the global default registry, which panics on a second
	// registration within the same test binary.
	m := metrics.NewWithRegistry("lra-coordinator-test", prometheus.NewRegistry())
	router := NewRouter(engine, recovery, logger, m, Options{
		CoordinatorBase: testBase,
		APIVersion:      "1.0",
	})
	return httptest.NewServer(router)
}

func TestStartAndGetInfoOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lra-coordinator/start?ClientID=c1", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lraID := strings.TrimSpace(string(body))
	assert.Contains(t, lraID, testBase)

	_, uid, err := lra.ParseID(lraID)
	require.NoError(t, err)

	infoResp, err := http.Get(srv.URL + "/lra-coordinator/" + uid)
	require.NoError(t, err)
	defer infoResp.Body.Close()
	require.Equal(t, http.StatusOK, infoResp.StatusCode)

	var info lra.LRA
	require.NoError(t, json.NewDecoder(infoResp.Body).Decode(&info))
	assert.Equal(t, lra.StatusActive, info.Status)
	assert.Equal(t, lraID, info.ID)
}

func TestListLRAsFiltersByStatusOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lra-coordinator/start?ClientID=c1", "", nil)
	require.NoError(t, err)
	io.ReadAll(resp.Body)
	resp.Body.Close()

	activeResp, err := http.Get(srv.URL + "/lra-coordinator/?Status=Active")
	require.NoError(t, err)
	defer activeResp.Body.Close()
	require.Equal(t, http.StatusOK, activeResp.StatusCode)

	var active []lra.LRA
	require.NoError(t, json.NewDecoder(activeResp.Body).Decode(&active))
	assert.Len(t, active, 1)

	closedResp, err := http.Get(srv.URL + "/lra-coordinator/?Status=Closed")
	require.NoError(t, err)
	defer closedResp.Body.Close()
	require.Equal(t, http.StatusOK, closedResp.StatusCode)

	var closed []lra.LRA
	require.NoError(t, json.NewDecoder(closedResp.Body).Decode(&closed))
	assert.Empty(t, closed)

	badResp, err := http.Get(srv.URL + "/lra-coordinator/?Status=NotAStatus")
	require.NoError(t, err)
	defer badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestGetInfoUnknownLRAReturns404(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lra-coordinator/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinThenCloseOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lra-coordinator/start?ClientID=c1", "", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	lraID := strings.TrimSpace(string(body))
	_, uid, err := lra.ParseID(lraID)
	require.NoError(t, err)

	joinReq, err := http.NewRequest(http.MethodPut, srv.URL+"/lra-coordinator/"+uid+"?compensate=http://p/compensate&complete=http://p/complete", nil)
	require.NoError(t, err)
	joinResp, err := http.DefaultClient.Do(joinReq)
	require.NoError(t, err)
	defer joinResp.Body.Close()
	require.Equal(t, http.StatusOK, joinResp.StatusCode)

	closeReq, err := http.NewRequest(http.MethodPut, srv.URL+"/lra-coordinator/"+uid+"/close", nil)
	require.NoError(t, err)
	closeResp, err := http.DefaultClient.Do(closeReq)
	require.NoError(t, err)
	defer closeResp.Body.Close()
	assert.Equal(t, http.StatusOK, closeResp.StatusCode)
}

func TestAPIVersionHeaderEchoed(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/lra-coordinator/", nil)
	require.NoError(t, err)
	req.Header.Set("Narayana-LRA-API-version", "1.0")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "1.0", resp.Header.Get("Narayana-LRA-API-version"))
}

func TestRecoveryStatusOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lra-coordinator/recovery")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out["inRecovery"])
}
