package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"tvbridge/internal/api"
	"tvbridge/internal/bridge"
	"tvbridge/internal/config"
	"tvbridge/internal/ha"
	"tvbridge/internal/mirror"
	"tvbridge/internal/registry"
	"tvbridge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testToken  = "test_token_12345"
	testHAAddr = "localhost:18123"
	bridgePort = 18423
)

// recordedRequest is one HTTP call a fake device received.
type recordedRequest struct {
	path string
	body map[string]interface{}
}

// fakeTV pretends to be a TvOverlay installation and records every call.
type fakeTV struct {
	srv  *httptest.Server
	host string
	port int

	mu       sync.Mutex
	status   int
	requests []recordedRequest
}

func newFakeTV(t *testing.T) *fakeTV {
	t.Helper()

	fake := &fakeTV{status: http.StatusOK}
	fake.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("fake device got invalid JSON: %v", err)
		}

		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{path: r.URL.Path, body: body})
		status := fake.status
		fake.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(fake.srv.Close)

	host, portStr, err := net.SplitHostPort(fake.srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	fake.host = host
	fake.port = port

	return fake
}

func (f *fakeTV) setStatus(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeTV) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTV) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "no request reached the device")
	return f.requests[len(f.requests)-1]
}

// testStack wires the whole bridge the way main does: mock HA, fake
// device, store, registry, service, mirror, and the HTTP API.
type testStack struct {
	ha      *MockHAServer
	client  *ha.Client
	service *bridge.Service
	device  *fakeTV
}

func setupStack(t *testing.T, bindings []config.ControlBinding) (*testStack, func()) {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	haServer := NewMockHAServer(testHAAddr, testToken)
	haServer.InitializeStates()
	require.NoError(t, haServer.Start())

	device := newFakeTV(t)

	st := store.New(filepath.Join(t.TempDir(), "state.json"), logger)
	require.NoError(t, st.Load())

	reg := registry.New(logger)
	reg.SetDevices([]config.Device{
		{ID: "living_room", Name: "Living Room TV", Host: device.host, Port: device.port},
	})
	service := bridge.New(logger, reg, st)

	client := ha.NewClient(fmt.Sprintf("ws://%s/api/websocket", testHAAddr), testToken, logger)
	require.NoError(t, client.Connect())

	mirrorManager := mirror.NewManager(logger, client, service, bindings)
	require.NoError(t, mirrorManager.Start())

	apiServer := api.NewServer(service, logger, bridgePort)
	require.NoError(t, apiServer.Start())

	// Give the API listener and the mirror snapshot a moment
	time.Sleep(150 * time.Millisecond)

	cleanup := func() {
		apiServer.Stop()
		mirrorManager.Stop()
		client.Disconnect()
		haServer.Stop()
	}

	return &testStack{
		ha:      haServer,
		client:  client,
		service: service,
		device:  device,
	}, cleanup
}

// apiURL builds a bridge API URL for the test server.
func apiURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", bridgePort, path)
}

// postJSON posts a JSON body to the bridge API and decodes the response.
func postJSON(t *testing.T, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(apiURL(path), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestBridgeStartup(t *testing.T) {
	stack, cleanup := setupStack(t, nil)
	defer cleanup()

	t.Run("connected to home assistant", func(t *testing.T) {
		assert.True(t, stack.client.IsConnected())
	})

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(apiURL("/health"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("devices listed", func(t *testing.T) {
		resp, err := http.Get(apiURL("/api/devices"))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var devices []bridge.DeviceInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
		require.Len(t, devices, 1)
		assert.Equal(t, "living_room", devices[0].ID)
		assert.Equal(t, "Living Room TV", devices[0].Name)
		assert.Equal(t, stack.device.host, devices[0].Host)
	})

	t.Run("no device traffic without activity", func(t *testing.T) {
		assert.Zero(t, stack.device.requestCount())
	})
}
