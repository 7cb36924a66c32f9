package mirror

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"tvbridge/internal/bridge"
	"tvbridge/internal/config"
	"tvbridge/internal/ha"
	"tvbridge/internal/registry"
	"tvbridge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	path string
	body map[string]interface{}
}

type fakeDevice struct {
	srv  *httptest.Server
	host string
	port int

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	fake := &fakeDevice{}
	fake.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{path: r.URL.Path, body: body})
		fake.mu.Unlock()

		w.WriteHeader(http.StatusOK)
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

func (f *fakeDevice) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeDevice) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "no request reached the device")
	return f.requests[len(f.requests)-1]
}

func newTestService(t *testing.T, devices ...config.Device) *bridge.Service {
	t.Helper()

	st := store.New(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	require.NoError(t, st.Load())

	reg := registry.New(zap.NewNop())
	reg.SetDevices(devices)

	return bridge.New(zap.NewNop(), reg, st)
}

func TestMirror_SnapshotDoesNotApply(t *testing.T) {
	fake := newFakeDevice(t)
	service := newTestService(t, config.Device{ID: "living_room", Host: fake.host, Port: fake.port})

	mock := ha.NewMockClient()
	mock.SetState("input_boolean.tv_clock", "on", nil)

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_boolean.tv_clock", Device: "living_room", Control: "display_clock"},
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fake.requestCount(), "startup snapshot must not touch devices")

	// The snapshot seeded the current value, so repeating it is a no-op too
	mock.SimulateStateChange("input_boolean.tv_clock", "on")
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fake.requestCount())
}

func TestMirror_AppliesChanges(t *testing.T) {
	fake := newFakeDevice(t)
	service := newTestService(t, config.Device{ID: "living_room", Host: fake.host, Port: fake.port})

	mock := ha.NewMockClient()
	mock.SetState("input_boolean.tv_clock", "on", nil)

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_boolean.tv_clock", Device: "living_room", Control: "display_clock"},
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	mock.SimulateStateChange("input_boolean.tv_clock", "off")

	require.Eventually(t, func() bool {
		return fake.requestCount() == 1
	}, 2*time.Second, 20*time.Millisecond)

	req := fake.lastRequest(t)
	assert.Equal(t, "/set_overlay", req.path)
	assert.Equal(t, float64(0), req.body["clockOverlayVisibility"])
}

func TestMirror_NumberEntity(t *testing.T) {
	fake := newFakeDevice(t)
	service := newTestService(t, config.Device{ID: "living_room", Host: fake.host, Port: fake.port})

	mock := ha.NewMockClient()

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_number.tv_overlay_visibility", Device: "living_room", Control: "overlay_visibility"},
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	// HA reports number states as strings
	mock.SimulateStateChange("input_number.tv_overlay_visibility", "42.0")

	require.Eventually(t, func() bool {
		return fake.requestCount() == 1
	}, 2*time.Second, 20*time.Millisecond)

	req := fake.lastRequest(t)
	assert.Equal(t, "/set_overlay", req.path)
	assert.Equal(t, float64(42), req.body["overlayVisibility"])
}

func TestMirror_OneEntityManyDevices(t *testing.T) {
	living := newFakeDevice(t)
	bedroom := newFakeDevice(t)
	service := newTestService(t,
		config.Device{ID: "living_room", Host: living.host, Port: living.port},
		config.Device{ID: "bedroom", Host: bedroom.host, Port: bedroom.port},
	)

	mock := ha.NewMockClient()

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_boolean.tv_clock", Device: "living_room", Control: "display_clock"},
		{Entity: "input_boolean.tv_clock", Device: "bedroom", Control: "display_clock"},
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	mock.SimulateStateChange("input_boolean.tv_clock", "on")

	require.Eventually(t, func() bool {
		return living.requestCount() == 1 && bedroom.requestCount() == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, float64(95), living.lastRequest(t).body["clockOverlayVisibility"])
	assert.Equal(t, float64(95), bedroom.lastRequest(t).body["clockOverlayVisibility"])
}

func TestMirror_SkipsUnavailable(t *testing.T) {
	fake := newFakeDevice(t)
	service := newTestService(t, config.Device{ID: "living_room", Host: fake.host, Port: fake.port})

	mock := ha.NewMockClient()

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_boolean.tv_clock", Device: "living_room", Control: "display_clock"},
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	mock.SimulateStateChange("input_boolean.tv_clock", "unavailable")
	mock.SimulateStateChange("input_boolean.tv_clock", "unknown")

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fake.requestCount())
}

func TestMirror_StopUnsubscribes(t *testing.T) {
	fake := newFakeDevice(t)
	service := newTestService(t, config.Device{ID: "living_room", Host: fake.host, Port: fake.port})

	mock := ha.NewMockClient()

	m := NewManager(zap.NewNop(), mock, service, []config.ControlBinding{
		{Entity: "input_boolean.tv_clock", Device: "living_room", Control: "display_clock"},
	})
	require.NoError(t, m.Start())
	require.Equal(t, 1, mock.SubscriberCount("input_boolean.tv_clock"))

	m.Stop()
	assert.Equal(t, 0, mock.SubscriberCount("input_boolean.tv_clock"))

	mock.SimulateStateChange("input_boolean.tv_clock", "off")
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fake.requestCount())
}

func TestMirror_NoBindings(t *testing.T) {
	service := newTestService(t, config.Device{ID: "living_room", Host: "127.0.0.1", Port: 5001})

	mock := ha.NewMockClient()
	m := NewManager(zap.NewNop(), mock, service, nil)

	require.NoError(t, m.Start())
	m.Stop()
}
