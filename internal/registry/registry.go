package registry

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"tvbridge/internal/config"
	"tvbridge/internal/tvoverlay"

	"go.uber.org/zap"
)

// Device pairs a configured TvOverlay installation with its client.
// Ad-hoc devices, built for host targets that match nothing in the
// configuration, are not Registered and carry no persisted state.
type Device struct {
	Key        string
	ID         string
	Name       string
	Registered bool
	Client     *tvoverlay.Client
}

// Registry owns the clients for the configured devices and resolves
// operation targets. All configured clients share one HTTP connection pool
// with the standard request timeout.
type Registry struct {
	logger     *zap.Logger
	httpClient *http.Client

	mu      sync.RWMutex
	devices []*Device
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:     logger,
		httpClient: &http.Client{Timeout: tvoverlay.DefaultTimeout},
	}
}

// SetDevices replaces the configured device set, rebuilding clients. Called
// at startup and again on config reload.
func (r *Registry) SetDevices(devices []config.Device) {
	built := make([]*Device, 0, len(devices))
	for _, d := range devices {
		built = append(built, &Device{
			Key:        d.Key(),
			ID:         d.ID,
			Name:       d.Name,
			Registered: true,
			Client:     tvoverlay.NewClient(d.Host, d.Port, r.httpClient, r.logger),
		})
	}

	r.mu.Lock()
	r.devices = built
	r.mu.Unlock()

	r.logger.Info("Device registry updated", zap.Int("devices", len(built)))
}

// Devices returns a snapshot of the configured devices.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Device(nil), r.devices...)
}

// Get returns the configured device with the given key.
func (r *Registry) Get(key string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.Key == key {
			return d, true
		}
	}
	return nil, false
}

// Resolve picks the device an operation targets. A device ID is matched
// against configured ids, names, hosts, and keys, and resolves to nothing
// when unmatched. A host target is parsed as host[:port], matched against
// the configured devices, and otherwise answered with an ad-hoc client.
// A nil result means the operation should be skipped; the failure is
// logged here.
func (r *Registry) Resolve(deviceID, host string) *Device {
	if deviceID != "" {
		if d := r.findByIdentifier(deviceID); d != nil {
			return d
		}
		r.logger.Error("Device not found", zap.String("device_id", deviceID))
		return nil
	}

	if host != "" {
		h, port := ParseHostPort(host)
		if d := r.findByHostPort(h, port); d != nil {
			return d
		}
		// Unconfigured target: build a throwaway client for this call
		return &Device{
			Key:        h + ":" + strconv.Itoa(port),
			Registered: false,
			Client:     tvoverlay.NewClient(h, port, r.httpClient, r.logger),
		}
	}

	r.logger.Error("No target device specified")
	return nil
}

func (r *Registry) findByIdentifier(id string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == id || d.Key == id {
			return d
		}
	}
	for _, d := range r.devices {
		if d.Name == id || d.Client.Host() == id {
			return d
		}
	}
	return nil
}

func (r *Registry) findByHostPort(host string, port int) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.Client.Host() == host && d.Client.Port() == port {
			return d
		}
	}
	return nil
}

// ParseHostPort splits a "host[:port]" target. When the suffix after the
// last colon is not an integer the whole string is taken as the host and
// the port falls back to the app default.
func ParseHostPort(s string) (string, int) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, tvoverlay.DefaultPort
	}

	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return s, tvoverlay.DefaultPort
	}
	return s[:idx], port
}
