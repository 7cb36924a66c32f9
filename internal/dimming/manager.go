package dimming

import (
	"context"
	"sync"
	"time"

	"tvbridge/internal/bridge"
	"tvbridge/internal/clock"
	"tvbridge/internal/config"
	"tvbridge/internal/controls"

	"go.uber.org/zap"
)

const tickInterval = time.Minute

// Manager dims the overlay on a sun schedule: full visibility during the
// day, a configured lower visibility between dusk and dawn. The phase is
// checked once a minute and pushed to the target devices on every
// transition, including the first check after startup.
type Manager struct {
	logger  *zap.Logger
	service *bridge.Service
	calc    *Calculator
	clock   clock.Clock

	dayVisibility   int
	nightVisibility int

	mu      sync.Mutex
	devices []string
	last    Phase

	stopChan chan struct{}
	started  bool
}

// NewManager creates a dimming manager from the dimming configuration.
func NewManager(logger *zap.Logger, service *bridge.Service, cfg *config.Dimming) *Manager {
	logger = logger.Named("dimming")
	return &Manager{
		logger:          logger,
		service:         service,
		calc:            NewCalculator(cfg.Latitude, cfg.Longitude, logger),
		clock:           clock.NewRealClock(),
		dayVisibility:   *cfg.DayVisibility,
		nightVisibility: *cfg.NightVisibility,
		devices:         append([]string(nil), cfg.Devices...),
		stopChan:        make(chan struct{}),
	}
}

// Start begins the phase ticker. The current phase is applied immediately.
func (m *Manager) Start() {
	m.started = true
	go m.run()

	m.logger.Info("Overlay dimming started",
		zap.Int("day_visibility", m.dayVisibility),
		zap.Int("night_visibility", m.nightVisibility),
		zap.Strings("devices", m.devices))
}

// Stop halts the phase ticker.
func (m *Manager) Stop() {
	if m.started {
		close(m.stopChan)
		m.started = false
	}
	m.logger.Info("Overlay dimming stopped")
}

// SetDevices replaces the dimming targets. The current phase is re-applied
// on the next tick so new targets pick it up without waiting for a
// transition.
func (m *Manager) SetDevices(devices []string) {
	m.mu.Lock()
	m.devices = append([]string(nil), devices...)
	m.last = ""
	m.mu.Unlock()
}

func (m *Manager) run() {
	m.evaluate(m.clock.Now())

	for {
		select {
		case <-m.stopChan:
			return
		case now := <-m.clock.After(tickInterval):
			m.evaluate(now)
		}
	}
}

// evaluate applies the phase for the given moment if it differs from the
// last applied one. An empty target list means every registered device.
func (m *Manager) evaluate(now time.Time) {
	phase := m.calc.Current(now)

	m.mu.Lock()
	if phase == m.last {
		m.mu.Unlock()
		return
	}
	m.last = phase
	devices := append([]string(nil), m.devices...)
	m.mu.Unlock()

	if len(devices) == 0 {
		for _, d := range m.service.Devices() {
			devices = append(devices, d.Key)
		}
	}

	visibility := m.dayVisibility
	if phase == PhaseNight {
		visibility = m.nightVisibility
	}

	m.logger.Info("Overlay dimming phase changed",
		zap.String("phase", string(phase)),
		zap.Int("visibility", visibility))

	for _, device := range devices {
		ok, err := m.service.ApplyControl(context.Background(), bridge.ControlParams{
			Target:  bridge.Target{DeviceID: device},
			Control: controls.OverlayVisibility,
			Value:   visibility,
		})
		if err != nil {
			m.logger.Warn("Failed to dim overlay",
				zap.String("device", device),
				zap.String("phase", string(phase)),
				zap.Error(err))
			continue
		}
		if !ok {
			m.logger.Warn("Device rejected overlay visibility",
				zap.String("device", device),
				zap.String("phase", string(phase)))
		}
	}
}
