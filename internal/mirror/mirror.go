package mirror

import (
	"context"
	"sync"

	"tvbridge/internal/bridge"
	"tvbridge/internal/config"
	"tvbridge/internal/ha"

	"go.uber.org/zap"
)

// stateChange is one entity update queued for mirroring.
type stateChange struct {
	entityID string
	value    string
}

// Manager mirrors Home Assistant entity states onto TvOverlay devices. Each
// configured binding maps one entity to one control on one device; when the
// entity changes state the control is applied with the new value. Changes
// flow through a single worker so devices see them in order.
type Manager struct {
	logger   *zap.Logger
	client   ha.HAClient
	service  *bridge.Service
	bindings []config.ControlBinding

	mu        sync.Mutex
	lastKnown map[string]string
	subs      []ha.Subscription
	started   bool

	changes  chan stateChange
	stopChan chan struct{}
}

// NewManager creates a mirror for the given control bindings.
func NewManager(logger *zap.Logger, client ha.HAClient, service *bridge.Service, bindings []config.ControlBinding) *Manager {
	return &Manager{
		logger:    logger.Named("mirror"),
		client:    client,
		service:   service,
		bindings:  bindings,
		lastKnown: make(map[string]string),
		changes:   make(chan stateChange, 16),
		stopChan:  make(chan struct{}),
	}
}

// Start snapshots the bound entities and subscribes to their changes. The
// snapshot only seeds the last-known states; nothing is pushed to devices
// until an entity actually changes.
func (m *Manager) Start() error {
	if len(m.bindings) == 0 {
		m.logger.Info("No control bindings configured")
		return nil
	}

	entities := m.boundEntities()

	states, err := m.client.GetAllStates()
	if err != nil {
		m.logger.Warn("Failed to snapshot entity states", zap.Error(err))
	}

	m.mu.Lock()
	for _, state := range states {
		if _, bound := entities[state.EntityID]; bound {
			m.lastKnown[state.EntityID] = state.State
		}
	}
	m.mu.Unlock()

	for entityID := range entities {
		sub, err := m.client.SubscribeStateChanges(entityID, m.handleChange)
		if err != nil {
			m.logger.Error("Failed to subscribe to entity", zap.String("entity", entityID), zap.Error(err))
			continue
		}
		m.subs = append(m.subs, sub)
	}

	m.started = true
	go m.run()

	m.logger.Info("Mirroring Home Assistant entities",
		zap.Int("entities", len(entities)),
		zap.Int("bindings", len(m.bindings)))
	return nil
}

// Stop unsubscribes from all entities and stops the worker.
func (m *Manager) Stop() {
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			m.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	m.subs = nil

	if m.started {
		close(m.stopChan)
		m.started = false
	}

	m.logger.Info("Stopped mirroring Home Assistant entities")
}

func (m *Manager) boundEntities() map[string]struct{} {
	entities := make(map[string]struct{})
	for _, b := range m.bindings {
		entities[b.Entity] = struct{}{}
	}
	return entities
}

// handleChange runs on the websocket receive path, so it only enqueues.
func (m *Manager) handleChange(entityID string, oldState, newState *ha.State) {
	if newState == nil {
		return
	}

	// Entities report these while HA restarts or loses the integration
	// behind them; there is nothing to mirror.
	if newState.State == "unavailable" || newState.State == "unknown" {
		m.logger.Debug("Ignoring unavailable entity", zap.String("entity", entityID))
		return
	}

	m.mu.Lock()
	last, seen := m.lastKnown[entityID]
	if seen && last == newState.State {
		m.mu.Unlock()
		return
	}
	m.lastKnown[entityID] = newState.State
	m.mu.Unlock()

	select {
	case m.changes <- stateChange{entityID: entityID, value: newState.State}:
	default:
		m.logger.Warn("Mirror queue full, dropping change", zap.String("entity", entityID))
	}
}

func (m *Manager) run() {
	for {
		select {
		case <-m.stopChan:
			return
		case change := <-m.changes:
			m.apply(change)
		}
	}
}

func (m *Manager) apply(change stateChange) {
	for _, b := range m.bindings {
		if b.Entity != change.entityID {
			continue
		}

		ok, err := m.service.ApplyControl(context.Background(), bridge.ControlParams{
			Target:  bridge.Target{DeviceID: b.Device},
			Control: b.Control,
			Value:   change.value,
		})
		if err != nil {
			m.logger.Warn("Failed to mirror entity change",
				zap.String("entity", change.entityID),
				zap.String("control", b.Control),
				zap.String("device", b.Device),
				zap.Error(err))
			continue
		}
		if !ok {
			m.logger.Warn("Device rejected mirrored change",
				zap.String("entity", change.entityID),
				zap.String("control", b.Control),
				zap.String("device", b.Device))
			continue
		}

		m.logger.Debug("Mirrored entity change",
			zap.String("entity", change.entityID),
			zap.String("control", b.Control),
			zap.String("device", b.Device),
			zap.String("value", change.value))
	}
}
