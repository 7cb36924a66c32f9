package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tvbridge/internal/controls"
	"tvbridge/internal/registry"
	"tvbridge/internal/store"
	"tvbridge/internal/tvoverlay"

	"go.uber.org/zap"
)

// ErrNoDevice means a target could not be resolved to any device.
var ErrNoDevice = errors.New("no matching device")

// ValidationError reports a request rejected before any device was
// contacted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Target selects the device an operation acts on. DeviceID is matched
// against the configured devices and wins over Host when both are set;
// Host may name an unconfigured device as host[:port].
type Target struct {
	DeviceID string `json:"device_id,omitempty"`
	Host     string `json:"host,omitempty"`
}

// NotifyParams carries a transient notification and its target.
type NotifyParams struct {
	Target
	tvoverlay.NotificationRequest
}

// FixedParams carries a fixed notification and its target.
type FixedParams struct {
	Target
	tvoverlay.FixedNotificationRequest
}

// ClearFixedParams dismisses one fixed notification by ID.
type ClearFixedParams struct {
	Target
	ID string `json:"id"`
}

// ControlParams applies one control value to a device.
type ControlParams struct {
	Target
	Control string      `json:"control"`
	Value   interface{} `json:"value"`
}

// DeviceInfo describes one configured device together with its persisted
// state.
type DeviceInfo struct {
	Key         string            `json:"key"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	FixedIDs    []string          `json:"fixed_ids"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Service implements the bridge operations on top of the device registry
// and the persisted per-device state. Every entry point reports the device
// outcome as a bool: true for a 200 from the app, false otherwise.
type Service struct {
	logger   *zap.Logger
	registry *registry.Registry
	store    *store.Store
	controls map[string]controls.Control
}

// New creates the operations service.
func New(logger *zap.Logger, reg *registry.Registry, st *store.Store) *Service {
	return &Service{
		logger:   logger,
		registry: reg,
		store:    st,
		controls: controls.ByKey(),
	}
}

// Devices lists the configured devices with their persisted state.
func (s *Service) Devices() []DeviceInfo {
	devices := s.registry.Devices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{
			Key:         d.Key,
			ID:          d.ID,
			Name:        d.Name,
			Host:        d.Client.Host(),
			Port:        d.Client.Port(),
			FixedIDs:    s.store.FixedIDs(d.Key),
			Preferences: s.store.Preferences(d.Key),
		})
	}
	return infos
}

// Notify sends a transient notification. An unset corner falls back to the
// device's stored default.
func (s *Service) Notify(ctx context.Context, params NotifyParams) (bool, error) {
	if params.Duration != nil && *params.Duration <= 0 {
		return false, validationErrorf("duration must be positive, got %d", *params.Duration)
	}
	if params.MediaType != "" && !tvoverlay.ValidMediaType(params.MediaType) {
		return false, validationErrorf("unknown media type %q", params.MediaType)
	}
	if params.Corner != "" && !tvoverlay.ValidCorner(params.Corner) {
		return false, validationErrorf("unknown corner %q", params.Corner)
	}

	device, err := s.resolve(params.Target)
	if err != nil {
		return false, err
	}

	req := params.NotificationRequest
	if req.Corner == "" {
		req.Corner = s.preferredCorner(device)
	}

	s.logger.Debug("Sending notification", zap.String("device", device.Key), zap.String("title", req.Title))
	return device.Client.Notify(ctx, req)
}

// NotifyFixed creates or updates a fixed notification. Visibility defaults
// to true and an unset shape falls back to the device's stored default.
// Successful calls with an ID update the device's persisted fixed set.
func (s *Service) NotifyFixed(ctx context.Context, params FixedParams) (bool, error) {
	if params.BackgroundOpacity != nil && (*params.BackgroundOpacity < 0 || *params.BackgroundOpacity > 100) {
		return false, validationErrorf("background opacity must be 0-100, got %d", *params.BackgroundOpacity)
	}
	if params.Shape != "" && !tvoverlay.ValidShape(params.Shape) {
		return false, validationErrorf("unknown shape %q", params.Shape)
	}

	device, err := s.resolve(params.Target)
	if err != nil {
		return false, err
	}

	req := params.FixedNotificationRequest
	if req.Visible == nil {
		visible := true
		req.Visible = &visible
	}
	if req.Shape == "" {
		req.Shape = s.preferredShape(device)
	}

	s.logger.Debug("Sending fixed notification", zap.String("device", device.Key), zap.String("id", req.ID))
	ok, err := device.Client.NotifyFixed(ctx, req)
	if err != nil || !ok {
		return ok, err
	}

	s.trackFixed(device, req.ID, *req.Visible)
	return true, nil
}

// ClearFixed dismisses the fixed notification with the given ID and drops
// it from the device's persisted fixed set.
func (s *Service) ClearFixed(ctx context.Context, params ClearFixedParams) (bool, error) {
	if params.ID == "" {
		return false, validationErrorf("id is required")
	}

	device, err := s.resolve(params.Target)
	if err != nil {
		return false, err
	}

	s.logger.Debug("Clearing fixed notification", zap.String("device", device.Key), zap.String("id", params.ID))
	ok, err := device.Client.ClearFixed(ctx, params.ID)
	if err != nil || !ok {
		return ok, err
	}

	s.trackFixed(device, params.ID, false)
	return true, nil
}

// ClearNotifications dismisses whatever transient notification is on
// screen.
func (s *Service) ClearNotifications(ctx context.Context, target Target) (bool, error) {
	device, err := s.resolve(target)
	if err != nil {
		return false, err
	}

	s.logger.Debug("Clearing notifications", zap.String("device", device.Key))
	return device.Client.Notify(ctx, tvoverlay.NotificationRequest{})
}

// ApplyControl coerces a raw control value and pushes it to the target
// device, persisting the associated preference on success.
func (s *Service) ApplyControl(ctx context.Context, params ControlParams) (bool, error) {
	ctl, known := s.controls[params.Control]
	if !known {
		return false, validationErrorf("unknown control %q", params.Control)
	}

	value, err := ctl.Coerce(params.Value)
	if err != nil {
		return false, &ValidationError{Reason: err.Error()}
	}

	device, err := s.resolve(params.Target)
	if err != nil {
		return false, err
	}

	s.logger.Debug("Applying control", zap.String("device", device.Key), zap.String("control", ctl.Key))
	ok, err := ctl.Apply(ctx, device.Client, value)
	if err != nil || !ok {
		return ok, err
	}

	if ctl.Preference != "" && device.Registered {
		if err := s.store.SetPreference(device.Key, ctl.Preference, preferenceValue(ctl, value)); err != nil {
			s.logger.Warn("Failed to persist preference",
				zap.String("device", device.Key),
				zap.String("preference", ctl.Preference),
				zap.Error(err))
		}
	}
	return true, nil
}

// TestDevice checks whether a configured device answers its API.
func (s *Service) TestDevice(ctx context.Context, key string) (bool, error) {
	device, ok := s.registry.Get(key)
	if !ok {
		return false, ErrNoDevice
	}
	return device.Client.TestConnection(ctx), nil
}

func (s *Service) resolve(t Target) (*registry.Device, error) {
	if t.DeviceID == "" && t.Host == "" {
		return nil, validationErrorf("device_id or host is required")
	}
	device := s.registry.Resolve(t.DeviceID, t.Host)
	if device == nil {
		return nil, ErrNoDevice
	}
	return device, nil
}

func (s *Service) preferredCorner(d *registry.Device) string {
	if d.Registered {
		if corner := s.store.Preference(d.Key, controls.DefaultCorner); corner != "" {
			return corner
		}
	}
	return tvoverlay.DefaultCorner
}

func (s *Service) preferredShape(d *registry.Device) string {
	if d.Registered {
		if shape := s.store.Preference(d.Key, controls.DefaultShape); shape != "" {
			return shape
		}
	}
	return tvoverlay.DefaultShape
}

// trackFixed records a fixed notification as present or absent on a
// device. Ad-hoc targets and anonymous notifications are not tracked.
func (s *Service) trackFixed(d *registry.Device, id string, visible bool) {
	if !d.Registered || id == "" {
		return
	}

	var err error
	if visible {
		err = s.store.AddFixedID(d.Key, id)
	} else {
		err = s.store.RemoveFixedID(d.Key, id)
	}
	if err != nil {
		s.logger.Warn("Failed to persist fixed notification state",
			zap.String("device", d.Key),
			zap.String("id", id),
			zap.Error(err))
	}
}

func preferenceValue(c controls.Control, v controls.Value) string {
	switch c.Kind {
	case controls.KindSwitch:
		if v.Bool {
			return "on"
		}
		return "off"
	case controls.KindNumber:
		return strconv.Itoa(v.Number)
	default:
		return v.Option
	}
}
