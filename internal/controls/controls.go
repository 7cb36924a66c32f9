package controls

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tvbridge/internal/tvoverlay"
)

// Kind describes how a control's raw value is interpreted.
type Kind string

const (
	KindSwitch  Kind = "switch"
	KindNumber  Kind = "number"
	KindSelect  Kind = "select"
	KindTrigger Kind = "trigger"
)

// Control keys.
const (
	DisplayClock              = "display_clock"
	DisplayNotifications      = "display_notifications"
	DisplayFixedNotifications = "display_fixed_notifications"
	PixelShift                = "pixel_shift"
	DebugMode                 = "debug_mode"
	ClockVisibility           = "clock_visibility"
	OverlayVisibility         = "overlay_visibility"
	FixedVisibility           = "fixed_notifications_visibility"
	NotificationDuration      = "notification_duration"
	NotificationLayout        = "notification_layout"
	DefaultCorner             = "default_corner"
	DefaultShape              = "default_shape"
	ClearNotifications        = "clear_notifications"
)

// Value is a coerced control value; the field matching the control's kind
// is the meaningful one.
type Value struct {
	Bool   bool
	Number int
	Option string
}

// Control describes one adjustable TvOverlay behavior: how its value is
// coerced and bounded, whether it persists as a per-device preference, and
// which typed client call pushes it to the device.
type Control struct {
	Key  string
	Kind Kind

	// Number bounds, inclusive. Meaningful for KindNumber.
	Min int
	Max int

	// Select options. Meaningful for KindSelect.
	Options []string

	// Preference names the per-device stored preference this control
	// updates after a successful apply. Controls with a preference and no
	// device call are local-only.
	Preference string

	// apply pushes the coerced value to a device; nil for local-only
	// controls.
	apply func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error)
}

// DeviceBacked reports whether applying the control issues a device call.
func (c Control) DeviceBacked() bool {
	return c.apply != nil
}

// Apply pushes a coerced value to the device. Local-only controls succeed
// without any call.
func (c Control) Apply(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
	if c.apply == nil {
		return true, nil
	}
	return c.apply(ctx, client, v)
}

// Coerce validates a raw value against the control's kind and bounds. Raw
// values arrive as JSON scalars from the HTTP API or as state strings from
// Home Assistant.
func (c Control) Coerce(raw interface{}) (Value, error) {
	switch c.Kind {
	case KindSwitch:
		b, err := coerceBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("control %s: %w", c.Key, err)
		}
		return Value{Bool: b}, nil

	case KindNumber:
		n, err := coerceNumber(raw)
		if err != nil {
			return Value{}, fmt.Errorf("control %s: %w", c.Key, err)
		}
		if n < c.Min || n > c.Max {
			return Value{}, fmt.Errorf("control %s: value %d out of range %d..%d", c.Key, n, c.Min, c.Max)
		}
		return Value{Number: n}, nil

	case KindSelect:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("control %s: expected a string option, got %T", c.Key, raw)
		}
		for _, opt := range c.Options {
			if s == opt {
				return Value{Option: s}, nil
			}
		}
		return Value{}, fmt.Errorf("control %s: %q is not one of %s", c.Key, s, strings.Join(c.Options, ", "))

	case KindTrigger:
		return Value{}, nil
	}

	return Value{}, fmt.Errorf("control %s: unknown kind %s", c.Key, c.Kind)
}

func coerceBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "on", "true":
			return true, nil
		case "off", "false":
			return false, nil
		}
		return false, fmt.Errorf("cannot interpret %q as on/off", v)
	}
	return false, fmt.Errorf("cannot interpret %T as on/off", raw)
}

func coerceNumber(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot interpret %q as a number", v)
		}
		return int(f), nil
	}
	return 0, fmt.Errorf("cannot interpret %T as a number", raw)
}

// All lists every control the bridge exposes.
var All = []Control{
	// Switches
	{Key: DisplayClock, Kind: KindSwitch,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			// The clock has no on/off toggle; visibility 95 shows it, 0 hides it.
			vis := 0
			if v.Bool {
				vis = 95
			}
			return client.SetOverlay(ctx, tvoverlay.OverlaySettings{ClockVisibility: &vis})
		}},
	{Key: DisplayNotifications, Kind: KindSwitch,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetNotifications(ctx, tvoverlay.NotificationSettings{DisplayNotifications: &v.Bool})
		}},
	{Key: DisplayFixedNotifications, Kind: KindSwitch,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetNotifications(ctx, tvoverlay.NotificationSettings{DisplayFixedNotifications: &v.Bool})
		}},
	{Key: PixelShift, Kind: KindSwitch,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetSettings(ctx, tvoverlay.SystemSettings{PixelShift: &v.Bool})
		}},
	{Key: DebugMode, Kind: KindSwitch,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetSettings(ctx, tvoverlay.SystemSettings{DisplayDebug: &v.Bool})
		}},

	// Numbers
	{Key: ClockVisibility, Kind: KindNumber, Min: 0, Max: 95,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetOverlay(ctx, tvoverlay.OverlaySettings{ClockVisibility: &v.Number})
		}},
	{Key: OverlayVisibility, Kind: KindNumber, Min: 0, Max: 95,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetOverlay(ctx, tvoverlay.OverlaySettings{OverlayVisibility: &v.Number})
		}},
	{Key: FixedVisibility, Kind: KindNumber, Min: -1, Max: 95,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetNotifications(ctx, tvoverlay.NotificationSettings{FixedVisibility: &v.Number})
		}},
	{Key: NotificationDuration, Kind: KindNumber, Min: 1, Max: 60,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetNotifications(ctx, tvoverlay.NotificationSettings{Duration: &v.Number})
		}},

	// Selects
	{Key: NotificationLayout, Kind: KindSelect, Options: tvoverlay.NotificationLayouts, Preference: NotificationLayout,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			return client.SetNotifications(ctx, tvoverlay.NotificationSettings{LayoutName: v.Option})
		}},
	{Key: DefaultCorner, Kind: KindSelect, Preference: DefaultCorner,
		Options: []string{tvoverlay.CornerTopStart, tvoverlay.CornerTopEnd, tvoverlay.CornerBottomStart, tvoverlay.CornerBottomEnd}},
	{Key: DefaultShape, Kind: KindSelect, Preference: DefaultShape,
		Options: []string{tvoverlay.ShapeCircle, tvoverlay.ShapeRounded, tvoverlay.ShapeRectangular}},

	// Triggers
	{Key: ClearNotifications, Kind: KindTrigger,
		apply: func(ctx context.Context, client *tvoverlay.Client, v Value) (bool, error) {
			// An empty notify payload dismisses whatever is on screen.
			return client.Notify(ctx, tvoverlay.NotificationRequest{})
		}},
}

// ByKey returns the control table indexed by key.
func ByKey() map[string]Control {
	m := make(map[string]Control, len(All))
	for _, c := range All {
		m[c.Key] = c
	}
	return m
}

// Exists reports whether key names a known control.
func Exists(key string) bool {
	_, ok := ByKey()[key]
	return ok
}
