package tvoverlay

// Screen corners a notification can be anchored to.
const (
	CornerTopStart    = "top_start"
	CornerTopEnd      = "top_end"
	CornerBottomStart = "bottom_start"
	CornerBottomEnd   = "bottom_end"
)

// Shapes a fixed notification can be drawn with.
const (
	ShapeCircle      = "circle"
	ShapeRounded     = "rounded"
	ShapeRectangular = "rectangular"
)

// Media types understood by the notify endpoint.
const (
	MediaTypeNone  = "none"
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Defaults applied by callers when a request leaves the field unset.
const (
	DefaultCorner = CornerTopEnd
	DefaultShape  = ShapeRounded
	DefaultLayout = "Default"
)

// NotificationLayouts lists the layout names the app accepts for
// notificationLayoutName.
var NotificationLayouts = []string{"Default", "Minimalist", "Icon Only"}

// ValidCorner reports whether s names one of the four screen corners.
func ValidCorner(s string) bool {
	switch s {
	case CornerTopStart, CornerTopEnd, CornerBottomStart, CornerBottomEnd:
		return true
	}
	return false
}

// ValidShape reports whether s names a fixed-notification shape.
func ValidShape(s string) bool {
	switch s {
	case ShapeCircle, ShapeRounded, ShapeRectangular:
		return true
	}
	return false
}

// ValidMediaType reports whether s is a recognized media type.
func ValidMediaType(s string) bool {
	switch s {
	case MediaTypeNone, MediaTypeImage, MediaTypeVideo:
		return true
	}
	return false
}

// ValidLayout reports whether s is a recognized notification layout name.
func ValidLayout(s string) bool {
	for _, l := range NotificationLayouts {
		if s == l {
			return true
		}
	}
	return false
}

// NotificationRequest describes a transient overlay notification. Empty
// strings and nil pointers mean the field was not supplied.
type NotificationRequest struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title,omitempty"`
	Message        string `json:"message,omitempty"`
	Source         string `json:"source,omitempty"`
	Corner         string `json:"corner,omitempty"`
	Duration       *int   `json:"duration,omitempty"`
	SmallIcon      string `json:"small_icon,omitempty"`
	SmallIconColor string `json:"small_icon_color,omitempty"`
	LargeIcon      string `json:"large_icon,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
}

// Payload assembles the JSON body for the notify endpoint. Fields that were
// not supplied are omitted entirely; color fields are normalized; the media
// type/URL pair resolves to exactly one of the image or video keys, and only
// when the type is not "none".
func (r NotificationRequest) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	if r.ID != "" {
		payload["id"] = r.ID
	}
	if r.Title != "" {
		payload["title"] = r.Title
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	if r.Source != "" {
		payload["source"] = r.Source
	}
	if r.Corner != "" {
		payload["corner"] = r.Corner
	}
	if r.Duration != nil {
		payload["duration"] = *r.Duration
	}
	if r.SmallIcon != "" {
		payload["smallIcon"] = r.SmallIcon
	}
	if r.SmallIconColor != "" {
		payload["smallIconColor"] = NormalizeColor(r.SmallIconColor)
	}
	if r.LargeIcon != "" {
		payload["largeIcon"] = r.LargeIcon
	}

	if r.MediaURL != "" && r.MediaType != "" && r.MediaType != MediaTypeNone {
		switch r.MediaType {
		case MediaTypeImage:
			payload["image"] = r.MediaURL
		case MediaTypeVideo:
			payload["video"] = r.MediaURL
		}
	}

	return payload
}

// FixedNotificationRequest describes a persistent on-screen notification.
// Sending one with Visible=false dismisses the notification with that ID.
type FixedNotificationRequest struct {
	ID                string `json:"id,omitempty"`
	Visible           *bool  `json:"visible,omitempty"`
	Icon              string `json:"icon,omitempty"`
	Message           string `json:"message,omitempty"`
	MessageColor      string `json:"message_color,omitempty"`
	IconColor         string `json:"icon_color,omitempty"`
	BorderColor       string `json:"border_color,omitempty"`
	BackgroundColor   string `json:"background_color,omitempty"`
	BackgroundOpacity *int   `json:"background_opacity,omitempty"`
	Shape             string `json:"shape,omitempty"`
	Expiration        string `json:"expiration,omitempty"`
}

// Payload assembles the JSON body for the notify_fixed endpoint. The
// background color carries an alpha channel derived from BackgroundOpacity;
// the other color fields are plainly normalized.
func (r FixedNotificationRequest) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	if r.ID != "" {
		payload["id"] = r.ID
	}
	if r.Visible != nil {
		payload["visible"] = *r.Visible
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	if r.Shape != "" {
		payload["shape"] = r.Shape
	}
	if r.Expiration != "" {
		payload["expiration"] = r.Expiration
	}
	if r.Icon != "" {
		payload["icon"] = r.Icon
	}
	if r.MessageColor != "" {
		payload["messageColor"] = NormalizeColor(r.MessageColor)
	}
	if r.IconColor != "" {
		payload["iconColor"] = NormalizeColor(r.IconColor)
	}
	if r.BorderColor != "" {
		payload["borderColor"] = NormalizeColor(r.BorderColor)
	}
	if r.BackgroundColor != "" {
		payload["backgroundColor"] = ColorWithAlpha(r.BackgroundColor, r.BackgroundOpacity)
	}

	return payload
}

// OverlaySettings adjusts the always-on overlay via the set_overlay endpoint.
type OverlaySettings struct {
	ClockVisibility   *int `json:"clock_visibility,omitempty"`
	OverlayVisibility *int `json:"overlay_visibility,omitempty"`
}

// Payload assembles the JSON body for the set_overlay endpoint.
func (s OverlaySettings) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	if s.ClockVisibility != nil {
		payload["clockOverlayVisibility"] = *s.ClockVisibility
	}
	if s.OverlayVisibility != nil {
		payload["overlayVisibility"] = *s.OverlayVisibility
	}

	return payload
}

// NotificationSettings adjusts notification behavior via the
// set_notifications endpoint.
type NotificationSettings struct {
	DisplayNotifications      *bool  `json:"display_notifications,omitempty"`
	DisplayFixedNotifications *bool  `json:"display_fixed_notifications,omitempty"`
	FixedVisibility           *int   `json:"fixed_visibility,omitempty"`
	Duration                  *int   `json:"duration,omitempty"`
	LayoutName                string `json:"layout_name,omitempty"`
}

// Payload assembles the JSON body for the set_notifications endpoint.
func (s NotificationSettings) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	if s.DisplayNotifications != nil {
		payload["displayNotifications"] = *s.DisplayNotifications
	}
	if s.DisplayFixedNotifications != nil {
		payload["displayFixedNotifications"] = *s.DisplayFixedNotifications
	}
	if s.FixedVisibility != nil {
		payload["fixedNotificationsVisibility"] = *s.FixedVisibility
	}
	if s.Duration != nil {
		payload["notificationDuration"] = *s.Duration
	}
	if s.LayoutName != "" {
		payload["notificationLayoutName"] = s.LayoutName
	}

	return payload
}

// SystemSettings adjusts app-level behavior via the set_settings endpoint.
type SystemSettings struct {
	PixelShift   *bool `json:"pixel_shift,omitempty"`
	DisplayDebug *bool `json:"display_debug,omitempty"`
}

// Payload assembles the JSON body for the set_settings endpoint.
func (s SystemSettings) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	if s.PixelShift != nil {
		payload["pixelShift"] = *s.PixelShift
	}
	if s.DisplayDebug != nil {
		payload["displayDebug"] = *s.DisplayDebug
	}

	return payload
}
