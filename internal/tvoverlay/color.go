package tvoverlay

import (
	"fmt"
	"strings"
)

// DefaultBackgroundOpacity is the opacity percentage used when a background
// color is given without an explicit opacity.
const DefaultBackgroundOpacity = 40

// colorNames maps recognized color names to their hex encoding.
var colorNames = map[string]string{
	"red":       "#FF0000",
	"green":     "#00FF00",
	"blue":      "#0000FF",
	"white":     "#FFFFFF",
	"black":     "#000000",
	"yellow":    "#FFFF00",
	"orange":    "#FFA500",
	"purple":    "#800080",
	"pink":      "#FFC0CB",
	"cyan":      "#00FFFF",
	"magenta":   "#FF00FF",
	"gray":      "#808080",
	"grey":      "#808080",
	"brown":     "#A52A2A",
	"lime":      "#00FF00",
	"navy":      "#000080",
	"teal":      "#008080",
	"maroon":    "#800000",
	"olive":     "#808000",
	"silver":    "#C0C0C0",
	"aqua":      "#00FFFF",
	"gold":      "#FFD700",
	"coral":     "#FF7F50",
	"salmon":    "#FA8072",
	"violet":    "#EE82EE",
	"indigo":    "#4B0082",
	"turquoise": "#40E0D0",
}

// NormalizeColor converts a color name or hex string into "#RRGGBB" form,
// uppercase. Empty input stays empty. Strings that are neither a known name
// nor prefixed with "#" are passed through with a "#" prefix and uppercased;
// hex digits are not validated.
func NormalizeColor(color string) string {
	if color == "" {
		return ""
	}
	color = strings.TrimSpace(color)

	if hex, ok := colorNames[strings.ToLower(color)]; ok {
		return hex
	}

	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	return strings.ToUpper(color)
}

// ColorWithAlpha normalizes a color and prepends an alpha channel, producing
// "#AARRGGBB". The alpha byte is opacity*255/100 where opacity is a 0-100
// percentage; a nil opacity means DefaultBackgroundOpacity. Inputs that do
// not normalize to a six-digit hex value are returned without an alpha
// channel.
func ColorWithAlpha(color string, opacity *int) string {
	normalized := NormalizeColor(color)
	if normalized == "" {
		return ""
	}

	rgb := strings.TrimPrefix(normalized, "#")
	if len(rgb) != 6 {
		return normalized
	}

	pct := DefaultBackgroundOpacity
	if opacity != nil {
		pct = *opacity
	}

	alpha := pct * 255 / 100
	return fmt.Sprintf("#%02X%s", alpha, rgb)
}
