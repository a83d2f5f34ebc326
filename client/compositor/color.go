package compositor

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultBackground is the standard ID-photo blue.
const DefaultBackground = "#0066CC"

// Named backgrounds offered as presets.
var NamedColors = map[string]string{
	"blue":  "#0066CC",
	"red":   "#FF0000",
	"white": "#FFFFFF",
	"gray":  "#808080",
}

// ParseColor accepts "#RRGGBB", "#RGB" or a NamedColors key.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if named, ok := NamedColors[strings.ToLower(s)]; ok {
		s = named
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid background color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}
