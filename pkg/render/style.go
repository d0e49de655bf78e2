package render

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/go-loom/loom/pkg/state"
)

// Style is a merged style: field name to resolved value. Merging is
// field-wise with child fields winning; the resolver performs the
// inheritance-chain merge before any Style reaches a render node.
type Style map[string]state.Value

// Merge returns the style with child fields laid over s. Neither input is
// modified.
func (s Style) Merge(child Style) Style {
	merged := make(Style, len(s)+len(child))
	for k, v := range s {
		merged[k] = v
	}
	for k, v := range child {
		merged[k] = v
	}
	return merged
}

// Number returns the numeric style field named key.
func (s Style) Number(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	return v.Number()
}

// Text returns the string style field named key.
func (s Style) Text(key string) (string, bool) {
	v, ok := s[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Flag returns the boolean style field named key.
func (s Style) Flag(key string) (bool, bool) {
	v, ok := s[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// Color parses the color-valued style field named key.
func (s Style) Color(key string) (Color, bool) {
	text, ok := s.Text(key)
	if !ok {
		return 0, false
	}
	c, err := ParseColor(text)
	if err != nil {
		return 0, false
	}
	return c, true
}

// Color is a 32-bit ARGB color.
type Color uint32

// ARGB constructs a color from components.
func ARGB(a, r, g, b uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// A returns the alpha component.
func (c Color) A() uint8 { return uint8(c >> 24) }

// R returns the red component.
func (c Color) R() uint8 { return uint8(c >> 16) }

// G returns the green component.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue component.
func (c Color) B() uint8 { return uint8(c) }

func (c Color) String() string {
	if c.A() == 0xFF {
		return fmt.Sprintf("#%02X%02X%02X", c.R(), c.G(), c.B())
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R(), c.G(), c.B(), c.A())
}

// ParseColor parses "#RGB", "#RRGGBB", "#RRGGBBAA" hex forms and SVG 1.1
// color names ("steelblue", "black").
func ParseColor(s string) (Color, error) {
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s[1:])
	}
	if rgba, ok := colornames.Map[strings.ToLower(s)]; ok {
		return ARGB(rgba.A, rgba.R, rgba.G, rgba.B), nil
	}
	return 0, fmt.Errorf("render: unknown color %q", s)
}

func parseHexColor(hex string) (Color, error) {
	parse := func(sub string) (uint8, error) {
		n, err := strconv.ParseUint(sub, 16, 8)
		return uint8(n), err
	}
	switch len(hex) {
	case 3:
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			n, err := parse(string(hex[i]) + string(hex[i]))
			if err != nil {
				return 0, fmt.Errorf("render: bad hex color %q", "#"+hex)
			}
			rgb[i] = n
		}
		return ARGB(0xFF, rgb[0], rgb[1], rgb[2]), nil
	case 6, 8:
		var parts [4]uint8
		parts[3] = 0xFF
		for i := 0; i < len(hex)/2; i++ {
			n, err := parse(hex[2*i : 2*i+2])
			if err != nil {
				return 0, fmt.Errorf("render: bad hex color %q", "#"+hex)
			}
			parts[i] = n
		}
		return ARGB(parts[3], parts[0], parts[1], parts[2]), nil
	default:
		return 0, fmt.Errorf("render: bad hex color %q", "#"+hex)
	}
}
