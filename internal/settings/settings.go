// Package settings holds the options of one cleaning run. A Settings value is
// built once before processing and passed by value to every component.
package settings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Character spacing presets in 1/100 pt.
var spacingPresets = map[string]int{
	"very-tight": -150,
	"tight":      -50,
	"normal":     0,
	"loose":      50,
	"very-loose": 150,
}

const (
	minFontSizePt = 1
	maxFontSizePt = 4000
	maxSpacing    = 400000
)

// RGB is an sRGB colour.
type RGB struct {
	R, G, B uint8
}

// ParseRGB accepts "#RRGGBB", "RRGGBB" or the short "#RGB" form.
func ParseRGB(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// MustRGB is ParseRGB for constants.
func MustRGB(s string) RGB {
	c, err := ParseRGB(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the colour as six upper-case hex digits, the form used by
// srgbClr values.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

func (c RGB) String() string { return "#" + c.Hex() }

// Color converts to a colorful.Color.
func (c RGB) Color() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// Contrast returns the CIE76 distance between two colours. A text colour
// close to the background is reported as a warning by callers.
func (c RGB) Contrast(other RGB) float64 {
	return c.Color().DistanceLab(other.Color())
}

// Abbreviation is one speaker-notes expansion.
type Abbreviation struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// DefaultAbbreviations is the built-in expansion table.
var DefaultAbbreviations = []Abbreviation{
	{"bvb", "bv"},
	{"pt", "PT"},
	{"pten", "PTen"},
	{"pte", "PTe"},
	{"wrs", "wss"},
	{"knn", "kunnen"},
	{"vr", "voor"},
	{"wilt", "wil"},
	{"versch", "verschillend"},
}

// Settings is the immutable option record of one run. Slices must not be
// modified after construction.
type Settings struct {
	EnableCustomFont    bool
	FontFamily          string
	FontSizePt          int
	TextSpacing         int
	Bold                bool
	TextColor           RGB
	RemoveDuplicates    bool
	BackgroundColor     RGB
	RemoveAnimations    bool
	EnableOCR           bool
	RemoveTheme         bool
	ExpandAbbreviations bool
	Abbreviations       []Abbreviation
}

// Default returns the out-of-the-box options: black bold text on white,
// duplicates removed, everything else off.
func Default() Settings {
	return Settings{
		FontFamily:       "Calibri",
		FontSizePt:       24,
		TextSpacing:      0,
		Bold:             true,
		TextColor:        RGB{0, 0, 0},
		RemoveDuplicates: true,
		BackgroundColor:  RGB{255, 255, 255},
		Abbreviations:    DefaultAbbreviations,
	}
}

// FontSize returns the font size in the 1/100 pt unit of run properties.
func (s Settings) FontSize() int { return s.FontSizePt * 100 }

// Validate reports the first option out of range.
func (s Settings) Validate() error {
	if s.EnableCustomFont {
		if strings.TrimSpace(s.FontFamily) == "" {
			return fmt.Errorf("custom font enabled without a font family")
		}
		if s.FontSizePt < minFontSizePt || s.FontSizePt > maxFontSizePt {
			return fmt.Errorf("font size %dpt out of range %d-%d", s.FontSizePt, minFontSizePt, maxFontSizePt)
		}
	}
	if s.TextSpacing < -maxSpacing || s.TextSpacing > maxSpacing {
		return fmt.Errorf("text spacing %d out of range", s.TextSpacing)
	}
	for _, a := range s.Abbreviations {
		if strings.TrimSpace(a.From) == "" || strings.ContainsAny(a.From, " \t\n") {
			return fmt.Errorf("invalid abbreviation %q", a.From)
		}
	}
	return nil
}

// SpacingPreset resolves a named spacing preset. Names are matched case
// insensitively with spaces or underscores in place of dashes.
func SpacingPreset(name string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "-", "_", "-").Replace(key)
	v, ok := spacingPresets[key]
	if !ok {
		return 0, fmt.Errorf("unknown spacing preset %q (want one of %s)", name, strings.Join(SpacingPresetNames(), ", "))
	}
	return v, nil
}

// SpacingPresetNames lists the presets from tightest to loosest.
func SpacingPresetNames() []string {
	names := make([]string, 0, len(spacingPresets))
	for n := range spacingPresets {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return spacingPresets[names[i]] < spacingPresets[names[j]] })
	return names
}
