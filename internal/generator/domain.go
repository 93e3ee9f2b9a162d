// Package generator holds the barcode sheet form controller: the input buffer,
// layout preset and theme, and the single outstanding PDF generation request.
package generator

import (
	"fmt"
	"time"
)

// FileName is the name under which a generated sheet is saved.
const FileName = "barcodes.pdf"

// ReadyMessage is the toast shown after a sheet was saved.
const ReadyMessage = "PDF ready ✓"

const (
	// DefaultTimeout bounds a generation request when no other value is configured.
	DefaultTimeout = 45 * time.Second
	// DefaultToastTTL is how long a toast stays visible.
	DefaultToastTTL = 3 * time.Second
)

// Preset selects how many barcodes the backend lays out per row.
type Preset string

const (
	PresetThree Preset = "3"
	PresetFour  Preset = "4"
	PresetSix   Preset = "6"
)

var presetLabels = map[Preset]string{
	PresetFour:  "A4 – 4 per row (standard)",
	PresetThree: "A4 – 3 per row (large)",
	PresetSix:   "A4 – 6 per row (compact)",
}

// Presets returns the supported presets in display order.
func Presets() []Preset {
	return []Preset{PresetFour, PresetThree, PresetSix}
}

// ParsePreset validates s as a preset.
func ParsePreset(s string) (Preset, error) {
	p := Preset(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPreset, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported presets.
func (p Preset) Valid() bool {
	_, ok := presetLabels[p]
	return ok
}

// Label is the human readable name of the preset.
func (p Preset) Label() string {
	return presetLabels[p]
}

// PerRow returns the number of codes per row, or zero for an unknown preset.
func (p Preset) PerRow() int {
	switch p {
	case PresetThree:
		return 3
	case PresetFour:
		return 4
	case PresetSix:
		return 6
	default:
		return 0
	}
}

// Theme is the session-local appearance of the form.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme validates s as a theme.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeDark, ThemeLight:
		return Theme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Dark reports whether t is the dark theme.
func (t Theme) Dark() bool {
	return t == ThemeDark
}

// ToggleLabel names the theme a toggle would switch to.
func (t Theme) ToggleLabel() string {
	if t.Dark() {
		return "☀ Light"
	}
	return "🌙 Dark"
}

// Request is the payload sent to the barcode backend.
type Request struct {
	Codes  string `json:"codes"`
	Preset Preset `json:"preset"`
}

// State is a snapshot of the form.
type State struct {
	Codes   string
	Preset  Preset
	Theme   Theme
	Loading bool
	Toast   string
}

// Config carries the tunables that differ between deployments.
type Config struct {
	// Timeout bounds a generation request. Zero waits for the backend indefinitely.
	Timeout       time.Duration
	ToastTTL      time.Duration
	DefaultPreset Preset
	DefaultTheme  Theme
}

func (c Config) withDefaults() Config {
	if c.ToastTTL <= 0 {
		c.ToastTTL = DefaultToastTTL
	}
	if !c.DefaultPreset.Valid() {
		c.DefaultPreset = PresetFour
	}
	if c.DefaultTheme != ThemeDark && c.DefaultTheme != ThemeLight {
		c.DefaultTheme = ThemeDark
	}
	return c
}
