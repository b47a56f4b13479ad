package config

import (
	"sort"

	"github.com/san-kum/wheelsim/internal/control"
)

type preset struct {
	description string
	apply       func(*Config)
}

var presets = map[string]preset{
	"idle": {
		description: "upright at rest on the ground, no input",
		apply:       func(c *Config) { c.Duration = 2 },
	},
	"fall": {
		description: "tiny pitch-rate kick from upright; tips over and lands on the body",
		apply: func(c *Config) {
			c.InitState.ThetaDot = 1e-8
			c.Duration = 10
		},
	},
	"drive": {
		description: "both wheels forward under a pitch PID",
		apply: func(c *Config) {
			c.Duration = 5
			c.Control = ControlConfig{
				Kind:  "pid",
				Gains: map[string]float64{"kp": 40, "ki": 0, "kd": 2, "target": 0.05, "limit": 30},
			}
		},
	},
	"spin": {
		description: "yawing at 3 rad/s while both wheels drive forward",
		apply: func(c *Config) {
			c.InitState.PhiDot = 3
			c.Duration = 3
			c.Control = ControlConfig{Kind: "constant", Values: []float64{2, 2}}
		},
	},
	"tilted": {
		description: "released at 0.6 rad, wheel rates stepped halfway through",
		apply: func(c *Config) {
			c.InitState.Theta = 0.6
			c.Duration = 3
			c.Control = ControlConfig{
				Kind: "schedule",
				Segments: []control.Segment{
					{Start: 0, Control: []float64{0, 0}},
					{Start: 1.5, Control: []float64{2, 2}},
				},
			}
		},
	},
}

// GetPreset returns a fresh default config with the named preset applied,
// or nil if there is no such preset.
func GetPreset(name string) *Config {
	p, ok := presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Describe(name string) string {
	return presets[name].description
}
