package main

import (
	"strings"
	"testing"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
	"github.com/sweeney/tide-display/internal/logic"
	"github.com/sweeney/tide-display/internal/noaa"
	"github.com/sweeney/tide-display/internal/tides"
)

func defaultConfig() config {
	return config{
		poll:       2 * time.Millisecond,
		debounce:   100 * time.Millisecond,
		face:       "linear",
		motor:      "tick",
		station:    "9444900",
		noaaURL:    noaa.DefaultBaseURL,
		minLevel:   -4.3,
		maxLevel:   12.1,
		levelSrc:   "predicted",
		levelEvery: 6 * time.Minute,
		fetchEvery: 120 * time.Second,
		heartbeat:  15 * time.Minute,
		chip:       gpio.DefaultChip,
		pins: pins{
			tick: gpio.DefaultPinTick, tock: gpio.DefaultPinTock,
			a: gpio.DefaultPinA, b: gpio.DefaultPinB, c: gpio.DefaultPinC, d: gpio.DefaultPinD,
			limit: gpio.DefaultPinLimit, power: gpio.DefaultPinPower,
		},
	}
}

func TestValidateDefaults(t *testing.T) {
	s, err := defaultConfig().validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.face.Kind != logic.FaceLinear {
		t.Errorf("face: got %v", s.face.Kind)
	}
	if s.motor.Variant != logic.VariantTick {
		t.Errorf("motor: got %v", s.motor.Variant)
	}
	if s.levelSrc != tides.LevelPredicted {
		t.Errorf("level source: got %v", s.levelSrc)
	}
	if s.levels.MinLevel != -4.3 || s.levels.MaxLevel != 12.1 {
		t.Errorf("levels: got %+v", s.levels)
	}
}

func TestValidateSweepNonlinearObserved(t *testing.T) {
	cfg := defaultConfig()
	cfg.face = "nonlinear"
	cfg.motor = "sweep"
	cfg.levelSrc = "observed"

	s, err := cfg.validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.face.Kind != logic.FaceNonlinear || s.motor.Variant != logic.VariantSweep || s.levelSrc != tides.LevelObserved {
		t.Errorf("settings: got %+v", s)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config)
		want   string
	}{
		{"unknown face", func(c *config) { c.face = "round" }, "face"},
		{"unknown motor", func(c *config) { c.motor = "stepper" }, "motor"},
		{"unknown level source", func(c *config) { c.levelSrc = "guess" }, "level source"},
		{"inverted levels", func(c *config) { c.minLevel, c.maxLevel = 5, 1 }, ""},
		{"zero poll", func(c *config) { c.poll = 0 }, "poll"},
		{"poll slower than sweep steps", func(c *config) { c.motor = "sweep"; c.poll = 20 * time.Millisecond }, "step interval"},
		{"zero debounce", func(c *config) { c.debounce = 0 }, "debounce"},
		{"zero level interval", func(c *config) { c.levelEvery = 0 }, "level interval"},
		{"zero fetch interval", func(c *config) { c.fetchEvery = 0 }, "fetch interval"},
		{"negative heartbeat", func(c *config) { c.heartbeat = -time.Second }, "heartbeat"},
		{"no noaa url", func(c *config) { c.noaaURL = "" }, "noaa url"},
		{"no station", func(c *config) { c.station = "" }, "station"},
		{"negative pin", func(c *config) { c.pins.limit = -1 }, "limit"},
		{"shared pin", func(c *config) { c.pins.power = c.pins.tick }, "used for both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)
			_, err := cfg.validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateHeartbeatZeroAllowed(t *testing.T) {
	cfg := defaultConfig()
	cfg.heartbeat = 0
	if _, err := cfg.validate(); err != nil {
		t.Errorf("heartbeat 0 should disable, got %v", err)
	}
}
