package main

import (
	"fmt"
	"time"

	"github.com/sweeney/tide-display/internal/level"
	"github.com/sweeney/tide-display/internal/logic"
	"github.com/sweeney/tide-display/internal/tides"
)

// config is parsed once from flags and never changed afterwards.
type config struct {
	poll       time.Duration
	debounce   time.Duration
	face       string
	motor      string
	station    string
	noaaURL    string
	minLevel   float64
	maxLevel   float64
	levelSrc   string
	levelEvery time.Duration
	fetchEvery time.Duration
	broker     string
	heartbeat  time.Duration
	httpAddr   string
	dbPath     string
	chip       string
	pins       pins
	printState bool
}

type pins struct {
	tick, tock   int
	a, b, c, d   int
	limit, power int
}

// settings is the validated, typed form of config.
type settings struct {
	face     logic.FaceGeometry
	motor    logic.MotorProfile
	levelSrc tides.LevelSource
	levels   level.Config
}

func (c config) validate() (settings, error) {
	var s settings

	kind, err := logic.ParseFace(c.face)
	if err != nil {
		return s, err
	}
	s.face = logic.NewFace(kind)

	if s.motor, err = logic.Profile(logic.Variant(c.motor)); err != nil {
		return s, err
	}
	if s.levelSrc, err = tides.ParseLevelSource(c.levelSrc); err != nil {
		return s, err
	}

	s.levels = level.Config{MinLevel: c.minLevel, MaxLevel: c.maxLevel}
	if err := s.levels.Validate(); err != nil {
		return s, err
	}

	if c.poll <= 0 {
		return s, fmt.Errorf("poll interval must be positive, got %v", c.poll)
	}
	if c.poll > s.motor.MinStepInterval {
		return s, fmt.Errorf("poll interval %v exceeds %s step interval %v", c.poll, s.motor.Variant, s.motor.MinStepInterval)
	}
	if c.debounce <= 0 {
		return s, fmt.Errorf("debounce must be positive, got %v", c.debounce)
	}
	if c.levelEvery <= 0 {
		return s, fmt.Errorf("level interval must be positive, got %v", c.levelEvery)
	}
	if c.fetchEvery <= 0 {
		return s, fmt.Errorf("tide fetch interval must be positive, got %v", c.fetchEvery)
	}
	if c.heartbeat < 0 {
		return s, fmt.Errorf("heartbeat must not be negative, got %v", c.heartbeat)
	}
	if c.noaaURL == "" {
		return s, fmt.Errorf("noaa url is required")
	}
	if c.station == "" {
		return s, fmt.Errorf("station is required")
	}

	seen := make(map[int]string)
	for name, pin := range c.pins.named() {
		if pin < 0 {
			return s, fmt.Errorf("pin %s: invalid offset %d", name, pin)
		}
		if other, dup := seen[pin]; dup {
			return s, fmt.Errorf("pin %d used for both %s and %s", pin, other, name)
		}
		seen[pin] = name
	}
	return s, nil
}

func (p pins) named() map[string]int {
	return map[string]int{
		"tick":  p.tick,
		"tock":  p.tock,
		"a":     p.a,
		"b":     p.b,
		"c":     p.c,
		"d":     p.d,
		"limit": p.limit,
		"power": p.power,
	}
}
