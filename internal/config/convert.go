package config

import (
	"airtouch/internal/debounce"
	"airtouch/internal/engine"
	"airtouch/internal/gesture"
	"airtouch/internal/input"
	"airtouch/internal/touch"
)

// Thresholds returns the debouncer frame counts.
func (c *Config) Thresholds() debounce.Thresholds {
	return debounce.Thresholds{Dual: c.Engine.DualFrames, Toggle: c.Engine.ToggleFrames}
}

// EngineConfig returns the engine tunables.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DragThreshold: c.Engine.DragThreshold,
		Thresholds:    c.Thresholds(),
		Button:        c.button(),
	}
}

func (c *Config) button() input.Button {
	switch c.Engine.Button {
	case "right":
		return input.ButtonRight
	case "middle":
		return input.ButtonMiddle
	}
	return input.ButtonLeft
}

// TouchOptions returns the contact channel settings.
func (c *Config) TouchOptions() touch.Options {
	return touch.Options{
		MaxContacts: c.Engine.MaxContacts,
		HalfExtent:  c.Engine.ContactHalfExtent,
		Pressure:    uint32(c.Engine.Pressure),
		Orientation: uint32(c.Engine.Orientation),
	}
}

// GestureConfig returns the classifier tunables for a screen of the given
// size. A configured screen size wins over the one passed in.
func (c *Config) GestureConfig(screenW, screenH int) gesture.Config {
	if c.Screen.Width > 0 && c.Screen.Height > 0 {
		screenW, screenH = c.Screen.Width, c.Screen.Height
	}
	t := c.Tracking
	return gesture.Config{
		Margin:          t.Sensitivity,
		Smoothing:       t.Smoothing,
		ClickDistance:   t.ClickDistance,
		ReleaseDistance: t.ReleaseDistance,
		DepthScale:      t.DepthScale,
		OffsetX:         t.OffsetX,
		OffsetY:         t.OffsetY,
		AspectRatio:     t.AspectRatio,
		Mirror:          t.Mirror,
		MinHandSize:     t.MinHandSize,
		ScreenWidth:     screenW,
		ScreenHeight:    screenH,
		VoiceGrace:      c.Engine.VoiceFrames,
	}
}
