// Package gesture classifies hand landmarks into engine frames: pointer
// positions in screen space plus the raw pinch, dual-touch, keyboard toggle
// and voice signals.
package gesture

import (
	"math"

	"go.uber.org/zap"

	"airtouch/internal/debounce"
	"airtouch/internal/engine"
	"airtouch/internal/geometry"
	"airtouch/internal/protocol"
)

// fingerRaise is how far in pixels a fingertip must sit above its PIP joint
// to count as straight.
const fingerRaise = 10

// referenceHandRatio is the wrist to index knuckle length, as a fraction of
// frame width, at which pinch distances are used unscaled.
const referenceHandRatio = 0.15

// voiceReach widens the click distance for the thumb to pinky gesture.
const voiceReach = 1.2

// Config holds the classifier tunables.
type Config struct {
	// Margin is removed from each side of the camera frame before the
	// active zone is fitted. Larger values need less hand travel.
	Margin int
	// Smoothing is the smoother divisor, 1 to 15.
	Smoothing float64
	// ClickDistance and ReleaseDistance are the pinch engage and release
	// distances in detector pixels at reference hand size.
	ClickDistance   float64
	ReleaseDistance float64
	// DepthScale controls how strongly pinch distances follow hand size.
	DepthScale float64

	OffsetX     int
	OffsetY     int
	AspectRatio float64
	Mirror      bool

	// MinHandSize is the smallest wrist to index knuckle length in
	// detector pixels that counts as a hand.
	MinHandSize float64

	ScreenWidth  int
	ScreenHeight int

	// VoiceGrace is how many frames the voice gesture stays active after it
	// was last seen.
	VoiceGrace int
}

// DefaultConfig returns the stock tunables for a 1920x1080 screen.
func DefaultConfig() Config {
	return Config{
		Margin:          90,
		Smoothing:       4,
		ClickDistance:   27,
		ReleaseDistance: 40,
		DepthScale:      0.8,
		AspectRatio:     geometry.DefaultAspectRatio,
		Mirror:          true,
		MinHandSize:     30,
		ScreenWidth:     1920,
		ScreenHeight:    1080,
		VoiceGrace:      debounce.DefaultVoiceGrace,
	}
}

// Classifier is stateful: it owns the pointer smoothers, the pinch
// hysteresis and the voice latch. It is used from the frame goroutine only.
type Classifier struct {
	cfg Config
	log *zap.Logger

	primary   *geometry.Smoother
	secondary *geometry.Smoother
	voice     *debounce.GraceLatch
	pinched   bool
	dual      bool
}

// New returns a classifier for cfg.
func New(cfg Config, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		cfg:       cfg,
		log:       log.Named("gesture"),
		primary:   geometry.NewSmoother(cfg.Smoothing),
		secondary: geometry.NewSmoother(cfg.Smoothing),
		voice:     debounce.NewGraceLatch(cfg.VoiceGrace),
	}
}

// Reconfigure applies new tunables. Smoother history and the pinch state
// are kept.
func (c *Classifier) Reconfigure(cfg Config) {
	c.cfg = cfg
	c.primary.SetDivisor(cfg.Smoothing)
	c.secondary.SetDivisor(cfg.Smoothing)
	c.voice.SetMax(cfg.VoiceGrace)
	c.log.Debug("Classifier reconfigured",
		zap.Int("margin", cfg.Margin),
		zap.Float64("smoothing", cfg.Smoothing),
		zap.Float64("click", cfg.ClickDistance),
		zap.Float64("release", cfg.ReleaseDistance))
}

// SetDualActive tells the classifier whether the engine is holding dual
// touch. While it is, a frame without the raw request keeps the secondary
// smoother history so the contact resumes where it left off.
func (c *Classifier) SetDualActive(active bool) { c.dual = active }

// VoiceActive reports whether the voice gesture is within its grace period.
func (c *Classifier) VoiceActive() bool { return c.voice.Active() }

// Pinched reports the current pinch state.
func (c *Classifier) Pinched() bool { return c.pinched }

// Zone returns the active zone for a width x height detector frame.
func (c *Classifier) Zone(width, height int) geometry.Rect {
	return geometry.ActiveZone(geometry.ZoneConfig{
		FrameWidth:  width,
		FrameHeight: height,
		Margin:      c.cfg.Margin,
		OffsetX:     c.cfg.OffsetX,
		OffsetY:     c.cfg.OffsetY,
		AspectRatio: c.cfg.AspectRatio,
	})
}

// Classify turns one detector result into an engine frame. lm is nil when
// the detector found no hand.
func (c *Classifier) Classify(lm *protocol.Landmarks, width, height int) engine.Frame {
	f := c.classify(lm, width, height)
	f.Voice = c.voice.Observe(f.Hand && c.voiceSeen(lm, width, height))
	return f
}

func (c *Classifier) classify(lm *protocol.Landmarks, width, height int) engine.Frame {
	if lm == nil || width <= 0 || height <= 0 {
		c.lost()
		return engine.Frame{}
	}

	pts := c.pixels(lm, width, height)
	handSizeSq := pts[protocol.IndexMCP].DistSq(pts[protocol.Wrist])
	if handSizeSq < c.cfg.MinHandSize*c.cfg.MinHandSize {
		c.lost()
		return engine.Frame{}
	}

	zone := c.Zone(width, height)
	screen := geometry.ScreenRect(c.cfg.ScreenWidth, c.cfg.ScreenHeight)

	indexTip := pts[protocol.IndexTip]
	midTip := pts[protocol.MiddleTip]
	midPIP := pts[protocol.MiddlePIP]

	f := engine.Frame{
		Hand:    true,
		Primary: c.primary.Next(geometry.Map(indexTip, zone, screen)),
	}

	f.DualRequested = midTip.Y < midPIP.Y-fingerRaise && midTip.Y < indexTip.Y
	if f.DualRequested {
		f.Secondary = c.secondary.Next(geometry.Map(midTip, zone, screen))
	} else if !c.dual {
		c.secondary.Reset()
	}

	f.ToggleRequested = pts[protocol.PinkyTip].Y < pts[protocol.PinkyPIP].Y-fingerRaise

	scale := c.depthScale(handSizeSq, width)
	pinchSq := pts[protocol.MiddlePIP].DistSq(pts[protocol.ThumbTip])
	if c.pinched {
		release := c.cfg.ReleaseDistance * scale
		if pinchSq > release*release {
			c.pinched = false
		}
	} else {
		click := c.cfg.ClickDistance * scale
		if pinchSq < click*click {
			c.pinched = true
		}
	}
	f.Contact = c.pinched

	return f
}

// depthScale grows pinch thresholds for a hand close to the camera and
// shrinks them for a distant one.
func (c *Classifier) depthScale(handSizeSq float64, width int) float64 {
	size := math.Sqrt(handSizeSq)
	return 1 + (size/float64(width)/referenceHandRatio-1)*c.cfg.DepthScale
}

func (c *Classifier) voiceSeen(lm *protocol.Landmarks, width, height int) bool {
	pts := c.pixels(lm, width, height)
	scale := c.depthScale(pts[protocol.IndexMCP].DistSq(pts[protocol.Wrist]), width)
	reach := c.cfg.ClickDistance * scale * voiceReach
	return pts[protocol.PinkyTip].DistSq(pts[protocol.ThumbTip]) < reach*reach
}

func (c *Classifier) pixels(lm *protocol.Landmarks, width, height int) [protocol.NumLandmarks]geometry.Point {
	src := *lm
	if c.cfg.Mirror {
		for i := range src {
			src[i].X = 1 - src[i].X
		}
	}
	return src.Pixels(width, height)
}

// lost forgets per-hand state so a returning hand starts clean.
func (c *Classifier) lost() {
	c.pinched = false
	c.secondary.Reset()
}
