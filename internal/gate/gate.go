// Package gate converts a per-frame stream of tracked bounding boxes into
// validated directional (IN/OUT) crossing events using a thick-band,
// dwell-gated, exit-triggered state machine.
package gate

import (
	"math"
	"sync"
	"time"
)

// Mode selects the geometry of the counting band.
type Mode string

const (
	ModeHorizontalBand Mode = "HORIZONTAL_BAND"
	ModeVerticalBand   Mode = "VERTICAL_BAND"
	ModeLineBand       Mode = "LINE_BAND"
)

// Side names the edge of the band a point last rested on.
type Side string

const (
	SideTop    Side = "TOP"
	SideBottom Side = "BOTTOM"
	SideLeft   Side = "LEFT"
	SideRight  Side = "RIGHT"
)

// Direction is the crossing direction a completed traversal maps to.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Point is a 2D pixel coordinate — callers pass the tracked box's
// bottom-center point, per spec.
type Point struct {
	X, Y float64
}

// TrackedBox is one frame's observation of one tracked object, as emitted
// by the external detector/tracker.
type TrackedBox struct {
	CameraID  string
	TrackID   int64
	X, Y      float64 // top-left corner
	W, H      float64
	Timestamp time.Time
}

// BottomCenter returns the point the gate algorithm evaluates.
func (b TrackedBox) BottomCenter() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H}
}

// Config holds one camera's gate geometry and anti-jitter tuning.
type Config struct {
	Mode Mode

	// HORIZONTAL_BAND
	GateY      float64
	GateHeight float64
	GateXMin   *float64
	GateXMax   *float64

	// VERTICAL_BAND
	GateX          float64
	GateWidth      float64
	GateYMin       *float64
	GateYMax       *float64
	BufferZoneW    float64
	UseBufferZones bool

	// LINE_BAND
	P1, P2        Point
	GateThickness float64

	// Anti-jitter
	CooldownSec     float64
	MinFramesInGate int
	MinTravelPx     float64

	// DirectionMapping maps "entrySide>exitSide" to IN/OUT. When nil, a
	// mode-appropriate default is used (see defaultDirectionMapping).
	DirectionMapping map[string]Direction
}

func directionKey(entry, exit Side) string {
	return string(entry) + ">" + string(exit)
}

func defaultDirectionMapping(mode Mode) map[string]Direction {
	switch mode {
	case ModeVerticalBand:
		return map[string]Direction{
			directionKey(SideLeft, SideRight): DirectionIn,
			directionKey(SideRight, SideLeft): DirectionOut,
		}
	default: // HORIZONTAL_BAND, LINE_BAND (line orientation is top/bottom by convention)
		return map[string]Direction{
			directionKey(SideTop, SideBottom): DirectionIn,
			directionKey(SideBottom, SideTop): DirectionOut,
		}
	}
}

// trackPhase is a track's position relative to the band.
type trackPhase int

const (
	phaseOutside trackPhase = iota
	phaseInside
)

// trackState is the per-track state spec.md §4.2 enumerates.
type trackState struct {
	phase         trackPhase
	lastSide      Side // side last observed while outside; used to set entrySide on entry
	entrySide     Side
	entryPoint    Point
	framesInGate  int
	lastCountTime time.Time
	hasCounted    bool
}

// Event is a resolved crossing, ready to be persisted.
type Event struct {
	CameraID  string
	TrackID   int64
	Direction Direction
	Timestamp time.Time
}

// Counter runs the per-track state machine for one camera's gate.
type Counter struct {
	cfg      Config
	cameraID string
	mapping  map[string]Direction

	mu     sync.Mutex
	tracks map[int64]*trackState
}

// NewCounter builds a Counter for one camera from a geometry/tuning config.
func NewCounter(cameraID string, cfg Config) *Counter {
	mapping := cfg.DirectionMapping
	if mapping == nil {
		mapping = defaultDirectionMapping(cfg.Mode)
	}
	return &Counter{
		cfg:      cfg,
		cameraID: cameraID,
		mapping:  mapping,
		tracks:   make(map[int64]*trackState),
	}
}

// Update feeds one frame's observation of one track through the state
// machine. It returns a resolved Event and true if this observation
// completed a counted crossing.
func (c *Counter) Update(b TrackedBox) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	point := b.BottomCenter()
	inside := c.isInGate(point)
	side := c.sideOf(point)

	st, ok := c.tracks[b.TrackID]
	if !ok {
		st = &trackState{phase: phaseOutside, lastSide: side}
		c.tracks[b.TrackID] = st
	}

	switch {
	case !inside && st.phase == phaseOutside:
		st.lastSide = side

	case inside && st.phase == phaseOutside:
		st.phase = phaseInside
		st.entrySide = st.lastSide
		st.entryPoint = point
		st.framesInGate = 1

	case inside && st.phase == phaseInside:
		st.framesInGate++

	case !inside && st.phase == phaseInside:
		exitSide := side
		st.phase = phaseOutside
		st.lastSide = side

		if exitSide == st.entrySide {
			return Event{}, false
		}
		if st.framesInGate < c.cfg.MinFramesInGate {
			return Event{}, false
		}
		if distance(st.entryPoint, point) < c.cfg.MinTravelPx {
			return Event{}, false
		}
		if st.hasCounted && b.Timestamp.Sub(st.lastCountTime).Seconds() <= c.cfg.CooldownSec {
			return Event{}, false
		}

		dir, ok := c.mapping[directionKey(st.entrySide, exitSide)]
		if !ok {
			return Event{}, false
		}

		st.lastCountTime = b.Timestamp
		st.hasCounted = true

		return Event{
			CameraID:  c.cameraID,
			TrackID:   b.TrackID,
			Direction: dir,
			Timestamp: b.Timestamp,
		}, true
	}

	return Event{}, false
}

// DropTrack removes a track's state, e.g. when the tracker reports it lost.
// No pending state is allowed to leak across track ids.
func (c *Counter) DropTrack(trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, trackID)
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (c *Counter) isInGate(p Point) bool {
	switch c.cfg.Mode {
	case ModeHorizontalBand:
		if p.Y < c.cfg.GateY-c.cfg.GateHeight/2 || p.Y > c.cfg.GateY+c.cfg.GateHeight/2 {
			return false
		}
		if c.cfg.GateXMin != nil && p.X < *c.cfg.GateXMin {
			return false
		}
		if c.cfg.GateXMax != nil && p.X > *c.cfg.GateXMax {
			return false
		}
		return true

	case ModeVerticalBand:
		if p.X < c.cfg.GateX-c.cfg.GateWidth/2 || p.X > c.cfg.GateX+c.cfg.GateWidth/2 {
			return false
		}
		if c.cfg.GateYMin != nil && p.Y < *c.cfg.GateYMin {
			return false
		}
		if c.cfg.GateYMax != nil && p.Y > *c.cfg.GateYMax {
			return false
		}
		return true

	case ModeLineBand:
		return c.distanceToLine(p) <= c.cfg.GateThickness/2
	}
	return false
}

func (c *Counter) sideOf(p Point) Side {
	switch c.cfg.Mode {
	case ModeVerticalBand:
		if p.X < c.cfg.GateX {
			return SideLeft
		}
		return SideRight
	case ModeLineBand:
		if c.signedLineSide(p) >= 0 {
			return SideBottom
		}
		return SideTop
	default: // HORIZONTAL_BAND
		if p.Y < c.cfg.GateY {
			return SideTop
		}
		return SideBottom
	}
}

// distanceToLine returns the perpendicular distance from p to the segment's
// infinite line through P1/P2.
func (c *Counter) distanceToLine(p Point) float64 {
	vx := c.cfg.P2.X - c.cfg.P1.X
	vy := c.cfg.P2.Y - c.cfg.P1.Y
	length := math.Sqrt(vx*vx + vy*vy)
	if length == 0 {
		return distance(c.cfg.P1, p)
	}
	return math.Abs(c.signedLineSide(p)) / length
}

// signedLineSide returns the 2D cross product of (P2-P1) and (p-P1); its
// sign indicates which side of the line p falls on.
func (c *Counter) signedLineSide(p Point) float64 {
	vx := c.cfg.P2.X - c.cfg.P1.X
	vy := c.cfg.P2.Y - c.cfg.P1.Y
	wx := p.X - c.cfg.P1.X
	wy := p.Y - c.cfg.P1.Y
	return vx*wy - vy*wx
}

// TrackCount returns the number of tracks currently held in memory —
// exposed for tests and diagnostics, not part of the counting algorithm.
func (c *Counter) TrackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}
