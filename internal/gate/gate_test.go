package gate

import (
	"testing"
	"time"
)

func horizontalConfig() Config {
	return Config{
		Mode:            ModeHorizontalBand,
		GateY:           240,
		GateHeight:      40,
		CooldownSec:     1.0,
		MinFramesInGate: 2,
		MinTravelPx:     15,
	}
}

func box(trackID int64, x, y float64, t time.Time) TrackedBox {
	return TrackedBox{CameraID: "cam-1", TrackID: trackID, X: x, Y: y, W: 0, H: 0, Timestamp: t}
}

func TestCounter_TopToBottomCountsIn(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	frames := []TrackedBox{
		box(1, 100, 180, now),                   // outside, above band
		box(1, 100, 240, now.Add(10*time.Millisecond)),  // enters band
		box(1, 100, 245, now.Add(20*time.Millisecond)),  // still inside (2nd frame)
		box(1, 100, 300, now.Add(30*time.Millisecond)),  // exits below — should count IN
	}

	var got Event
	var counted bool
	for _, f := range frames {
		got, counted = c.Update(f)
	}

	if !counted {
		t.Fatalf("expected a crossing to be counted")
	}
	if got.Direction != DirectionIn {
		t.Errorf("expected IN, got %s", got.Direction)
	}
}

func TestCounter_BottomToTopCountsOut(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	frames := []TrackedBox{
		box(1, 100, 300, now),
		box(1, 100, 245, now.Add(10*time.Millisecond)),
		box(1, 100, 240, now.Add(20*time.Millisecond)),
		box(1, 100, 180, now.Add(30*time.Millisecond)),
	}

	var got Event
	var counted bool
	for _, f := range frames {
		got, counted = c.Update(f)
	}

	if !counted {
		t.Fatalf("expected a crossing to be counted")
	}
	if got.Direction != DirectionOut {
		t.Errorf("expected OUT, got %s", got.Direction)
	}
}

func TestCounter_SameSideExitNotCounted(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	// Enters from the top and bounces back out the top — jitter, not a crossing.
	frames := []TrackedBox{
		box(1, 100, 180, now),
		box(1, 100, 240, now.Add(10*time.Millisecond)),
		box(1, 100, 245, now.Add(20*time.Millisecond)),
		box(1, 100, 190, now.Add(30*time.Millisecond)),
	}

	for _, f := range frames {
		if _, counted := c.Update(f); counted {
			t.Fatalf("same-side exit must never be counted")
		}
	}
}

func TestCounter_InsufficientDwellFramesNotCounted(t *testing.T) {
	cfg := horizontalConfig()
	cfg.MinFramesInGate = 5
	c := NewCounter("cam-1", cfg)
	now := time.Now()

	frames := []TrackedBox{
		box(1, 100, 180, now),
		box(1, 100, 240, now.Add(10*time.Millisecond)), // only 1 frame inside
		box(1, 100, 300, now.Add(20*time.Millisecond)),
	}

	for _, f := range frames {
		if _, counted := c.Update(f); counted {
			t.Fatalf("crossing with too few dwell frames must not be counted")
		}
	}
}

func TestCounter_InsufficientTravelNotCounted(t *testing.T) {
	cfg := horizontalConfig()
	cfg.MinTravelPx = 1000
	c := NewCounter("cam-1", cfg)
	now := time.Now()

	frames := []TrackedBox{
		box(1, 100, 180, now),
		box(1, 100, 240, now.Add(10*time.Millisecond)),
		box(1, 100, 245, now.Add(20*time.Millisecond)),
		box(1, 100, 300, now.Add(30*time.Millisecond)),
	}

	for _, f := range frames {
		if _, counted := c.Update(f); counted {
			t.Fatalf("crossing under the travel-distance threshold must not be counted")
		}
	}
}

func TestCounter_CooldownSuppressesRepeatedCounts(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	crossIn := []TrackedBox{
		box(1, 100, 180, now),
		box(1, 100, 240, now.Add(10*time.Millisecond)),
		box(1, 100, 245, now.Add(20*time.Millisecond)),
		box(1, 100, 300, now.Add(30*time.Millisecond)),
	}
	for _, f := range crossIn {
		c.Update(f)
	}

	// Immediately cross back within the cooldown window.
	crossOutSoon := []TrackedBox{
		box(1, 100, 245, now.Add(40*time.Millisecond)),
		box(1, 100, 240, now.Add(50*time.Millisecond)),
		box(1, 100, 180, now.Add(60*time.Millisecond)),
	}
	for _, f := range crossOutSoon {
		if _, counted := c.Update(f); counted {
			t.Fatalf("crossing inside cooldown window must be suppressed")
		}
	}
}

func TestCounter_CountsAgainAfterCooldownElapses(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	crossIn := []TrackedBox{
		box(1, 100, 180, now),
		box(1, 100, 240, now.Add(10*time.Millisecond)),
		box(1, 100, 245, now.Add(20*time.Millisecond)),
		box(1, 100, 300, now.Add(30*time.Millisecond)),
	}
	for _, f := range crossIn {
		c.Update(f)
	}

	later := now.Add(2 * time.Second)
	crossOutLater := []TrackedBox{
		box(1, 100, 180, later),
		box(1, 100, 240, later.Add(10*time.Millisecond)),
		box(1, 100, 245, later.Add(20*time.Millisecond)),
		box(1, 100, 300, later.Add(30*time.Millisecond)),
	}

	var counted bool
	for _, f := range crossOutLater {
		_, counted = c.Update(f)
	}
	if !counted {
		t.Fatalf("expected a new crossing to be counted once cooldown elapsed")
	}
}

func TestCounter_TrackLossClearsState(t *testing.T) {
	c := NewCounter("cam-1", horizontalConfig())
	now := time.Now()

	c.Update(box(1, 100, 240, now))
	if c.TrackCount() != 1 {
		t.Fatalf("expected one tracked state")
	}

	c.DropTrack(1)
	if c.TrackCount() != 0 {
		t.Fatalf("expected track state to be cleared on loss")
	}
}

func TestCounter_VerticalBandLeftToRightCountsIn(t *testing.T) {
	cfg := Config{
		Mode:            ModeVerticalBand,
		GateX:           320,
		GateWidth:       40,
		CooldownSec:     1.0,
		MinFramesInGate: 2,
		MinTravelPx:     15,
	}
	c := NewCounter("cam-1", cfg)
	now := time.Now()

	frames := []TrackedBox{
		box(1, 280, 100, now),
		box(1, 320, 100, now.Add(10*time.Millisecond)),
		box(1, 325, 100, now.Add(20*time.Millisecond)),
		box(1, 400, 100, now.Add(30*time.Millisecond)),
	}

	var got Event
	var counted bool
	for _, f := range frames {
		got, counted = c.Update(f)
	}
	if !counted || got.Direction != DirectionIn {
		t.Fatalf("expected IN crossing for left-to-right traversal, got counted=%v dir=%v", counted, got.Direction)
	}
}
