package progress

import (
	"testing"
	"time"
)

func TestSmootherThrottlesWithinInterval(t *testing.T) {
	s := NewSmoother()
	s.Update(100, 1000, false)
	_, accepted := s.Update(200, 1000, false)
	if accepted {
		t.Errorf("expected second rapid update to be throttled")
	}
}

func TestSmootherForceBypassesThrottle(t *testing.T) {
	s := NewSmoother()
	_, a1 := s.Update(0, 1000, true)
	if !a1 {
		t.Errorf("expected forced update to be accepted")
	}
	_, a2 := s.Update(1000, 1000, true)
	if !a2 {
		t.Errorf("expected second forced update to be accepted")
	}
}

func TestSmootherAveragesLastFiveSamples(t *testing.T) {
	s := NewSmoother()
	s.lastUpdate = time.Now().Add(-time.Second)
	s.pushSample(100)
	s.pushSample(200)
	s.pushSample(300)

	if got := s.SmoothedBps(); got != 200 {
		t.Errorf("got %v, want mean of [100,200,300]=200", got)
	}

	// Push two more to fill the window, then a sixth to evict the first.
	s.pushSample(400)
	s.pushSample(500)
	if got := s.SmoothedBps(); got != 300 {
		t.Errorf("got %v, want mean of [100..500]=300", got)
	}

	s.pushSample(600)
	if got := s.SmoothedBps(); got != 400 {
		t.Errorf("got %v, want mean of [200..600]=400 after eviction", got)
	}
}

func TestSmootherETAUnboundedAtZeroSpeed(t *testing.T) {
	s := NewSmoother()
	_, unbounded := s.ETA()
	if !unbounded {
		t.Errorf("expected unbounded ETA before any samples")
	}
}

func TestSmootherETAComputed(t *testing.T) {
	s := NewSmoother()
	s.totalBytes = 1000
	s.lastBytes = 500
	s.smoothedBps = 100
	eta, unbounded := s.ETA()
	if unbounded {
		t.Fatal("expected bounded ETA")
	}
	if eta != 5*time.Second {
		t.Errorf("got %v, want 5s", eta)
	}
}
