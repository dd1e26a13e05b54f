package progress

import (
	"sync"
	"time"
)

// minInterval is the throttle window: update() is a no-op within this
// window of the previous accepted update, except for the mandatory 0%/100%
// emissions which bypass the throttle.
const minInterval = 100 * time.Millisecond

// historySize bounds the FIFO of instantaneous speed samples averaged into
// SmoothedBps.
const historySize = 5

// Smoother is the thread-safe transfer-speed smoothing helper used by the
// CopyEngine and BatchManager. It holds start/last-update times, the last
// byte count, a bounded FIFO of instantaneous speeds, and derived totals.
//
// Grounded on the teacher domain's TransferProgress: a mutex-guarded struct
// with a maxlen-5 speed history and a throttled update() method.
type Smoother struct {
	mu sync.Mutex

	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	totalBytes int64

	history    [historySize]float64
	histLen    int
	histNext   int
	smoothedBps float64
}

// NewSmoother creates a Smoother with its clock started now.
func NewSmoother() *Smoother {
	now := time.Now()
	return &Smoother{startTime: now, lastUpdate: now}
}

// Update records a new transferred-byte count and recomputes the smoothed
// speed. It is a no-op (returns the previous smoothed speed unchanged) if
// called within minInterval of the previous accepted update, unless force
// is set - force is used for the mandatory 0% and 100% emissions.
func (s *Smoother) Update(transferred int64, total int64, force bool) (smoothedBps float64, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastUpdate)
	if !force && elapsed < minInterval {
		return s.smoothedBps, false
	}

	if total > 0 {
		s.totalBytes = total
	}

	if elapsed > 0 {
		instBps := float64(transferred-s.lastBytes) / elapsed.Seconds()
		s.pushSample(instBps)
	}

	s.lastBytes = transferred
	s.lastUpdate = now

	return s.smoothedBps, true
}

// pushSample appends an instantaneous sample to the bounded history and
// recomputes the arithmetic mean. Caller must hold s.mu.
func (s *Smoother) pushSample(v float64) {
	s.history[s.histNext] = v
	s.histNext = (s.histNext + 1) % historySize
	if s.histLen < historySize {
		s.histLen++
	}

	var sum float64
	for i := 0; i < s.histLen; i++ {
		sum += s.history[i]
	}
	s.smoothedBps = sum / float64(s.histLen)
}

// ETA returns the estimated remaining duration given the current smoothed
// speed, or (0, true) if the speed is zero (unbounded ETA).
func (s *Smoother) ETA() (eta time.Duration, unbounded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.smoothedBps <= 0 {
		return 0, true
	}
	remaining := s.totalBytes - s.lastBytes
	if remaining <= 0 {
		return 0, false
	}
	seconds := float64(remaining) / s.smoothedBps
	return time.Duration(seconds * float64(time.Second)), false
}

// SmoothedBps returns the current smoothed speed without recording a new
// sample.
func (s *Smoother) SmoothedBps() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoothedBps
}

// Elapsed returns the time since the Smoother was created.
func (s *Smoother) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}
