package input

import (
	"math"
	"sync"
)

// DefaultSwipeThreshold is the minimum horizontal travel, in pixels, of a swipe.
const DefaultSwipeThreshold = 50

// Point is a touch position in view pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SwipeOptions configures a Swipe detector.
type SwipeOptions struct {
	Threshold    float64
	OnSwipeLeft  func()
	OnSwipeRight func()
}

// Swipe detects single-finger horizontal swipes.
type Swipe struct {
	opts SwipeOptions

	mu       sync.Mutex
	start    Point
	tracking bool
}

// NewSwipe creates a Swipe detector.
func NewSwipe(opts SwipeOptions) *Swipe {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSwipeThreshold
	}
	return &Swipe{opts: opts}
}

// TouchStart records the start of a touch. Multi-touch gestures are not tracked.
func (s *Swipe) TouchStart(p Point, touches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if touches > 1 {
		s.tracking = false
		return
	}
	s.start = p
	s.tracking = true
}

// TouchEnd finishes the touch and fires a callback when it was a swipe.
// It returns -1 for a left swipe, 1 for a right swipe and 0 otherwise.
func (s *Swipe) TouchEnd(p Point) int {
	s.mu.Lock()
	if !s.tracking {
		s.mu.Unlock()
		return 0
	}
	s.tracking = false
	dx := p.X - s.start.X
	dy := p.Y - s.start.Y
	s.mu.Unlock()

	if math.Abs(dx) <= s.opts.Threshold || math.Abs(dx) <= math.Abs(dy) {
		return 0
	}

	if dx < 0 {
		if s.opts.OnSwipeLeft != nil {
			s.opts.OnSwipeLeft()
		}
		return -1
	}
	if s.opts.OnSwipeRight != nil {
		s.opts.OnSwipeRight()
	}
	return 1
}
