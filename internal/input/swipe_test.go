package input

import "testing"

func TestSwipeDetection(t *testing.T) {
	cases := []struct {
		name       string
		start, end Point
		touches    int
		want       int
	}{
		{"left swipe", Point{200, 100}, Point{100, 110}, 1, -1},
		{"right swipe", Point{100, 100}, Point{180, 90}, 1, 1},
		{"at threshold", Point{100, 100}, Point{150, 100}, 1, 0},
		{"too short", Point{100, 100}, Point{130, 100}, 1, 0},
		{"mostly vertical", Point{100, 100}, Point{170, 200}, 1, 0},
		{"multi touch", Point{200, 100}, Point{50, 100}, 2, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			left, right := 0, 0
			s := NewSwipe(SwipeOptions{
				OnSwipeLeft:  func() { left++ },
				OnSwipeRight: func() { right++ },
			})
			s.TouchStart(tc.start, tc.touches)
			if got := s.TouchEnd(tc.end); got != tc.want {
				t.Fatalf("TouchEnd() = %d, want %d", got, tc.want)
			}
			if tc.want == -1 && (left != 1 || right != 0) {
				t.Errorf("expected one left callback, got left=%d right=%d", left, right)
			}
			if tc.want == 1 && (right != 1 || left != 0) {
				t.Errorf("expected one right callback, got left=%d right=%d", left, right)
			}
			if tc.want == 0 && (left != 0 || right != 0) {
				t.Errorf("expected no callback, got left=%d right=%d", left, right)
			}
		})
	}
}

func TestTouchEndWithoutStart(t *testing.T) {
	s := NewSwipe(SwipeOptions{Threshold: 10})
	if got := s.TouchEnd(Point{500, 0}); got != 0 {
		t.Errorf("expected no swipe without a start, got %d", got)
	}
	s.TouchStart(Point{0, 0}, 1)
	s.TouchEnd(Point{100, 0})
	if got := s.TouchEnd(Point{200, 0}); got != 0 {
		t.Errorf("a touch must only end once, got %d", got)
	}
}
