package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	c := RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since returned negative duration")
	}
}

func TestMockClock_Step(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewMockClock(base)
	c.Step = 10 * time.Millisecond

	first := c.Now()
	second := c.Now()
	if !first.Equal(base) {
		t.Errorf("first Now = %v, want %v", first, base)
	}
	if got := second.Sub(first); got != 10*time.Millisecond {
		t.Errorf("step = %v, want 10ms", got)
	}
	if got := c.Since(first); got != 20*time.Millisecond {
		t.Errorf("Since = %v, want 20ms", got)
	}
}

func TestMockClock_Advance(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewMockClock(base)
	c.Advance(time.Second)
	if got := c.Since(base); got != time.Second {
		t.Errorf("Since after Advance = %v, want 1s", got)
	}
	if got := c.Now(); !got.Equal(base.Add(time.Second)) {
		t.Errorf("Now = %v", got)
	}
}
