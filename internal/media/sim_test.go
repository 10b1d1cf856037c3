package media

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSim_advancesWhilePlaying(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	s := NewSim("a1", 10).WithClock(clk.now)
	s.Seek(2)
	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	clk.advance(500 * time.Millisecond)
	if got := s.Position(); got != 2.5 {
		t.Errorf("Position = %v, want 2.5", got)
	}
	s.SetRate(2)
	clk.advance(500 * time.Millisecond)
	if got := s.Position(); got != 3.5 {
		t.Errorf("Position after rate change = %v, want 3.5", got)
	}
	s.Pause()
	clk.advance(time.Second)
	if got := s.Position(); got != 3.5 {
		t.Errorf("paused Position = %v, want 3.5", got)
	}
}

func TestSim_PlayRejected(t *testing.T) {
	s := NewSim("a1", 10)
	s.FailPlay(errors.New("autoplay blocked"))
	if err := s.Play(); err == nil {
		t.Fatal("expected play error")
	}
	if !s.Paused() {
		t.Error("rejected play must leave the resource paused")
	}
}
