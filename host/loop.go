package host

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Ticker is what the loop drives: achievements.Session satisfies it.
type Ticker interface {
	FrameTick()
	Idle()
	SetPaused(paused bool)
}

// Loop ticks the session once per emulated frame.
type Loop struct {
	control  *FrameControl
	ticker   Ticker
	interval time.Duration
	frames   atomic.Uint64
	// step runs before each tick; the emulated machine advances here.
	step func()
}

// NewLoop creates a loop running at fps frames per second.
func NewLoop(ticker Ticker, fps int, step func()) *Loop {
	if fps <= 0 {
		fps = 60
	}
	return &Loop{
		control:  NewFrameControl(),
		ticker:   ticker,
		interval: time.Second / time.Duration(fps),
		step:     step,
	}
}

// Frames returns the number of frames ticked so far.
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}

// Pause stops frame ticks until Resume. The session keeps being serviced
// through Idle so completions still land while paused.
func (l *Loop) Pause() {
	l.ticker.SetPaused(true)
	l.control.RequestPause()
}

// Resume restarts frame ticks.
func (l *Loop) Resume() {
	l.control.RequestResume()
	l.ticker.SetPaused(false)
}

// IsPaused reports whether the loop has acknowledged a pause.
func (l *Loop) IsPaused() bool {
	return l.control.IsPaused()
}

// Stop ends Run.
func (l *Loop) Stop() {
	l.control.Stop()
}

// Run ticks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	// a paused loop sits in CheckPause, so cancellation has to stop it
	release := context.AfterFunc(ctx, l.control.Stop)
	defer release()

	log.Printf("[racore] frame loop running at %v per frame", l.interval)
	defer log.Printf("[racore] frame loop stopped after %d frames", l.Frames())

	for {
		select {
		case <-ctx.Done():
			l.control.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if !l.control.CheckPause(l.ticker.Idle) {
			return ctx.Err()
		}
		if l.step != nil {
			l.step()
		}
		l.ticker.FrameTick()
		l.frames.Add(1)
	}
}
