package host

import (
	"sync"
	"time"
)

// pollInterval is how often a paused loop checks for resume and services
// its idle hook.
const pollInterval = 10 * time.Millisecond

// FrameControl coordinates pause/resume/stop between the console and the
// frame loop goroutine.
type FrameControl struct {
	mu       sync.Mutex
	pauseReq bool
	paused   bool
	stopReq  bool
	ackCh    chan struct{}
	stopCh   chan struct{}
}

// NewFrameControl creates a new frame control.
func NewFrameControl() *FrameControl {
	return &FrameControl{
		ackCh:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// RequestPause asks the loop to pause and blocks until it acknowledges
// the pause or is stopped.
func (fc *FrameControl) RequestPause() {
	fc.mu.Lock()
	if fc.paused || fc.pauseReq || fc.stopReq {
		fc.mu.Unlock()
		return
	}
	fc.pauseReq = true
	fc.mu.Unlock()

	select {
	case <-fc.ackCh:
	case <-fc.stopCh:
	}
}

// RequestResume tells the loop to resume.
func (fc *FrameControl) RequestResume() {
	fc.mu.Lock()
	fc.pauseReq = false
	fc.paused = false
	fc.mu.Unlock()
}

// CheckPause is called by the loop between frames. If a pause has been
// requested it acknowledges and waits until resumed or stopped, calling
// idle every poll interval meanwhile. Returns false if the loop should
// exit.
func (fc *FrameControl) CheckPause(idle func()) bool {
	fc.mu.Lock()
	if fc.stopReq {
		fc.mu.Unlock()
		return false
	}
	if !fc.pauseReq {
		fc.mu.Unlock()
		return true
	}

	fc.paused = true
	fc.mu.Unlock()

	select {
	case fc.ackCh <- struct{}{}:
	default:
	}

	for {
		if idle != nil {
			idle()
		}
		select {
		case <-fc.stopCh:
			return false
		case <-time.After(pollInterval):
		}
		fc.mu.Lock()
		if !fc.pauseReq {
			fc.paused = false
			fc.mu.Unlock()
			return true
		}
		fc.mu.Unlock()
	}
}

// Stop signals the loop to exit. Safe to call more than once.
func (fc *FrameControl) Stop() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.stopReq {
		return
	}
	fc.stopReq = true
	fc.pauseReq = false
	close(fc.stopCh)
}

// ShouldRun returns true if the loop should continue running.
func (fc *FrameControl) ShouldRun() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return !fc.stopReq
}

// IsPaused returns true if the loop is currently paused.
func (fc *FrameControl) IsPaused() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.paused
}
