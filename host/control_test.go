package host

import (
	"sync/atomic"
	"testing"
	"time"
)

func runControlled(fc *FrameControl, idle func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if !fc.CheckPause(idle) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	return done
}

func TestFrameControl_PauseResume(t *testing.T) {
	fc := NewFrameControl()
	var idles atomic.Int32
	done := runControlled(fc, func() { idles.Add(1) })

	fc.RequestPause()
	if !fc.IsPaused() {
		t.Fatal("expected paused after RequestPause")
	}

	time.Sleep(5 * pollInterval)
	if idles.Load() == 0 {
		t.Error("expected idle hook to run while paused")
	}

	fc.RequestResume()
	time.Sleep(20 * time.Millisecond)
	if fc.IsPaused() {
		t.Error("expected not paused after resume")
	}

	fc.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit after Stop")
	}
}

func TestFrameControl_Stop(t *testing.T) {
	fc := NewFrameControl()
	done := runControlled(fc, nil)

	fc.Stop()
	fc.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit after Stop")
	}
	if fc.ShouldRun() {
		t.Error("expected ShouldRun false after Stop")
	}
}

func TestFrameControl_StopWhilePaused(t *testing.T) {
	fc := NewFrameControl()
	done := runControlled(fc, nil)

	fc.RequestPause()
	fc.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit after Stop while paused")
	}
}

func TestFrameControl_DoubleRequestPause(t *testing.T) {
	fc := NewFrameControl()
	done := runControlled(fc, nil)

	fc.RequestPause()
	fc.RequestPause()

	if !fc.IsPaused() {
		t.Fatal("expected still paused")
	}

	fc.Stop()
	<-done
}

func TestFrameControl_PauseAfterStopReturns(t *testing.T) {
	fc := NewFrameControl()
	fc.Stop()

	returned := make(chan struct{})
	go func() {
		fc.RequestPause()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("RequestPause blocked on a stopped control")
	}
}
