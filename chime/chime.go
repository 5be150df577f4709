// Package chime plays the short arpeggio that accompanies an achievement
// unlock.
package chime

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate = 48000
	channels   = 2
	duration   = 0.8
	amplitude  = 12000
)

// UnlockSound renders the unlock chime as 48kHz stereo S16LE.
func UnlockSound() []byte {
	numSamples := int(float64(sampleRate) * duration)

	// C4, E4, G4
	notes := []struct {
		freq   float64
		start  float64
		volume float64
	}{
		{261.63, 0.0, 0.4},
		{329.63, 0.08, 0.3},
		{392.00, 0.16, 0.3},
	}

	samples := make([]byte, numSamples*2*channels)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := 0.0

		for _, note := range notes {
			if t < note.start {
				continue
			}
			sample += voice(note.freq, t-note.start) * note.volume
		}

		sample = math.Max(-1, math.Min(1, sample))
		value := int16(sample * amplitude)

		idx := i * 2 * channels
		for c := 0; c < channels; c++ {
			samples[idx+c*2] = byte(value)
			samples[idx+c*2+1] = byte(value >> 8)
		}
	}

	return samples
}

// voice is one note with a raised-cosine attack and exponential decay.
func voice(freq, t float64) float64 {
	const (
		attack = 0.05
		decay  = 0.6
	)
	var envelope float64
	if t < attack {
		envelope = (1 - math.Cos(math.Pi*t/attack)) / 2
	} else {
		envelope = math.Exp(-2.5 * (t - attack) / decay)
	}
	fundamental := math.Sin(2 * math.Pi * freq * t)
	harmonic := math.Sin(2*math.Pi*freq*2*t) * 0.15
	return (fundamental + harmonic) * envelope
}

// Player owns the audio context and at most one chime in flight.
type Player struct {
	mu     sync.Mutex
	volume float64
	sound  []byte

	initOnce sync.Once
	ctx      *oto.Context
	initErr  error
	current  *oto.Player
}

// NewPlayer prepares a chime player. The audio device is opened on the
// first Play.
func NewPlayer(volume float64) *Player {
	return &Player{
		volume: volume,
		sound:  UnlockSound(),
	}
}

func (p *Player) context() (*oto.Context, error) {
	p.initOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var ready chan struct{}
		p.ctx, ready, p.initErr = oto.NewContext(op)
		if p.initErr != nil {
			return
		}
		<-ready
	})
	return p.ctx, p.initErr
}

// SetVolume changes the volume of subsequent chimes.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

// Play starts the chime, cutting off any chime still playing. A zero
// volume skips opening the audio device entirely.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.volume <= 0 {
		return nil
	}

	ctx, err := p.context()
	if err != nil {
		return fmt.Errorf("audio not available: %w", err)
	}

	if p.current != nil {
		p.current.Close()
	}
	p.current = ctx.NewPlayer(bytes.NewReader(p.sound))
	p.current.SetVolume(p.volume)
	p.current.Play()
	return nil
}

// Close stops any chime in flight.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	err := p.current.Close()
	p.current = nil
	return err
}
