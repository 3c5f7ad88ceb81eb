package pitch

import "fmt"

// Standard concert pitch: MIDI note 69 (A4) at 440 Hz.
const (
	A4Key = 69
	A4Hz  = 440.0
)

// Pitch is an absolute frequency. It is an immutable value type; pitch
// arithmetic is ratio multiplication.
type Pitch struct {
	hz float64
}

// FromHz creates a pitch from a frequency in Hz.
func FromHz(hz float64) Pitch {
	return Pitch{hz: hz}
}

// Hz returns the frequency in Hz.
func (p Pitch) Hz() float64 {
	return p.hz
}

// Mul transposes the pitch upward by a ratio.
func (p Pitch) Mul(r Ratio) Pitch {
	return Pitch{hz: p.hz * r.Float()}
}

// Div transposes the pitch downward by a ratio.
func (p Pitch) Div(r Ratio) Pitch {
	return Pitch{hz: p.hz / r.Float()}
}

func (p Pitch) String() string {
	return fmt.Sprintf("%.3f Hz", p.hz)
}

// RatioBetween returns the interval from pitch a up to pitch b. It fails
// with ErrInvalidRatio when either frequency is not positive.
func RatioBetween(a, b Pitch) (Ratio, error) {
	if a.hz <= 0 || b.hz <= 0 {
		return Ratio{}, fmt.Errorf("%w: %v -> %v", ErrInvalidRatio, a, b)
	}
	return FromFloat(b.hz / a.hz)
}

// MidiSemitones returns the pitch as fractional 12-EDO semitones above MIDI
// note 0, assuming standard concert pitch.
func (p Pitch) MidiSemitones() (float64, error) {
	r, err := RatioBetween(FromHz(A4Hz), p)
	if err != nil {
		return 0, err
	}
	return float64(A4Key) + r.Semitones(), nil
}

// MidiPitch returns the standard-tuning pitch of a MIDI note number.
func MidiPitch(note int) Pitch {
	return FromHz(A4Hz).Mul(FromSemitones(float64(note - A4Key)))
}
