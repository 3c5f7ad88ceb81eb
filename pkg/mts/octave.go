package mts

import (
	"fmt"
	"math"
)

// ScaleOctaveTuningFormat selects the per-degree resolution of a
// scale/octave tuning message.
type ScaleOctaveTuningFormat int

const (
	// OneByteFormat encodes each degree offset as a single byte with one
	// cent resolution in the range -64..+63 cents.
	OneByteFormat ScaleOctaveTuningFormat = iota
	// TwoByteFormat encodes each degree offset as a 14-bit value with
	// 100/8192 cent resolution in the range -100..+100 cents.
	TwoByteFormat
)

// OctaveTuning holds the detuning in cents for each of the twelve note
// letters, C first.
type OctaveTuning [12]float64

// ScaleOctaveTuningOptions configures a scale/octave tuning message.
type ScaleOctaveTuningOptions struct {
	DeviceID byte
	Channels ChannelSet
	Format   ScaleOctaveTuningFormat
}

// DefaultScaleOctaveOptions returns the documented defaults: broadcast
// device ID, all channels, one-byte format.
func DefaultScaleOctaveOptions() ScaleOctaveTuningOptions {
	return ScaleOctaveTuningOptions{DeviceID: BroadcastDeviceID, Channels: AllChannels}
}

// ScaleOctaveTuningMessage is an encoded real-time Scale/Octave Tuning
// sysex message. It is immutable once built.
type ScaleOctaveTuningMessage struct {
	sysex   []byte
	clamped []int // note letters whose offset exceeded the format's range
}

// NewScaleOctaveTuning encodes per-note-letter detunings. The byte layout
// is F0 7F <device> 08 <08|09> <channel bytes> followed by 12 one-byte or
// 24 two-byte degree values, an XOR checksum and F7. Offsets outside the
// format's range are clamped to its limits and reported via ClampedNotes
// as a warning rather than an error.
func NewScaleOctaveTuning(opts ScaleOctaveTuningOptions, octave OctaveTuning) (*ScaleOctaveTuningMessage, error) {
	msg := &ScaleOctaveTuningMessage{}

	var subID2 byte
	var data []byte
	switch opts.Format {
	case OneByteFormat:
		subID2 = ScaleOctaveTuning1ByteID
		data = make([]byte, 0, 12)
		for letter, cents := range octave {
			offset := int(math.Round(cents))
			if offset < -64 || offset > 63 {
				msg.clamped = append(msg.clamped, letter)
				offset = clampInt(offset, -64, 63)
			}
			data = append(data, byte(offset+64))
		}
	case TwoByteFormat:
		subID2 = ScaleOctaveTuning2ByteID
		data = make([]byte, 0, 24)
		for letter, cents := range octave {
			value := 8192 + int(math.Round(cents/100*8192))
			if value < 0 || value > 16383 {
				msg.clamped = append(msg.clamped, letter)
				value = clampInt(value, 0, 16383)
			}
			data = append(data, byte(value>>7&0x7F), byte(value&0x7F))
		}
	default:
		return nil, fmt.Errorf("unknown scale/octave tuning format %d", opts.Format)
	}

	ch1415, ch713, ch06 := opts.Channels.bytes()
	body := make([]byte, 0, 7+len(data))
	body = append(body,
		UniversalRealTime,
		opts.DeviceID,
		MidiTuningSubID,
		subID2,
		ch1415,
		ch713,
		ch06,
	)
	body = append(body, data...)

	msg.sysex = make([]byte, 0, len(body)+3)
	msg.sysex = append(msg.sysex, SysExStart)
	msg.sysex = append(msg.sysex, body...)
	msg.sysex = append(msg.sysex, checksum(body), SysExEnd)
	return msg, nil
}

// SysEx returns the full encoded message including the sysex frame.
func (m *ScaleOctaveTuningMessage) SysEx() []byte {
	return m.sysex
}

// ClampedNotes returns the note letters (0 = C) whose offsets were clamped
// to the format's range.
func (m *ScaleOctaveTuningMessage) ClampedNotes() []int {
	return m.clamped
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
