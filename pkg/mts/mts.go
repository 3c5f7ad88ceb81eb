// Package mts encodes MIDI Tuning Standard sysex messages
package mts

import (
	"errors"
	"fmt"
	"math"

	"tunecraft/pkg/pitch"
)

// Sysex framing and MTS sub-ID constants.
const (
	SysExStart        = 0xF0
	SysExEnd          = 0xF7
	UniversalRealTime = 0x7F
	MidiTuningSubID   = 0x08

	// Sub-ID 2 values selecting the message variant.
	SingleNoteTuningChangeID = 0x02
	ScaleOctaveTuning1ByteID = 0x08
	ScaleOctaveTuning2ByteID = 0x09

	// BroadcastDeviceID addresses all receiving devices.
	BroadcastDeviceID = 0x7F
)

// ErrOutOfMtsRange reports a pitch outside the 0..128 semitone span the
// tuning standard can express.
var ErrOutOfMtsRange = errors.New("pitch not representable in MTS range")

// Message is one encodable MTS sysex variant. The set is closed:
// SingleNoteTuningChangeMessage and ScaleOctaveTuningMessage (in its
// 1-byte and 2-byte formats) implement it.
type Message interface {
	// SysEx returns the full byte sequence including the 0xF0/0xF7 frame.
	SysEx() []byte
}

// notePitch is a MIDI note plus its 14-bit pitch fraction: xx and yy are
// 7-bit halves of the fraction of a semitone above note.
type notePitch struct {
	note   byte
	fracHi byte
	fracLo byte
}

// encodePitch quantizes a target pitch to the MTS fixed-point encoding:
// a semitone number 0..127 plus a 14-bit fraction in units of 100/16384
// cents. Pitches outside the representable span fail with ErrOutOfMtsRange.
func encodePitch(p pitch.Pitch) (notePitch, error) {
	semitones, err := p.MidiSemitones()
	if err != nil {
		return notePitch{}, err
	}
	if semitones < 0 {
		return notePitch{}, fmt.Errorf("%w: %.4f semitones below MIDI note 0", ErrOutOfMtsRange, -semitones)
	}
	note := int(math.Floor(semitones))
	frac := int(math.Round((semitones - float64(note)) * 16384))
	if frac == 16384 {
		note++
		frac = 0
	}
	if note > 127 {
		return notePitch{}, fmt.Errorf("%w: %.4f semitones above MIDI note 0", ErrOutOfMtsRange, semitones)
	}
	return notePitch{
		note:   byte(note),
		fracHi: byte(frac >> 7 & 0x7F),
		fracLo: byte(frac & 0x7F),
	}, nil
}

// checksum XORs all bytes between the sysex start byte and the checksum
// position, masked to seven bits so the result is a valid data byte.
func checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum ^= b
	}
	return sum & 0x7F
}

// ChannelSet selects the MIDI channels a scale/octave message applies to,
// as a 16-bit channel mask.
type ChannelSet uint16

// AllChannels applies to every MIDI channel.
const AllChannels ChannelSet = 0xFFFF

// Channel returns a set containing the single zero-based channel.
func Channel(channel uint8) ChannelSet {
	return 1 << (channel % 16)
}

// With adds a zero-based channel to the set.
func (s ChannelSet) With(channel uint8) ChannelSet {
	return s | Channel(channel)
}

// bytes splits the mask into the three 7-bit bytes of the sysex layout:
// channels 14-15, channels 7-13, channels 0-6.
func (s ChannelSet) bytes() (byte, byte, byte) {
	return byte(s >> 14 & 0x03), byte(s >> 7 & 0x7F), byte(s & 0x7F)
}
