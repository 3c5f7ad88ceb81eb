package mts

import (
	"fmt"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/tuning"
)

// NoteTuning assigns a target pitch to one MIDI note.
type NoteTuning struct {
	Note  int
	Pitch pitch.Pitch
}

// SingleNoteTuningChangeOptions configures a Single Note Tuning Change
// message.
type SingleNoteTuningChangeOptions struct {
	DeviceID      byte
	TuningProgram byte
}

// DefaultSingleNoteOptions returns the documented defaults: broadcast
// device ID and tuning program 0.
func DefaultSingleNoteOptions() SingleNoteTuningChangeOptions {
	return SingleNoteTuningChangeOptions{DeviceID: BroadcastDeviceID}
}

// SingleNoteTuningChangeMessage is an encoded real-time Single Note Tuning
// Change sysex message. It is immutable once built.
type SingleNoteTuningChangeMessage struct {
	sysex      []byte
	retuned    []NoteTuning
	outOfRange []NoteTuning
}

// NewSingleNoteTuningChange encodes the given note tunings. The byte
// layout is F0 7F <device> 08 02 <tuning program> <count> then one
// <note> <semitone> <fraction hi> <fraction lo> group per tuning, an XOR
// checksum and F7. Notes whose pitch falls outside the representable span
// are skipped and reported via OutOfRangeNotes rather than failing the
// whole message; the constructor fails with ErrOutOfMtsRange only when no
// note at all can be encoded.
func NewSingleNoteTuningChange(opts SingleNoteTuningChangeOptions, tunings []NoteTuning) (*SingleNoteTuningChangeMessage, error) {
	msg := &SingleNoteTuningChangeMessage{}

	encoded := make([]notePitch, 0, len(tunings))
	for _, t := range tunings {
		if t.Note < 0 || t.Note > 127 {
			return nil, fmt.Errorf("%w: MIDI note %d", ErrOutOfMtsRange, t.Note)
		}
		np, err := encodePitch(t.Pitch)
		if err != nil {
			msg.outOfRange = append(msg.outOfRange, t)
			continue
		}
		encoded = append(encoded, np)
		msg.retuned = append(msg.retuned, t)
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("%w: no representable notes among %d tunings", ErrOutOfMtsRange, len(tunings))
	}
	if len(encoded) > 127 {
		return nil, fmt.Errorf("single note tuning change carries at most 127 notes, got %d", len(encoded))
	}

	body := make([]byte, 0, 6+4*len(encoded))
	body = append(body,
		UniversalRealTime,
		opts.DeviceID,
		MidiTuningSubID,
		SingleNoteTuningChangeID,
		opts.TuningProgram,
		byte(len(encoded)),
	)
	for i, np := range encoded {
		body = append(body, byte(msg.retuned[i].Note), np.note, np.fracHi, np.fracLo)
	}

	msg.sysex = make([]byte, 0, len(body)+3)
	msg.sysex = append(msg.sysex, SysExStart)
	msg.sysex = append(msg.sysex, body...)
	msg.sysex = append(msg.sysex, checksum(body), SysExEnd)
	return msg, nil
}

// SingleNoteTuningFromTuning snapshots a tuning into a Single Note Tuning
// Change message covering the given keys. Keys without a mapping are
// silently skipped; keys mapped outside the MTS range are reported via
// OutOfRangeNotes.
func SingleNoteTuningFromTuning(t *tuning.Tuning, keys []int, opts SingleNoteTuningChangeOptions) (*SingleNoteTuningChangeMessage, error) {
	tunings := make([]NoteTuning, 0, len(keys))
	for _, key := range keys {
		if key < 0 || key > 127 {
			continue
		}
		freq, err := t.FrequencyOf(key)
		if err != nil {
			continue
		}
		tunings = append(tunings, NoteTuning{Note: key, Pitch: freq})
	}
	return NewSingleNoteTuningChange(opts, tunings)
}

// SysEx returns the full encoded message including the sysex frame.
func (m *SingleNoteTuningChangeMessage) SysEx() []byte {
	return m.sysex
}

// RetunedNotes returns the tunings that were encoded.
func (m *SingleNoteTuningChangeMessage) RetunedNotes() []NoteTuning {
	return m.retuned
}

// OutOfRangeNotes returns the tunings that were skipped because their
// pitch is not representable.
func (m *SingleNoteTuningChangeMessage) OutOfRangeNotes() []NoteTuning {
	return m.outOfRange
}
