package mts

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"
)

// Registered parameter numbers used by the tuning standard.
const (
	rpnMSB           = 0x65
	rpnLSB           = 0x64
	dataEntryMSB     = 0x06
	dataEntryLSB     = 0x26
	rpnFineTuning    = 0x01
	rpnTuningProgram = 0x03
)

// ChannelFineTuning builds the control-change sequence that detunes an
// entire channel by the given number of semitones. The 14-bit data value
// is centered at 0x2000 with a range of one semitone in each direction;
// detunings beyond that fail with ErrOutOfMtsRange.
func ChannelFineTuning(channel uint8, detuneSemitones float64) ([]midi.Message, error) {
	value := 8192 + int(math.Round(detuneSemitones*8192))
	if value < 0 || value > 16383 {
		return nil, fmt.Errorf("%w: channel fine tuning of %+.4f semitones", ErrOutOfMtsRange, detuneSemitones)
	}
	return []midi.Message{
		midi.ControlChange(channel, rpnMSB, 0x00),
		midi.ControlChange(channel, rpnLSB, rpnFineTuning),
		midi.ControlChange(channel, dataEntryMSB, uint8(value>>7&0x7F)),
		midi.ControlChange(channel, dataEntryLSB, uint8(value&0x7F)),
	}, nil
}

// TuningProgramChange builds the control-change sequence that selects the
// tuning program a channel plays with.
func TuningProgramChange(channel uint8, tuningProgram uint8) []midi.Message {
	return []midi.Message{
		midi.ControlChange(channel, rpnMSB, 0x00),
		midi.ControlChange(channel, rpnLSB, rpnTuningProgram),
		midi.ControlChange(channel, dataEntryMSB, tuningProgram&0x7F),
	}
}

// Midi wraps an encoded MTS message payload as a gomidi sysex message.
// The payload excludes the 0xF0/0xF7 frame, which gomidi adds itself.
func Midi(m Message) midi.Message {
	raw := m.SysEx()
	return midi.SysEx(raw[1 : len(raw)-1])
}
