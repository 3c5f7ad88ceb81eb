package mts

import (
	"bytes"
	"errors"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tuning"
)

// xorChecksum recomputes the checksum independently of the encoder: XOR of
// everything between the sysex start byte and the checksum position.
func xorChecksum(t *testing.T, sysex []byte) byte {
	t.Helper()
	if len(sysex) < 3 || sysex[0] != SysExStart || sysex[len(sysex)-1] != SysExEnd {
		t.Fatalf("not a framed sysex message: % X", sysex)
	}
	var sum byte
	for _, b := range sysex[1 : len(sysex)-2] {
		sum ^= b
	}
	return sum & 0x7F
}

func TestSingleNoteTuningChange(t *testing.T) {
	msg, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), []NoteTuning{
		{Note: 60, Pitch: pitch.MidiPitch(60)},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Middle C at its conventional frequency: semitone 60, zero fraction.
	want := []byte{
		SysExStart,
		UniversalRealTime, BroadcastDeviceID, MidiTuningSubID, SingleNoteTuningChangeID,
		0x00,       // tuning program
		0x01,       // note count
		0x3C,       // retuned key
		0x3C,       // semitone
		0x00, 0x00, // fraction
		0x0B,
		SysExEnd,
	}
	if !bytes.Equal(msg.SysEx(), want) {
		t.Errorf("SysEx() = % X, want % X", msg.SysEx(), want)
	}
	if got := xorChecksum(t, msg.SysEx()); got != msg.SysEx()[len(msg.SysEx())-2] {
		t.Errorf("checksum = %#02x, independent recomputation = %#02x",
			msg.SysEx()[len(msg.SysEx())-2], got)
	}
	if len(msg.RetunedNotes()) != 1 || len(msg.OutOfRangeNotes()) != 0 {
		t.Errorf("retuned %d, out of range %d", len(msg.RetunedNotes()), len(msg.OutOfRangeNotes()))
	}
}

func TestSingleNoteTuningChangeFraction(t *testing.T) {
	// A quarter tone above middle C sits at semitone 60 plus fraction 0x2000.
	quarterSharp := pitch.MidiPitch(60).Mul(pitch.FromCents(50))
	msg, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), []NoteTuning{
		{Note: 61, Pitch: quarterSharp},
	})
	if err != nil {
		t.Fatal(err)
	}
	sysex := msg.SysEx()
	group := sysex[7:11]
	want := []byte{61, 60, 0x40, 0x00}
	if !bytes.Equal(group, want) {
		t.Errorf("note group = % X, want % X", group, want)
	}
}

func TestSingleNoteTuningChangeOptions(t *testing.T) {
	msg, err := NewSingleNoteTuningChange(
		SingleNoteTuningChangeOptions{DeviceID: 0x10, TuningProgram: 5},
		[]NoteTuning{{Note: 69, Pitch: pitch.FromHz(440)}},
	)
	if err != nil {
		t.Fatal(err)
	}
	sysex := msg.SysEx()
	if sysex[2] != 0x10 {
		t.Errorf("device ID byte = %#02x, want 0x10", sysex[2])
	}
	if sysex[5] != 5 {
		t.Errorf("tuning program byte = %#02x, want 5", sysex[5])
	}
}

func TestSingleNoteTuningChangeOutOfRange(t *testing.T) {
	tooHigh := pitch.MidiPitch(140)
	tooLow := pitch.MidiPitch(-3)

	// Unrepresentable pitches are skipped, not fatal.
	msg, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), []NoteTuning{
		{Note: 0, Pitch: tooLow},
		{Note: 69, Pitch: pitch.FromHz(440)},
		{Note: 127, Pitch: tooHigh},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.RetunedNotes()) != 1 || len(msg.OutOfRangeNotes()) != 2 {
		t.Fatalf("retuned %d, out of range %d, want 1 and 2",
			len(msg.RetunedNotes()), len(msg.OutOfRangeNotes()))
	}
	if msg.SysEx()[6] != 1 {
		t.Errorf("note count byte = %d, want 1", msg.SysEx()[6])
	}

	// With no representable note at all the message cannot be built.
	if _, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), []NoteTuning{
		{Note: 0, Pitch: tooLow},
	}); !errors.Is(err, ErrOutOfMtsRange) {
		t.Errorf("all out of range: error = %v, want ErrOutOfMtsRange", err)
	}

	// An invalid note number is the caller's bug and fails immediately.
	if _, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), []NoteTuning{
		{Note: 128, Pitch: pitch.FromHz(440)},
	}); !errors.Is(err, ErrOutOfMtsRange) {
		t.Errorf("note 128: error = %v, want ErrOutOfMtsRange", err)
	}
}

func TestSingleNoteTuningChangeCapacity(t *testing.T) {
	tunings := make([]NoteTuning, 128)
	for i := range tunings {
		tunings[i] = NoteTuning{Note: i, Pitch: pitch.MidiPitch(i)}
	}
	if _, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), tunings); err == nil {
		t.Error("128 notes in one message: want error")
	}
	if _, err := NewSingleNoteTuningChange(DefaultSingleNoteOptions(), tunings[:127]); err != nil {
		t.Errorf("127 notes: %v", err)
	}
}

func TestSingleNoteTuningFromTuning(t *testing.T) {
	sc, err := scale.Edo(19)
	if err != nil {
		t.Fatal(err)
	}
	tun, err := tuning.New(sc, tuning.Linear(69, pitch.FromHz(440), 69))
	if err != nil {
		t.Fatal(err)
	}
	keys := make([]int, 0, 24)
	for key := 60; key < 84; key++ {
		keys = append(keys, key)
	}
	msg, err := SingleNoteTuningFromTuning(tun, keys, DefaultSingleNoteOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.RetunedNotes()) != 24 {
		t.Errorf("retuned %d keys, want 24", len(msg.RetunedNotes()))
	}
	if got := xorChecksum(t, msg.SysEx()); got != msg.SysEx()[len(msg.SysEx())-2] {
		t.Error("checksum mismatch")
	}
}

func TestScaleOctaveTuningOneByte(t *testing.T) {
	msg, err := NewScaleOctaveTuning(DefaultScaleOctaveOptions(), OctaveTuning{})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		SysExStart,
		UniversalRealTime, BroadcastDeviceID, MidiTuningSubID, ScaleOctaveTuning1ByteID,
		0x03, 0x7F, 0x7F, // all channels
		0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40,
		0x03,
		SysExEnd,
	}
	if !bytes.Equal(msg.SysEx(), want) {
		t.Errorf("SysEx() = % X, want % X", msg.SysEx(), want)
	}
	if len(msg.ClampedNotes()) != 0 {
		t.Errorf("ClampedNotes() = %v, want none", msg.ClampedNotes())
	}
}

func TestScaleOctaveTuningOneByteOffsets(t *testing.T) {
	var octave OctaveTuning
	octave[0] = -64 // C
	octave[1] = 63  // C#
	octave[2] = -70 // D, clamps to -64
	octave[3] = 70  // D#, clamps to +63

	msg, err := NewScaleOctaveTuning(DefaultScaleOctaveOptions(), octave)
	if err != nil {
		t.Fatal(err)
	}
	data := msg.SysEx()[8:20]
	if data[0] != 0x00 || data[1] != 0x7F {
		t.Errorf("extreme offsets = %#02x %#02x, want 0x00 0x7F", data[0], data[1])
	}
	if data[2] != 0x00 || data[3] != 0x7F {
		t.Errorf("clamped offsets = %#02x %#02x, want 0x00 0x7F", data[2], data[3])
	}
	if got := msg.ClampedNotes(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("ClampedNotes() = %v, want [2 3]", got)
	}
}

func TestScaleOctaveTuningTwoByte(t *testing.T) {
	var octave OctaveTuning
	octave[0] = 50   // +0x1000 above center
	octave[1] = -100 // bottom of the range
	octave[2] = 100  // one step past the top, clamps to 0x3FFF

	opts := DefaultScaleOctaveOptions()
	opts.Format = TwoByteFormat
	msg, err := NewScaleOctaveTuning(opts, octave)
	if err != nil {
		t.Fatal(err)
	}
	sysex := msg.SysEx()
	if sysex[4] != ScaleOctaveTuning2ByteID {
		t.Errorf("sub-ID 2 = %#02x, want %#02x", sysex[4], ScaleOctaveTuning2ByteID)
	}
	data := sysex[8 : 8+24]
	checks := []struct {
		letter int
		hi, lo byte
	}{
		{0, 0x60, 0x00},
		{1, 0x00, 0x00},
		{2, 0x7F, 0x7F},
		{3, 0x40, 0x00}, // untouched letter sits at center
	}
	for _, c := range checks {
		if data[2*c.letter] != c.hi || data[2*c.letter+1] != c.lo {
			t.Errorf("letter %d = %#02x %#02x, want %#02x %#02x",
				c.letter, data[2*c.letter], data[2*c.letter+1], c.hi, c.lo)
		}
	}
	if got := msg.ClampedNotes(); len(got) != 1 || got[0] != 2 {
		t.Errorf("ClampedNotes() = %v, want [2]", got)
	}
	if got := xorChecksum(t, sysex); got != sysex[len(sysex)-2] {
		t.Error("checksum mismatch")
	}
}

func TestScaleOctaveTuningChannels(t *testing.T) {
	opts := DefaultScaleOctaveOptions()
	opts.Channels = Channel(0).With(7).With(14)
	msg, err := NewScaleOctaveTuning(opts, OctaveTuning{})
	if err != nil {
		t.Fatal(err)
	}
	sysex := msg.SysEx()
	// Channel 14 -> bit 0 of the first byte, channel 7 -> bit 0 of the
	// second, channel 0 -> bit 0 of the third.
	if sysex[5] != 0x01 || sysex[6] != 0x01 || sysex[7] != 0x01 {
		t.Errorf("channel bytes = %#02x %#02x %#02x, want 0x01 0x01 0x01",
			sysex[5], sysex[6], sysex[7])
	}
}

func TestChannelFineTuning(t *testing.T) {
	msgs, err := ChannelFineTuning(3, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	want := []midi.Message{
		midi.ControlChange(3, 0x65, 0x00),
		midi.ControlChange(3, 0x64, 0x01),
		midi.ControlChange(3, 0x06, 0x60),
		midi.ControlChange(3, 0x26, 0x00),
	}
	if len(msgs) != len(want) {
		t.Fatalf("message count = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if !bytes.Equal(msgs[i], want[i]) {
			t.Errorf("message %d = % X, want % X", i, msgs[i], want[i])
		}
	}

	for _, detune := range []float64{1.5, -1.1} {
		if _, err := ChannelFineTuning(0, detune); !errors.Is(err, ErrOutOfMtsRange) {
			t.Errorf("ChannelFineTuning(%v) error = %v, want ErrOutOfMtsRange", detune, err)
		}
	}
}

func TestTuningProgramChange(t *testing.T) {
	msgs := TuningProgramChange(0, 5)
	want := []midi.Message{
		midi.ControlChange(0, 0x65, 0x00),
		midi.ControlChange(0, 0x64, 0x03),
		midi.ControlChange(0, 0x06, 5),
	}
	if len(msgs) != len(want) {
		t.Fatalf("message count = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if !bytes.Equal(msgs[i], want[i]) {
			t.Errorf("message %d = % X, want % X", i, msgs[i], want[i])
		}
	}
}

func TestMidiWrapsPayload(t *testing.T) {
	msg, err := NewScaleOctaveTuning(DefaultScaleOctaveOptions(), OctaveTuning{})
	if err != nil {
		t.Fatal(err)
	}
	if got := Midi(msg); !bytes.Equal(got, msg.SysEx()) {
		t.Errorf("Midi() = % X, want the framed message % X", got, msg.SysEx())
	}
}
