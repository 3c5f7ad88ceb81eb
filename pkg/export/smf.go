package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"tunecraft/pkg/mts"
)

// SMFWriter renders tuning setup messages as a one-track Standard MIDI
// File that sequencers can play back before a performance.
type SMFWriter struct {
	ticksPerQuarter uint16
	tempo           float64
}

// NewSMFWriter creates an SMF writer with conventional defaults: 480
// ticks per quarter at 120 BPM.
func NewSMFWriter() *SMFWriter {
	return &SMFWriter{
		ticksPerQuarter: 480,
		tempo:           120.0,
	}
}

// GenerateSMF creates Standard MIDI File data carrying the given sysex
// tuning dumps followed by the channel setup messages, all at tick zero.
func (m *SMFWriter) GenerateSMF(dumps []mts.Message, setup []midi.Message) ([]byte, error) {
	if len(dumps) == 0 && len(setup) == 0 {
		return nil, errors.New("nothing to write")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	// Tempo meta event (FF 51 03 ...)
	microsecondsPerBeat := uint32(60000000.0 / m.tempo)
	tempoData := smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	})
	track.Add(0, tempoData)

	for _, dump := range dumps {
		track.Add(0, smf.Message(mts.Midi(dump)))
	}
	for _, msg := range setup {
		track.Add(0, smf.Message(msg))
	}

	track.Close(0)
	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSMFFile writes the setup messages as a Standard MIDI File.
func (m *SMFWriter) WriteSMFFile(filename string, dumps []mts.Message, setup []midi.Message) error {
	data, err := m.GenerateSMF(dumps, setup)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
