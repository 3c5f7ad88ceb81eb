// Package export writes tuning messages to .syx bulk-dump files and
// Standard MIDI Files
package export

import (
	"errors"
	"fmt"
	"os"

	"tunecraft/pkg/mts"
)

// Sysex framing constants
const (
	SysExStart = 0xF0
	SysExEnd   = 0xF7
)

// GenerateSyx concatenates framed sysex messages into raw .syx data, the
// layout tuning-librarian tools exchange.
func GenerateSyx(msgs ...mts.Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, errors.New("no messages to write")
	}
	var data []byte
	for _, m := range msgs {
		data = append(data, m.SysEx()...)
	}
	if err := ValidateSyx(data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteSyxFile writes framed sysex messages to a .syx file.
func WriteSyxFile(filename string, msgs ...mts.Message) error {
	data, err := GenerateSyx(msgs...)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// ParseSyxFile reads a .syx file and splits it into individual framed
// messages.
func ParseSyxFile(filename string) ([][]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read syx file: %w", err)
	}
	return SplitSyx(data)
}

// SplitSyx splits raw .syx data into its framed messages, validating the
// framing on the way.
func SplitSyx(data []byte) ([][]byte, error) {
	if err := ValidateSyx(data); err != nil {
		return nil, err
	}
	var msgs [][]byte
	start := 0
	for i, b := range data {
		switch b {
		case SysExStart:
			start = i
		case SysExEnd:
			msgs = append(msgs, data[start:i+1])
		}
	}
	return msgs, nil
}

// ValidateSyx checks the sysex structure of raw .syx data: it must start
// with 0xF0, end with 0xF7, and carry only 7-bit data bytes in between.
func ValidateSyx(data []byte) error {
	if len(data) < 2 {
		return errors.New("syx data too short")
	}
	if data[0] != SysExStart {
		return fmt.Errorf("syx data must start with 0x%02X, got 0x%02X", SysExStart, data[0])
	}
	if data[len(data)-1] != SysExEnd {
		return fmt.Errorf("syx data must end with 0x%02X, got 0x%02X", SysExEnd, data[len(data)-1])
	}
	inMessage := false
	for i, b := range data {
		switch {
		case b == SysExStart:
			if inMessage {
				return fmt.Errorf("unterminated message before offset %d", i)
			}
			inMessage = true
		case b == SysExEnd:
			if !inMessage {
				return fmt.Errorf("stray end byte at offset %d", i)
			}
			inMessage = false
		case b > 0x7F:
			return fmt.Errorf("invalid data byte 0x%02X at offset %d", b, i)
		case !inMessage:
			return fmt.Errorf("data byte outside a message at offset %d", i)
		}
	}
	if inMessage {
		return errors.New("unterminated final message")
	}
	return nil
}
