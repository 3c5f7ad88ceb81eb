package scala

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/tuning"
)

// unmappedField is the .kbm sentinel for a key slot without a degree.
const unmappedField = "x"

// FormatKbm renders a keyboard mapping in the .kbm format. The fixed field
// order is: mapping size, first and last MIDI note, middle note (degree 0),
// reference note, reference frequency in Hz, scale degree count per octave,
// then one key-to-degree entry per mapped key with "x" for unmapped slots.
// A linear mapping is written with size 0 and no entry lines.
func FormatKbm(m tuning.KeyboardMapping, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "! Size of map:\n%d\n", len(m.Table))
	fmt.Fprintf(&b, "! First MIDI note number to retune:\n%d\n", m.FirstKey)
	fmt.Fprintf(&b, "! Last MIDI note number to retune:\n%d\n", m.LastKey)
	fmt.Fprintf(&b, "! Middle note where the first entry is mapped to:\n%d\n", m.RootKey)
	fmt.Fprintf(&b, "! Reference note for which frequency is given:\n%d\n", m.RefKey)
	fmt.Fprintf(&b, "! Frequency to tune the above note to (Hz):\n%s\n",
		strconv.FormatFloat(m.RefPitch.Hz(), 'f', opts.CentsPrecision, 64))
	fmt.Fprintf(&b, "! Scale degree to consider as formal octave:\n%d\n", m.PeriodDegrees)
	if len(m.Table) > 0 {
		b.WriteString("! Mapping:\n")
		for _, entry := range m.Table {
			if entry == tuning.Unmapped {
				b.WriteString(unmappedField + "\n")
			} else {
				fmt.Fprintf(&b, "%d\n", entry)
			}
		}
	}
	return b.String()
}

// WriteKbm writes a keyboard mapping in the .kbm format.
func WriteKbm(w io.Writer, m tuning.KeyboardMapping, opts Options) error {
	_, err := io.WriteString(w, FormatKbm(m, opts))
	return err
}

// ParseKbm parses a .kbm file into a keyboard mapping. Failures are
// reported as *MalformedFileError with the offending line number.
func ParseKbm(r io.Reader) (tuning.KeyboardMapping, error) {
	lines := newLineReader(r)

	size, err := nextInt(lines, "mapping size")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}
	if size < 0 {
		return tuning.KeyboardMapping{}, &MalformedFileError{Line: lines.lineNo, Msg: fmt.Sprintf("negative mapping size %d", size)}
	}
	firstKey, err := nextInt(lines, "first MIDI note")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}
	lastKey, err := nextInt(lines, "last MIDI note")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}
	rootKey, err := nextInt(lines, "middle note")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}
	refKey, err := nextInt(lines, "reference note")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}

	freqLine, freqLineNo, err := lines.next()
	if err != nil {
		return tuning.KeyboardMapping{}, &MalformedFileError{Line: lines.lineNo, Msg: "missing reference frequency", Err: err}
	}
	freq, err := strconv.ParseFloat(firstField(freqLine), 64)
	if err != nil || freq <= 0 {
		return tuning.KeyboardMapping{}, &MalformedFileError{Line: freqLineNo, Msg: fmt.Sprintf("invalid reference frequency %q", freqLine)}
	}

	periodDegrees, err := nextInt(lines, "formal octave degree count")
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}

	mapping := tuning.KeyboardMapping{
		RefKey:        refKey,
		RefPitch:      pitch.FromHz(freq),
		RootKey:       rootKey,
		FirstKey:      firstKey,
		LastKey:       lastKey,
		PeriodDegrees: periodDegrees,
	}

	for i := 0; i < size; i++ {
		line, lineNo, err := lines.next()
		if err != nil {
			return tuning.KeyboardMapping{}, &MalformedFileError{
				Line: lines.lineNo,
				Msg:  fmt.Sprintf("expected %d mapping entries, found %d", size, i),
				Err:  err,
			}
		}
		field := firstField(line)
		if strings.EqualFold(field, unmappedField) {
			mapping.Table = append(mapping.Table, tuning.Unmapped)
			continue
		}
		entry, err := strconv.Atoi(field)
		if err != nil {
			return tuning.KeyboardMapping{}, &MalformedFileError{Line: lineNo, Msg: fmt.Sprintf("invalid mapping entry %q", line), Err: err}
		}
		mapping.Table = append(mapping.Table, entry)
	}

	if err := mapping.Validate(); err != nil {
		return tuning.KeyboardMapping{}, &MalformedFileError{Line: lines.lineNo, Msg: "inconsistent keyboard mapping", Err: err}
	}
	return mapping, nil
}

func nextInt(lines *lineReader, what string) (int, error) {
	line, lineNo, err := lines.next()
	if err != nil {
		return 0, &MalformedFileError{Line: lines.lineNo, Msg: "missing " + what, Err: err}
	}
	value, err := strconv.Atoi(firstField(line))
	if err != nil {
		return 0, &MalformedFileError{Line: lineNo, Msg: fmt.Sprintf("invalid %s %q", what, line), Err: err}
	}
	return value, nil
}
