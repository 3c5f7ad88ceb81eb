// Package scala reads and writes the Scala .scl scale and .kbm keyboard
// mapping text formats
package scala

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
)

// Options holds the explicit formatting configuration for the text
// writers. No global state is consulted.
type Options struct {
	// CentsPrecision is the number of decimal places for cents-valued
	// pitch lines.
	CentsPrecision int
}

// DefaultOptions returns the documented defaults: cents rendered with four
// decimal places, matching common Scala archive files.
func DefaultOptions() Options {
	return Options{CentsPrecision: 4}
}

// MalformedFileError reports a parse failure with the offending line.
type MalformedFileError struct {
	Line int
	Msg  string
	Err  error
}

func (e *MalformedFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *MalformedFileError) Unwrap() error {
	return e.Err
}

// FormatScl renders a scale in the .scl format. Entries constructed from
// exact fractions are written as "n/d"; all other entries are written as
// cents values, so parsing the output recovers each entry's original
// representation.
func FormatScl(sc *scale.Scale, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", sc.Name())
	fmt.Fprintf(&b, "%d\n", sc.Size())
	for _, item := range sc.Items() {
		b.WriteString(formatPitchLine(item, opts))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteScl writes a scale in the .scl format.
func WriteScl(w io.Writer, sc *scale.Scale, opts Options) error {
	_, err := io.WriteString(w, FormatScl(sc, opts))
	return err
}

func formatPitchLine(r pitch.Ratio, opts Options) string {
	if r.IsRational() {
		return fmt.Sprintf("%d/%d", r.Num(), r.Den())
	}
	return strconv.FormatFloat(r.Cents(), 'f', opts.CentsPrecision, 64)
}

// ParseScl parses a .scl file into a scale. Lines starting with '!' are
// comments. The first content line is the description, the second the
// pitch count, followed by exactly that many pitch lines holding either a
// cents value (containing a '.'), an integer ratio "n/d", or a bare
// integer meaning "n/1". Parse failures and non-monotonic pitch lists are
// reported as *MalformedFileError with the offending line number.
func ParseScl(r io.Reader) (*scale.Scale, error) {
	lines := newLineReader(r)

	description, _, err := lines.next()
	if err != nil {
		return nil, &MalformedFileError{Line: lines.lineNo, Msg: "missing description line", Err: err}
	}

	countLine, countLineNo, err := lines.next()
	if err != nil {
		return nil, &MalformedFileError{Line: lines.lineNo, Msg: "missing pitch count", Err: err}
	}
	count, err := strconv.Atoi(firstField(countLine))
	if err != nil || count < 0 {
		return nil, &MalformedFileError{Line: countLineNo, Msg: fmt.Sprintf("invalid pitch count %q", countLine)}
	}

	builder := scale.NewBuilder(strings.TrimSpace(description))
	entryLines := make([]int, 0, count)
	for i := 0; i < count; i++ {
		line, lineNo, err := lines.next()
		if err != nil {
			return nil, &MalformedFileError{
				Line: lines.lineNo,
				Msg:  fmt.Sprintf("expected %d pitch lines, found %d", count, i),
				Err:  err,
			}
		}
		entry, parseErr := parsePitchLine(firstField(line))
		if parseErr != nil {
			return nil, &MalformedFileError{Line: lineNo, Msg: fmt.Sprintf("invalid pitch %q", line), Err: parseErr}
		}
		builder.PushRatio(entry)
		entryLines = append(entryLines, lineNo)
	}

	sc, err := builder.Build()
	if err != nil {
		line := 0
		if len(entryLines) > 0 {
			line = entryLines[len(entryLines)-1]
		}
		return nil, &MalformedFileError{Line: line, Msg: "pitch list is not strictly increasing", Err: err}
	}
	return sc, nil
}

// parsePitchLine parses one pitch entry. Scala's rule: a value containing
// a period is a cents value, everything else is a ratio.
func parsePitchLine(field string) (pitch.Ratio, error) {
	if field == "" {
		return pitch.Ratio{}, fmt.Errorf("empty pitch entry")
	}
	if strings.Contains(field, ".") {
		cents, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return pitch.Ratio{}, err
		}
		return pitch.FromCents(cents), nil
	}
	if num, den, ok := strings.Cut(field, "/"); ok {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return pitch.Ratio{}, err
		}
		d, err := strconv.ParseInt(den, 10, 64)
		if err != nil {
			return pitch.Ratio{}, err
		}
		return pitch.NewRatio(n, d)
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return pitch.Ratio{}, err
	}
	return pitch.NewRatio(n, 1)
}

// lineReader yields content lines, skipping '!' comments and tracking line
// numbers for error reporting.
type lineReader struct {
	scanner *bufio.Scanner
	lineNo  int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(r)}
}

func (l *lineReader) next() (string, int, error) {
	for l.scanner.Scan() {
		l.lineNo++
		line := l.scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "!") {
			continue
		}
		return line, l.lineNo, nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", l.lineNo, err
	}
	return "", l.lineNo, io.ErrUnexpectedEOF
}

func firstField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
