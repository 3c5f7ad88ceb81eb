package scala

import (
	"errors"
	"math"
	"strings"
	"testing"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tuning"
)

func TestFormatScl(t *testing.T) {
	b := scale.NewBuilder("Mixed just and tempered")
	if err := b.PushFraction(5, 4); err != nil {
		t.Fatal(err)
	}
	b.PushCents(700)
	if err := b.PushFraction(2, 1); err != nil {
		t.Fatal(err)
	}
	sc, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	want := "Mixed just and tempered\n" +
		"3\n" +
		"5/4\n" +
		"700.0000\n" +
		"2/1\n"
	if got := FormatScl(sc, DefaultOptions()); got != want {
		t.Errorf("FormatScl =\n%q\nwant\n%q", got, want)
	}

	// Precision is explicit configuration, not global state.
	want = "Mixed just and tempered\n" +
		"3\n" +
		"5/4\n" +
		"700.0\n" +
		"2/1\n"
	if got := FormatScl(sc, Options{CentsPrecision: 1}); got != want {
		t.Errorf("FormatScl precision 1 =\n%q\nwant\n%q", got, want)
	}
}

func TestParseScl(t *testing.T) {
	input := `! meantone.scl
!
Quarter-comma meantone
12
!
 76.0490
 193.1569
 310.2644
 5/4
 503.4216
 579.4706
 696.5784
 25/16
 889.7353
 1006.8431
 1082.8922
 2/1
`
	sc, err := ParseScl(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name() != "Quarter-comma meantone" {
		t.Errorf("Name() = %q", sc.Name())
	}
	if sc.Size() != 12 {
		t.Fatalf("Size() = %d, want 12", sc.Size())
	}
	if got := sc.Degree(1); got.IsRational() || math.Abs(got.Cents()-76.049) > 1e-9 {
		t.Errorf("Degree(1) = %v, want 76.0490c", got)
	}
	if got := sc.Degree(4); !got.IsRational() || got.Num() != 5 || got.Den() != 4 {
		t.Errorf("Degree(4) = %v, want 5/4", got)
	}
	if !sc.Period().Equal(pitch.Octave) {
		t.Errorf("Period() = %v, want 2/1", sc.Period())
	}
}

// Re-serializing a parsed file at the default four decimal places restores
// every pitch line byte for byte, cents and fractions alike.
func TestSclMeantoneReserializesIdentically(t *testing.T) {
	input := "Quarter-comma meantone\n" +
		"12\n" +
		"76.0490\n" +
		"193.1569\n" +
		"310.2644\n" +
		"5/4\n" +
		"503.4216\n" +
		"579.4706\n" +
		"696.5784\n" +
		"25/16\n" +
		"889.7353\n" +
		"1006.8431\n" +
		"1082.8922\n" +
		"2/1\n"
	sc, err := ParseScl(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatScl(sc, DefaultOptions()); got != input {
		t.Errorf("FormatScl =\n%q\nwant\n%q", got, input)
	}
}

// Rational entries survive a write/read cycle exactly; cents entries survive
// to the written precision.
func TestSclRoundTrip(t *testing.T) {
	sc, err := scale.Harmonics(8, 8, false)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseScl(strings.NewReader(FormatScl(sc, DefaultOptions())))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Size() != sc.Size() {
		t.Fatalf("Size() = %d, want %d", parsed.Size(), sc.Size())
	}
	for i := 1; i <= sc.Size(); i++ {
		orig, got := sc.Degree(i), parsed.Degree(i)
		if got.Num() != orig.Num() || got.Den() != orig.Den() {
			t.Errorf("Degree(%d) = %v, want %v", i, got, orig)
		}
	}

	tempered, err := scale.Edo(19)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err = ParseScl(strings.NewReader(FormatScl(tempered, DefaultOptions())))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= tempered.Size(); i++ {
		diff := math.Abs(parsed.Degree(i).Cents() - tempered.Degree(i).Cents())
		if diff > 5e-5 {
			t.Errorf("Degree(%d) differs by %vc after round trip", i, diff)
		}
	}
}

func TestParseSclBareIntegerIsRatio(t *testing.T) {
	input := "Harmonic pair\n2\n3/2\n2\n"
	sc, err := ParseScl(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got := sc.Degree(2); got.Num() != 2 || got.Den() != 1 {
		t.Errorf("bare integer entry = %v, want 2/1", got)
	}
}

func TestParseSclMalformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"empty input", "", 0},
		{"missing count", "only a description\n", 1},
		{"invalid count", "desc\ntwelve\n", 2},
		{"negative count", "desc\n-3\n", 2},
		{"truncated pitch list", "desc\n3\n100.0\n200.0\n", 4},
		{"invalid pitch", "desc\n2\n100.0\nnonsense\n", 4},
		{"zero denominator", "desc\n1\n3/0\n", 3},
		{"descending pitches", "desc\n3\n200.0\n100.0\n1200.0\n", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScl(strings.NewReader(tt.input))
			var malformed *MalformedFileError
			if !errors.As(err, &malformed) {
				t.Fatalf("error = %v, want *MalformedFileError", err)
			}
			if malformed.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d (error: %v)", malformed.Line, tt.wantLine, err)
			}
		})
	}

	_, err := ParseScl(strings.NewReader("desc\n3\n200.0\n100.0\n1200.0\n"))
	if !errors.Is(err, scale.ErrUnsortedScale) {
		t.Errorf("descending pitches error = %v, want to wrap ErrUnsortedScale", err)
	}
}

func TestFormatKbm(t *testing.T) {
	m := tuning.KeyboardMapping{
		RefKey:        69,
		RefPitch:      pitch.FromHz(440),
		RootKey:       60,
		FirstKey:      0,
		LastKey:       127,
		Table:         []int{0, tuning.Unmapped, 1, 2},
		PeriodDegrees: 3,
	}
	got := FormatKbm(m, DefaultOptions())
	want := `! Size of map:
4
! First MIDI note number to retune:
0
! Last MIDI note number to retune:
127
! Middle note where the first entry is mapped to:
60
! Reference note for which frequency is given:
69
! Frequency to tune the above note to (Hz):
440.0000
! Scale degree to consider as formal octave:
3
! Mapping:
0
x
1
2
`
	if got != want {
		t.Errorf("FormatKbm =\n%q\nwant\n%q", got, want)
	}
}

func TestKbmRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		mapping tuning.KeyboardMapping
	}{
		{"linear", tuning.Linear(69, pitch.FromHz(440), 62)},
		{"white keys", tuning.KeyboardMapping{
			RefKey:   60,
			RefPitch: pitch.FromHz(261.625),
			RootKey:  60,
			FirstKey: 12,
			LastKey:  115,
			Table: []int{0, tuning.Unmapped, 1, tuning.Unmapped, 2, 3,
				tuning.Unmapped, 4, tuning.Unmapped, 5, tuning.Unmapped, 6},
			PeriodDegrees: 7,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseKbm(strings.NewReader(FormatKbm(tt.mapping, DefaultOptions())))
			if err != nil {
				t.Fatal(err)
			}
			if parsed.RefKey != tt.mapping.RefKey ||
				parsed.RootKey != tt.mapping.RootKey ||
				parsed.FirstKey != tt.mapping.FirstKey ||
				parsed.LastKey != tt.mapping.LastKey ||
				parsed.PeriodDegrees != tt.mapping.PeriodDegrees {
				t.Errorf("round trip changed header fields: %+v", parsed)
			}
			if math.Abs(parsed.RefPitch.Hz()-tt.mapping.RefPitch.Hz()) > 1e-4 {
				t.Errorf("RefPitch = %v, want %v", parsed.RefPitch, tt.mapping.RefPitch)
			}
			if len(parsed.Table) != len(tt.mapping.Table) {
				t.Fatalf("table size = %d, want %d", len(parsed.Table), len(tt.mapping.Table))
			}
			for i, entry := range tt.mapping.Table {
				if parsed.Table[i] != entry {
					t.Errorf("Table[%d] = %d, want %d", i, parsed.Table[i], entry)
				}
			}
		})
	}
}

func TestParseKbmMalformed(t *testing.T) {
	valid := "2\n0\n127\n60\n60\n440.0\n2\n0\n1\n"
	if _, err := ParseKbm(strings.NewReader(valid)); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"negative size", "-1\n0\n127\n60\n60\n440.0\n2\n"},
		{"bad frequency", "0\n0\n127\n60\n60\nloud\n2\n"},
		{"zero frequency", "0\n0\n127\n60\n60\n0.0\n2\n"},
		{"truncated entries", "2\n0\n127\n60\n60\n440.0\n2\n0\n"},
		{"bad entry", "2\n0\n127\n60\n60\n440.0\n2\n0\nq\n"},
		{"not injective", "2\n0\n127\n60\n60\n440.0\n2\n0\n0\n"},
		{"reference unmapped", "2\n0\n127\n60\n61\n440.0\n2\n0\nx\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKbm(strings.NewReader(tt.input))
			var malformed *MalformedFileError
			if !errors.As(err, &malformed) {
				t.Fatalf("error = %v, want *MalformedFileError", err)
			}
		})
	}
}
