// Package pitch provides frequency-ratio and pitch arithmetic for
// microtonal tunings
package pitch

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// CentEpsilon is the tolerance used when comparing ratios by their cents
// value. Irrational scale steps (e.g. equal-division steps) and their
// rational approximations accumulate float rounding in the last few bits;
// 1e-6 cents is far below anything musically distinguishable but well above
// double-precision noise after repeated composition, so round trips through
// the Scala codec compare equal while distinct scale steps never merge.
const CentEpsilon = 1e-6

// CentsPerOctave is the size of one octave in cents.
const CentsPerOctave = 1200.0

// ErrInvalidRatio reports a non-positive or malformed frequency ratio.
var ErrInvalidRatio = errors.New("ratio must be positive")

// Ratio is a positive frequency multiplier. It always carries its
// logarithmic value (cents) and, when constructed from an integer pair,
// the exact reduced fraction as well. A Ratio is immutable.
type Ratio struct {
	cents float64
	num   uint64 // both zero when the ratio is not known to be rational
	den   uint64
}

// Unison is the 1/1 ratio.
var Unison = Ratio{cents: 0, num: 1, den: 1}

// Octave is the 2/1 ratio.
var Octave = Ratio{cents: CentsPerOctave, num: 2, den: 1}

// NewRatio creates an exact rational ratio from an integer pair, reduced to
// lowest terms. It fails with ErrInvalidRatio if the denominator is zero or
// the resulting ratio is not positive.
func NewRatio(num, den int64) (Ratio, error) {
	if den == 0 {
		return Ratio{}, fmt.Errorf("%w: %d/%d", ErrInvalidRatio, num, den)
	}
	if num <= 0 || den < 0 || (num > 0) != (den > 0) {
		return Ratio{}, fmt.Errorf("%w: %d/%d", ErrInvalidRatio, num, den)
	}
	n, d := uint64(num), uint64(den)
	g := gcd(n, d)
	n, d = n/g, d/g
	return Ratio{
		cents: CentsPerOctave * math.Log2(float64(n)/float64(d)),
		num:   n,
		den:   d,
	}, nil
}

// FromCents creates a ratio from a logarithmic cents value.
func FromCents(cents float64) Ratio {
	return Ratio{cents: cents}
}

// FromOctaves creates a ratio from a number of octaves.
func FromOctaves(octaves float64) Ratio {
	return Ratio{cents: octaves * CentsPerOctave}
}

// FromSemitones creates a ratio from a number of 12-EDO semitones.
func FromSemitones(semitones float64) Ratio {
	return Ratio{cents: semitones * 100.0}
}

// FromFloat creates a ratio from a float multiplier. It fails with
// ErrInvalidRatio if the value is not positive or not finite.
func FromFloat(value float64) (Ratio, error) {
	if value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return Ratio{}, fmt.Errorf("%w: %v", ErrInvalidRatio, value)
	}
	return Ratio{cents: CentsPerOctave * math.Log2(value)}, nil
}

// Cents returns the logarithmic value in cents.
func (r Ratio) Cents() float64 {
	return r.cents
}

// Octaves returns the logarithmic value in octaves.
func (r Ratio) Octaves() float64 {
	return r.cents / CentsPerOctave
}

// Semitones returns the logarithmic value in 12-EDO semitones.
func (r Ratio) Semitones() float64 {
	return r.cents / 100.0
}

// Float returns the ratio as a plain float multiplier.
func (r Ratio) Float() float64 {
	if r.IsRational() {
		return float64(r.num) / float64(r.den)
	}
	return math.Exp2(r.cents / CentsPerOctave)
}

// IsRational reports whether the ratio carries an exact fraction.
func (r Ratio) IsRational() bool {
	return r.den != 0
}

// Num returns the reduced numerator. Only meaningful when IsRational.
func (r Ratio) Num() uint64 {
	return r.num
}

// Den returns the reduced denominator. Only meaningful when IsRational.
func (r Ratio) Den() uint64 {
	return r.den
}

// Mul multiplies two ratios, corresponding to stacking the two intervals.
// Exactness is preserved when both operands are rational and the composed
// fraction still fits in 64 bits; past that the result degrades to the
// cents-only representation instead of wrapping.
func (r Ratio) Mul(other Ratio) Ratio {
	if r.IsRational() && other.IsRational() {
		if f, ok := mulRational(r.num, r.den, other.num, other.den); ok {
			return f
		}
	}
	return Ratio{cents: r.cents + other.cents}
}

// Div divides one ratio by another, corresponding to the interval between
// them.
func (r Ratio) Div(other Ratio) Ratio {
	if r.IsRational() && other.IsRational() {
		if f, ok := mulRational(r.num, r.den, other.den, other.num); ok {
			return f
		}
	}
	return Ratio{cents: r.cents - other.cents}
}

// Inverse returns the reciprocal ratio (the same interval downward).
func (r Ratio) Inverse() Ratio {
	if r.IsRational() {
		return Ratio{cents: -r.cents, num: r.den, den: r.num}
	}
	return Ratio{cents: -r.cents}
}

// Repeated stacks the ratio n times. Negative n stacks the inverse.
func (r Ratio) Repeated(n int) Ratio {
	result := Unison
	step := r
	if n < 0 {
		step = r.Inverse()
		n = -n
	}
	for i := 0; i < n; i++ {
		result = result.Mul(step)
	}
	return result
}

// Divided splits the ratio into n equal logarithmic parts and returns one
// part. The result is irrational in general.
func (r Ratio) Divided(n int) Ratio {
	return Ratio{cents: r.cents / float64(n)}
}

// Cmp compares two ratios by their cents value. Values within CentEpsilon
// compare equal so that rational and irrational renderings of the same
// interval order consistently.
func (r Ratio) Cmp(other Ratio) int {
	diff := r.cents - other.cents
	switch {
	case diff < -CentEpsilon:
		return -1
	case diff > CentEpsilon:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two ratios are within CentEpsilon of each other.
func (r Ratio) Equal(other Ratio) bool {
	return r.Cmp(other) == 0
}

// String renders the ratio as "n/d" when exact, otherwise as a cents value.
func (r Ratio) String() string {
	if r.IsRational() {
		return fmt.Sprintf("%d/%d", r.num, r.den)
	}
	return fmt.Sprintf("%.3fc", r.cents)
}

// ParseRatio parses the textual interval notations understood by the CLI
// and the Scala codec:
//
//	"3/2"     - exact fraction
//	"7"       - exact integer, treated as 7/1
//	"700.0c"  - cents value (the trailing 'c' is mandatory)
//	"1:12:2"  - equal-step expression: 1 step of 12 equal divisions of 2
//	"1.5"     - plain float multiplier
func ParseRatio(s string) (Ratio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ratio{}, fmt.Errorf("%w: empty expression", ErrInvalidRatio)
	}

	if strings.Contains(s, ":") {
		return parseEqualStep(s)
	}

	if strings.HasSuffix(s, "c") {
		cents, err := strconv.ParseFloat(strings.TrimSuffix(s, "c"), 64)
		if err != nil {
			return Ratio{}, fmt.Errorf("%w: invalid cents value %q", ErrInvalidRatio, s)
		}
		return FromCents(cents), nil
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return Ratio{}, fmt.Errorf("%w: invalid numerator %q", ErrInvalidRatio, num)
		}
		d, err := strconv.ParseInt(den, 10, 64)
		if err != nil {
			return Ratio{}, fmt.Errorf("%w: invalid denominator %q", ErrInvalidRatio, den)
		}
		return NewRatio(n, d)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NewRatio(n, 1)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Ratio{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidRatio, s)
	}
	return FromFloat(value)
}

// parseEqualStep parses "steps:divisions:period", e.g. "1:12:2" for one
// 12-EDO semitone.
func parseEqualStep(s string) (Ratio, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Ratio{}, fmt.Errorf("%w: equal-step expression needs steps:divisions:period, got %q", ErrInvalidRatio, s)
	}
	steps, err := strconv.Atoi(parts[0])
	if err != nil {
		return Ratio{}, fmt.Errorf("%w: invalid step count %q", ErrInvalidRatio, parts[0])
	}
	divisions, err := strconv.Atoi(parts[1])
	if err != nil || divisions == 0 {
		return Ratio{}, fmt.Errorf("%w: invalid division count %q", ErrInvalidRatio, parts[1])
	}
	period, err := ParseRatio(parts[2])
	if err != nil {
		return Ratio{}, err
	}
	return FromCents(period.Cents() * float64(steps) / float64(divisions)), nil
}

// mulRational composes two reduced fractions, cross-reducing before the
// multiplication so the products stay as small as possible. It reports
// failure when either product overflows uint64.
func mulRational(an, ad, bn, bd uint64) (Ratio, bool) {
	g := gcd(an, bd)
	an, bd = an/g, bd/g
	g = gcd(bn, ad)
	bn, ad = bn/g, ad/g
	numHi, num := bits.Mul64(an, bn)
	denHi, den := bits.Mul64(ad, bd)
	if numHi != 0 || denHi != 0 {
		return Ratio{}, false
	}
	return Ratio{
		cents: CentsPerOctave * math.Log2(float64(num)/float64(den)),
		num:   num,
		den:   den,
	}, true
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
