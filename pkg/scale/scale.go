// Package scale models ordered, periodic sequences of pitches built from
// equal divisions, temperament generators, harmonic segments or explicit
// ratio lists
package scale

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tunecraft/pkg/pitch"
)

// ErrUnsortedScale reports a pitch list that is not strictly increasing
// within one period.
var ErrUnsortedScale = errors.New("scale pitches must be strictly increasing")

// Kind identifies the construction strategy of a scale. Callers dispatch on
// it only when they need strategy-specific metadata, e.g. the generator
// size for keyboard-layout search.
type Kind int

const (
	KindCustom Kind = iota
	KindEqualTemperament
	KindRank2Temperament
	KindHarmonics
)

// Scale is an ordered sequence of intervals above an implicit unison,
// repeating at a period. Degree 0 is always the unison; the last explicit
// degree equals the period. A Scale is immutable once built and safe for
// concurrent queries.
type Scale struct {
	name   string
	kind   Kind
	period pitch.Ratio

	// items[i] is the interval of degree i+1; items[len-1] is the period.
	items []pitch.Ratio

	stepSize  pitch.Ratio // equal temperament only
	generator pitch.Ratio // rank-2 only
}

// Name returns the scale description.
func (s *Scale) Name() string {
	return s.name
}

// Kind returns the construction strategy tag.
func (s *Scale) Kind() Kind {
	return s.kind
}

// Size returns the number of explicit degrees per period.
func (s *Scale) Size() int {
	return len(s.items)
}

// Period returns the repetition interval.
func (s *Scale) Period() pitch.Ratio {
	return s.period
}

// StepSize returns the step interval of an equal-temperament scale. It is
// the zero Ratio for other kinds.
func (s *Scale) StepSize() pitch.Ratio {
	return s.stepSize
}

// Generator returns the generating interval of a rank-2 temperament. It is
// the zero Ratio for other kinds.
func (s *Scale) Generator() pitch.Ratio {
	return s.generator
}

// Degree returns the interval above the unison at scale degree n. It is
// defined for all integers: degrees outside one period wrap, so that
// Degree(n+Size()) == Degree(n) stacked with the period.
func (s *Scale) Degree(n int) pitch.Ratio {
	size := len(s.items)
	periods := floorDiv(n, size)
	rem := n - periods*size
	result := s.period.Repeated(periods)
	if rem > 0 {
		result = result.Mul(s.items[rem-1])
	}
	return result
}

// Items returns the per-period intervals, degree 1 first. The caller must
// not modify the returned slice.
func (s *Scale) Items() []pitch.Ratio {
	return s.items
}

// Equal builds an equal-temperament scale from its step interval. The
// number of degrees per period is the closest whole number of steps to one
// octave, so "1:12:2" yields the familiar 12 degrees.
func Equal(stepSize pitch.Ratio) (*Scale, error) {
	stepCents := stepSize.Cents()
	if stepCents <= pitch.CentEpsilon {
		return nil, fmt.Errorf("%w: step size %s is not ascending", ErrUnsortedScale, stepSize)
	}
	size := int(math.Round(pitch.CentsPerOctave / stepCents))
	if size < 1 {
		size = 1
	}
	items := make([]pitch.Ratio, size)
	for i := 1; i <= size; i++ {
		items[i-1] = pitch.FromCents(stepCents * float64(i))
	}
	return &Scale{
		name:     fmt.Sprintf("equal steps of %s (%.3fc)", stepSize, stepCents),
		kind:     KindEqualTemperament,
		period:   items[size-1],
		items:    items,
		stepSize: stepSize,
	}, nil
}

// EqualDivision builds an equal division of the given period into the given
// number of steps. Unlike Equal, the scale repeats at the requested period
// and has exactly one degree per division, so 13 divisions of 3/1 yield 13
// degrees spanning the tritave.
func EqualDivision(divisions int, period pitch.Ratio) (*Scale, error) {
	if divisions < 1 {
		return nil, fmt.Errorf("%w: %d divisions", ErrUnsortedScale, divisions)
	}
	periodCents := period.Cents()
	if periodCents <= pitch.CentEpsilon {
		return nil, fmt.Errorf("%w: period %s is not ascending", ErrUnsortedScale, period)
	}
	items := make([]pitch.Ratio, divisions)
	for i := 1; i < divisions; i++ {
		items[i-1] = pitch.FromCents(periodCents * float64(i) / float64(divisions))
	}
	items[divisions-1] = period
	return &Scale{
		name:     fmt.Sprintf("%d equal divisions of %s", divisions, period),
		kind:     KindEqualTemperament,
		period:   period,
		items:    items,
		stepSize: period.Divided(divisions),
	}, nil
}

// Edo builds an equal division of the octave.
func Edo(divisions int) (*Scale, error) {
	return EqualDivision(divisions, pitch.Octave)
}

// Rank2 builds a rank-2 temperament scale from a finite generator and an
// infinite period generator. numPos and numNeg are the number of positive
// and negative generations; every generated interval is reduced into one
// period. Generations that collide within CentEpsilon are rejected as
// unsorted.
func Rank2(generator pitch.Ratio, numPos, numNeg uint16, period pitch.Ratio) (*Scale, error) {
	generated := make([]pitch.Ratio, 0, int(numPos)+int(numNeg))
	for i := -int(numNeg); i <= int(numPos); i++ {
		if i == 0 {
			continue // the unison is implicit
		}
		generated = append(generated, reduceIntoPeriod(generator.Repeated(i), period))
	}
	sort.Slice(generated, func(i, j int) bool {
		return generated[i].Cents() < generated[j].Cents()
	})

	b := NewBuilder(fmt.Sprintf("%d positive and %d negative generations of generator %s with period %s",
		numPos, numNeg, generator, period))
	for _, r := range generated {
		b.PushRatio(r)
	}
	b.PushRatio(period)
	sc, err := b.Build()
	if err != nil {
		return nil, err
	}
	sc.kind = KindRank2Temperament
	sc.generator = generator
	return sc, nil
}

// Harmonics builds a segment of the harmonic series starting at the given
// harmonic, or of the mirrored subharmonic series.
func Harmonics(lowestHarmonic, count uint32, subharmonics bool) (*Scale, error) {
	if lowestHarmonic == 0 {
		return nil, fmt.Errorf("%w: lowest harmonic must be positive", ErrUnsortedScale)
	}
	if count == 0 {
		count = lowestHarmonic
	}
	name := fmt.Sprintf("harmonics %d..%d", lowestHarmonic, lowestHarmonic+count)
	if subharmonics {
		name = fmt.Sprintf("subharmonics %d..%d", lowestHarmonic, lowestHarmonic+count)
	}
	b := NewBuilder(name)
	for i := uint32(1); i <= count; i++ {
		var err error
		if subharmonics {
			err = b.PushFraction(int64(2*lowestHarmonic), int64(2*lowestHarmonic-i))
		} else {
			err = b.PushFraction(int64(lowestHarmonic+i), int64(lowestHarmonic))
		}
		if err != nil {
			return nil, err
		}
	}
	sc, err := b.Build()
	if err != nil {
		return nil, err
	}
	sc.kind = KindHarmonics
	return sc, nil
}

// Builder assembles a custom scale from explicit pitch entries. Entries are
// intervals above the unison in ascending order; the final entry becomes
// the period.
type Builder struct {
	name  string
	items []pitch.Ratio
	err   error
}

// NewBuilder creates a scale builder with the given description.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// PushRatio appends an interval entry.
func (b *Builder) PushRatio(r pitch.Ratio) *Builder {
	b.items = append(b.items, r)
	return b
}

// PushCents appends a cents-valued entry.
func (b *Builder) PushCents(cents float64) *Builder {
	return b.PushRatio(pitch.FromCents(cents))
}

// PushFraction appends an exact rational entry.
func (b *Builder) PushFraction(num, den int64) error {
	r, err := pitch.NewRatio(num, den)
	if err != nil {
		return err
	}
	b.PushRatio(r)
	return nil
}

// Build validates the entries and produces an immutable scale. Entries must
// be strictly increasing and strictly above the unison, otherwise Build
// fails with ErrUnsortedScale naming the offending degree.
func (b *Builder) Build() (*Scale, error) {
	if len(b.items) == 0 {
		return nil, fmt.Errorf("%w: scale has no pitches", ErrUnsortedScale)
	}
	prev := pitch.Unison
	for i, item := range b.items {
		if item.Cmp(prev) <= 0 {
			return nil, fmt.Errorf("%w: degree %d (%s) does not ascend above %s",
				ErrUnsortedScale, i+1, item, prev)
		}
		prev = item
	}
	items := make([]pitch.Ratio, len(b.items))
	copy(items, b.items)
	return &Scale{
		name:   b.name,
		kind:   KindCustom,
		period: items[len(items)-1],
		items:  items,
	}, nil
}

// reduceIntoPeriod transposes r by whole periods until it lies within
// [unison, period).
func reduceIntoPeriod(r, period pitch.Ratio) pitch.Ratio {
	periods := int(math.Floor(r.Cents() / period.Cents()))
	return r.Div(period.Repeated(periods))
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
