package pitch

import (
	"fmt"
	"math"
)

// Approximation is a low-denominator fraction close to a target ratio,
// together with its signed deviation from the target.
type Approximation struct {
	Num       uint64
	Den       uint64
	Deviation float64 // cents, approximation minus target
	Steps     int     // continued-fraction convergents examined
}

// Ratio returns the approximation as an exact rational ratio.
func (a Approximation) Ratio() Ratio {
	r, _ := NewRatio(int64(a.Num), int64(a.Den))
	return r
}

func (a Approximation) String() string {
	return fmt.Sprintf("%d/%d %+.3fc", a.Num, a.Den, a.Deviation)
}

// NearestFraction finds the best rational approximation to a positive
// target value using continued-fraction convergents. The search stops as
// soon as a convergent's deviation falls within tolCents, or when the next
// convergent's denominator would exceed maxDen. Among candidates within
// tolerance the smallest denominator wins; equal denominators are decided
// by smaller absolute deviation. A non-positive target fails with
// ErrInvalidRatio.
func NearestFraction(target float64, maxDen uint64, tolCents float64) (Approximation, error) {
	if target <= 0 || math.IsInf(target, 0) || math.IsNaN(target) {
		return Approximation{}, fmt.Errorf("%w: %v", ErrInvalidRatio, target)
	}
	if maxDen == 0 {
		maxDen = 1
	}
	if target == 1 {
		return Approximation{Num: 1, Den: 1}, nil
	}

	// Seed with the nearest integer so a denominator bound of 1 already
	// yields the nearest whole-number ratio rather than the floor.
	seed := uint64(math.Round(target))
	if seed == 0 {
		seed = 1
	}
	best := candidate(seed, 1, target)

	// Convergents p_k/q_k of the continued-fraction expansion. Denominators
	// strictly increase, so the first in-tolerance convergent has the
	// smallest denominator of all in-tolerance ones.
	var (
		pPrev, p uint64 = 0, 1
		qPrev, q uint64 = 1, 0
		frac            = target
	)
	for steps := 1; ; steps++ {
		a := uint64(math.Floor(frac))
		pNext := a*p + pPrev
		qNext := a*q + qPrev
		if qNext > maxDen {
			break
		}
		pPrev, p = p, pNext
		qPrev, q = q, qNext

		// The leading convergent of a target below one is 0/1; it is not a
		// valid ratio, so the recurrence advances past it without ranking it.
		if p > 0 && q > 0 {
			c := candidate(p, q, target)
			c.Steps = steps
			if better(c, best) {
				best = c
			}
			if math.Abs(best.Deviation) <= tolCents {
				break
			}
		}

		rem := frac - math.Floor(frac)
		if rem == 0 {
			break
		}
		frac = 1 / rem
	}

	return best, nil
}

// NearestFractionOfRatio is NearestFraction applied to a Ratio target.
func NearestFractionOfRatio(target Ratio, maxDen uint64, tolCents float64) (Approximation, error) {
	return NearestFraction(target.Float(), maxDen, tolCents)
}

// EqualStepApproximation expresses an interval as a whole number of steps
// of an equal division of the octave.
type EqualStepApproximation struct {
	NumSteps  int
	Divisions int
	Deviation float64 // cents, approximation minus target
}

func (a EqualStepApproximation) String() string {
	return fmt.Sprintf("%d steps of %d-EDO %+.3fc", a.NumSteps, a.Divisions, a.Deviation)
}

// NearestEqualStep finds the equal division of the octave whose steps best
// approximate the target interval, with at most maxDivisions divisions.
// The underlying search approximates the target's octave fraction with a
// low-denominator fraction p/q, reading p as step count and q as division
// count.
func NearestEqualStep(target Ratio, maxDivisions uint64, tolCents float64) (EqualStepApproximation, error) {
	octaves := target.Octaves()
	if octaves == 0 {
		return EqualStepApproximation{NumSteps: 0, Divisions: 1}, nil
	}
	neg := octaves < 0
	if neg {
		octaves = -octaves
	}
	approx, err := NearestFraction(octaves, maxDivisions, tolCents)
	if err != nil {
		return EqualStepApproximation{}, err
	}
	steps := int(approx.Num)
	if neg {
		steps = -steps
	}
	stepCents := CentsPerOctave / float64(approx.Den)
	got := float64(steps) * stepCents
	return EqualStepApproximation{
		NumSteps:  steps,
		Divisions: int(approx.Den),
		Deviation: got - target.Cents(),
	}, nil
}

func candidate(num, den uint64, target float64) Approximation {
	value := float64(num) / float64(den)
	return Approximation{
		Num:       num,
		Den:       den,
		Deviation: CentsPerOctave * math.Log2(value/target),
	}
}

// better prefers the smaller denominator among candidates inside tolerance;
// here it simply prefers smaller absolute deviation, with the denominator
// tie-break, because the caller stops at the first in-tolerance convergent.
func better(a, b Approximation) bool {
	da, db := math.Abs(a.Deviation), math.Abs(b.Deviation)
	if da != db {
		return da < db
	}
	return a.Den < b.Den
}
