package tuning

import (
	"fmt"
	"math"
	"sort"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
)

// Layout is a generator-based keyboard layout: a scale assembled from
// generator stacks together with the key table placing each degree, and
// the number of generator steps that reached each key slot.
type Layout struct {
	Scale *scale.Scale

	// Table has one entry per key slot in a period, in ascending key
	// order: the scale degree offset for that slot, or Unmapped.
	Table []int

	// Steps mirrors Table with the signed generator step count that won
	// each slot. Unmapped slots hold zero.
	Steps []int
}

// GeneratorLayout searches for the conventional keyboard layout of a
// rank-2 temperament: every key slot within a period is assigned the scale
// degree reachable with the fewest generator steps. Candidates are tried
// in order of ascending absolute step count, positive direction first, so
// for meantone the twelve slots fill with the familiar -5..+6 circle of
// fifths. Slots no candidate reaches stay unmapped.
func GeneratorLayout(generator pitch.Ratio, numPos, numNeg uint16, period pitch.Ratio, keysPerPeriod int) (*Layout, error) {
	if keysPerPeriod < 1 {
		return nil, fmt.Errorf("layout needs at least one key per period, got %d", keysPerPeriod)
	}
	periodCents := period.Cents()
	if periodCents <= pitch.CentEpsilon {
		return nil, fmt.Errorf("%w: period %s is not ascending", pitch.ErrInvalidRatio, period)
	}

	type winner struct {
		interval pitch.Ratio
		steps    int
		taken    bool
	}
	slots := make([]winner, keysPerPeriod)

	for _, steps := range stepOrder(int(numPos), int(numNeg)) {
		interval := reduceIntoPeriod(generator.Repeated(steps), period)
		slot := int(math.Round(interval.Cents()/periodCents*float64(keysPerPeriod))) % keysPerPeriod
		if slots[slot].taken {
			continue
		}
		slots[slot] = winner{interval: interval, steps: steps, taken: true}
	}

	// Degrees are the taken intervals in ascending pitch order; the key
	// table translates slot position to degree rank.
	taken := make([]int, 0, keysPerPeriod)
	for slot, w := range slots {
		if w.taken {
			taken = append(taken, slot)
		}
	}
	if len(taken) == 0 {
		return nil, fmt.Errorf("%w: no generator stack reaches any key", ErrEmptyMapping)
	}
	sort.Slice(taken, func(i, j int) bool {
		return slots[taken[i]].interval.Cents() < slots[taken[j]].interval.Cents()
	})

	// Rank 0 is the unison slot and stays the implicit degree 0; the
	// remaining ranks become explicit scale degrees, with the period
	// appended so the scale wraps after one full key cycle.
	builder := scale.NewBuilder(fmt.Sprintf("generator %s layout with %d keys per period %s",
		generator, keysPerPeriod, period))
	table := make([]int, keysPerPeriod)
	stepTable := make([]int, keysPerPeriod)
	for i := range table {
		table[i] = Unmapped
	}
	for rank, slot := range taken {
		table[slot] = rank
		stepTable[slot] = slots[slot].steps
		if rank > 0 {
			builder.PushRatio(slots[slot].interval)
		}
	}
	builder.PushRatio(period)
	sc, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &Layout{Scale: sc, Table: table, Steps: stepTable}, nil
}

// Mapping converts the layout into a keyboard mapping anchored at the
// given reference.
func (l *Layout) Mapping(refKey int, refPitch pitch.Pitch, rootKey, firstKey, lastKey int) KeyboardMapping {
	return KeyboardMapping{
		RefKey:        refKey,
		RefPitch:      refPitch,
		RootKey:       rootKey,
		FirstKey:      firstKey,
		LastKey:       lastKey,
		Table:         l.Table,
		PeriodDegrees: l.Scale.Size(),
	}
}

// stepOrder yields generator step counts ordered by absolute value,
// positive before negative, bounded by the generation counts.
func stepOrder(numPos, numNeg int) []int {
	order := make([]int, 0, numPos+numNeg+1)
	order = append(order, 0)
	limit := numPos
	if numNeg > limit {
		limit = numNeg
	}
	for i := 1; i <= limit; i++ {
		if i <= numPos {
			order = append(order, i)
		}
		if i <= numNeg {
			order = append(order, -i)
		}
	}
	return order
}

// reduceIntoPeriod transposes r by whole periods until it lies within
// [unison, period).
func reduceIntoPeriod(r, period pitch.Ratio) pitch.Ratio {
	periods := int(math.Floor(r.Cents() / period.Cents()))
	return r.Div(period.Repeated(periods))
}
