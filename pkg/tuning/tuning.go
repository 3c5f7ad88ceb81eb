// Package tuning binds a scale to a keyboard, answering key-to-frequency
// and frequency-to-key queries
package tuning

import (
	"errors"
	"fmt"
	"math"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
)

// Unmapped is the sentinel for a key slot without a scale degree.
const Unmapped = -1

var (
	// ErrUnmappedKey reports a frequency query for a key outside the mapping.
	ErrUnmappedKey = errors.New("key is not mapped to a scale degree")
	// ErrEmptyMapping reports an inverse query against a mapping with no keys.
	ErrEmptyMapping = errors.New("keyboard mapping contains no mapped keys")
)

// KeyboardMapping associates integer key numbers with scale degrees and
// anchors one reference key to a reference frequency. The zero table means
// a linear one-key-per-degree mapping.
type KeyboardMapping struct {
	RefKey   int         // key that sounds exactly at RefPitch
	RefPitch pitch.Pitch // reference frequency
	RootKey  int         // key of scale degree 0

	FirstKey int // lowest key served, inclusive
	LastKey  int // highest key served, inclusive

	// Table holds one mapping cycle starting at RootKey: entry j is the
	// degree offset of key RootKey+j within the cycle, or Unmapped. A nil
	// table maps every key linearly to its distance from RootKey.
	Table []int

	// PeriodDegrees is the number of scale degrees one full table cycle
	// advances. Ignored for linear mappings.
	PeriodDegrees int
}

// Linear creates a full-range mapping where each key advances one scale
// degree, anchored at refKey/refPitch with degree 0 at rootKey.
func Linear(refKey int, refPitch pitch.Pitch, rootKey int) KeyboardMapping {
	return KeyboardMapping{
		RefKey:   refKey,
		RefPitch: refPitch,
		RootKey:  rootKey,
		FirstKey: 0,
		LastKey:  127,
	}
}

// Validate checks the mapping invariants: a sane key range, a mapped
// reference key, and injectivity (no two keys share a scale degree).
func (m KeyboardMapping) Validate() error {
	if m.FirstKey > m.LastKey {
		return fmt.Errorf("key range [%d, %d] is empty", m.FirstKey, m.LastKey)
	}
	if len(m.Table) > 0 {
		if m.PeriodDegrees <= 0 {
			return fmt.Errorf("mapping with %d entries needs a positive degree count per cycle, got %d",
				len(m.Table), m.PeriodDegrees)
		}
		seen := make(map[int]bool, len(m.Table))
		for j, entry := range m.Table {
			if entry == Unmapped {
				continue
			}
			if entry < 0 || entry >= m.PeriodDegrees {
				return fmt.Errorf("entry %d maps to degree %d outside cycle of %d degrees",
					j, entry, m.PeriodDegrees)
			}
			if seen[entry] {
				return fmt.Errorf("mapping is not injective: degree %d appears twice within one cycle", entry)
			}
			seen[entry] = true
		}
	}
	if _, ok := m.DegreeOf(m.RefKey); !ok {
		return fmt.Errorf("reference key %d is not mapped", m.RefKey)
	}
	return nil
}

// DegreeOf returns the scale degree of a key, or false when the key is
// outside the range or hits an unmapped table slot.
func (m KeyboardMapping) DegreeOf(key int) (int, bool) {
	if key < m.FirstKey || key > m.LastKey {
		return 0, false
	}
	offset := key - m.RootKey
	if len(m.Table) == 0 {
		return offset, true
	}
	size := len(m.Table)
	cycle := floorDiv(offset, size)
	entry := m.Table[offset-cycle*size]
	if entry == Unmapped {
		return 0, false
	}
	return cycle*m.PeriodDegrees + entry, true
}

// Tuning is the immutable composition of a scale, a keyboard mapping and
// the reference frequency carried by the mapping. Queries never mutate it,
// so a Tuning is safe for concurrent use.
type Tuning struct {
	scale   *scale.Scale
	mapping KeyboardMapping
	root    pitch.Pitch // pitch of scale degree 0
}

// New composes a scale and a keyboard mapping into a tuning. The mapping is
// validated once here; the reference key's degree anchors the absolute
// pitch of every other degree.
func New(sc *scale.Scale, mapping KeyboardMapping) (*Tuning, error) {
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid keyboard mapping: %w", err)
	}
	refDegree, _ := mapping.DegreeOf(mapping.RefKey)
	return &Tuning{
		scale:   sc,
		mapping: mapping,
		root:    mapping.RefPitch.Div(sc.Degree(refDegree)),
	}, nil
}

// Scale returns the underlying scale.
func (t *Tuning) Scale() *scale.Scale {
	return t.scale
}

// Mapping returns the keyboard mapping.
func (t *Tuning) Mapping() KeyboardMapping {
	return t.mapping
}

// FrequencyOf returns the frequency a key sounds at. It fails with
// ErrUnmappedKey when the key has no scale degree.
func (t *Tuning) FrequencyOf(key int) (pitch.Pitch, error) {
	degree, ok := t.mapping.DegreeOf(key)
	if !ok {
		return pitch.Pitch{}, fmt.Errorf("%w: key %d", ErrUnmappedKey, key)
	}
	return t.root.Mul(t.scale.Degree(degree)), nil
}

// NearestKeyResult is the outcome of an inverse frequency query.
type NearestKeyResult struct {
	Key       int
	Deviation float64 // cents, target pitch minus the key's pitch
}

// NearestKey finds the mapped key whose pitch is closest to the target and
// the signed residual in cents (positive when the target is sharp of the
// key). Ties between equally close keys go to the lower key number. It
// fails with ErrEmptyMapping when no key in the range is mapped.
func (t *Tuning) NearestKey(target pitch.Pitch) (NearestKeyResult, error) {
	best := NearestKeyResult{}
	found := false
	for key := t.mapping.FirstKey; key <= t.mapping.LastKey; key++ {
		degree, ok := t.mapping.DegreeOf(key)
		if !ok {
			continue
		}
		keyPitch := t.root.Mul(t.scale.Degree(degree))
		interval, err := pitch.RatioBetween(keyPitch, target)
		if err != nil {
			return NearestKeyResult{}, err
		}
		deviation := interval.Cents()
		if !found || math.Abs(deviation) < math.Abs(best.Deviation) {
			best = NearestKeyResult{Key: key, Deviation: deviation}
			found = true
		}
	}
	if !found {
		return NearestKeyResult{}, ErrEmptyMapping
	}
	return best, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
