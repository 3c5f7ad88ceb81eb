package retune

import (
	"fmt"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"

	"tunecraft/pkg/mts"
	"tunecraft/pkg/tuning"
)

// ChannelNote locates a key on the retuned synthesizer: the planner
// channel it plays on and the 12-EDO note it triggers there.
type ChannelNote struct {
	Channel int
	Note    uint8
}

// AheadOfTimePlan is a static key-to-channel assignment computed up front
// from a full tuning. Unlike the just-in-time planner it has no runtime
// state: all tuning messages are sent once, before playing.
type AheadOfTimePlan struct {
	// ChannelDetunings holds the detuning in semitones applied to each
	// used planner channel.
	ChannelDetunings []float64
	// Assignments maps each requested key to its channel and note.
	Assignments map[int]ChannelNote
	// Messages are the setup messages to send before playing.
	Messages []midi.Message
	// Warnings reports keys that could not be assigned.
	Warnings []Warning
}

// PlanAheadOfTime groups the keys of a tuning by their residual deviation
// from 12-EDO and dedicates one channel per distinct deviation, bending
// each channel once up front. When more distinct deviations exist than the
// profile has channels, the surplus keys stay unassigned and a
// channel-exhausted warning is reported for each; the plan still covers
// every key that fits.
func PlanAheadOfTime(t *tuning.Tuning, keys []int, profile SynthProfile) (*AheadOfTimePlan, error) {
	if profile.Channels == 0 || profile.Channels > 16 {
		return nil, fmt.Errorf("synth profile must expose between 1 and 16 channels, got %d", profile.Channels)
	}
	if profile.PitchBendRange <= 0 {
		return nil, fmt.Errorf("synth profile needs a positive pitch-bend range, got %v", profile.PitchBendRange)
	}

	type keyDetune struct {
		key    int
		note   uint8
		detune float64
	}
	detunes := make([]keyDetune, 0, len(keys))
	plan := &AheadOfTimePlan{Assignments: make(map[int]ChannelNote)}

	for _, key := range keys {
		freq, err := t.FrequencyOf(key)
		if err != nil {
			continue // unmapped keys are not part of the plan
		}
		semitones, err := freq.MidiSemitones()
		if err != nil {
			return nil, err
		}
		note := int(math.Round(semitones))
		if note < 0 || note > 127 {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind: WarnDeviationClamped,
				Key:  key,
				Msg:  fmt.Sprintf("key %d lands outside the MIDI note range", key),
			})
			continue
		}
		detune := semitones - float64(note)
		if math.Abs(detune) > profile.PitchBendRange {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind: WarnDeviationClamped,
				Key:  key,
				Msg: fmt.Sprintf("key %d needs %+.4f semitones but the bend range is %.2f; clamped",
					key, detune, profile.PitchBendRange),
			})
			detune = math.Copysign(profile.PitchBendRange, detune)
		}
		detunes = append(detunes, keyDetune{key: key, note: uint8(note), detune: detune})
	}

	// Group keys whose deviations agree within pitch-bend resolution;
	// smaller deviations first so the most conventional keys survive
	// channel exhaustion.
	sort.SliceStable(detunes, func(i, j int) bool {
		return math.Abs(detunes[i].detune) < math.Abs(detunes[j].detune)
	})

	for _, kd := range detunes {
		channel := -1
		for i, existing := range plan.ChannelDetunings {
			if math.Abs(existing-kd.detune) < detuneEpsilon {
				channel = i
				break
			}
		}
		if channel < 0 {
			if len(plan.ChannelDetunings) >= int(profile.Channels) {
				plan.Warnings = append(plan.Warnings, Warning{
					Kind: WarnChannelExhausted,
					Key:  kd.key,
					Msg: fmt.Sprintf("key %d needs a %d-th distinct detuning but only %d channels are available",
						kd.key, len(plan.ChannelDetunings)+1, profile.Channels),
				})
				continue
			}
			channel = len(plan.ChannelDetunings)
			plan.ChannelDetunings = append(plan.ChannelDetunings, kd.detune)
		}
		plan.Assignments[kd.key] = ChannelNote{Channel: channel, Note: kd.note}
	}

	for channel, detune := range plan.ChannelDetunings {
		value := math.Round(detune / profile.PitchBendRange * 8192)
		if value > 8191 {
			value = 8191
		}
		plan.Messages = append(plan.Messages, midi.Pitchbend(profile.MidiChannel(channel), int16(value)))
	}
	return plan, nil
}

// PlanFineTuning is PlanAheadOfTime with channel fine-tuning RPN messages
// instead of pitch bends, for synthesizers that honor the tuning standard
// but not per-channel bends.
func PlanFineTuning(t *tuning.Tuning, keys []int, profile SynthProfile) (*AheadOfTimePlan, error) {
	plan, err := PlanAheadOfTime(t, keys, profile)
	if err != nil {
		return nil, err
	}
	plan.Messages = plan.Messages[:0]
	for channel, detune := range plan.ChannelDetunings {
		msgs, err := mts.ChannelFineTuning(profile.MidiChannel(channel), detune)
		if err != nil {
			return nil, err
		}
		plan.Messages = append(plan.Messages, msgs...)
	}
	return plan, nil
}
