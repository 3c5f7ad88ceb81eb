package retune

import (
	"testing"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tuning"
)

func edoTuning(t *testing.T, divisions int) *tuning.Tuning {
	t.Helper()
	sc, err := scale.Edo(divisions)
	if err != nil {
		t.Fatal(err)
	}
	tun, err := tuning.New(sc, tuning.Linear(69, pitch.FromHz(440), 69))
	if err != nil {
		t.Fatal(err)
	}
	return tun
}

func keyRange(first, last int) []int {
	keys := make([]int, 0, last-first+1)
	for key := first; key <= last; key++ {
		keys = append(keys, key)
	}
	return keys
}

// A 12-EDO tuning deviates nowhere, so a single channel covers the whole
// keyboard with one centered bend.
func TestPlanAheadOfTimeTwelveEdo(t *testing.T) {
	plan, err := PlanAheadOfTime(edoTuning(t, 12), keyRange(0, 127), DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ChannelDetunings) != 1 {
		t.Fatalf("ChannelDetunings = %v, want one shared channel", plan.ChannelDetunings)
	}
	if len(plan.Assignments) != 128 {
		t.Errorf("assigned %d keys, want 128", len(plan.Assignments))
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", plan.Warnings)
	}
	if len(plan.Messages) != 1 {
		t.Errorf("setup messages = %d, want one pitch bend", len(plan.Messages))
	}
	if got := plan.Assignments[60]; got.Channel != 0 || got.Note != 60 {
		t.Errorf("Assignments[60] = %+v, want channel 0 note 60", got)
	}
}

// Third tones need three detunings: zero and a third of a semitone either
// way, one channel per group.
func TestPlanAheadOfTimeThirdTones(t *testing.T) {
	plan, err := PlanAheadOfTime(edoTuning(t, 36), keyRange(60, 71), DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ChannelDetunings) != 3 {
		t.Fatalf("ChannelDetunings = %v, want three groups", plan.ChannelDetunings)
	}
	if len(plan.Assignments) != 12 {
		t.Errorf("assigned %d keys, want 12", len(plan.Assignments))
	}

	// Deviations sort smallest first, so the conventional keys hold
	// channel 0.
	if d := plan.ChannelDetunings[0]; d < -1e-9 || d > 1e-9 {
		t.Errorf("ChannelDetunings[0] = %v, want the zero group first", d)
	}
	// Keys a whole number of semitones from the reference stay on channel
	// 0; the others land on one channel per deviation class.
	classChannel := map[int]int{}
	for key, assignment := range plan.Assignments {
		class := ((key-69)%3 + 3) % 3
		if class == 0 {
			if assignment.Channel != 0 {
				t.Errorf("key %d on channel %d, want 0", key, assignment.Channel)
			}
			continue
		}
		if seen, ok := classChannel[class]; ok && seen != assignment.Channel {
			t.Errorf("key %d on channel %d, class already on %d", key, assignment.Channel, seen)
		}
		classChannel[class] = assignment.Channel
		if assignment.Channel == 0 {
			t.Errorf("detuned key %d must not share channel 0", key)
		}
	}
}

// When the distinct detunings outnumber the channels, the keys closest to
// 12-EDO keep their assignment and the rest are reported.
func TestPlanAheadOfTimeExhaustion(t *testing.T) {
	profile := SynthProfile{Channels: 1, FirstChannel: 0, PitchBendRange: 2}
	plan, err := PlanAheadOfTime(edoTuning(t, 36), keyRange(60, 71), profile)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Assignments) != 4 {
		t.Errorf("assigned %d keys, want the 4 conventional ones", len(plan.Assignments))
	}
	if len(plan.Warnings) != 8 {
		t.Errorf("Warnings = %d, want 8 channel-exhausted reports", len(plan.Warnings))
	}
	for _, w := range plan.Warnings {
		if w.Kind != WarnChannelExhausted {
			t.Errorf("warning kind = %v, want WarnChannelExhausted", w.Kind)
		}
	}
	for key, assignment := range plan.Assignments {
		if (key-69)%3 != 0 {
			t.Errorf("detuned key %d should not be assigned", key)
		}
		if assignment.Channel != 0 {
			t.Errorf("key %d on channel %d, want 0", key, assignment.Channel)
		}
	}
}

func TestPlanAheadOfTimeSkipsUnmappedKeys(t *testing.T) {
	sc, err := scale.Edo(12)
	if err != nil {
		t.Fatal(err)
	}
	mapping := tuning.Linear(69, pitch.FromHz(440), 69)
	mapping.FirstKey = 60
	mapping.LastKey = 71
	tun, err := tuning.New(sc, mapping)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := PlanAheadOfTime(tun, keyRange(0, 127), DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Assignments) != 12 {
		t.Errorf("assigned %d keys, want only the 12 mapped ones", len(plan.Assignments))
	}
}

func TestPlanFineTuning(t *testing.T) {
	plan, err := PlanFineTuning(edoTuning(t, 36), keyRange(60, 71), DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ChannelDetunings) != 3 {
		t.Fatalf("ChannelDetunings = %v, want three groups", plan.ChannelDetunings)
	}
	// Four RPN control changes per used channel replace the pitch bends.
	if len(plan.Messages) != 12 {
		t.Errorf("setup messages = %d, want 12", len(plan.Messages))
	}
}

func TestPlanAheadOfTimeRejectsBadProfiles(t *testing.T) {
	tun := edoTuning(t, 12)
	if _, err := PlanAheadOfTime(tun, keyRange(0, 127), SynthProfile{Channels: 0, PitchBendRange: 2}); err == nil {
		t.Error("zero channels: want error")
	}
	if _, err := PlanAheadOfTime(tun, keyRange(0, 127), SynthProfile{Channels: 9}); err == nil {
		t.Error("zero bend range: want error")
	}
}
