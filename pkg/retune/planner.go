// Package retune plans channel assignments and pitch-bend messages that
// approximate a microtonal tuning on synthesizers with fixed 12-EDO note
// tables
package retune

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"

	"tunecraft/pkg/pitch"
)

// detuneEpsilon decides when two note deviations can share a channel.
// Pitch bend resolves one semitone into 8192 steps, so anything below half
// a step is the same wire value.
const detuneEpsilon = 0.5 / 8192

// PoolingMode describes what to do when a new note needs a channel but all
// channels hold conflicting detunings.
type PoolingMode int

const (
	// PoolBlock rejects the new note; it stays silent.
	PoolBlock PoolingMode = iota
	// PoolStop stops the oldest sounding note and takes its channel.
	PoolStop
	// PoolIgnore takes the oldest channel without stopping its note,
	// accepting that the old note receives an arbitrary tuning update.
	PoolIgnore
)

// SynthProfile describes the fixed-tuning limitations of a target
// synthesizer.
type SynthProfile struct {
	Channels       uint8   // number of output channels available
	FirstChannel   uint8   // first zero-based MIDI channel, wraps at 16
	PitchBendRange float64 // pitch-bend span in semitones, each direction
}

// DefaultProfile is a conventional General MIDI target: nine melodic
// channels starting at channel 0 with a whole-tone bend range.
func DefaultProfile() SynthProfile {
	return SynthProfile{Channels: 9, FirstChannel: 0, PitchBendRange: 2}
}

// MidiChannel maps a planner channel index to the real MIDI channel.
func (p SynthProfile) MidiChannel(plannerChannel int) uint8 {
	return (p.FirstChannel + uint8(plannerChannel)) % 16
}

// WarningKind tags a non-fatal planning condition.
type WarningKind int

const (
	// WarnChannelExhausted means more distinct detunings were needed than
	// channels were available.
	WarnChannelExhausted WarningKind = iota
	// WarnDeviationClamped means a note's deviation exceeded the
	// pitch-bend range and was clamped to it.
	WarnDeviationClamped
)

// Warning reports a recoverable planning condition alongside the
// best-effort result.
type Warning struct {
	Kind WarningKind
	Key  int
	Msg  string
}

func (w Warning) String() string {
	return w.Msg
}

// Plan is the message sequence and diagnostics produced for one note
// event. A rejected note has Channel -1 and no note-on message.
type Plan struct {
	Channel  int // planner channel, -1 when the note was rejected
	Messages []midi.Message
	Warnings []Warning
}

// Planner owns the channel-reuse state for one synthesizer target. It is
// the single mutable piece of the engine and must not be shared between
// goroutines; use one planner per target.
type Planner struct {
	profile SynthProfile
	mode    PoolingMode

	channels []channelState
	active   map[int]activeNote // key -> sounding note
	free     []int              // released channels, oldest first
	clock    uint64
}

type channelState struct {
	detune float64 // semitones currently applied via pitch bend
	users  int     // sounding notes sharing this channel
}

type activeNote struct {
	channel int
	note    uint8
	started uint64
}

// NewPlanner creates a planner for the given synthesizer profile. The
// profile must expose at least one channel.
func NewPlanner(profile SynthProfile, mode PoolingMode) (*Planner, error) {
	if profile.Channels == 0 || profile.Channels > 16 {
		return nil, fmt.Errorf("synth profile must expose between 1 and 16 channels, got %d", profile.Channels)
	}
	if profile.PitchBendRange <= 0 {
		return nil, fmt.Errorf("synth profile needs a positive pitch-bend range, got %v", profile.PitchBendRange)
	}
	p := &Planner{
		profile:  profile,
		mode:     mode,
		channels: make([]channelState, profile.Channels),
		active:   make(map[int]activeNote),
		free:     make([]int, 0, profile.Channels),
	}
	for i := 0; i < int(profile.Channels); i++ {
		p.free = append(p.free, i)
	}
	return p, nil
}

// NoteOn plans the messages that start a note at the target pitch: the
// nearest 12-EDO note plus a per-channel pitch bend covering the residual
// deviation. The key identifies the sounding note for later NoteOff calls.
func (p *Planner) NoteOn(key int, target pitch.Pitch, velocity uint8) (Plan, error) {
	if _, sounding := p.active[key]; sounding {
		return Plan{}, fmt.Errorf("key %d is already sounding", key)
	}
	semitones, err := target.MidiSemitones()
	if err != nil {
		return Plan{}, err
	}
	note := int(math.Round(semitones))
	if note < 0 {
		note = 0
	}
	if note > 127 {
		note = 127
	}
	detune := semitones - float64(note)

	plan := Plan{Channel: -1}
	if math.Abs(detune) > p.profile.PitchBendRange {
		clamped := math.Copysign(p.profile.PitchBendRange, detune)
		plan.Warnings = append(plan.Warnings, Warning{
			Kind: WarnDeviationClamped,
			Key:  key,
			Msg: fmt.Sprintf("key %d needs %+.4f semitones but the bend range is %.2f; clamped",
				key, detune, p.profile.PitchBendRange),
		})
		detune = clamped
	}

	channel, warnings, stolen := p.takeChannel(key, detune)
	plan.Warnings = append(plan.Warnings, warnings...)
	if channel < 0 {
		return plan, nil
	}
	plan.Channel = channel

	midiChannel := p.profile.MidiChannel(channel)
	if stolen != nil {
		plan.Messages = append(plan.Messages, midi.NoteOff(midiChannel, stolen.note))
	}
	if p.channels[channel].users == 0 || math.Abs(p.channels[channel].detune-detune) >= detuneEpsilon {
		plan.Messages = append(plan.Messages, midi.Pitchbend(midiChannel, p.bendValue(detune)))
		p.channels[channel].detune = detune
	}
	p.channels[channel].users++
	p.clock++
	p.active[key] = activeNote{channel: channel, note: uint8(note), started: p.clock}

	plan.Messages = append(plan.Messages, midi.NoteOn(midiChannel, uint8(note), velocity))
	return plan, nil
}

// NoteOff plans the messages that stop a sounding note and releases its
// channel for reuse. Stopping an unknown key is a no-op plan.
func (p *Planner) NoteOff(key int) (Plan, error) {
	sounding, ok := p.active[key]
	if !ok {
		return Plan{Channel: -1}, nil
	}
	delete(p.active, key)
	p.channels[sounding.channel].users--
	if p.channels[sounding.channel].users == 0 {
		p.free = append(p.free, sounding.channel)
	}
	return Plan{
		Channel:  sounding.channel,
		Messages: []midi.Message{midi.NoteOff(p.profile.MidiChannel(sounding.channel), sounding.note)},
	}, nil
}

// ActiveNotes returns the number of currently sounding notes.
func (p *Planner) ActiveNotes() int {
	return len(p.active)
}

// takeChannel finds a channel for the detuning: a channel already bent to
// the same value, then the oldest released free channel, and only then the
// pooling-mode fallback. The stolen note, if any, must be stopped first.
func (p *Planner) takeChannel(key int, detune float64) (int, []Warning, *activeNote) {
	for i := range p.channels {
		if p.channels[i].users > 0 && math.Abs(p.channels[i].detune-detune) < detuneEpsilon {
			return i, nil, nil
		}
	}

	if len(p.free) > 0 {
		channel := p.free[0]
		p.free = p.free[1:]
		return channel, nil, nil
	}

	warnings := []Warning{{
		Kind: WarnChannelExhausted,
		Key:  key,
		Msg:  fmt.Sprintf("all %d channels hold conflicting detunings", p.profile.Channels),
	}}

	switch p.mode {
	case PoolBlock:
		return -1, warnings, nil

	case PoolStop:
		oldestKey, oldest := p.oldestActive()
		if oldest == nil {
			return -1, warnings, nil
		}
		delete(p.active, oldestKey)
		p.channels[oldest.channel].users--
		// Remaining sharers of the channel keep sounding but follow the
		// new detuning; that is the accepted trade-off of channel reuse.
		return oldest.channel, warnings, oldest

	case PoolIgnore:
		_, oldest := p.oldestActive()
		if oldest == nil {
			return -1, warnings, nil
		}
		return oldest.channel, warnings, nil

	default:
		return -1, warnings, nil
	}
}

func (p *Planner) oldestActive() (int, *activeNote) {
	var (
		oldestKey int
		oldest    *activeNote
	)
	for key, note := range p.active {
		if oldest == nil || note.started < oldest.started {
			n := note
			oldestKey = key
			oldest = &n
		}
	}
	return oldestKey, oldest
}

// bendValue converts a detuning in semitones to the 14-bit relative
// pitch-bend value for the profile's bend range.
func (p *Planner) bendValue(detuneSemitones float64) int16 {
	value := math.Round(detuneSemitones / p.profile.PitchBendRange * 8192)
	if value > 8191 {
		value = 8191
	}
	if value < -8192 {
		value = -8192
	}
	return int16(value)
}
