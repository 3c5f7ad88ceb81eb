// Package main is the entry point for the tunecraft CLI
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tunecraft/pkg/api"
	"tunecraft/pkg/export"
	"tunecraft/pkg/mts"
	"tunecraft/pkg/pitch"
	"tunecraft/pkg/retune"
	"tunecraft/pkg/scala"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tui"
	"tunecraft/pkg/tuning"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile     string
	smfFile        string
	refArg         string
	rootNote       int
	fractionLimit  uint64
	deviceID       uint8
	tuningProgram  uint8
	serverPort     int
	planChannels   uint8
	planBendRange  float64
	centsPrecision int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tunecraft",
	Short: "Build microtonal scales and export them as Scala files or MIDI Tuning Standard sysex",
	Long: `tunecraft models musical pitch without the 12-tone assumption: it builds
scales from equal divisions, temperament generators, harmonic segments or
explicit ratio lists and converts them to the tuning mechanisms real
synthesizers understand.

Examples:
  tunecraft scl equal 1:31:2 -o 31edo.scl
  tunecraft scl rank2 3/2 6 1
  tunecraft kbm --ref 69@440 -o standard.kbm
  tunecraft dump equal 1:12:2 --ref 69@440
  tunecraft mts equal 1:22:2 --ref 69@440
  tunecraft plan equal 1:19:2 --ref 69@440 --channels 9
  tunecraft tui
  tunecraft serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var sclCmd = &cobra.Command{
	Use:   "scl",
	Short: "Write a scale as a Scala .scl file",
}

var kbmCmd = &cobra.Command{
	Use:   "kbm",
	Short: "Write a keyboard mapping as a Scala .kbm file",
	RunE:  runKbm,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the pitch table of a scale",
}

var mtsCmd = &cobra.Command{
	Use:   "mts",
	Short: "Print the Single Note Tuning Change sysex for a scale",
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute a channel/pitch-bend retuning plan for a scale",
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive scale explorer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Starting API server on port %d...\n", serverPort)
		return api.StartServer(serverPort)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&refArg, "ref", "69@440", "Reference note and frequency, e.g. 69@440")
	rootCmd.PersistentFlags().IntVar(&rootNote, "root", -1, "Root note of the scale if different from the reference note")

	sclCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output .scl file path (default stdout)")
	sclCmd.PersistentFlags().IntVar(&centsPrecision, "precision", 4, "Decimal places for cents values")
	addScaleCommands(sclCmd, runScl)

	kbmCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .kbm file path (default stdout)")
	kbmCmd.Flags().IntVar(&centsPrecision, "precision", 4, "Decimal places for the reference frequency")

	dumpCmd.PersistentFlags().Uint64VarP(&fractionLimit, "limit", "l", 11, "Largest acceptable denominator for the nearest-fraction column")
	addScaleCommands(dumpCmd, runDump)

	mtsCmd.PersistentFlags().Uint8Var(&deviceID, "device-id", mts.BroadcastDeviceID, "Sysex device ID")
	mtsCmd.PersistentFlags().Uint8Var(&tuningProgram, "tun-pg", 0, "Tuning program the message targets")
	mtsCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output .syx file path (default hex dump to stdout)")
	mtsCmd.PersistentFlags().StringVar(&smfFile, "smf", "", "Also write the message as a Standard MIDI File")
	addScaleCommands(mtsCmd, runMts)

	planCmd.PersistentFlags().Uint8Var(&planChannels, "channels", 9, "Number of output channels available")
	planCmd.PersistentFlags().Float64Var(&planBendRange, "bend-range", 2, "Pitch-bend range of the target in semitones")
	planCmd.PersistentFlags().StringVar(&smfFile, "smf", "", "Write the channel setup as a Standard MIDI File")
	addScaleCommands(planCmd, runPlan)

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	rootCmd.AddCommand(sclCmd)
	rootCmd.AddCommand(kbmCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(mtsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// addScaleCommands attaches the shared scale-construction subcommands to a
// parent command, forwarding the built scale to the parent's handler.
func addScaleCommands(parent *cobra.Command, handler func(*scale.Scale) error) {
	equal := &cobra.Command{
		Use:   "equal <step size>",
		Short: "Equal temperament, e.g. 1:12:2 or 100.0c",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := pitch.ParseRatio(args[0])
			if err != nil {
				return err
			}
			sc, err := scale.Equal(step)
			if err != nil {
				return err
			}
			return handler(sc)
		},
	}

	rank2 := &cobra.Command{
		Use:   "rank2 <generator> <pos generations> [neg generations] [period]",
		Short: "Rank-2 temperament, e.g. 3/2 6 1",
		Args:  cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			generator, err := pitch.ParseRatio(args[0])
			if err != nil {
				return err
			}
			numPos, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid generation count %q: %w", args[1], err)
			}
			var numNeg uint64
			if len(args) > 2 {
				numNeg, err = strconv.ParseUint(args[2], 10, 16)
				if err != nil {
					return fmt.Errorf("invalid generation count %q: %w", args[2], err)
				}
			}
			period := pitch.Octave
			if len(args) > 3 {
				period, err = pitch.ParseRatio(args[3])
				if err != nil {
					return err
				}
			}
			sc, err := scale.Rank2(generator, uint16(numPos), uint16(numNeg), period)
			if err != nil {
				return err
			}
			return handler(sc)
		},
	}

	harm := &cobra.Command{
		Use:   "harm <lowest harmonic> [note count]",
		Short: "Harmonic series segment, e.g. 8",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lowest, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid harmonic %q: %w", args[0], err)
			}
			var count uint64
			if len(args) > 1 {
				count, err = strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid note count %q: %w", args[1], err)
				}
			}
			sub, _ := cmd.Flags().GetBool("subharmonics")
			sc, err := scale.Harmonics(uint32(lowest), uint32(count), sub)
			if err != nil {
				return err
			}
			return handler(sc)
		},
	}
	harm.Flags().BoolP("subharmonics", "s", false, "Build the subharmonic series instead")

	cust := &cobra.Command{
		Use:   "cust <item>...",
		Short: "Custom scale from explicit items, e.g. 9/8 5/4 4/3 3/2 2",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			builder := scale.NewBuilder(name)
			for _, item := range args {
				r, err := pitch.ParseRatio(item)
				if err != nil {
					return err
				}
				builder.PushRatio(r)
			}
			sc, err := builder.Build()
			if err != nil {
				return err
			}
			return handler(sc)
		},
	}
	cust.Flags().StringP("name", "n", "Custom scale", "Name of the scale")

	file := &cobra.Command{
		Use:   "file <scale.scl>",
		Short: "Load a scale from a Scala .scl file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open scale file: %w", err)
			}
			defer func() { _ = f.Close() }()
			sc, err := scala.ParseScl(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return handler(sc)
		},
	}

	parent.AddCommand(equal)
	parent.AddCommand(rank2)
	parent.AddCommand(harm)
	parent.AddCommand(cust)
	parent.AddCommand(file)
}

// parseRef parses the --ref argument, "key" or "key@frequencyHz".
func parseRef() (int, pitch.Pitch, error) {
	keyPart, freqPart, hasFreq := strings.Cut(refArg, "@")
	key, err := strconv.Atoi(keyPart)
	if err != nil {
		return 0, pitch.Pitch{}, fmt.Errorf("invalid reference note %q: %w", refArg, err)
	}
	if !hasFreq {
		return key, pitch.MidiPitch(key), nil
	}
	hz, err := strconv.ParseFloat(strings.TrimSuffix(freqPart, "Hz"), 64)
	if err != nil || hz <= 0 {
		return 0, pitch.Pitch{}, fmt.Errorf("invalid reference frequency %q", freqPart)
	}
	return key, pitch.FromHz(hz), nil
}

func buildMapping() (tuning.KeyboardMapping, error) {
	refKey, refPitch, err := parseRef()
	if err != nil {
		return tuning.KeyboardMapping{}, err
	}
	root := rootNote
	if root < 0 {
		root = refKey
	}
	return tuning.Linear(refKey, refPitch, root), nil
}

func buildTuning(sc *scale.Scale) (*tuning.Tuning, error) {
	mapping, err := buildMapping()
	if err != nil {
		return nil, err
	}
	return tuning.New(sc, mapping)
}

func writeOutput(content string) error {
	if outputFile == "" {
		fmt.Print(content)
		return nil
	}
	if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}

func runScl(sc *scale.Scale) error {
	return writeOutput(scala.FormatScl(sc, scala.Options{CentsPrecision: centsPrecision}))
}

func runKbm(cmd *cobra.Command, args []string) error {
	mapping, err := buildMapping()
	if err != nil {
		return err
	}
	return writeOutput(scala.FormatKbm(mapping, scala.Options{CentsPrecision: centsPrecision}))
}

func runDump(sc *scale.Scale) error {
	t, err := buildTuning(sc)
	if err != nil {
		return err
	}
	rootFreq, err := t.FrequencyOf(t.Mapping().RootKey)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", sc.Name())
	for key := 0; key < 128; key++ {
		freq, err := t.FrequencyOf(key)
		if err != nil {
			continue
		}
		marker := "  "
		if key == t.Mapping().RootKey {
			marker = "> "
		}
		semitones, err := freq.MidiSemitones()
		if err != nil {
			return err
		}
		interval, err := pitch.RatioBetween(rootFreq, freq)
		if err != nil {
			return err
		}
		approx, err := pitch.NearestFractionOfRatio(interval, fractionLimit, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%s%3d | %9.3f Hz | %+9.3f st | %s\n", marker, key, freq.Hz(), semitones, approx)
	}
	return nil
}

func runMts(sc *scale.Scale) error {
	t, err := buildTuning(sc)
	if err != nil {
		return err
	}
	keys := make([]int, 128)
	for i := range keys {
		keys[i] = i
	}
	opts := mts.SingleNoteTuningChangeOptions{DeviceID: deviceID, TuningProgram: tuningProgram}
	msg, err := mts.SingleNoteTuningFromTuning(t, keys, opts)
	if err != nil {
		return err
	}
	if smfFile != "" {
		if err := export.NewSMFWriter().WriteSMFFile(smfFile, []mts.Message{msg}, nil); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", smfFile)
	}
	if outputFile != "" {
		if err := export.WriteSyxFile(outputFile, msg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", outputFile)
	} else {
		for _, b := range msg.SysEx() {
			fmt.Printf("0x%02x\n", b)
		}
	}
	fmt.Printf("Number of retuned notes: %d\n", len(msg.RetunedNotes()))
	fmt.Printf("Number of out-of-range notes: %d\n", len(msg.OutOfRangeNotes()))
	return nil
}

func runPlan(sc *scale.Scale) error {
	t, err := buildTuning(sc)
	if err != nil {
		return err
	}
	keys := make([]int, 128)
	for i := range keys {
		keys[i] = i
	}
	profile := retune.SynthProfile{Channels: planChannels, FirstChannel: 0, PitchBendRange: planBendRange}
	plan, err := retune.PlanAheadOfTime(t, keys, profile)
	if err != nil {
		return err
	}

	fmt.Printf("Channels used: %d of %d\n", len(plan.ChannelDetunings), planChannels)
	for channel, detune := range plan.ChannelDetunings {
		fmt.Printf("  channel %2d: %+.4f semitones\n", profile.MidiChannel(channel), detune)
	}
	fmt.Printf("Keys assigned: %d\n", len(plan.Assignments))
	for _, w := range plan.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if smfFile != "" {
		if err := export.NewSMFWriter().WriteSMFFile(smfFile, nil, plan.Messages); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", smfFile)
	}
	return nil
}
