package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"racetimer/internal/audio/graph"
	"racetimer/internal/audio/level"
	"racetimer/internal/controller"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/model"
	"racetimer/internal/core/stopwatch"
	"racetimer/internal/media"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

type scanOptions struct {
	frequency   float64
	threshold   float64
	hold        float64
	sensitivity int
}

// scanResult is the outcome of replaying one clip through the detector.
type scanResult struct {
	Name     string
	Duration time.Duration
	Settings model.DetectorSettings
	Fired    bool
	// FiredAt is the clip position at which the timer started.
	FiredAt  time.Duration
	Elapsed  time.Duration
	PeakDB   float64
	NoAudio  bool
	Frames   int
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan <clip>",
		Short: "Replay a clip offline and report when auto-start would fire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, _, err := ctx.openSettings(logger)
			if err != nil {
				return err
			}
			detector := applyScanOverrides(cmd, store.Settings(), opts)

			clip, err := media.LoadFile(cmd.Context(), args[0], cfg.Audio.FFmpegPath, cfg.Audio.SampleRate)
			if err != nil {
				return err
			}
			result, err := scanClip(cmd.Context(), clip, detector, cfg.UI.FrameRate, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderScan(result))
			return nil
		},
	}

	cmd.Flags().Float64Var(&opts.frequency, "frequency", 0, "Start tone frequency in Hz")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Detection threshold in dB")
	cmd.Flags().Float64Var(&opts.hold, "hold", 0, "Hold duration in milliseconds")
	cmd.Flags().IntVar(&opts.sensitivity, "sensitivity", 0, "Sensitivity preset 1-5")
	return cmd
}

// applyScanOverrides layers flags over the persisted settings. Auto-start is
// always on for a scan.
func applyScanOverrides(cmd *cobra.Command, base model.DetectorSettings, opts scanOptions) model.DetectorSettings {
	result := base
	result.Enabled = true
	if cmd.Flags().Changed("sensitivity") {
		result.Sensitivity = model.ClampSensitivity(opts.sensitivity)
		preset := model.PresetFor(result.Sensitivity)
		result.ThresholdDB = preset.ThresholdDB
		result.HoldMs = preset.HoldMs
	}
	if cmd.Flags().Changed("frequency") {
		result.TargetFrequencyHz = model.FrequencyRange.Clamp(opts.frequency)
	}
	if cmd.Flags().Changed("threshold") {
		result.ThresholdDB = model.ThresholdRange.Clamp(opts.threshold)
	}
	if cmd.Flags().Changed("hold") {
		result.HoldMs = model.HoldRange.Clamp(opts.hold)
	}
	return result
}

// scanClip plays clip against a manual clock, one frame per step, until it ends.
func scanClip(ctx context.Context, clip *media.Clip, detector model.DetectorSettings, frameRate int, logger *slog.Logger) (scanResult, error) {
	store := settings.New(storage.NewMemory(map[string]string{
		settings.KeyEnabled:     "true",
		settings.KeyFrequency:   formatSetting(detector.TargetFrequencyHz),
		settings.KeyThreshold:   formatSetting(detector.ThresholdDB),
		settings.KeyHold:        formatSetting(detector.HoldMs),
		settings.KeySensitivity: fmt.Sprint(detector.Sensitivity),
	}), logger)
	effective := store.Load()

	clock := frameloop.NewManualClock(time.Unix(0, 0))
	ctrl := controller.New(store, controller.Options{
		SampleRate: clip.SampleRate,
		FrameRate:  frameRate,
		Clock:      clock,
	}, logger)
	defer func() { _ = ctrl.Close() }()

	result := scanResult{
		Name:     clip.Name,
		Duration: clip.Duration(),
		Settings: effective,
		PeakDB:   math.Inf(-1),
	}

	var firedAt time.Time
	ctrl.OnAutoStart(func(at time.Time) { firedAt = at })
	ctrl.OnLevel(func(reading level.Reading) {
		if reading.DB > result.PeakDB {
			result.PeakDB = reading.DB
		}
	})
	ended := false
	ctrl.Player().Subscribe(media.EventEnded, func(media.Event) { ended = true })

	ctrl.LoadClip(clip)
	begin := clock.Now()
	ctrl.TogglePlay()
	if ctrl.Player().Paused() {
		return result, errors.New("clip could not be played")
	}

	interval := ctrl.Scheduler().Interval()
	limit := int(clip.Duration()/interval) + 2
	for !ended && result.Frames < limit {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		clock.Advance(interval)
		ctrl.Scheduler().Step()
		result.Frames++
	}

	if err := ctrl.AnalysisError(); err != nil {
		if !errors.Is(err, graph.ErrNoAudio) {
			return result, err
		}
		result.NoAudio = true
	}
	if !firedAt.IsZero() {
		result.Fired = true
		result.FiredAt = firedAt.Sub(begin)
	}
	result.Elapsed = ctrl.Stopwatch().Elapsed()
	return result, nil
}

func renderScan(result scanResult) string {
	autoStart := "not triggered"
	switch {
	case result.NoAudio:
		autoStart = "no audio track"
	case result.Fired:
		autoStart = stopwatch.FormatTime(result.FiredAt)
	}
	peak := "silent"
	if !math.IsInf(result.PeakDB, -1) {
		peak = fmt.Sprintf("%.1f dB", result.PeakDB)
	}

	rows := [][]string{
		{"Clip", result.Name},
		{"Duration", stopwatch.FormatTime(result.Duration)},
		{"Tone", fmt.Sprintf("%s Hz", formatSetting(result.Settings.TargetFrequencyHz))},
		{"Threshold", fmt.Sprintf("%s dB", formatSetting(result.Settings.ThresholdDB))},
		{"Hold", fmt.Sprintf("%s ms", formatSetting(result.Settings.HoldMs))},
		{"Peak level", peak},
		{"Auto-start at", autoStart},
		{"Timer at end", stopwatch.FormatTime(result.Elapsed)},
	}
	return renderReport("Scan", []column{leftColumn("Field"), rightColumn("Value")}, rows)
}
