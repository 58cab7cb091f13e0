package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"racetimer/internal/core/model"
	"racetimer/internal/settings"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the auto-start detector settings",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	settingsCmd.AddCommand(newSettingsResetCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current detector settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, backend, err := ctx.openSettings(logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSettings(store.Settings()))
			fmt.Fprintf(out, "Stored in %s\n", backend.Path())
			return nil
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		enabled     bool
		frequency   float64
		threshold   float64
		hold        float64
		sensitivity int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change detector settings; values outside their range are clamped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, _, err := ctx.openSettings(logger)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if !anyChanged(cmd, "enabled", "frequency", "threshold", "hold", "sensitivity") {
				return fmt.Errorf("nothing to change; pass at least one of --enabled, --frequency, --threshold, --hold, --sensitivity")
			}
			// The preset goes first so explicit threshold or hold flags win.
			if flags.Changed("sensitivity") {
				store.SetSensitivity(sensitivity)
			}
			if flags.Changed("frequency") {
				store.SetFrequency(frequency)
			}
			if flags.Changed("threshold") {
				store.SetThreshold(threshold)
			}
			if flags.Changed("hold") {
				store.SetHold(hold)
			}
			if flags.Changed("enabled") {
				store.SetEnabled(enabled)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(store.Settings()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", false, "Start the timer when the tone is heard")
	cmd.Flags().Float64Var(&frequency, "frequency", model.DefaultFrequencyHz, "Start tone frequency in Hz")
	cmd.Flags().Float64Var(&threshold, "threshold", model.DefaultThresholdDB, "Detection threshold in dB")
	cmd.Flags().Float64Var(&hold, "hold", model.DefaultHoldMs, "Hold duration in milliseconds")
	cmd.Flags().IntVar(&sensitivity, "sensitivity", model.DefaultSensitivity, "Sensitivity preset 1 (strict) to 5 (loose)")
	return cmd
}

func newSettingsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default detector settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, _, err := ctx.openSettings(logger)
			if err != nil {
				return err
			}
			defaults := model.DefaultDetectorSettings()
			store.SetSensitivity(defaults.Sensitivity)
			store.SetFrequency(defaults.TargetFrequencyHz)
			store.SetThreshold(defaults.ThresholdDB)
			store.SetHold(defaults.HoldMs)
			store.SetEnabled(defaults.Enabled)
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(store.Settings()))
			return nil
		},
	}
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func renderSettings(current model.DetectorSettings) string {
	rows := [][]string{
		{settings.KeyEnabled, strconv.FormatBool(current.Enabled), "true or false"},
		{settings.KeyFrequency, formatSetting(current.TargetFrequencyHz), rangeText(model.FrequencyRange, "Hz")},
		{settings.KeyThreshold, formatSetting(current.ThresholdDB), rangeText(model.ThresholdRange, "dB")},
		{settings.KeyHold, formatSetting(current.HoldMs), rangeText(model.HoldRange, "ms")},
		{settings.KeySensitivity, strconv.Itoa(current.Sensitivity), fmt.Sprintf("%d to %d", model.MinSensitivity, model.MaxSensitivity)},
	}
	return renderReport("Auto-start", []column{leftColumn("Setting"), rightColumn("Value"), leftColumn("Range")}, rows)
}

func rangeText(bounds model.Range, unit string) string {
	return fmt.Sprintf("%s to %s %s", formatSetting(bounds.Min), formatSetting(bounds.Max), unit)
}

func formatSetting(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
