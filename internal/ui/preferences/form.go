package preferences

import (
	"fmt"
	"strconv"
	"strings"

	"racetimer/internal/core/model"
)

// Form holds the text the user typed into the settings window.
type Form struct {
	FrequencyHz string
	ThresholdDB string
	HoldMs      string
	Sensitivity int
	Enabled     bool
}

// FormFrom renders settings as editable text.
func FormFrom(settings model.DetectorSettings) Form {
	return Form{
		FrequencyHz: formatNumber(settings.TargetFrequencyHz),
		ThresholdDB: formatNumber(settings.ThresholdDB),
		HoldMs:      formatNumber(settings.HoldMs),
		Sensitivity: settings.Sensitivity,
		Enabled:     settings.Enabled,
	}
}

// Setter is the subset of the settings store the form writes through.
type Setter interface {
	Settings() model.DetectorSettings
	SetEnabled(enabled bool) bool
	SetSensitivity(level int) model.DetectorSettings
	SetFrequency(hz float64) float64
	SetThreshold(db float64) float64
	SetHold(ms float64) float64
}

// Apply writes changed fields to store. Sensitivity goes first so that a
// threshold or hold edited in the same save overrides its preset, while
// untouched fields take the preset values. Fields that do not parse are
// skipped and reported in the returned error.
func (form Form) Apply(store Setter) error {
	original := store.Settings()
	var problems []string

	if form.Sensitivity != original.Sensitivity {
		store.SetSensitivity(form.Sensitivity)
	}
	if value, ok := parseNumber(form.FrequencyHz); !ok {
		problems = append(problems, fmt.Sprintf("frequency %q", form.FrequencyHz))
	} else if value != original.TargetFrequencyHz {
		store.SetFrequency(value)
	}
	if value, ok := parseNumber(form.ThresholdDB); !ok {
		problems = append(problems, fmt.Sprintf("threshold %q", form.ThresholdDB))
	} else if value != original.ThresholdDB {
		store.SetThreshold(value)
	}
	if value, ok := parseNumber(form.HoldMs); !ok {
		problems = append(problems, fmt.Sprintf("hold %q", form.HoldMs))
	} else if value != original.HoldMs {
		store.SetHold(value)
	}
	if form.Enabled != original.Enabled {
		store.SetEnabled(form.Enabled)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid %s", strings.Join(problems, ", "))
	}
	return nil
}

func parseNumber(text string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
