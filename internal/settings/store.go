package settings

import (
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"racetimer/internal/core/model"
)

// Persisted keys. Values are decimal strings; enablement is "true"/"false".
const (
	KeyEnabled     = "autostart.enabled"
	KeyFrequency   = "autostart.frequency_hz"
	KeyThreshold   = "autostart.threshold_db"
	KeyHold        = "autostart.hold_ms"
	KeySensitivity = "autostart.sensitivity"
)

// Persister is a string-valued key-value store.
type Persister interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Store holds the detector settings and writes every change through to a Persister.
type Store struct {
	mu        sync.Mutex
	persister Persister
	logger    *slog.Logger
	current   model.DetectorSettings
	listeners []func(model.DetectorSettings)
}

// New creates a store with default settings. Call Load to read persisted values.
func New(persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persister: persister,
		logger:    logger,
		current:   model.DefaultDetectorSettings(),
	}
}

// Load reads persisted values. Missing, non-numeric or out-of-range values
// fall back to defaults individually.
func (store *Store) Load() model.DetectorSettings {
	loaded := model.DefaultDetectorSettings()
	if store.persister != nil {
		if raw, ok := store.persister.Get(KeyEnabled); ok {
			if enabled, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
				loaded.Enabled = enabled
			}
		}
		if value, ok := store.readFloat(KeyFrequency, model.FrequencyRange); ok {
			loaded.TargetFrequencyHz = value
		}
		if value, ok := store.readFloat(KeyThreshold, model.ThresholdRange); ok {
			loaded.ThresholdDB = value
		}
		if value, ok := store.readFloat(KeyHold, model.HoldRange); ok {
			loaded.HoldMs = value
		}
		if raw, ok := store.persister.Get(KeySensitivity); ok {
			level, err := strconv.Atoi(strings.TrimSpace(raw))
			if err == nil && level >= model.MinSensitivity && level <= model.MaxSensitivity {
				loaded.Sensitivity = level
			} else {
				store.logger.Warn("discarding persisted setting", slog.String("key", KeySensitivity), slog.String("value", raw))
			}
		}
	}

	store.mu.Lock()
	store.current = loaded
	store.mu.Unlock()
	return loaded
}

// Settings returns a copy of the current settings.
func (store *Store) Settings() model.DetectorSettings {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.current
}

// OnChange registers a listener invoked after every effective change.
func (store *Store) OnChange(listener func(model.DetectorSettings)) {
	store.mu.Lock()
	store.listeners = append(store.listeners, listener)
	store.mu.Unlock()
}

// SetEnabled toggles auto-start.
func (store *Store) SetEnabled(enabled bool) bool {
	store.update(func(current *model.DetectorSettings) {
		current.Enabled = enabled
	}, map[string]string{KeyEnabled: strconv.FormatBool(enabled)})
	return enabled
}

// SetSensitivity applies a preset level, overwriting threshold and hold.
// It returns the effective settings.
func (store *Store) SetSensitivity(level int) model.DetectorSettings {
	level = model.ClampSensitivity(level)
	preset := model.PresetFor(level)
	return store.update(func(current *model.DetectorSettings) {
		current.Sensitivity = level
		current.ThresholdDB = preset.ThresholdDB
		current.HoldMs = preset.HoldMs
	}, map[string]string{
		KeySensitivity: strconv.Itoa(level),
		KeyThreshold:   formatFloat(preset.ThresholdDB),
		KeyHold:        formatFloat(preset.HoldMs),
	})
}

// SetFrequency clamps and stores the target frequency.
func (store *Store) SetFrequency(hz float64) float64 {
	hz = model.FrequencyRange.Clamp(hz)
	store.update(func(current *model.DetectorSettings) {
		current.TargetFrequencyHz = hz
	}, map[string]string{KeyFrequency: formatFloat(hz)})
	return hz
}

// SetThreshold clamps and stores the detection threshold. Sensitivity is untouched.
func (store *Store) SetThreshold(db float64) float64 {
	db = model.ThresholdRange.Clamp(db)
	store.update(func(current *model.DetectorSettings) {
		current.ThresholdDB = db
	}, map[string]string{KeyThreshold: formatFloat(db)})
	return db
}

// SetHold clamps and stores the hold duration in milliseconds. Sensitivity is untouched.
func (store *Store) SetHold(ms float64) float64 {
	ms = model.HoldRange.Clamp(ms)
	store.update(func(current *model.DetectorSettings) {
		current.HoldMs = ms
	}, map[string]string{KeyHold: formatFloat(ms)})
	return ms
}

func (store *Store) update(mutate func(*model.DetectorSettings), writes map[string]string) model.DetectorSettings {
	store.mu.Lock()
	mutate(&store.current)
	updated := store.current
	listeners := slices.Clone(store.listeners)
	store.mu.Unlock()

	store.persist(writes)
	for _, listener := range listeners {
		listener(updated)
	}
	return updated
}

func (store *Store) persist(writes map[string]string) {
	if store.persister == nil {
		return
	}
	for key, value := range writes {
		if err := store.persister.Set(key, value); err != nil {
			store.logger.Warn("persist setting failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (store *Store) readFloat(key string, bounds model.Range) (float64, bool) {
	raw, ok := store.persister.Get(key)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsInf(value, 0) || !bounds.Contains(value) {
		store.logger.Warn("discarding persisted setting", slog.String("key", key), slog.String("value", raw))
		return 0, false
	}
	return value, true
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
