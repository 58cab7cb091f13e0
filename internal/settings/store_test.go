package settings_test

import (
	"errors"
	"testing"

	"racetimer/internal/core/model"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

func TestLoadFallsBackPerKey(t *testing.T) {
	persister := storage.NewMemory(map[string]string{
		settings.KeyEnabled:     "true",
		settings.KeyFrequency:   "9000",
		settings.KeyThreshold:   "-60",
		settings.KeyHold:        "abc",
		settings.KeySensitivity: "7",
	})
	store := settings.New(persister, nil)

	loaded := store.Load()

	if !loaded.Enabled {
		t.Fatal("expected enabled from persisted value")
	}
	if loaded.TargetFrequencyHz != model.DefaultFrequencyHz {
		t.Fatalf("out-of-range frequency kept: %v", loaded.TargetFrequencyHz)
	}
	if loaded.ThresholdDB != -60 {
		t.Fatalf("valid threshold discarded: %v", loaded.ThresholdDB)
	}
	if loaded.HoldMs != model.DefaultHoldMs {
		t.Fatalf("non-numeric hold kept: %v", loaded.HoldMs)
	}
	if loaded.Sensitivity != model.DefaultSensitivity {
		t.Fatalf("invalid sensitivity kept: %v", loaded.Sensitivity)
	}
}

func TestLoadEmptyUsesDefaults(t *testing.T) {
	store := settings.New(storage.NewMemory(nil), nil)
	if got := store.Load(); got != model.DefaultDetectorSettings() {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestSetSensitivityThenManualThreshold(t *testing.T) {
	persister := storage.NewMemory(nil)
	store := settings.New(persister, nil)

	applied := store.SetSensitivity(5)
	if applied.ThresholdDB != -55 || applied.HoldMs != 50 || applied.Sensitivity != 5 {
		t.Fatalf("unexpected preset: %+v", applied)
	}

	if got := store.SetThreshold(-30); got != -30 {
		t.Fatalf("unexpected threshold: %v", got)
	}
	current := store.Settings()
	if current.Sensitivity != 5 || current.HoldMs != 50 {
		t.Fatalf("manual threshold changed other values: %+v", current)
	}
	if value, _ := persister.Get(settings.KeySensitivity); value != "5" {
		t.Fatalf("persisted sensitivity changed: %q", value)
	}
	if value, _ := persister.Get(settings.KeyThreshold); value != "-30" {
		t.Fatalf("threshold not persisted: %q", value)
	}
}

func TestSettersClamp(t *testing.T) {
	store := settings.New(storage.NewMemory(nil), nil)
	if got := store.SetFrequency(50); got != 200 {
		t.Fatalf("frequency: %v", got)
	}
	if got := store.SetThreshold(0); got != -20 {
		t.Fatalf("threshold: %v", got)
	}
	if got := store.SetHold(1000); got != 300 {
		t.Fatalf("hold: %v", got)
	}
	if got := store.SetSensitivity(-1); got.Sensitivity != 1 || got.ThresholdDB != -35 {
		t.Fatalf("sensitivity: %+v", got)
	}
}

func TestPersistedValuesReload(t *testing.T) {
	persister := storage.NewMemory(nil)
	first := settings.New(persister, nil)
	first.SetEnabled(true)
	first.SetFrequency(3150.5)
	first.SetHold(120)

	second := settings.New(persister, nil)
	loaded := second.Load()
	if !loaded.Enabled || loaded.TargetFrequencyHz != 3150.5 || loaded.HoldMs != 120 {
		t.Fatalf("unexpected reload: %+v", loaded)
	}
}

func TestOnChangeReceivesEffectiveValue(t *testing.T) {
	store := settings.New(storage.NewMemory(nil), nil)
	var seen []float64
	store.OnChange(func(current model.DetectorSettings) {
		seen = append(seen, current.TargetFrequencyHz)
	})
	store.SetFrequency(10000)
	if len(seen) != 1 || seen[0] != 8000 {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestListenerAddedDuringNotificationWaitsForNextChange(t *testing.T) {
	store := settings.New(storage.NewMemory(nil), nil)
	var first, second, late int
	store.OnChange(func(model.DetectorSettings) {
		first++
		if first == 1 {
			store.OnChange(func(model.DetectorSettings) { late++ })
		}
	})
	store.OnChange(func(model.DetectorSettings) { second++ })

	store.SetThreshold(-50)
	if first != 1 || second != 1 || late != 0 {
		t.Fatalf("first change: first=%d second=%d late=%d", first, second, late)
	}
	store.SetHold(120)
	if first != 2 || second != 2 || late != 1 {
		t.Fatalf("second change: first=%d second=%d late=%d", first, second, late)
	}
}

type failingPersister struct{}

func (failingPersister) Get(string) (string, bool) { return "", false }
func (failingPersister) Set(string, string) error  { return errors.New("disk full") }

func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	store := settings.New(failingPersister{}, nil)
	store.SetHold(100)
	if store.Settings().HoldMs != 100 {
		t.Fatal("in-memory value lost after persist failure")
	}
}
