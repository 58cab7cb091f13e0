package preferences

import (
	"testing"

	"racetimer/internal/core/model"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

func newStore(t *testing.T) (*settings.Store, *storage.MemoryStore) {
	t.Helper()
	backend := storage.NewMemory(nil)
	store := settings.New(backend, nil)
	store.Load()
	return store, backend
}

func TestFormFromRendersSettings(t *testing.T) {
	form := FormFrom(model.DefaultDetectorSettings())
	if form.FrequencyHz != "2500" || form.ThresholdDB != "-45" || form.HoldMs != "80" || form.Sensitivity != 3 {
		t.Fatalf("unexpected form %+v", form)
	}
}

func TestApplyUnchangedFormWritesNothing(t *testing.T) {
	store, backend := newStore(t)
	if err := FormFrom(store.Settings()).Apply(store); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := backend.Get(settings.KeyFrequency); ok {
		t.Fatal("unchanged form should not persist anything")
	}
}

func TestApplySensitivityUsesPresetForUntouchedFields(t *testing.T) {
	store, _ := newStore(t)
	form := FormFrom(store.Settings())
	form.Sensitivity = 5

	if err := form.Apply(store); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := store.Settings()
	if got.Sensitivity != 5 || got.ThresholdDB != -55 || got.HoldMs != 50 {
		t.Fatalf("preset not applied: %+v", got)
	}
}

func TestApplyExplicitThresholdOverridesPreset(t *testing.T) {
	store, _ := newStore(t)
	form := FormFrom(store.Settings())
	form.Sensitivity = 1
	form.ThresholdDB = "-60"

	if err := form.Apply(store); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := store.Settings()
	if got.ThresholdDB != -60 || got.HoldMs != 150 || got.Sensitivity != 1 {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestApplyClampsAndReportsBadInput(t *testing.T) {
	store, _ := newStore(t)
	form := FormFrom(store.Settings())
	form.FrequencyHz = "20000"
	form.HoldMs = "fast"
	form.Enabled = true

	err := form.Apply(store)
	if err == nil {
		t.Fatal("expected error for unparsable hold")
	}
	got := store.Settings()
	if got.TargetFrequencyHz != model.FrequencyRange.Max {
		t.Fatalf("frequency not clamped: %v", got.TargetFrequencyHz)
	}
	if got.HoldMs != model.DefaultHoldMs {
		t.Fatalf("bad hold should leave the old value, got %v", got.HoldMs)
	}
	if !got.Enabled {
		t.Fatal("valid fields should still be saved")
	}
}
