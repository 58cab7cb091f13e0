package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"racetimer/internal/core/model"
	"racetimer/internal/media"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

type cliEnv struct {
	dir          string
	configPath   string
	settingsPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	return &cliEnv{
		dir:          dir,
		configPath:   filepath.Join(dir, "config.toml"),
		settingsPath: filepath.Join(dir, "settings.yaml"),
	}
}

func (env *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--config", env.configPath,
		"--settings", env.settingsPath,
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeToneWAV(t *testing.T, path string, silence, tone time.Duration) {
	t.Helper()
	const rate = 48000
	quiet := int(silence.Seconds() * rate)
	total := quiet + int(tone.Seconds()*rate)
	data := make([]int, total)
	for i := quiet; i < total; i++ {
		data[i] = int(16000 * math.Sin(2*math.Pi*2500*float64(i)/rate))
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	encoder := wav.NewEncoder(file, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func TestSettingsSetPersistsWithPresetFirst(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "settings", "set", "--sensitivity", "5", "--threshold", "-60", "--enabled")
	if err != nil {
		t.Fatalf("settings set: %v\n%s", err, out)
	}

	backend, err := storage.OpenYAMLFile(env.settingsPath)
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	store := settings.New(backend, nil)
	got := store.Load()
	if got.Sensitivity != 5 || got.ThresholdDB != -60 || got.HoldMs != 50 || !got.Enabled {
		t.Fatalf("unexpected persisted settings %+v", got)
	}

	out, err = env.run(t, "settings", "show")
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	for _, want := range []string{settings.KeyThreshold, "-60", env.settingsPath} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestSettingsSetRequiresAFlag(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "settings", "set"); err == nil {
		t.Fatal("expected error without flags")
	}
}

func TestSettingsResetRestoresDefaults(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "settings", "set", "--frequency", "4000", "--enabled"); err != nil {
		t.Fatalf("settings set: %v", err)
	}
	if _, err := env.run(t, "settings", "reset"); err != nil {
		t.Fatalf("settings reset: %v", err)
	}
	backend, err := storage.OpenYAMLFile(env.settingsPath)
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	if got := settings.New(backend, nil).Load(); got != model.DefaultDetectorSettings() {
		t.Fatalf("reset left %+v", got)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "config", "init", "--path", env.configPath)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := env.run(t, "config", "init", "--path", env.configPath); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}

	out, err = env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "sample_rate = 48000") {
		t.Fatalf("config show missing sample rate:\n%s", out)
	}
}

func TestInvalidLogLevelRejected(t *testing.T) {
	env := newCLIEnv(t)
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", env.configPath, "--log-level", "loud", "settings", "show"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestScanCommandReportsAutoStart(t *testing.T) {
	env := newCLIEnv(t)
	clip := filepath.Join(env.dir, "race.wav")
	writeToneWAV(t, clip, 500*time.Millisecond, time.Second)

	out, err := env.run(t, "scan", clip)
	if err != nil {
		t.Fatalf("scan: %v\n%s", err, out)
	}
	for _, want := range []string{"race.wav", "Auto-start at", "00:00.5", "2500 Hz"} {
		if !strings.Contains(out, want) {
			t.Fatalf("scan output missing %q:\n%s", want, out)
		}
	}
}

func TestScanClipTiming(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.dir, "race.wav")
	writeToneWAV(t, path, 500*time.Millisecond, 2*time.Second)
	clip, err := media.DecodeWAVFile(path, 48000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	detector := model.DefaultDetectorSettings()
	result, err := scanClip(context.Background(), clip, detector, 60, nil)
	if err != nil {
		t.Fatalf("scanClip: %v", err)
	}
	if !result.Fired || !result.Settings.Enabled {
		t.Fatalf("expected auto-start, got %+v", result)
	}
	hold := detector.Hold()
	if result.FiredAt < 500*time.Millisecond+hold || result.FiredAt > 500*time.Millisecond+hold+100*time.Millisecond {
		t.Fatalf("fired at %v", result.FiredAt)
	}
	if result.Elapsed <= 0 || result.Elapsed > result.Duration-result.FiredAt+50*time.Millisecond {
		t.Fatalf("unexpected elapsed %v for duration %v", result.Elapsed, result.Duration)
	}
	if result.PeakDB < detector.ThresholdDB {
		t.Fatalf("peak %v below threshold", result.PeakDB)
	}
}

func TestScanClipSilentNeverFires(t *testing.T) {
	clip := &media.Clip{Name: "quiet", Samples: make([]float64, 48000), SampleRate: 48000}
	result, err := scanClip(context.Background(), clip, model.DefaultDetectorSettings(), 60, nil)
	if err != nil {
		t.Fatalf("scanClip: %v", err)
	}
	if result.Fired || result.Elapsed != 0 {
		t.Fatalf("silent clip fired: %+v", result)
	}
	if !strings.Contains(renderScan(result), "not triggered") {
		t.Fatal("render should say the detector did not trigger")
	}
}
