package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("missing file reported as found")
	}
	if cfg.Audio.SampleRate != 48000 || cfg.UI.FrameRate != 60 || cfg.Logging.Format != "console" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[audio]
sample_rate = 44100
ffmpeg_path = " /usr/local/bin/ffmpeg "
audible = false

[ui]
frame_rate = 30

[log]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, found, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("expected file to be found")
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Audible || cfg.Audio.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Fatalf("audio not applied: %+v", cfg.Audio)
	}
	if cfg.UI.FrameRate != 30 || cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Logging.MaxBackups != 3 {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Logging.MaxBackups)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"sample rate": "[audio]\nsample_rate = 10\n",
		"frame rate":  "[ui]\nframe_rate = 0\n",
		"log format":  "[log]\nformat = \"xml\"\n",
		"syntax":      "[audio\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "sample_rate = 48000") {
		t.Fatalf("unexpected encoding:\n%s", data)
	}
}
