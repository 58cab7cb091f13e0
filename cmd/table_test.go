package main

import (
	"strings"
	"testing"
)

func TestRenderReportPadsShortRows(t *testing.T) {
	out := renderReport("Scan", []column{leftColumn("Field"), rightColumn("Value")}, [][]string{
		{"Clip", "race.wav"},
		{"Peak level"},
		{"Hold", ""},
	})
	for _, want := range []string{"Scan", "Field", "race.wav", "Peak level"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Peak level") || strings.Contains(line, "Hold") {
			if !strings.Contains(line, "-") {
				t.Fatalf("empty cell not marked: %q", line)
			}
		}
	}
}

func TestRenderReportWithoutColumns(t *testing.T) {
	if out := renderReport("Scan", nil, [][]string{{"x"}}); out != "" {
		t.Fatalf("expected empty report, got %q", out)
	}
}
