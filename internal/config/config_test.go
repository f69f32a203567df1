package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cosmos/sieve/internal/clean"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Classifier != clean.DefaultBoundary {
		t.Errorf("classifier = %v", cfg.Classifier)
	}
	p, err := cfg.SpikeParams()
	if err != nil || p != clean.DefaultSpikes["F606W"] {
		t.Errorf("SpikeParams = %+v, %v", p, err)
	}
	if cfg.Engine.TimeoutDuration() != 2*time.Hour {
		t.Errorf("timeout = %v", cfg.Engine.TimeoutDuration())
	}
}

func TestDefaultDoesNotShareTables(t *testing.T) {
	a := Default()
	a.Spikes["F606W"] = clean.SpikeParams{}
	a.Engine.Bright["DETECT_THRESH"] = 0
	b := Default()
	if b.Spikes["F606W"] != clean.DefaultSpikes["F606W"] {
		t.Error("Default must copy the spike table")
	}
	if b.Engine.Bright["DETECT_THRESH"] != 2.2 {
		t.Error("Default must copy engine settings")
	}
}

func TestLoad_PartialOverlay(t *testing.T) {
	path := writeConfig(t, "sieve.json", `{
		"filter": "814",
		"mask_workers": 4,
		"field": {"a": {"x": 10, "y": 10}, "b": {"x": 12, "y": 500}, "c": {"x": 600, "y": 510}, "d": {"x": 610, "y": 8}},
		"engine": {"bright": {"DETECT_THRESH": 3.5}},
		"spikes": {"F125W": {"slope": 0.1, "intercept": 50, "width": 30, "theta_deg": 1}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaskWorkers != 4 || cfg.Filter != "814" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Field.B.Y != 500 {
		t.Errorf("field = %+v", cfg.Field)
	}
	if cfg.Engine.Bright["DETECT_THRESH"] != 3.5 {
		t.Errorf("bright DETECT_THRESH = %v", cfg.Engine.Bright["DETECT_THRESH"])
	}
	if cfg.Engine.Bright["DETECT_MINAREA"] != 140 {
		t.Errorf("untouched bright settings should keep defaults: %v", cfg.Engine.Bright["DETECT_MINAREA"])
	}
	if _, ok := cfg.Spikes["F606W"]; !ok {
		t.Error("default spike entries should survive the overlay")
	}
	if cfg.Spikes["F125W"].Width != 30 {
		t.Errorf("added spike entry = %+v", cfg.Spikes["F125W"])
	}
	if cfg.MagCutoff != clean.DefaultMagCutoff {
		t.Errorf("mag_cutoff = %v", cfg.MagCutoff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "sieve.yaml", `{}`, ".json extension"},
		{"bad json", "a.json", `{`, "failed to parse"},
		{"negative margin", "a.json", `{"segmentation_margin": -1}`, "segmentation_margin"},
		{"bad timeout", "a.json", `{"engine": {"timeout": "soon"}}`, "engine.timeout"},
		{"unknown filter", "a.json", `{"filter": "F125W"}`, "no spike parameters"},
		{"vertical side", "a.json", `{"field": {"a": {"x": 5, "y": 0}, "b": {"x": 5, "y": 100}}}`, "vertical"},
		{"missing column", "a.json", `{"engine": {"columns": ["NUMBER", "X_IMAGE"]}}`, "engine.columns must include"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	big := `{"ledger": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", big)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvPath, "")
	cfg, err := Resolve("")
	if err != nil || cfg.Filter != "F606W" {
		t.Fatalf("Resolve default = %+v, %v", cfg, err)
	}

	path := writeConfig(t, "env.json", `{"filter": "F814W"}`)
	t.Setenv(EnvPath, path)
	cfg, err = Resolve("")
	if err != nil || cfg.Filter != "F814W" {
		t.Errorf("Resolve from env = %+v, %v", cfg, err)
	}

	flag := writeConfig(t, "flag.json", `{"mag_cutoff": 18}`)
	cfg, err = Resolve(flag)
	if err != nil || cfg.MagCutoff != 18 || cfg.Filter != "F606W" {
		t.Errorf("explicit path should win over env: %+v, %v", cfg, err)
	}
}
