package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signal-lab/internal/domain"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := `# comment
SIGNAL_LAB_A=plain
export SIGNAL_LAB_B="quoted value"
SIGNAL_LAB_C='single'
SIGNAL_LAB_KEEP=from-file
not a pair
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SIGNAL_LAB_KEEP", "from-env")
	for _, k := range []string{"SIGNAL_LAB_A", "SIGNAL_LAB_B", "SIGNAL_LAB_C"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}

	tests := map[string]string{
		"SIGNAL_LAB_A":    "plain",
		"SIGNAL_LAB_B":    "quoted value",
		"SIGNAL_LAB_C":    "single",
		"SIGNAL_LAB_KEEP": "from-env",
	}
	for k, want := range tests {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: expected %q, got %q", k, want, got)
		}
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SIGNAL_LAB_INT", "7")
	t.Setenv("SIGNAL_LAB_BAD_INT", "seven")
	t.Setenv("SIGNAL_LAB_DUR", "90s")
	t.Setenv("SIGNAL_LAB_LIST", " BTCUSDT, ,ETHUSDT ")

	if got := Env("SIGNAL_LAB_UNSET", "def"); got != "def" {
		t.Errorf("Env default: got %q", got)
	}
	if got := EnvInt("SIGNAL_LAB_INT", 1); got != 7 {
		t.Errorf("EnvInt: got %d", got)
	}
	if got := EnvInt("SIGNAL_LAB_BAD_INT", 1); got != 1 {
		t.Errorf("EnvInt malformed: got %d", got)
	}
	if got := EnvInt64("SIGNAL_LAB_INT", 0); got != 7 {
		t.Errorf("EnvInt64: got %d", got)
	}
	if got := EnvDuration("SIGNAL_LAB_DUR", time.Second); got != 90*time.Second {
		t.Errorf("EnvDuration: got %v", got)
	}
	list := EnvList("SIGNAL_LAB_LIST", nil)
	if len(list) != 2 || list[0] != "BTCUSDT" || list[1] != "ETHUSDT" {
		t.Errorf("EnvList: got %v", list)
	}
	if got := EnvList("SIGNAL_LAB_UNSET", []string{"X"}); len(got) != 1 || got[0] != "X" {
		t.Errorf("EnvList default: got %v", got)
	}
}

func TestParseEngineConfig(t *testing.T) {
	cfg, err := ParseEngineConfig([]byte(`
active_strategy: ml
window_size: 30
risk:
  position_fraction: 0.05
leverage:
  max: 10
exit_target: 1
thresholds:
  spike_volume: 200000
`))
	if err != nil {
		t.Fatalf("ParseEngineConfig: %v", err)
	}

	def := domain.DefaultEngineConfig()
	if cfg.ActiveStrategy != "ml" || cfg.WindowSize != 30 || cfg.ExitTarget != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Risk.PositionFraction != 0.05 || cfg.Risk.MaxPositionFraction != def.Risk.MaxPositionFraction {
		t.Errorf("unexpected risk %+v", cfg.Risk)
	}
	if cfg.Leverage.Max != 10 {
		t.Errorf("expected leverage cap 10, got %d", cfg.Leverage.Max)
	}
	if cfg.Thresholds.SpikeVolume != 200000 || cfg.Thresholds.MinVolume != def.Thresholds.MinVolume {
		t.Errorf("unexpected thresholds %+v", cfg.Thresholds)
	}
	if cfg.Seed != def.Seed {
		t.Errorf("expected default seed, got %d", cfg.Seed)
	}
}

func TestParseEngineConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "active_strategy: alpha\nwindow: 3\n",
		"window too low": "window_size: 1\n",
		"exit target":    "exit_target: 3\n",
		"bad yaml":       "risk: [1, 2\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseEngineConfig([]byte(doc)); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadEngineConfig(t *testing.T) {
	cfg, err := LoadEngineConfig("")
	if err != nil {
		t.Fatalf("LoadEngineConfig(empty): %v", err)
	}
	if cfg.ActiveStrategy != domain.DefaultStrategy {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("active_strategy: hook\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	if cfg.ActiveStrategy != "hook" {
		t.Errorf("expected hook, got %s", cfg.ActiveStrategy)
	}

	if _, err := LoadEngineConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2021-01-01", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-03-01T12:30:00+02:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"01/02/2024", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTime(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
