package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port      string   `toml:"server.port" env:"SERVER_PORT"`
	Verbose   bool     `toml:"server.verbose" env:"SERVER_VERBOSE"`
	Workers   int      `toml:"server.workers" env:"SERVER_WORKERS"`
	Ratio     float64  `toml:"server.ratio" env:"SERVER_RATIO"`
	Origins   []string `toml:"server.origins" env:"SERVER_ORIGINS"`
	LogFormat string   `toml:"logging.format" env:"LOGGING_FORMAT"`
	Untagged  string
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testTOML = `
[server]
port = ":9000"
verbose = true
workers = 4
ratio = 2
origins = ["a", "b"]

[logging]
format = "json"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "config.toml", testTOML), Untagged: "keep"}

	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := testOptions{
		Config:    opts.Config,
		Port:      ":9000",
		Verbose:   true,
		Workers:   4,
		Ratio:     2,
		Origins:   []string{"a", "b"},
		LogFormat: "json",
		Untagged:  "keep",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("CAMERAD_SERVER_PORT", ":7000")
	t.Setenv("CAMERAD_SERVER_VERBOSE", "false")
	t.Setenv("CAMERAD_SERVER_RATIO", "1.5")
	t.Setenv("CAMERAD_SERVER_ORIGINS", "x, y ,z")

	opts := &testOptions{Config: writeFile(t, "config.toml", testTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}

	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want env value", opts.Port)
	}
	if opts.Verbose {
		t.Error("Verbose should be overridden to false")
	}
	if opts.Ratio != 1.5 {
		t.Errorf("Ratio = %v, want 1.5", opts.Ratio)
	}
	if !reflect.DeepEqual(opts.Origins, []string{"x", "y", "z"}) {
		t.Errorf("Origins = %v", opts.Origins)
	}
	if opts.Workers != 4 {
		t.Errorf("Workers = %d, want file value", opts.Workers)
	}
}

func TestLoadConfigFlagWins(t *testing.T) {
	t.Setenv("CAMERAD_SERVER_PORT", ":7000")

	opts := &testOptions{Config: writeFile(t, "config.toml", testTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Port, "port", ":8090", "")
	if err := cmd.Flags().Set("port", ":1234"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Port != ":1234" {
		t.Errorf("Port = %q, want flag value", opts.Port)
	}
	if opts.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want file value", opts.LogFormat)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("Port = %q, default should be kept", opts.Port)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "config.toml", "[server\nport=")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected parse error")
	}
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("expected error for non-pointer")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"LoggingLevel":      "logging-level",
		"CamerasConfigFile": "cameras-config-file",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	doc := map[string]any{
		"a":   map[string]any{"b": map[string]any{"c": "deep"}},
		"top": 1,
	}
	if got := getNestedValue(doc, "a.b.c"); got != "deep" {
		t.Errorf("a.b.c = %v", got)
	}
	if got := getNestedValue(doc, "top"); got != 1 {
		t.Errorf("top = %v", got)
	}
	if got := getNestedValue(doc, "top.x"); got != nil {
		t.Errorf("top.x = %v, want nil", got)
	}
	if got := getNestedValue(doc, "a.missing.c"); got != nil {
		t.Errorf("a.missing.c = %v, want nil", got)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `
[logging]
level = "warn"
format = "json"
capture = "debug"

[logging.modules]
api = "error"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("got level=%q format=%q", cfg.Level, cfg.Format)
	}
	want := map[string]string{"capture": "debug", "api": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" || len(def.Modules) != 0 {
		t.Errorf("defaults = %+v", def)
	}
}
