package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
	Dir  string `yaml:"dir"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("QUILL_TEST_PORT", "9090")
	p := writeConfig(t, "port: ${QUILL_TEST_PORT}\ndir: ${QUILL_TEST_UNSET:-./content}\n")

	cfg := sample{Name: "default"}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Dir != "./content" || cfg.Name != "default" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Load(writeConfig(t, ""), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key": "port: 1\nprot: 2\n",
		"validation":  "name: x\n",
		"syntax":      "port: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			var cfg sample
			if err := Load(writeConfig(t, content), &cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	var cfg sample
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("missing file err = %v", err)
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("QUILL_TEST_SET", "v")
	t.Setenv("QUILL_TEST_EMPTY", "")
	cases := map[string]string{
		"${QUILL_TEST_SET}":          "v",
		"$QUILL_TEST_SET/x":          "v/x",
		"${QUILL_TEST_EMPTY:-d}":     "d",
		"${QUILL_TEST_SET:-d}":       "v",
		"${QUILL_TEST_MISSING}":      "",
		"${QUILL_TEST_MISSING:-a/b}": "a/b",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}
