package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name" toml:"name"`
	Port    int           `yaml:"port" toml:"port"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	Tags    []string      `yaml:"tags" toml:"tags"`
}

type validated struct {
	Port int `yaml:"port" toml:"port"`
}

func (v *validated) Validate() error {
	if v.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("KB_NAME", "handbook")
	path := writeConfig(t, "c.yaml", "name: ${KB_NAME}\nport: 9090\ntimeout: 5s\ntags: [a, b]\n")

	var got sample
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "handbook" || got.Port != 9090 || got.Timeout != 5*time.Second || len(got.Tags) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv("KB_PORT", "7070")
	path := writeConfig(t, "c.toml", "name = \"handbook\"\nport = ${KB_PORT}\ntimeout = \"2m\"\ntags = [\"x\"]\n")

	var got sample
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "handbook" || got.Port != 7070 || got.Timeout != 2*time.Minute || got.Tags[0] != "x" {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeConfig(t, "c.yaml", "port: 0\n")
	var got validated
	err := Load(path, &got)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_ParseError(t *testing.T) {
	path := writeConfig(t, "c.toml", "name = \n")
	var got sample
	if err := Load(path, &got); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeConfig(t, "default.yaml", "port: 1234\n")
	var got sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &got); err != nil {
		t.Fatal(err)
	}
	if got.Port != 1234 {
		t.Errorf("port = %d", got.Port)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &got); err == nil {
		t.Error("expected error without default")
	}
}

func TestLoad_TOMLUnknownKey(t *testing.T) {
	path := writeConfig(t, "c.toml", "name = \"x\"\nprot = 1\n")
	var got sample
	err := Load(path, &got)
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}
