package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		t.Fatalf("failed to create dir %s: %v", dir, err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// loadIsolated loads config with a fake XDG_CONFIG_HOME so the real user
// config never leaks into tests.
func loadIsolated(t *testing.T, workDir, configPath string, overrides Config, hasRoot bool) (Config, ConfigSources, error) {
	t.Helper()

	env := []string{"XDG_CONFIG_HOME=" + filepath.Join(t.TempDir(), "xdg")}

	return LoadConfig(workDir, configPath, overrides, hasRoot, env)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, sources, err := loadIsolated(t, dir, "", Config{}, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got, want := cfg.Root, "."; got != want {
		t.Errorf("root = %q, want %q", got, want)
	}

	if got, want := cfg.Prompt, "vsh> "; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}

	if sources.Project != "" {
		t.Errorf("no project config should be loaded, got %q", sources.Project)
	}
}

func TestLoadConfig_FromProjectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"root": "data"}`)

	cfg, sources, err := loadIsolated(t, dir, "", Config{}, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got, want := cfg.Root, "data"; got != want {
		t.Errorf("root = %q, want %q", got, want)
	}

	if got, want := sources.Project, filepath.Join(dir, ConfigFileName); got != want {
		t.Errorf("project source = %q, want %q", got, want)
	}
}

func TestLoadConfig_FromFileWithComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{
		// Where the shell starts.
		"root": "commented",

		"prompt": "fs$ ", // trailing comma is fine
	}`)

	cfg, _, err := loadIsolated(t, dir, "", Config{}, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got, want := cfg.Root, "commented"; got != want {
		t.Errorf("root = %q, want %q", got, want)
	}

	if got, want := cfg.Prompt, "fs$ "; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestLoadConfig_CliOverrideWinsOverFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"root": "from-file"}`)

	cfg, _, err := loadIsolated(t, dir, "", Config{Root: "from-cli"}, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got, want := cfg.Root, "from-cli"; got != want {
		t.Errorf("root = %q, want %q", got, want)
	}
}

func TestLoadConfig_GlobalThenProjectPrecedence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := filepath.Join(t.TempDir(), "xdg")
	writeFile(t, filepath.Join(xdg, "vsh", "config.json"), `{"root": "global", "prompt": "g> "}`)
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"root": "project"}`)

	env := []string{"XDG_CONFIG_HOME=" + xdg}

	cfg, sources, err := LoadConfig(dir, "", Config{}, false, env)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	// Project root wins, global prompt survives.
	if got, want := cfg.Root, "project"; got != want {
		t.Errorf("root = %q, want %q", got, want)
	}

	if got, want := cfg.Prompt, "g> "; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}

	if sources.Global == "" {
		t.Error("global config should be recorded as a source")
	}
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := loadIsolated(t, dir, filepath.Join(dir, "nope.json"), Config{}, false)
	if !errors.Is(err, errConfigFileNotFound) {
		t.Fatalf("err = %v, want errConfigFileNotFound", err)
	}
}

func TestLoadConfig_ExplicitlyEmptyRootIsRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"root": ""}`)

	_, _, err := loadIsolated(t, dir, "", Config{}, false)
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("err = %v, want errConfigInvalid", err)
	}
}

func TestLoadConfig_InvalidJSONCIsRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"root": `)

	_, _, err := loadIsolated(t, dir, "", Config{}, false)
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("err = %v, want errConfigInvalid", err)
	}
}
