package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadProjectConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/project\n")
	writeFile(t, filepath.Join(root, projectFileName), "suffix: _gen\nlog_level: debug\nliteral_extraction: \"off\"\n")

	input := filepath.Join(root, "internal", "app", "wire.go")
	writeFile(t, input, "package app\n")

	cfg, err := loadProjectConfig([]string{input})
	if err != nil {
		t.Fatalf("loadProjectConfig() error = %v", err)
	}

	if cfg.Suffix != "_gen" {
		t.Errorf("suffix = %q, want _gen", cfg.Suffix)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.LiteralExtraction != "off" {
		t.Errorf("literal extraction = %q, want off", cfg.LiteralExtraction)
	}
}

func TestLoadProjectConfig_StopsAtModuleRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// The config sits above the module root and must not be picked up.
	writeFile(t, filepath.Join(root, projectFileName), "suffix: _outer\n")
	writeFile(t, filepath.Join(root, "mod", "go.mod"), "module example.com/mod\n")

	input := filepath.Join(root, "mod", "pkg", "wire.go")
	writeFile(t, input, "package pkg\n")

	cfg, err := loadProjectConfig([]string{input})
	if err != nil {
		t.Fatalf("loadProjectConfig() error = %v", err)
	}

	if cfg.Suffix != "" {
		t.Errorf("suffix = %q, want empty: search crossed the module boundary", cfg.Suffix)
	}
}

func TestLoadProjectConfig_NoFiles(t *testing.T) {
	t.Parallel()

	cfg, err := loadProjectConfig(nil)
	if err != nil {
		t.Fatalf("loadProjectConfig() error = %v", err)
	}
	if cfg != (ProjectConfig{}) {
		t.Errorf("config = %+v, want zero value", cfg)
	}
}

func TestLoadProjectConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, projectFileName), "suffix: [unclosed\n")

	input := filepath.Join(root, "wire.go")
	writeFile(t, input, "package main\n")

	if _, err := loadProjectConfig([]string{input}); err == nil {
		t.Fatal("loadProjectConfig() error = nil, want parse failure")
	}
}

func TestLiteralClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setting string
		wantNil bool
		wantErr bool
	}{
		{name: "default on", setting: ""},
		{name: "explicit on", setting: "on"},
		{name: "off", setting: "off", wantNil: true},
		{name: "invalid", setting: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			classifier, err := literalClassifier(tt.setting)
			if tt.wantErr {
				if err == nil {
					t.Fatal("literalClassifier() error = nil, want error")
				}

				return
			}
			if err != nil {
				t.Fatalf("literalClassifier() error = %v", err)
			}

			if (classifier == nil) != tt.wantNil {
				t.Errorf("classifier = %v, want nil = %v", classifier, tt.wantNil)
			}
		})
	}
}

func TestResolveLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flag    string
		project string
		want    string
	}{
		{name: "flag wins", flag: "error", project: "debug", want: "error"},
		{name: "project fills default", flag: "info", project: "debug", want: "debug"},
		{name: "default stands alone", flag: "info", project: "", want: "info"},
	}

	for _, tt := range tests {
		if got := resolveLogLevel(tt.flag, tt.project); got != tt.want {
			t.Errorf("resolveLogLevel(%q, %q) = %q, want %q", tt.flag, tt.project, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "WARN", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "unknown", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.level); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
