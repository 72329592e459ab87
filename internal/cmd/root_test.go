package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webharvest/internal/config"
)

func TestFlagsRegistered(t *testing.T) {
	flags := []string{
		"show-config",
		"concurrency",
		"max-depth",
		"limit",
		"deadline",
		"timeout",
		"user-agent",
		"ignore-robots",
		"delay",
		"per-domain-max",
		"retry-tries",
		"breaker-threshold",
		"similarity-threshold",
		"include-patterns",
		"exclude-patterns",
		"follow-external-hosts",
		"resume",
		"database",
		"log-level",
		"log-file",
		"quiet",
	}
	for _, name := range flags {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag --%s to be registered", name)
		}
	}
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected persistent flag --config to be registered")
	}
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2026-01-01")
	if !strings.Contains(rootCmd.Version, "1.2.3") {
		t.Errorf("Expected version string to contain 1.2.3, got %q", rootCmd.Version)
	}
	if !strings.Contains(rootCmd.Version, "2026-01-01") {
		t.Errorf("Expected version string to contain build time, got %q", rootCmd.Version)
	}
}

func TestIgnoreRobotsFlagOverridesConfig(t *testing.T) {
	if err := rootCmd.Flags().Set("ignore-robots", "true"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rootCmd.Flags().Set("ignore-robots", "false") }()

	cfg := config.DefaultConfig()
	if !cfg.RespectRobots {
		t.Fatal("Expected robots.txt to be respected by default")
	}
	applyRobotsOverride(cfg)
	if cfg.RespectRobots {
		t.Error("Expected --ignore-robots to disable robots.txt handling")
	}
}

func TestCheckUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	good := write("good.yml", "concurrency: 3\nmax_depth: 1\nheaders:\n  X-Custom: value\nlog_level: debug\n")
	if err := checkUnknownKeys(good); err != nil {
		t.Errorf("Expected known keys to pass, got %v", err)
	}

	bad := write("bad.yml", "concurency: 3\n")
	err := checkUnknownKeys(bad)
	if err == nil {
		t.Fatal("Expected a misspelled key to be rejected")
	}
	if !strings.Contains(err.Error(), "concurency") {
		t.Errorf("Expected the error to name the offending key, got %v", err)
	}

	if err := checkUnknownKeys(""); err != nil {
		t.Errorf("Expected no error without a config file, got %v", err)
	}
}

func TestShowCurrentConfigHandlesInvalidConfig(t *testing.T) {
	// A failing validation prints a warning; the dump still succeeds.
	cfg := config.DefaultConfig()
	cfg.Concurrency = 0
	if err := showCurrentConfig(cfg); err != nil {
		t.Errorf("showCurrentConfig failed: %v", err)
	}
}
