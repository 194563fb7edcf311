package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestLoadFromEnhancedErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		tmpDir := t.TempDir()
		testPath := filepath.Join(tmpDir, "nonexistent.json")

		_, err := LoadFrom(testPath)
		if err == nil {
			t.Fatal("LoadFrom should error for nonexistent file")
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error should match ErrNotFound, got: %v", err)
		}
		if !strings.Contains(err.Error(), "config file not found") {
			t.Errorf("error should mention file not found, got: %v", err)
		}
		if !strings.Contains(err.Error(), "tool-optimizer init") {
			t.Errorf("error should mention init command, got: %v", err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores file permissions")
		}
		tmpDir := t.TempDir()
		testPath := filepath.Join(tmpDir, "config.json")

		if err := os.WriteFile(testPath, []byte(`{}`), 0000); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		_, err := LoadFrom(testPath)
		if err == nil {
			t.Fatal("LoadFrom should error for permission denied")
		}
		if !strings.Contains(err.Error(), "permission denied") {
			t.Errorf("error should mention permission denied, got: %v", err)
		}
		if !strings.Contains(err.Error(), "chmod 644") {
			t.Errorf("error should suggest chmod fix, got: %v", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		testPath := filepath.Join(tmpDir, "config.json")

		if err := os.WriteFile(testPath, []byte(`{invalid json}`), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		_, err := LoadFrom(testPath)
		if err == nil {
			t.Fatal("LoadFrom should error for invalid JSON")
		}
		if !strings.Contains(err.Error(), "invalid") {
			t.Errorf("error should mention invalid JSON, got: %v", err)
		}
		if !strings.Contains(err.Error(), ".bak") {
			t.Errorf("error should mention .bak file, got: %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		tmpDir := t.TempDir()
		testPath := filepath.Join(tmpDir, "config.json")

		if err := os.WriteFile(testPath, []byte(`{"monitor": {"monitoringIntervalMs": 10}}`), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		_, err := LoadFrom(testPath)
		if err == nil {
			t.Fatal("LoadFrom should reject a 10ms monitoring interval")
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("error should match ErrInvalid, got: %v", err)
		}
		if !strings.Contains(err.Error(), "MonitoringIntervalMs") {
			t.Errorf("error should name the field, got: %v", err)
		}
		if !strings.Contains(err.Error(), testPath) {
			t.Errorf("error should name the file, got: %v", err)
		}
	})
}

func TestLoadFromPartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "config.json")

	content := `{"selector": {"maxToolsPerTask": 9}, "storage": {"disabled": true}}`
	if err := os.WriteFile(testPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadFrom(testPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Selector.MaxToolsPerTask != 9 {
		t.Errorf("maxToolsPerTask = %d, want 9", cfg.Selector.MaxToolsPerTask)
	}
	// a section present in the file keeps defaults for fields it omits
	if cfg.Selector.SuccessRateThreshold != 0.7 {
		t.Errorf("successRateThreshold = %v, want 0.7", cfg.Selector.SuccessRateThreshold)
	}
	if !cfg.Storage.Disabled {
		t.Error("storage should be disabled")
	}
	if cfg.Storage.RetentionDays != 30 {
		t.Errorf("retentionDays = %d, want 30", cfg.Storage.RetentionDays)
	}
	if cfg.Router == nil || cfg.Router.CacheMaxEntries != 1000 {
		t.Error("router section should keep its defaults")
	}
}
