package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "config")

// Save validates cfg and writes it to path through a temp file and rename.
// An existing file is copied to path+".bak" first.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return withPath(err, path)
	}
	if err := ensureWritable(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := backup(path); err != nil {
		logger.KV(xlog.WARNING, "reason", "backup", "path", path, "err", err.Error())
	}
	return replaceFile(path, data)
}

// backup copies path to path+".bak". A missing file is not an error.
func backup(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path+".bak", data, 0644))
}

func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to replace config")
	}
	return nil
}

// ensureWritable creates the config directory and probes that both the
// directory and an existing file accept writes.
func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	checks := []struct {
		target  string
		details string
		probe   func() error
	}{
		{dir, "Cannot create config directory", func() error { return os.MkdirAll(dir, 0755) }},
		{dir, "Cannot write to config directory", func() error { return probeDir(dir) }},
		{path, "Config file is read-only", func() error { return probeFile(path) }},
	}
	for _, c := range checks {
		if err := c.probe(); err != nil {
			return &PermissionError{
				Path:    c.target,
				Op:      "write",
				Fix:     writeFix(c.target),
				Details: c.details,
			}
		}
	}
	return nil
}

func probeDir(dir string) error {
	probe := filepath.Join(dir, ".write-test-"+uuid.NewString()[:8])
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probe)
}

func probeFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func writeFix(path string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("Right-click %s → Properties → Security → Grant 'Write' permission", path)
	}
	return fmt.Sprintf("Run: chmod u+w %s", path)
}
