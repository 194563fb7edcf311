package config

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrPermission = errors.New("config permission denied")
	ErrNotFound   = errors.New("config not found")
	ErrInvalid    = errors.New("invalid config")
)

// PermissionError is returned when the config file or its directory cannot
// be read or written.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string
	Details string
}

func (e *PermissionError) Error() string {
	return render(
		fmt.Sprintf("permission denied (cannot %s config): %s", e.Op, e.Path),
		[]string{e.Details},
		"Fix: "+e.Fix,
	)
}

// Unwrap returns ErrPermission.
func (e *PermissionError) Unwrap() error { return ErrPermission }

// ConfigNotFoundError is returned by LoadFrom for a missing file.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return render("config file not found: "+e.Path, nil, e.Hint)
}

// Unwrap returns ErrNotFound.
func (e *ConfigNotFoundError) Unwrap() error { return ErrNotFound }

// InvalidConfigError covers malformed JSON and values that fail validation.
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
	// Fields lists the offending fields, as "Namespace (tag)".
	Fields []string
}

func (e *InvalidConfigError) Error() string {
	var details []string
	details = append(details, e.Message)
	if len(e.Fields) > 0 {
		details = append(details, "fields: "+strings.Join(e.Fields, ", "))
	}
	return render("invalid config: "+e.Path, details, e.Hint)
}

// Unwrap returns ErrInvalid.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalid }

// render lays out a headline, detail lines and a hint, one per line.
func render(headline string, details []string, hint string) string {
	var b strings.Builder
	b.WriteString(headline)
	for _, d := range details {
		if d != "" {
			b.WriteString("\n")
			b.WriteString(d)
		}
	}
	if hint != "" && hint != "Fix: " {
		b.WriteString("\n💡 ")
		b.WriteString(hint)
	}
	return b.String()
}
