package config

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks value ranges of every section.
func (c *Config) Validate() error {
	var sections []any
	if c.Selector != nil {
		sections = append(sections, c.Selector)
	}
	if c.Router != nil {
		sections = append(sections, c.Router)
	}
	if c.Monitor != nil {
		sections = append(sections, c.Monitor)
	}
	if c.Storage != nil {
		sections = append(sections, c.Storage)
	}

	var fields []string
	for _, section := range sections {
		if err := validate.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return errors.Wrap(err, "failed to validate config")
			}
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	return &InvalidConfigError{
		Message: "value out of range",
		Fields:  fields,
		Hint:    "Run 'tool-optimizer init --force' to write a default configuration",
	}
}

// withPath sets the file path on validation errors.
func withPath(err error, path string) error {
	var ice *InvalidConfigError
	if errors.As(err, &ice) {
		ice.Path = path
	}
	return err
}
