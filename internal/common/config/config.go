// Package config validates the deployment configuration of the pipeline services.
//
// Validation runs before any I/O is attempted so that misconfigured deployments
// fail fast, naming every offending key at once.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Deployment templates substitute values of the form ${KEY}. A value still
// matching this pattern at runtime means the substitution never happened.
var placeholderPattern = regexp.MustCompile(`^\$\{[^}]*\}$`)

// MissingKeysError reports configuration keys that have no value.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration keys: %s", strings.Join(e.Keys, ", "))
}

// PlaceholderKeysError reports configuration keys whose values are unresolved
// deployment template placeholders.
type PlaceholderKeysError struct {
	Keys []string
}

func (e *PlaceholderKeysError) Error() string {
	return fmt.Sprintf("configuration keys contain unresolved placeholders: %s", strings.Join(e.Keys, ", "))
}

// Validate checks that every required key has a non-empty, non-placeholder value.
//
// All offending keys are collected before returning, so one failed run surfaces
// the full set of problems. Missing and placeholder keys are reported as
// distinct error types.
func Validate(values map[string]string, required ...string) error {
	var missing, placeholders []string
	for _, key := range required {
		v, ok := values[key]
		if !ok || v == "" {
			missing = append(missing, key)
			continue
		}
		if placeholderPattern.MatchString(v) {
			placeholders = append(placeholders, key)
		}
	}
	// Non-required keys can still carry unresolved placeholders.
	for key, v := range values {
		if placeholderPattern.MatchString(v) && !contains(placeholders, key) && !contains(required, key) {
			placeholders = append(placeholders, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(placeholders)

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingKeysError{Keys: missing})
	}
	if len(placeholders) > 0 {
		errs = append(errs, &PlaceholderKeysError{Keys: placeholders})
	}
	return errors.Join(errs...)
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
