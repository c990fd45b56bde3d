package config_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/internal/common/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		values   map[string]string
		required []string

		wantMissing      []string
		wantPlaceholders []string
	}{
		"All keys present": {
			values:   map[string]string{"DB_HOST": "db.local", "DB_USER": "app"},
			required: []string{"DB_HOST", "DB_USER"},
		},
		"No required keys": {
			values: map[string]string{"DB_HOST": "db.local"},
		},
		"Empty values and no required keys": {
			values: map[string]string{},
		},

		"Missing key": {
			values:      map[string]string{"DB_HOST": "db.local"},
			required:    []string{"DB_HOST", "DB_USER"},
			wantMissing: []string{"DB_USER"},
		},
		"Empty value counts as missing": {
			values:      map[string]string{"DB_HOST": ""},
			required:    []string{"DB_HOST"},
			wantMissing: []string{"DB_HOST"},
		},
		"Missing keys are sorted": {
			values:      map[string]string{},
			required:    []string{"DB_USER", "DB_HOST"},
			wantMissing: []string{"DB_HOST", "DB_USER"},
		},

		"Unresolved placeholder in required key": {
			values:           map[string]string{"DB_PASSWORD": "${DB_PASSWORD}"},
			required:         []string{"DB_PASSWORD"},
			wantPlaceholders: []string{"DB_PASSWORD"},
		},
		"Unresolved placeholder in optional key": {
			values:           map[string]string{"DB_HOST": "db.local", "STORAGE_KEY": "${STORAGE_KEY}"},
			required:         []string{"DB_HOST"},
			wantPlaceholders: []string{"STORAGE_KEY"},
		},
		"Empty placeholder": {
			values:           map[string]string{"DB_HOST": "${}"},
			required:         []string{"DB_HOST"},
			wantPlaceholders: []string{"DB_HOST"},
		},
		"Missing and placeholder keys reported together": {
			values:           map[string]string{"DB_PASSWORD": "${DB_PASSWORD}"},
			required:         []string{"DB_HOST", "DB_PASSWORD"},
			wantMissing:      []string{"DB_HOST"},
			wantPlaceholders: []string{"DB_PASSWORD"},
		},

		"Placeholder syntax inside a value is fine": {
			values:   map[string]string{"DB_HOST": "prefix-${DB_HOST}"},
			required: []string{"DB_HOST"},
		},
		"Dollar sign without braces is fine": {
			values:   map[string]string{"DB_PASSWORD": "pa$$word"},
			required: []string{"DB_PASSWORD"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := config.Validate(tc.values, tc.required...)
			if len(tc.wantMissing) == 0 && len(tc.wantPlaceholders) == 0 {
				require.NoError(t, err, "Validate() error")
				return
			}
			require.Error(t, err, "Validate() should have failed")

			var missErr *config.MissingKeysError
			if len(tc.wantMissing) > 0 {
				require.ErrorAs(t, err, &missErr, "error should report missing keys")
				assert.Equal(t, tc.wantMissing, missErr.Keys, "missing keys")
			} else {
				assert.False(t, errors.As(err, &missErr), "no missing keys expected")
			}

			var phErr *config.PlaceholderKeysError
			if len(tc.wantPlaceholders) > 0 {
				require.ErrorAs(t, err, &phErr, "error should report placeholder keys")
				assert.Equal(t, tc.wantPlaceholders, phErr.Keys, "placeholder keys")
			} else {
				assert.False(t, errors.As(err, &phErr), "no placeholder keys expected")
			}
		})
	}
}
