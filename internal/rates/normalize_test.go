package rates_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/internal/rates"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		record rates.Record

		wantMillis int64
		wantValue  string
		wantErr    bool
	}{
		"Plain dot decimal": {
			record:     rates.Record{"1757509256000", "3920.00"},
			wantMillis: 1757509256000,
			wantValue:  "3920.00",
		},
		"Comma as decimal separator": {
			record:     rates.Record{"1757509256000", "3918,5"},
			wantMillis: 1757509256000,
			wantValue:  "3918.5",
		},
		"Comma thousands separator with dot decimal": {
			record:     rates.Record{"1757509256000", "3,918.5"},
			wantMillis: 1757509256000,
			wantValue:  "3918.5",
		},
		"Dot thousands separators only": {
			record:     rates.Record{"1757509256000", "1.234.567"},
			wantMillis: 1757509256000,
			wantValue:  "1234567",
		},
		"Non-breaking space and regular space stripped": {
			record:     rates.Record{"1757509256000", "3 918,50 "},
			wantMillis: 1757509256000,
			wantValue:  "3918.50",
		},
		"Four fractional digits kept exactly": {
			record:     rates.Record{"1757509256000", "3920.1234"},
			wantMillis: 1757509256000,
			wantValue:  "3920.1234",
		},
		"Numeric wire value": {
			record:     rates.Record{json.Number("1757509256000"), json.Number("3920.5")},
			wantMillis: 1757509256000,
			wantValue:  "3920.5",
		},
		"Timestamp truncated to whole seconds": {
			record:     rates.Record{"1757509256789", "1"},
			wantMillis: 1757509256000,
			wantValue:  "1",
		},

		// Malformed records
		"Non-numeric timestamp": {
			record:  rates.Record{"not-a-number", "3920.00"},
			wantErr: true,
		},
		"Fractional timestamp": {
			record:  rates.Record{"12.5", "3920.00"},
			wantErr: true,
		},
		"Non-numeric value": {
			record:  rates.Record{"1757509256000", "abc"},
			wantErr: true,
		},
		"Mixed separators with trailing comma decimal": {
			record:  rates.Record{"1757509256000", "1.234.567,89"},
			wantErr: true,
		},
		"Boolean value": {
			record:  rates.Record{"1757509256000", true},
			wantErr: true,
		},
		"Null timestamp": {
			record:  rates.Record{nil, "3920.00"},
			wantErr: true,
		},
		"Too few elements": {
			record:  rates.Record{"1757509256000"},
			wantErr: true,
		},
		"Too many elements": {
			record:  rates.Record{"1757509256000", "3920.00", "extra"},
			wantErr: true,
		},
		"Empty record": {
			record:  rates.Record{},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := rates.Normalize(tc.record)
			if tc.wantErr {
				require.Error(t, err, "Normalize() should have failed")
				return
			}
			require.NoError(t, err, "Normalize() error")

			want := time.UnixMilli(tc.wantMillis).Truncate(time.Second)
			assert.True(t, p.Time.Equal(want), "timestamp = %v, want %v", p.Time, want)
			wantValue := decimal.RequireFromString(tc.wantValue)
			assert.True(t, p.Value.Equal(wantValue), "value = %s, want %s", p.Value, wantValue)
		})
	}
}

func TestNormalizeReproducibleAcrossEncodings(t *testing.T) {
	t.Parallel()

	// The same magnitude in different locale encodings must normalize to the
	// same decimal value and wall-clock bucket.
	encodings := []string{"3918.5", "3918,5", "3,918.5", "3 918,5"}

	var points []rates.Point
	for _, enc := range encodings {
		p, err := rates.Normalize(rates.Record{"1757509256000", enc})
		require.NoError(t, err, "Normalize(%q) error", enc)
		points = append(points, p)
	}

	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].Value.Equal(points[0].Value),
			"value for %q = %s, want %s", encodings[i], points[i].Value, points[0].Value)
		assert.True(t, points[i].Time.Equal(points[0].Time),
			"time for %q = %v, want %v", encodings[i], points[i].Time, points[0].Time)
	}
}
