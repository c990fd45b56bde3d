package rates_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/internal/rates"
)

func TestDiscover(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload string

		wantRecords int
		wantErr     bool
	}{
		"Flat list of pairs": {
			payload:     `[["1757509256000","3920.00"],["1757509266000","3921.50"]]`,
			wantRecords: 2,
		},
		"Pairs wrapped in an object": {
			payload:     `{"data":[["1757509256000","3920.00"]]}`,
			wantRecords: 1,
		},
		"Pairs nested two objects deep": {
			payload:     `{"result":{"series":[["1757509256000","3920.00"],["1757509266000","3921.50"]]}}`,
			wantRecords: 2,
		},
		"Pairs inside a wrapping array": {
			payload:     `[{"series":[["1757509256000","3920.00"]]}]`,
			wantRecords: 1,
		},
		"Numeric wire pairs": {
			payload:     `[[1757509256000,3920.5]]`,
			wantRecords: 1,
		},
		"Wrong arity rows still surface as candidates": {
			payload:     `[["1757509256000","3920.00"],["1757509266000"],["1","2","3"]]`,
			wantRecords: 3,
		},
		"Multiple pair collections are all found": {
			payload:     `{"a":[["1","2"]],"b":[["3","4"]]}`,
			wantRecords: 2,
		},
		"Empty array yields no records": {
			payload:     `[]`,
			wantRecords: 0,
		},
		"Empty object yields no records": {
			payload:     `{}`,
			wantRecords: 0,
		},
		"Scalars outside pairs are ignored": {
			payload:     `{"version":"2","data":[["1757509256000","3920.00"]]}`,
			wantRecords: 1,
		},

		// Error cases
		"Top-level string fails": {
			payload: `"not a container"`,
			wantErr: true,
		},
		"Top-level number fails": {
			payload: `42`,
			wantErr: true,
		},
		"Top-level null fails": {
			payload: `null`,
			wantErr: true,
		},
		"Invalid JSON fails": {
			payload: `[["1757509256000","3920.00"]`,
			wantErr: true,
		},
		"Empty payload fails": {
			payload: ``,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			records, err := rates.Discover([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err, "Discover() should have failed")
				return
			}
			require.NoError(t, err, "Discover() error")
			assert.Len(t, records, tc.wantRecords, "unexpected number of discovered records")
		})
	}
}

func TestDiscoverDeterministicOrder(t *testing.T) {
	t.Parallel()

	payload := `{"b":[["2","20"]],"a":[["1","10"]]}`
	for range 10 {
		records, err := rates.Discover([]byte(payload))
		require.NoError(t, err, "Discover() error")
		require.Len(t, records, 2, "unexpected number of records")
		assert.Equal(t, "1", records[0][0], "object keys should be walked in sorted order")
	}
}
