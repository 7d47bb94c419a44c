package odds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func TestToDecimalFormats(t *testing.T) {
	cases := []struct {
		name   string
		value  float64
		format domain.OddsFormat
		want   float64
	}{
		{"decimal identity", 2.10, domain.OddsDecimal, 2.10},
		{"empty format treated as decimal", 1.95, "", 1.95},
		{"indonesian positive", 0.85, domain.OddsIndonesian, 1.85},
		{"indonesian negative", -1.50, domain.OddsIndonesian, 1.6667},
		{"malay positive", 0.75, domain.OddsMalay, 1.75},
		{"malay negative", -0.80, domain.OddsMalay, 2.25},
		{"hong kong", 0.85, domain.OddsHongKong, 1.85},
		{"american positive", 200, domain.OddsAmerican, 3.00},
		{"american negative", -150, domain.OddsAmerican, 1.6667},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToDecimal(tc.value, tc.format)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 0.0001)
		})
	}
}

func TestToDecimalRejectsBadInput(t *testing.T) {
	_, err := ToDecimal(2.0, "fractional")
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)

	_, err = ToDecimal(math.NaN(), domain.OddsDecimal)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)

	_, err = ToDecimal(math.Inf(1), domain.OddsDecimal)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)

	// Below the floor.
	_, err = ToDecimal(1.005, domain.OddsDecimal)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)

	// Above the cap.
	_, err = ToDecimal(1001, domain.OddsDecimal)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)

	// American zero has no meaning.
	_, err = ToDecimal(0, domain.OddsAmerican)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)
}

func TestToDecimalBoundary(t *testing.T) {
	got, err := ToDecimal(1.01, domain.OddsDecimal)
	require.NoError(t, err)
	assert.Equal(t, 1.01, got)

	got, err = ToDecimal(1000, domain.OddsDecimal)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), got)
}

func TestImpliedProbability(t *testing.T) {
	assert.InDelta(t, 0.5, ImpliedProbability(2.0), 1e-9)
	assert.InDelta(t, 0.4762, ImpliedProbability(2.10), 0.0001)
}
