// Package odds converts between bookmaker odds notations and canonical
// decimal (European) odds.
package odds

import (
	"fmt"
	"math"

	"github.com/aryasaputra/surebot/internal/domain"
)

// Decimal odds outside this range are treated as feed errors rather than
// genuine quotes.
const (
	MinDecimal = 1.01
	MaxDecimal = 1000
)

// ToDecimal converts value, quoted in the given format, to decimal odds.
// It returns domain.ErrInvalidFormat for an unknown format and
// domain.ErrInvalidOdds when the input is not a finite number or the result
// falls outside [MinDecimal, MaxDecimal].
func ToDecimal(value float64, format domain.OddsFormat) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("odds: value %v: %w", value, domain.ErrInvalidOdds)
	}

	var dec float64
	switch format {
	case domain.OddsDecimal, "":
		dec = value
	case domain.OddsIndonesian:
		dec = indonesianToDecimal(value)
	case domain.OddsMalay:
		// Same shape as Indonesian: the sign flips which side of even money
		// the quote sits on.
		dec = malayToDecimal(value)
	case domain.OddsHongKong:
		dec = 1 + value
	case domain.OddsAmerican:
		dec = americanToDecimal(value)
	default:
		return 0, fmt.Errorf("odds: format %q: %w", format, domain.ErrInvalidFormat)
	}

	if dec < MinDecimal || dec > MaxDecimal {
		return 0, fmt.Errorf("odds: %v (%s) converts to %v, outside [%v, %v]: %w",
			value, format, dec, float64(MinDecimal), float64(MaxDecimal), domain.ErrInvalidOdds)
	}
	return dec, nil
}

func indonesianToDecimal(v float64) float64 {
	if v >= 0 {
		return 1 + v
	}
	return 1 + 1/math.Abs(v)
}

func malayToDecimal(v float64) float64 {
	if v >= 0 {
		return 1 + v
	}
	return 1 + 1/math.Abs(v)
}

func americanToDecimal(v float64) float64 {
	if v > 0 {
		return 1 + v/100
	}
	if v < 0 {
		return 1 + 100/math.Abs(v)
	}
	// American odds of exactly 0 do not exist.
	return 0
}

// ImpliedProbability returns the break-even win probability implied by
// decimal odds.
func ImpliedProbability(decimal float64) float64 {
	return 1 / decimal
}
