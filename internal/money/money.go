package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPrice indicates that a price string could not be parsed.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInsufficientPrecision indicates that a floating point value does not
	// correspond to a whole number of cents.
	ErrInsufficientPrecision = errors.New("value is not exact to the cent")
)

// PriceUSD is a US dollar amount stored as a signed count of cents. Storing
// cents instead of a floating point value avoids rounding drift when prices
// are compared or aggregated.
type PriceUSD struct {
	cents int64
}

// New builds a price from whole dollars and cents.
func New(dollars, cents int64) PriceUSD {
	return PriceUSD{cents: 100*dollars + cents}
}

// FromCents builds a price directly from a cent count.
func FromCents(cents int64) PriceUSD {
	return PriceUSD{cents: cents}
}

// Parse reads a price of the form ["$"] digits ["." 1-2 digits].
func Parse(s string) (PriceUSD, error) {
	s = strings.TrimSpace(s)
	negative := false
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		negative = true
		s = rest
	}
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return PriceUSD{}, ErrInvalidPrice
	}

	dollarPart, centPart, hasCents := strings.Cut(s, ".")
	dollars, err := strconv.ParseInt(dollarPart, 10, 64)
	if err != nil || dollars < 0 {
		return PriceUSD{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	var cents int64
	if hasCents {
		cents, err = strconv.ParseInt(centPart, 10, 64)
		if err != nil || cents < 0 || cents >= 100 {
			return PriceUSD{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
		}
	}

	total := 100*dollars + cents
	if negative {
		total = -total
	}
	return FromCents(total), nil
}

// FromFloat converts a floating point dollar amount. The conversion fails
// unless the value round-trips exactly to a whole number of cents. The
// product v*100 is rounded before the check because exact-cent values like
// 0.29 do not multiply cleanly in binary floating point.
func FromFloat(v float64) (PriceUSD, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return PriceUSD{}, fmt.Errorf("%w: %v", ErrInsufficientPrecision, v)
	}
	cents := math.Round(v * 100)
	if cents/100 != v {
		return PriceUSD{}, fmt.Errorf("%w: %v", ErrInsufficientPrecision, v)
	}
	return PriceUSD{cents: int64(cents)}, nil
}

// Cents returns the raw cent count.
func (p PriceUSD) Cents() int64 {
	return p.cents
}

// Float returns the amount in dollars for use at system boundaries.
func (p PriceUSD) Float() float64 {
	return float64(p.cents) / 100
}

// Less reports whether p is strictly cheaper than other.
func (p PriceUSD) Less(other PriceUSD) bool {
	return p.cents < other.cents
}

func (p PriceUSD) String() string {
	cents := p.cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// MarshalJSON renders the price as its formatted string.
func (p PriceUSD) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON accepts the same textual forms as Parse.
func (p *PriceUSD) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
