// Package numeric converts token quantities between big integers and the
// fixed-width signed hex form the ledger stores them in.
package numeric

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Width is the number of hex digits a magnitude is padded to (256 bits).
const Width = 64

// ErrMalformedNumber is returned when a string is not a valid encoded quantity.
var ErrMalformedNumber = errors.New("malformed number")

// float64 mantissa width; remainders wider than this lose precision.
const mantissaBits = 53

// Zero returns a new zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// Decode parses an optionally negative, optionally 0x-prefixed hex string.
// Empty or non-hex input is an error, never zero.
func Decode(s string) (*big.Int, error) {
	raw := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" || !isHex(s) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// isHex reports whether every byte of s is a hex digit. big.Int.SetString
// would otherwise accept its own sign characters and underscores.
func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// MustDecode is Decode for constants and tests.
func MustDecode(s string) *big.Int {
	v, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Encode renders v as 64 lowercase hex digits, prefixed with '-' when
// negative. Magnitudes wider than 256 bits are rendered unpadded.
func Encode(v *big.Int) string {
	if v == nil {
		v = Zero()
	}
	mag := new(big.Int).Abs(v).Text(16)
	if len(mag) < Width {
		mag = strings.Repeat("0", Width-len(mag)) + mag
	}
	if v.Sign() < 0 {
		return "-" + mag
	}
	return mag
}

// ParseDecimal parses a base-10 integer amount as the node reports it.
func ParseDecimal(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty decimal", ErrMalformedNumber)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	return v, nil
}

// Add decodes two encoded values and returns their encoded sum.
func Add(a string, delta *big.Int) (string, error) {
	v, err := Decode(a)
	if err != nil {
		return "", err
	}
	return Encode(v.Add(v, delta)), nil
}

// ScaledFloat divides v by 10^decimals for display. The result is lossy:
// low-order digits of the remainder are dropped until it fits a float64
// mantissa.
func ScaledFloat(v *big.Int, decimals uint32) float64 {
	if v == nil {
		return 0
	}
	neg := v.Sign() < 0
	mag := new(big.Int).Abs(v)

	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(mag, div, new(big.Int))

	ten := big.NewInt(10)
	for rem.BitLen() > mantissaBits || div.BitLen() > mantissaBits {
		rem.Quo(rem, ten)
		div.Quo(div, ten)
	}

	whole, _ := new(big.Float).SetInt(quo).Float64()
	frac := 0.0
	if div.Sign() > 0 {
		frac = float64(rem.Int64()) / float64(div.Int64())
	}
	out := whole + frac
	if neg {
		return -out
	}
	return out
}

// Round rounds f to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
