package types

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints = 10000

var decimalPattern = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)

// PercentToBasisPoints converts a royalty percentage in [0, 100] into basis
// points, rounding to the nearest integer: 2.5 -> 250.
func PercentToBasisPoints(percent float64) (uint16, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, outOfRange("royaltyPercent", percent)
	}
	return uint16(math.Round(percent * 100)), nil
}

// ValidateBasisPoints checks bps against MaxBasisPoints.
func ValidateBasisPoints(bps uint16) error {
	if bps > MaxBasisPoints {
		return outOfRange("basisPoints", bps)
	}
	return nil
}

// MajorToSmallest converts a decimal amount in major units into an integer
// amount of smallest units, scaled by 10^decimals. The conversion is exact;
// digits below the smallest unit are truncated, never rounded:
// "0.1" with 18 decimals is 100000000000000000, and "1.0000000000000000009"
// is 1000000000000000000.
func MajorToSmallest(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, required("price")
	}

	if strings.HasPrefix(s, "-") {
		if decimalPattern.MatchString(s[1:]) {
			return nil, outOfRange("price", amount)
		}
		return nil, malformed("price", amount)
	}
	s = strings.TrimPrefix(s, "+")

	if !decimalPattern.MatchString(s) {
		return nil, malformed("price", amount)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, malformed("price", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	// non-negative, so Quo truncates
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// FloatToSmallest converts through the shortest decimal representation of
// f, so 0.1 converts as the literal "0.1" and not as its binary expansion.
func FloatToSmallest(f float64, decimals uint8) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, malformed("price", f)
	}
	if f < 0 {
		return nil, outOfRange("price", f)
	}
	return MajorToSmallest(strconv.FormatFloat(f, 'f', -1, 64), decimals)
}

// FormatSmallest renders an amount of smallest units in major units without
// losing precision, trimming trailing zeros.
func FormatSmallest(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}

	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	s := abs.String()

	d := int(decimals)
	if d > 0 {
		if len(s) <= d {
			s = strings.Repeat("0", d-len(s)+1) + s
		}
		intPart, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
		s = intPart
		if frac != "" {
			s += "." + frac
		}
	}

	if neg {
		s = "-" + s
	}
	return s
}
