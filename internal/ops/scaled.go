package ops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yanun0323/decimal"

	"main/internal/schema"
)

// ParseScaled converts a decimal value into a scaled integer. The value
// must not carry more fractional digits than the scale allows; silent
// truncation would corrupt prices.
func ParseScaled(d decimal.Decimal, scale schema.Scale) (int64, error) {
	s := strings.TrimSpace(d.String())
	if s == "" {
		return 0, nil
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(scale) {
		trimmed := strings.TrimRight(fracPart[scale:], "0")
		if trimmed != "" {
			return 0, fmt.Errorf("value %s has more than %d decimal places", d, scale)
		}
		fracPart = fracPart[:scale]
	}
	for len(fracPart) < int(scale) {
		fracPart += "0"
	}

	digits := intPart + fracPart
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", d, err)
	}
	if neg {
		value = -value
	}
	return value, nil
}
