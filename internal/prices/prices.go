package prices

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError indicates a token contained no usable numeric value.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no numeric value in %q", e.Input)
}

// ParseAmount parses a free-text money or number token into an integer.
// It tolerates a currency symbol, thousands separators, and a trailing
// "k" multiplier: "250,000" -> 250000, "£1,200" -> 1200, "350k" -> 350000.
// Input with no digits fails with a *ParseError rather than returning 0,
// so a bad token never turns into a real filter value downstream.
func ParseAmount(s string) (int, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(cleaned, "£")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	multiplier := 1
	if strings.HasSuffix(cleaned, "k") {
		multiplier = 1000
		cleaned = strings.TrimSuffix(cleaned, "k")
	}

	value, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, &ParseError{Input: s}
	}

	return value * multiplier, nil
}
