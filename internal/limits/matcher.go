// Package limits holds the number range matching rules shared by the
// limit store, the availability checker and the counter mutator.
package limits

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrEmptyInput = errors.New("number or range is empty")

// Matches reports whether sold falls inside rangeExpr. Malformed input never
// matches; use MatchRange to learn why.
func Matches(sold, rangeExpr string) bool {
	ok, _ := MatchRange(sold, rangeExpr)
	return ok
}

// MatchRange accepts a single number ("07") or an inclusive range ("10-20").
// Comparison is numeric, so "7" matches "07". The returned error describes
// malformed input and always comes with false.
func MatchRange(sold, rangeExpr string) (bool, error) {
	sold = strings.TrimSpace(sold)
	rangeExpr = strings.TrimSpace(rangeExpr)
	if sold == "" || rangeExpr == "" {
		return false, ErrEmptyInput
	}

	n, err := strconv.Atoi(sold)
	if err != nil {
		return false, fmt.Errorf("number %q is not numeric", sold)
	}

	if sold == rangeExpr {
		return true, nil
	}

	if strings.Contains(rangeExpr, "-") {
		start, end, err := ParseRange(rangeExpr)
		if err != nil {
			return false, err
		}
		return n >= start && n <= end, nil
	}

	single, err := strconv.Atoi(rangeExpr)
	if err != nil {
		return false, fmt.Errorf("range %q is not numeric", rangeExpr)
	}
	return n == single, nil
}

// ParseRange splits "start-end" into its bounds and rejects reversed ranges
func ParseRange(rangeExpr string) (int, int, error) {
	parts := strings.Split(rangeExpr, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range %q must have exactly one '-'", rangeExpr)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q has a non-numeric start", rangeExpr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q has a non-numeric end", rangeExpr)
	}
	if start > end {
		return 0, 0, fmt.Errorf("range %q starts after it ends", rangeExpr)
	}
	return start, end, nil
}

// ValidRange is used when accepting a new limit definition
func ValidRange(rangeExpr string) error {
	rangeExpr = strings.TrimSpace(rangeExpr)
	if rangeExpr == "" {
		return ErrEmptyInput
	}
	if strings.Contains(rangeExpr, "-") {
		_, _, err := ParseRange(rangeExpr)
		return err
	}
	if _, err := strconv.Atoi(rangeExpr); err != nil {
		return fmt.Errorf("range %q is not numeric", rangeExpr)
	}
	return nil
}
