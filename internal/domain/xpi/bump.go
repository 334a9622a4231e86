package xpi

import (
	"fmt"
	"strconv"
	"strings"
)

// BumpLevel selects which part of a release version is incremented.
type BumpLevel string

// Supported bump levels.
const (
	BumpMajor BumpLevel = "major"
	BumpMinor BumpLevel = "minor"
	BumpPatch BumpLevel = "patch"
)

// Bump increments a three-part numeric version.
// An empty level means patch; any other unknown level is rejected.
func Bump(version string, level BumpLevel) (string, error) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("release %q is not a three-part version: %w", version, ErrInvalidArgument)
	}

	var numbers [3]int

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", fmt.Errorf("release %q has a non-numeric part %q: %w", version, part, ErrInvalidArgument)
		}

		numbers[i] = n
	}

	switch level {
	case BumpMajor:
		numbers = [3]int{numbers[0] + 1, 0, 0}
	case BumpMinor:
		numbers = [3]int{numbers[0], numbers[1] + 1, 0}
	case BumpPatch, "":
		numbers[2]++
	default:
		return "", fmt.Errorf("unexpected release increase %q: %w", level, ErrInvalidArgument)
	}

	return fmt.Sprintf("%d.%d.%d", numbers[0], numbers[1], numbers[2]), nil
}
