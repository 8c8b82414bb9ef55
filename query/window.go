package query

import (
	"fmt"
	"strconv"
	"time"
)

// InvalidWindowError reports a time-window token that could not be parsed.
type InvalidWindowError struct {
	Token string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid time window format: %s", e.Token)
}

// ParseWindow converts a relative window token like "24h", "7d" or "2w" into
// a duration. The unit suffix must be h, d or w and the count a positive
// integer.
func ParseWindow(token string) (time.Duration, error) {
	if len(token) < 2 {
		return 0, &InvalidWindowError{Token: token}
	}
	unit := token[len(token)-1]
	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return 0, &InvalidWindowError{Token: token}
	}
	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, &InvalidWindowError{Token: token}
	}
}
