package command

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MinDurationMinutes and MaxDurationMinutes bound every user-supplied
	// duration: one minute up to thirty days.
	MinDurationMinutes = 1
	MaxDurationMinutes = 43200
)

var durationToken = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([dhm])?`)

// ParseDuration turns user input like "90", "24h", "1d 12h 30m", or "1.5h"
// into whole minutes. Unitless numbers are minutes; fractional values are
// rounded. Anything outside [MinDurationMinutes, MaxDurationMinutes] or with
// unparseable leftovers is rejected.
func ParseDuration(input string) (int, error) {
	compact := strings.ToLower(strings.Join(strings.Fields(input), ""))
	if compact == "" {
		return 0, commandInvalidInputError("command: duration is required")
	}

	matches := durationToken.FindAllStringSubmatch(compact, -1)
	if len(matches) == 0 {
		return 0, commandInvalidInputError(fmt.Sprintf("command: cannot parse duration %q", input))
	}

	consumed := 0
	total := 0.0
	for _, match := range matches {
		consumed += len(match[0])
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, commandInvalidInputError(fmt.Sprintf("command: cannot parse duration %q", input))
		}
		switch match[2] {
		case "d":
			total += value * 24 * 60
		case "h":
			total += value * 60
		default:
			total += value
		}
	}
	if consumed != len(compact) {
		return 0, commandInvalidInputError(fmt.Sprintf("command: cannot parse duration %q", input))
	}

	minutes := int(math.Round(total))
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return 0, commandInvalidInputError(fmt.Sprintf(
			"command: duration must be between %d and %d minutes, got %d",
			MinDurationMinutes, MaxDurationMinutes, minutes,
		))
	}
	return minutes, nil
}

// FormatRemaining renders a countdown as "1d 2h 30m". Sub-minute remainders
// round up so a timer never displays "0m" while still alive; non-positive
// input renders as "0m".
func FormatRemaining(remaining time.Duration) string {
	if remaining <= 0 {
		return "0m"
	}
	minutes := int((remaining + time.Minute - 1) / time.Minute)

	days := minutes / (24 * 60)
	minutes -= days * 24 * 60
	hours := minutes / 60
	minutes -= hours * 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, strconv.Itoa(days)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.Itoa(hours)+"h")
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, strconv.Itoa(minutes)+"m")
	}
	return strings.Join(parts, " ")
}
