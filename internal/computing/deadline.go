package computing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

var relativeDeadline = regexp.MustCompile(`^in (\d+)([mhd])$`)

var deadlineUnits = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDeadline accepts an absolute timestamp or "in <N><m|h|d>" relative to now.
// Timestamps without a zone are read as UTC.
func ParseDeadline(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, models.NewError(models.KindInvalidDeadline, "deadline is empty")
	}

	if m := relativeDeadline.FindStringSubmatch(value); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			return time.Time{}, models.NewError(models.KindInvalidDeadline, "invalid deadline offset %q", value)
		}
		unit := deadlineUnits[m[2]]
		if n > math.MaxInt64/int64(unit) {
			return time.Time{}, models.NewError(models.KindInvalidDeadline, "deadline offset %q is too large", value)
		}
		return now.Add(time.Duration(n) * unit).UTC(), nil
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, models.NewError(models.KindInvalidDeadline,
		"invalid deadline %q, use an ISO timestamp or a relative form like 'in 2h'", value)
}

// FormatDeadline renders the time left until deadline in its largest whole unit.
func FormatDeadline(deadline, now time.Time) string {
	diff := deadline.Sub(now)
	switch {
	case diff <= 0:
		return "expired"
	case diff >= 24*time.Hour:
		return fmt.Sprintf("in %dd", int64(diff/(24*time.Hour)))
	case diff >= time.Hour:
		return fmt.Sprintf("in %dh", int64(diff/time.Hour))
	}
	return fmt.Sprintf("in %dm", int64(diff/time.Minute))
}
