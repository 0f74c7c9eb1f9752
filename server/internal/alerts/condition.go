package alerts

import (
	"fmt"
	"strconv"
	"strings"
)

// condition is a parsed rule expression of the form "series op threshold",
// for example:
//
//	connections_active > 500
//	messages_dropped_total >= 100
//	rooms > 1000
//	upgrade_failures_total > 0
//
// series is any name returned by metrics.Values.
type condition struct {
	series    string
	op        string
	threshold float64
}

func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"series op value\"", expr)
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, parts[1])
	}
	threshold, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold: %w", expr, err)
	}
	return condition{series: parts[0], op: parts[1], threshold: threshold}, nil
}

// eval reports whether the condition holds for series, and the value it was
// tested against. A series that is absent never fires.
func (c condition) eval(series map[string]float64) (bool, float64) {
	v, ok := series[c.series]
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.op, c.threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
