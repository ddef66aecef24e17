package record

import (
	"strconv"
	"strings"
	"time"
)

// timeLayouts is a short, fixed, ordered list of ISO-8601-like layouts
// tried in turn when the value isn't already numeric. Unlike
// timegrinder, the order never changes to favour the last layout that
// matched.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ToEpochSeconds implements §4.2's to_float(ts): accepts numbers,
// decimal-string numbers, and ISO-8601-like strings (falling back to a
// date-layout scan). Returns ok=false when every attempt fails. Its
// only caller, FlowFromFields, ignores ok and keeps 0; no record is
// dropped for an unparseable timestamp.
func ToEpochSeconds(v string) (int64, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}
