package dataset

import (
	"strings"
	"time"
)

// Normalizer converts the export's heterogeneous timestamp representations
// (ISO-8601 with or without offset, date-only strings, already-parsed
// values) into canonical UTC timestamps. Timezone-naive inputs are
// interpreted in Loc; the dataset's authors emit UTC-intended naive
// timestamps, so UTC is the default. Naive and aware values must never be
// compared directly — everything goes through here first.
type Normalizer struct {
	Loc *time.Location
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Loc: loc}
}

// Layouts carrying an explicit offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05Z07:00",
}

// Layouts without offset, interpreted in the Normalizer's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize returns the canonical UTC timestamp for v, or ok=false when v
// is absent, empty, or unparseable. It never panics or errors; a bad value
// in one record must not abort the batch. Normalizing an already-canonical
// timestamp returns it unchanged.
func (n *Normalizer) Normalize(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		return n.parseString(t)
	default:
		return time.Time{}, false
	}
}

func (n *Normalizer) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, n.Loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
