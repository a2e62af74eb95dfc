package flight

import (
	"time"

	"cloud.google.com/go/civil"
)

// Placeholder is the literal some telegram columns carry instead of a value.
const Placeholder = "0"

// IsMeaningful reports whether a field value counts as set for merging:
// not nil, not an empty string and not the "0" placeholder.
//
// Only the string "0" is a placeholder. A zero duration or an altitude of 0
// is a real value.
func IsMeaningful(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != "" && x != Placeholder
	case *string:
		return x != nil && IsMeaningful(*x)
	case *civil.Date:
		return x != nil
	case *civil.Time:
		return x != nil
	case *time.Duration:
		return x != nil
	case *int:
		return x != nil
	default:
		return true
	}
}

// Merge combines the records extracted from the telegram columns of one row,
// in column order. For each field the first meaningful value wins and later
// ones are discarded. Until a meaningful value is seen the latest value is
// carried, so a row of placeholders still keeps its placeholder.
func Merge(parts ...Record) Record {
	var out Record
	for _, p := range parts {
		mergeString(&out.FlightID, p.FlightID)
		mergeString(&out.UAVType, p.UAVType)
		mergeString(&out.RegNumber, p.RegNumber)
		mergePtr(&out.Date, p.Date)
		mergePtr(&out.DepTime, p.DepTime)
		mergePtr(&out.ArrTime, p.ArrTime)
		mergePtr(&out.Duration, p.Duration)
		mergeString(&out.DepCoord, p.DepCoord)
		mergeString(&out.DestCoord, p.DestCoord)
		mergeString(&out.RouteCoords, p.RouteCoords)
		mergePtr(&out.MinAlt, p.MinAlt)
		mergePtr(&out.MaxAlt, p.MaxAlt)
		mergeString(&out.City, p.City)
	}
	return out
}

func mergeString(dst *string, v string) {
	if !IsMeaningful(*dst) {
		*dst = v
	}
}

// mergePtr copies the pointed-to value so the merged record shares no
// storage with its parts.
func mergePtr[T any](dst **T, v *T) {
	if IsMeaningful(*dst) || v == nil {
		return
	}
	c := *v
	*dst = &c
}
