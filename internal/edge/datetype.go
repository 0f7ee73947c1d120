package edge

import (
	"fmt"
	"strings"
)

// DateType selects which edge date a query filters on.
type DateType string

const (
	Event        DateType = "EVENT"
	Activity     DateType = "ACTIVITY"
	Any          DateType = "ANY"
	Load         DateType = "LOAD"
	ActivityLoad DateType = "ACTIVITY_LOAD"
	AnyLoad      DateType = "ANY_LOAD"
)

// DateTypes lists every date type.
var DateTypes = []DateType{Event, Activity, Any, Load, ActivityLoad, AnyLoad}

// ParseDateType parses a date type name, case-insensitively. An empty
// string is Event.
func ParseDateType(s string) (DateType, error) {
	if s == "" {
		return Event, nil
	}
	t := DateType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range DateTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown date type %q", s)
}

// IsLoad reports whether t filters on the load date.
func (t DateType) IsLoad() bool {
	return t == Load || t == ActivityLoad || t == AnyLoad
}

// IsAny reports whether t accepts every date code.
func (t DateType) IsAny() bool {
	return t == Any || t == AnyLoad
}

// Accepts reports whether an edge recorded under code passes t.
func (t DateType) Accepts(code string) bool {
	switch t {
	case Event, Load:
		return code == CodeEvent || code == CodeBoth
	case Activity, ActivityLoad:
		return code == CodeActivity || code == CodeBoth
	case Any, AnyLoad:
		return true
	default:
		return false
	}
}
