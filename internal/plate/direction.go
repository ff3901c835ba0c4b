package plate

import (
	"fmt"
	"strings"
)

// Direction tags a plate observation with the side of the barrier it was seen on.
type Direction string

const (
	Entry Direction = "entry"
	Exit  Direction = "exit"
)

// ParseDirection matches s case-insensitively against the known directions.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case string(Entry):
		return Entry, nil
	case string(Exit):
		return Exit, nil
	default:
		return "", fmt.Errorf("invalid direction %q (must be %q or %q)", s, Entry, Exit)
	}
}

// ResolveDirection returns the direction requested by a caller, or def when the
// request is empty or unknown. rejected is true only for a non-empty unknown value.
func ResolveDirection(requested string, def Direction) (dir Direction, rejected bool) {
	if requested == "" {
		return def, false
	}
	d, err := ParseDirection(requested)
	if err != nil {
		return def, true
	}
	return d, false
}

// String implements fmt.Stringer.
func (d Direction) String() string { return string(d) }
