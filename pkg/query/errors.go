package query

import (
	"errors"
	"fmt"
)

// RowsLimitExceededError is returned when a hierarchy level holds more nodes than the
// applicable size limit. It is a distinguished outcome: callers are expected to offer
// filtering or retry with a bigger limit.
type RowsLimitExceededError struct {
	Limit int
	Count int
}

func (e *RowsLimitExceededError) Error() string {
	return fmt.Sprintf("hierarchy level size limit of %d exceeded: %d nodes", e.Limit, e.Count)
}

// IsRowsLimitExceeded returns the RowsLimitExceededError wrapped by err, if any.
func IsRowsLimitExceeded(err error) (*RowsLimitExceededError, bool) {
	var target *RowsLimitExceededError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// SizeLimit caps the number of nodes of a hierarchy level. The zero value means no limit
// was requested and the configured default applies.
type SizeLimit int

const (
	// Unbounded disables the size check.
	Unbounded SizeLimit = -1

	DefaultLevelSizeLimit SizeLimit = 1000
)

// IsSet reports whether a limit was requested.
func (l SizeLimit) IsSet() bool {
	return l != 0
}

// Exceeded reports whether count nodes overflow the limit.
func (l SizeLimit) Exceeded(count int) bool {
	return l > 0 && count > int(l)
}

// Or returns l when set and def otherwise.
func (l SizeLimit) Or(def SizeLimit) SizeLimit {
	if l.IsSet() {
		return l
	}
	return def
}
