// Package id generates the sortable identifiers attached to hierarchy providers and level
// requests in logs and traces.
package id

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mutex   sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a new identifier. Identifiers created later sort after earlier ones.
func New() string {
	return NewFromTime(time.Now())
}

// NewFromTime returns a new identifier for t. Identifiers created for the same
// millisecond are still distinct and increasing.
func NewFromTime(t time.Time) string {
	mutex.Lock()
	defer mutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Time returns the creation time encoded in s.
func Time(s string) (time.Time, error) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(v.Time()), nil
}

// IsValid reports whether s is a well-formed identifier.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
