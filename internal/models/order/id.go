package order

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// IDPrefix starts every order ID. The ID doubles as the payment reference.
const IDPrefix = "NB-"

var idPattern = regexp.MustCompile(`^NB-\d+$`)

// IsValidID reports whether s looks like an order ID.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// IDGenerator issues "NB-<epoch millis>" IDs together with the matching
// creation timestamp. Two calls within one process never return the same
// value: on a clock tie or rewind the last value is bumped by one.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator returns a generator using the given clock, time.Now if nil.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a new order ID and its creation time in epoch millis.
func (g *IDGenerator) Next() (string, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis

	return IDPrefix + strconv.FormatInt(millis, 10), millis
}
