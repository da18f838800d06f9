package settings

import (
	"strconv"
	"time"

	"pipelined.dev/graph/pmt"
)

// Ctx scopes a parameter change: an optional validity timestamp and a
// user-defined multiplexing context.
type Ctx struct {
	Time    *time.Time
	Context *pmt.Map
}

// At returns a context valid from t.
func At(t time.Time) Ctx {
	return Ctx{Time: &t}
}

// Before orders contexts by time, a context without time sorts first.
func (c Ctx) Before(other Ctx) bool {
	if c.Time == nil {
		return other.Time != nil
	}
	return other.Time != nil && c.Time.Before(*other.Time)
}

// Hash combines the epoch count and the base-64 canonical encoding of
// every context value.
func (c Ctx) Hash() uint64 {
	var seed uint64
	if c.Time != nil {
		seed = pmt.HashCombine(seed, strconv.FormatInt(c.Time.UnixNano(), 10))
	}
	c.Context.Range(func(k string, v pmt.Value) bool {
		seed = pmt.HashCombine(seed, k)
		seed = pmt.HashValue(seed, v)
		return true
	})
	return seed
}
