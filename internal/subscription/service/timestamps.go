package service

import (
	"math"
	"time"
)

// epochToTime normalizes a provider-reported timestamp to UTC. Providers
// report epoch seconds, but values above 1e12 are treated as already in
// milliseconds. Non-finite or non-positive inputs normalize to nil.
func epochToTime(value float64) *time.Time {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return nil
	}
	if value > 1e12 {
		value = value / 1000
	}
	sec := int64(value)
	nsec := int64(math.Round((value - float64(sec)) * float64(time.Second)))
	t := time.Unix(sec, nsec).UTC()
	return &t
}
