// Package history loads the user's listening history and tags each play with
// the part of the day it happened in.
package history

import "time"

// Bucket is a coarse time-of-day label.
type Bucket string

const (
	Morning   Bucket = "Morning"   // [05:00, 12:00)
	Afternoon Bucket = "Afternoon" // [12:00, 17:00)
	Evening   Bucket = "Evening"   // everything else, including the small hours
)

// BucketForHour maps an hour of the day (0-23) to its Bucket.
func BucketForHour(hour int) Bucket {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	default:
		return Evening
	}
}

// BucketAt returns the Bucket for t's wall-clock hour in loc.
// A nil loc means local time.
func BucketAt(t time.Time, loc *time.Location) Bucket {
	if loc == nil {
		loc = time.Local
	}
	return BucketForHour(t.In(loc).Hour())
}

// Valid reports whether b is one of the three known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case Morning, Afternoon, Evening:
		return true
	}
	return false
}
