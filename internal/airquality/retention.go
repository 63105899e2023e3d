package airquality

import (
	"fmt"
	"time"
)

// Retention describes how much history to keep, measured back from the newest
// collection in the dataset. The zero value keeps everything.
type Retention struct {
	span    int64
	bounded bool
}

// KeepAll disables pruning.
func KeepAll() Retention {
	return Retention{}
}

// KeepWithin keeps buckets no older than seconds before the newest collection.
// A span of 0 keeps only the latest batch.
func KeepWithin(seconds int64) Retention {
	if seconds < 0 {
		seconds = 0
	}
	return Retention{span: seconds, bounded: true}
}

// RetentionFromSeconds maps the command-line convention, where a negative span
// means "keep everything", onto a Retention.
func RetentionFromSeconds(seconds int64) Retention {
	if seconds < 0 {
		return KeepAll()
	}
	return KeepWithin(seconds)
}

// Bounded reports whether the retention prunes anything at all.
func (r Retention) Bounded() bool {
	return r.bounded
}

// Span returns the retention window. It is meaningless when Bounded is false.
func (r Retention) Span() time.Duration {
	return time.Duration(r.span) * time.Second
}

// Cutoff returns the oldest bucket timestamp that survives given the newest one.
func (r Retention) Cutoff(newest int64) int64 {
	return newest - r.span
}

func (r Retention) String() string {
	if !r.bounded {
		return "unbounded"
	}
	return fmt.Sprintf("%ds", r.span)
}
