package core

import "time"

const (
	FilterAll    LifecycleFilter = "all"
	FilterActive LifecycleFilter = "active"
	FilterPaused LifecycleFilter = "paused"
)

// LifecycleFilter is a browsing filter tag. "paused" groups everything
// that is not currently running: paused, terminated and completed
// commitments alike.
type LifecycleFilter string

func (f LifecycleFilter) Validate() bool {
	switch f {
	case FilterAll, FilterActive, FilterPaused, "":
		return true
	}
	return false
}

// FilterByLifecycle partitions commitments by their lifecycle as of
// "today". An empty or "all" filter returns the input unchanged.
func FilterByLifecycle(commitments []Commitment, filter LifecycleFilter, today time.Time) []Commitment {
	if filter == FilterAll || filter == "" {
		return commitments
	}
	out := make([]Commitment, 0, len(commitments))
	for _, c := range commitments {
		active := Classify(c, today) == LifecycleActive
		if (filter == FilterActive) == active {
			out = append(out, c)
		}
	}
	return out
}
