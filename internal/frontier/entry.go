package frontier

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a frontier entry.
type State int

const (
	// Queued entries wait for dispatch
	Queued State = iota
	// InProgress entries are held by exactly one worker
	InProgress
	// Done entries are never dispatched again
	Done
	// Failed entries exhausted their attempts and are never dispatched again
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "queued":
		return Queued, nil
	case "in_progress":
		return InProgress, nil
	case "done":
		return Done, nil
	case "failed":
		return Failed, nil
	}
	return 0, fmt.Errorf("unknown frontier state %q", s)
}

// Entry is one canonical URL known to the frontier.
type Entry struct {
	URL          string
	Host         string
	State        State
	DiscoveredAt time.Time
	Attempts     int
	// NotBefore delays dispatch of a retried entry; zero means immediately
	NotBefore time.Time
}

// AddResult is the outcome of Frontier.Add.
type AddResult int

const (
	Added AddResult = iota
	AlreadyKnown
	Rejected
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyKnown:
		return "already_known"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Counts is a snapshot of entries per state.
type Counts struct {
	Queued     int
	InProgress int
	Done       int
	Failed     int
}

// Total is the number of known URLs.
func (c Counts) Total() int {
	return c.Queued + c.InProgress + c.Done + c.Failed
}
