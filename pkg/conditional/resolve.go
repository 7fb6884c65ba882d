// Package conditional resolves a conditional-time flow step (ordered
// time-windowed content branches plus an optional fallback) to the single
// content selection valid at a given instant, and translates selections into
// the delivery payload shape.
package conditional

import (
	"errors"
	"fmt"
	"time"

	flows "github.com/agentichq/agentic-events/pkg/schemas/flows/v1"
)

// ErrMalformedTime reports a branch window bound that cannot be parsed into
// a comparable time representation.
var ErrMalformedTime = errors.New("malformed time value")

// timeRep distinguishes the two window forms the configuration may declare.
type timeRep int

const (
	repClock   timeRep = iota + 1 // daily-recurring wall-clock time of day
	repInstant                    // absolute RFC 3339 instant
)

// timePoint is one parsed window bound.
type timePoint struct {
	rep     timeRep
	seconds int       // seconds since midnight, repClock only
	instant time.Time // repInstant only
}

var clockLayouts = []string{"15:04:05", "15:04"}

func parsePoint(s string) (timePoint, error) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			h, m, sec := t.Clock()
			return timePoint{rep: repClock, seconds: h*3600 + m*60 + sec}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return timePoint{rep: repInstant, instant: t}, nil
	}
	return timePoint{}, fmt.Errorf("%w: %q", ErrMalformedTime, s)
}

// window is one branch's parsed [start, end) pair.
type window struct {
	start, end timePoint
}

func parseWindow(b flows.TimeBranch) (window, error) {
	start, err := parsePoint(b.StartTime)
	if err != nil {
		return window{}, fmt.Errorf("startTime: %w", err)
	}
	end, err := parsePoint(b.EndTime)
	if err != nil {
		return window{}, fmt.Errorf("endTime: %w", err)
	}
	if start.rep != end.rep {
		return window{}, fmt.Errorf("%w: startTime %q and endTime %q mix time-of-day and instant forms",
			ErrMalformedTime, b.StartTime, b.EndTime)
	}
	return window{start: start, end: end}, nil
}

// contains implements the half-open match start <= now < end. A window whose
// start sorts after its end wraps (for clock windows, the crosses-midnight
// case) and matches now >= start || now < end. Equal bounds make an empty
// window that never matches.
func (w window) contains(now time.Time) bool {
	if w.start.rep == repClock {
		h, m, s := now.Clock()
		n := h*3600 + m*60 + s
		start, end := w.start.seconds, w.end.seconds
		if start == end {
			return false
		}
		if start < end {
			return n >= start && n < end
		}
		return n >= start || n < end
	}

	start, end := w.start.instant, w.end.instant
	if start.Equal(end) {
		return false
	}
	if start.Before(end) {
		return !now.Before(start) && now.Before(end)
	}
	return !now.Before(start) || now.Before(end)
}

// Resolve selects the content a conditional-time step renders at now.
//
// Branches are scanned in declaration order and the first whose window
// contains now wins, so callers control precedence by ordering branches.
// When no window matches, the fallback is returned if present; otherwise the
// result is nil, nil. Sending nothing at a given time is a legitimate
// outcome, not an error.
//
// now is supplied by the caller, never read from a system clock; resolution
// is a pure function of its inputs. Clock-form bounds ("15:04" or
// "15:04:05") recur daily and compare against now's wall clock in now's
// location; RFC 3339 bounds compare as absolute instants. The two forms may
// not be mixed within one branch.
//
// Every branch window is parsed before any is matched: a malformed bound
// anywhere aborts the whole resolution with an error wrapping
// ErrMalformedTime, regardless of whether an earlier branch already matched
// now.
func Resolve(meta flows.ConditionalTimeMetadata, now time.Time) (*flows.BranchContent, error) {
	windows := make([]window, len(meta.Branches))
	for i, b := range meta.Branches {
		w, err := parseWindow(b)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		windows[i] = w
	}

	for i, w := range windows {
		if w.contains(now) {
			content := meta.Branches[i].BranchContent
			return &content, nil
		}
	}

	if meta.Fallback != nil {
		content := *meta.Fallback
		return &content, nil
	}
	return nil, nil
}
