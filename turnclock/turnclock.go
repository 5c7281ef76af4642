// Package turnclock computes match deadlines from a start time and the per-match turn durations.
// Everything here is a pure function of its arguments. Turn numbering is 1-based while a match is live
// and 0 before it starts.
package turnclock

import "time"

// OperationDeadline is the instant the operation window of the given turn closes:
// start + operationSeconds*turn + transitionSeconds*(turn-1).
func OperationDeadline(start int64, turn, operationSeconds, transitionSeconds int) time.Time {
	offset := int64(operationSeconds)*int64(turn) + int64(transitionSeconds)*int64(turn-1)
	return time.Unix(start+offset, 0)
}

// TransitionDeadline is the instant the transition window of the given turn closes, which is also the
// instant the operation window of the next turn opens.
func TransitionDeadline(start int64, turn, operationSeconds, transitionSeconds int) time.Time {
	return OperationDeadline(start, turn, operationSeconds, transitionSeconds).
		Add(time.Duration(transitionSeconds) * time.Second)
}

// IsInTransitionWindow reports whether now falls in the last transitionSeconds of its turn period.
// The period is operationSeconds+transitionSeconds long and anchored at start; instants before start
// are never inside a transition window.
func IsInTransitionWindow(start int64, operationSeconds, transitionSeconds int, now time.Time) bool {
	elapsed := now.Sub(time.Unix(start, 0))
	if elapsed < 0 {
		return false
	}
	period := time.Duration(operationSeconds+transitionSeconds) * time.Second
	if period <= 0 {
		return false
	}
	return elapsed%period >= time.Duration(operationSeconds)*time.Second
}

// TurnAt returns the turn whose operation or transition window contains now, or 0 before start.
func TurnAt(start int64, operationSeconds, transitionSeconds int, now time.Time) int {
	elapsed := now.Sub(time.Unix(start, 0))
	if elapsed < 0 {
		return 0
	}
	period := time.Duration(operationSeconds+transitionSeconds) * time.Second
	if period <= 0 {
		return 0
	}
	return int(elapsed/period) + 1
}

// UntilStart returns the whole number of seconds left before start, rounded up. It is never negative.
func UntilStart(start int64, now time.Time) int {
	remaining := time.Unix(start, 0).Sub(now)
	if remaining <= 0 {
		return 0
	}
	secs := remaining / time.Second
	if remaining%time.Second != 0 {
		secs++
	}
	return int(secs)
}
