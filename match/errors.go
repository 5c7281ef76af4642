package match

import (
	"errors"
	"fmt"

	"pkg.world.dev/world-engine/arena/types"
)

var (
	ErrNotFound         = errors.New("match not found")
	ErrTooEarly         = errors.New("match has not started yet")
	ErrUnacceptableTime = errors.New("actions are not accepted at this time")
	ErrIllegalAgent     = errors.New("agent is not controlled by this seat")
	ErrMalformedAction  = errors.New("malformed action")
	ErrNotAllowedSeat   = errors.New("player is not allowed to take a seat in this match")
	ErrRosterFull       = errors.New("match roster is full")
	ErrAlreadyJoined    = errors.New("player has already joined this match")
	ErrInvalidToken     = errors.New("invalid access token")
	ErrAlreadyExists    = errors.New("match already registered")
)

// TooEarlyError is returned while a match is open or armed. RetryAfter is the number of seconds left
// before the match starts, 0 when the start time is not known yet.
type TooEarlyError struct {
	RetryAfter int
	Phase      types.Phase
}

func (e *TooEarlyError) Error() string {
	if e.RetryAfter == 0 {
		return fmt.Sprintf("%s (phase %s)", ErrTooEarly.Error(), e.Phase)
	}
	return fmt.Sprintf("%s, retry after %ds", ErrTooEarly.Error(), e.RetryAfter)
}

func (e *TooEarlyError) Is(target error) bool {
	return target == ErrTooEarly //nolint:errorlint // sentinel comparison
}

// RetryAfter extracts the retry delay carried by a TooEarlyError anywhere in the chain.
func RetryAfter(err error) (int, bool) {
	var tooEarly *TooEarlyError
	if errors.As(err, &tooEarly) {
		return tooEarly.RetryAfter, true
	}
	return 0, false
}
