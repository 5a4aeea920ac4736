package tuner

import "fmt"

// ErrSpaceMismatch matches any SpaceMismatchError with errors.Is.
var ErrSpaceMismatch = &SpaceMismatchError{}

// SpaceMismatchError reports a session whose stored history was recorded
// for a different parameter space. The session must be reset before it
// can be used with the new space.
type SpaceMismatchError struct {
	SessionID string
	Stored    string
	Current   string
}

func (e *SpaceMismatchError) Error() string {
	return fmt.Sprintf("session %s was recorded for parameter space %s, current space is %s; reset the session to start over",
		e.SessionID, e.Stored, e.Current)
}

func (e *SpaceMismatchError) Is(target error) bool {
	_, ok := target.(*SpaceMismatchError)
	return ok
}

// ErrDimensionMismatch matches any DimensionMismatchError with errors.Is.
var ErrDimensionMismatch = &DimensionMismatchError{}

// DimensionMismatchError reports a parameter vector of the wrong length.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("parameter vector has %d values, space has %d parameters", e.Got, e.Want)
}

func (e *DimensionMismatchError) Is(target error) bool {
	_, ok := target.(*DimensionMismatchError)
	return ok
}

// ErrInvalidInput matches any InputError with errors.Is.
var ErrInvalidInput = &InputError{}

// InputError reports a malformed step input.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Field + " " + e.Reason
}

func (e *InputError) Is(target error) bool {
	_, ok := target.(*InputError)
	return ok
}
