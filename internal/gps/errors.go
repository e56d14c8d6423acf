package gps

import (
	"errors"
	"fmt"
)

// ErrDecode matches every error returned by the sentence decoders.
var ErrDecode = errors.New("nmea: decode failed")

// ParsingError reports a sentence that lacks the fields its type requires.
type ParsingError struct {
	Msg string
}

func (e *ParsingError) Error() string { return "nmea: parsing error: " + e.Msg }

func (e *ParsingError) Is(target error) bool { return target == ErrDecode }

// InvalidDataError reports a field that is present but malformed or out of range.
type InvalidDataError struct {
	Msg string
}

func (e *InvalidDataError) Error() string { return "nmea: invalid data: " + e.Msg }

func (e *InvalidDataError) Is(target error) bool { return target == ErrDecode }

func parsingErrorf(format string, args ...any) error {
	return &ParsingError{Msg: fmt.Sprintf(format, args...)}
}

func invalidDataf(format string, args ...any) error {
	return &InvalidDataError{Msg: fmt.Sprintf(format, args...)}
}
