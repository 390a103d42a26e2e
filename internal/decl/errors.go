package decl

import (
	"errors"
	"fmt"
)

// ErrParseFailure matches every error produced while obtaining a file's
// declarations, whatever the underlying cause.
var ErrParseFailure = errors.New("declaration parse failure")

// ParseError reports that the declarations of Path could not be obtained.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decl: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParseFailure) hold for every ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }

func parseErr(path string, err error) error {
	if errors.Is(err, ErrParseFailure) {
		return err
	}
	return &ParseError{Path: path, Err: err}
}
