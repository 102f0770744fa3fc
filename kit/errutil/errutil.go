package errutil

import (
	"errors"
	"fmt"
)

// OpError records a failed filesystem operation and the path it touched.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + " " + e.Path
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Op wraps err as an *OpError. It returns nil when err is nil.
func Op(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}

// PathOf returns the path of the first *OpError in err's chain.
func PathOf(err error) (string, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Path, true
	}
	return "", false
}

func Maybe(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
