package boxconv

import (
	"errors"
	"fmt"
)

// Kind classifies conversion failures for the batch report.
type Kind int

// The failure kinds.
const (
	KindUnknown Kind = iota
	MalformedInput  // The input is not a well-formed annotation file.
	ValidationError // The record has no valid image extent.
	UnknownLabel    // A label is missing from the class names.
	IOError         // Reading or writing a file failed.
	InferenceError  // The detector or the text reader failed.
)

func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "MalformedInput"
	case ValidationError:
		return "ValidationError"
	case UnknownLabel:
		return "UnknownLabel"
	case IOError:
		return "IOError"
	case InferenceError:
		return "InferenceError"
	}
	return "Unknown"
}

// Error is a conversion error with a kind and the file it relates to.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %q: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError returns an *Error of kind k with a formatted cause.
func newError(k Kind, path, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Path: path, Err: fmt.Errorf(format, args...)}
}

// UnknownLabelError reports a box label that is not in the class names.
type UnknownLabelError struct {
	Label string
	Box   int // Index of the box in the record.
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q (box %d)", e.Label, e.Box)
}

// KindOf returns the kind of err: the kind of the outermost *Error in its chain, UnknownLabel for
// an *UnknownLabelError, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ul *UnknownLabelError
	if errors.As(err, &ul) {
		return UnknownLabel
	}
	return KindUnknown
}
