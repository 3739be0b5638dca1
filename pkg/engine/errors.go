package engine

import "errors"

var (
	// ErrUnknownField is returned for operations on undeclared fields.
	ErrUnknownField = errors.New("engine: unknown field")
	// ErrStaleResult is returned by Blur when a newer edit or blur of the
	// same field superseded it. The result was discarded.
	ErrStaleResult = errors.New("engine: stale validation result discarded")
	// ErrNotSubmitted is returned by Pay before a successful submit.
	ErrNotSubmitted = errors.New("engine: form has not been submitted")
	// ErrNotSelectable is returned by Select on fields without options.
	ErrNotSelectable = errors.New("engine: field is not a choice field")
)
