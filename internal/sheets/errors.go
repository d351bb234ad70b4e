package sheets

import (
	"errors"
	"fmt"
)

// ErrInvalidAddress indicates a malformed column letter or cell-range string.
var ErrInvalidAddress = errors.New("invalid cell address")

// SchemaError indicates the first data row of a sheet contains a cell that
// cannot anchor type inference (a formula or error value). Syncing that sheet
// cannot proceed.
type SchemaError struct {
	Sheet  string
	Column string
	Cell   string // e.g. "C2"
	Kind   ValueKind
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema inference failed for sheet %q: column %q cell %s holds a %s value",
		e.Sheet, e.Column, e.Cell, e.Kind)
}

// AddressError wraps ErrInvalidAddress with the offending input.
type AddressError struct {
	Input  string
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid cell address %q: %s", e.Input, e.Reason)
}

func (e *AddressError) Unwrap() error {
	return ErrInvalidAddress
}
