package branchstats

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel causes wrapped by the typed errors below.
var (
	ErrDuplicateVar       = errors.New("variable reported more than once for the same direction")
	ErrInvalidVar         = errors.New("variable index must be non-negative")
	ErrInvalidCount       = errors.New("branch count must be non-negative")
	ErrInvalidDepth       = errors.New("depth must be non-negative")
	ErrDepthOutOfRange    = errors.New("depth exceeds the largest encodable depth")
	ErrLengthMismatch     = errors.New("column length does not match declared count")
	ErrTruncated          = errors.New("byte stream truncated")
	ErrTrailingBytes      = errors.New("byte stream longer than declared counts")
	ErrBadMagic           = errors.New("unrecognized stream header")
	ErrUnsupportedVersion = errors.New("unsupported stream version")
	ErrChecksum           = errors.New("checksum mismatch")
)

// location is the optional (direction, var) context shared by all error kinds.
type location struct {
	Dir    Direction
	Var    Var
	HasDir bool
	HasVar bool
}

func (l location) String() string {
	switch {
	case l.HasDir && l.HasVar:
		return fmt.Sprintf(" [%s var %d]", l.Dir, l.Var)
	case l.HasDir:
		return fmt.Sprintf(" [%s]", l.Dir)
	default:
		return ""
	}
}

// CaptureError reports malformed statistics handed out by a solver.
type CaptureError struct {
	Op string
	location
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s%s: %v", e.Op, e.location, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// TransferError reports a truncated or inconsistent serialized record.
type TransferError struct {
	Op     string
	Offset int
	location
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s at byte %d%s: %v", e.Op, e.Offset, e.location, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// AccumulationError reports a record rejected before any target state changed,
// or a failure of the target while applying the merged update.
type AccumulationError struct {
	Op string
	location
	Err error
}

func (e *AccumulationError) Error() string {
	return fmt.Sprintf("accumulate %s%s: %v", e.Op, e.location, e.Err)
}

func (e *AccumulationError) Unwrap() error { return e.Err }

// NewCaptureError builds a CaptureError scoped to dir and, when v >= 0, to var v.
func NewCaptureError(op string, dir Direction, v Var, err error) *CaptureError {
	return &CaptureError{Op: op, location: at(dir, v), Err: err}
}

// NewTransferError builds a TransferError at the given byte offset.
func NewTransferError(op string, offset int, err error) *TransferError {
	return &TransferError{Op: op, Offset: offset, Err: err}
}

// NewTransferErrorAt builds a TransferError scoped to dir and, when v >= 0,
// to var v.
func NewTransferErrorAt(op string, offset int, dir Direction, v Var, err error) *TransferError {
	return &TransferError{Op: op, Offset: offset, location: at(dir, v), Err: err}
}

// NewAccumulationError builds an AccumulationError scoped to dir and, when
// v >= 0, to var v.
func NewAccumulationError(op string, dir Direction, v Var, err error) *AccumulationError {
	return &AccumulationError{Op: op, location: at(dir, v), Err: err}
}

// InvariantError is returned by Validate and FromColumns. Callers convert it
// into the error kind of their stage.
type InvariantError struct {
	location
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("record invariant%s: %v", e.location, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// Where returns the direction and var the violation was found at. ok is false
// for record-level violations such as a negative depth.
func (e *InvariantError) Where() (dir Direction, v Var, ok bool) {
	if !e.HasDir {
		return 0, -1, false
	}
	if !e.HasVar {
		return e.Dir, -1, true
	}
	return e.Dir, e.Var, true
}

// MaxDepthLimit is the largest depth a record may carry. The record format
// stores depths as i64 but every reader narrows them to int32.
const MaxDepthLimit = math.MaxInt32

// CheckDepth reports whether d is a depth a record may carry.
func CheckDepth(d int64) error {
	switch {
	case d < 0:
		return fmt.Errorf("%w: %d", ErrInvalidDepth, d)
	case d > MaxDepthLimit:
		return fmt.Errorf("%w: %d > %d", ErrDepthOutOfRange, d, MaxDepthLimit)
	}
	return nil
}

func checkDepths(maxDepth, maxTotalDepth int) error {
	if err := CheckDepth(int64(maxDepth)); err != nil {
		return &InvariantError{Err: fmt.Errorf("maxDepth: %w", err)}
	}
	if err := CheckDepth(int64(maxTotalDepth)); err != nil {
		return &InvariantError{Err: fmt.Errorf("maxTotalDepth: %w", err)}
	}
	return nil
}

func at(dir Direction, v Var) location {
	if v < 0 {
		return location{Dir: dir, HasDir: true}
	}
	return location{Dir: dir, Var: v, HasDir: true, HasVar: true}
}

func invariant(dir Direction, v Var, err error) *InvariantError {
	return &InvariantError{location: at(dir, v), Err: err}
}
