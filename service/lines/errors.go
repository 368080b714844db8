package lines

import "github.com/pkg/errors"

var (
	// LineClaimError indicates that a line could not be claimed from
	// the kernel (busy, permission denied or invalid pin).
	LineClaimError = errors.New("line claim failed")
	IsLineClaim    = isErrorFunc(LineClaimError)
	// LineClosedError indicates an operation on a released line.
	LineClosedError = errors.New("line closed")
	IsLineClosed    = isErrorFunc(LineClosedError)
	// InvalidPinError indicates a pin number out of range for the chip.
	InvalidPinError = errors.New("invalid pin")
	IsInvalidPin    = isErrorFunc(InvalidPinError)
	// InvalidEdgeError indicates an unknown edge mode.
	InvalidEdgeError = errors.New("invalid edge mode")
	IsInvalidEdge    = isErrorFunc(InvalidEdgeError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
