package intr

import "github.com/pkg/errors"

var (
	// AlreadyAttachedError indicates that the pin already has an
	// attached interrupt. Detach it first.
	AlreadyAttachedError = errors.New("interrupt already attached")
	IsAlreadyAttached    = isErrorFunc(AlreadyAttachedError)
	// NilHandlerError indicates a missing handler.
	NilHandlerError = errors.New("nil handler")
	IsNilHandler    = isErrorFunc(NilHandlerError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
