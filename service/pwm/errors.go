package pwm

import "github.com/pkg/errors"

var (
	// AlreadyRunningError indicates that the pin already has an active
	// PWM channel. Stop it first.
	AlreadyRunningError = errors.New("pwm already running")
	IsAlreadyRunning    = isErrorFunc(AlreadyRunningError)
	// NotRunningError indicates an operation on a pin without an
	// active PWM channel.
	NotRunningError = errors.New("pwm not running")
	IsNotRunning    = isErrorFunc(NotRunningError)
	// InvalidFrequencyError indicates a frequency <= 0.
	InvalidFrequencyError = errors.New("invalid frequency")
	IsInvalidFrequency    = isErrorFunc(InvalidFrequencyError)
	// InvalidBackendError indicates an unknown backend name.
	InvalidBackendError = errors.New("invalid backend")
	IsInvalidBackend    = isErrorFunc(InvalidBackendError)
	// HardwareUnsupportedError indicates that the pin has no native
	// PWM channel. Use a software backend instead.
	HardwareUnsupportedError = errors.New("no hardware pwm on pin")
	IsHardwareUnsupported    = isErrorFunc(HardwareUnsupportedError)
	// AttributeWriteError indicates a failed sysfs attribute write.
	AttributeWriteError = errors.New("pwm attribute write failed")
	IsAttributeWrite    = isErrorFunc(AttributeWriteError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
