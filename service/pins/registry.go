package pins

import (
	"sync"

	"github.com/pkg/errors"
)

// Owner identifies the kind of driver holding a pin.
type Owner string

const (
	OwnerInterrupt Owner = "interrupt"
	OwnerPWM       Owner = "pwm"
	OwnerDigital   Owner = "digital"
)

var (
	// PinBusyError indicates that a pin already has an active driver.
	PinBusyError = errors.New("pin busy")
	IsPinBusy    = isErrorFunc(PinBusyError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// Registry tracks which driver owns which pin, enforcing at most one
// active driver per pin regardless of backend. The lock is held only
// for insert/remove/lookup, never across a blocking operation.
type Registry struct {
	mutex  sync.Mutex
	owners map[int]Owner
}

// NewRegistry creates an empty pin claim registry.
func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[int]Owner),
	}
}

// Claim records the given owner for the given pin.
// Returns a PinBusyError when the pin already has an owner.
func (r *Registry) Claim(pin int, owner Owner) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if current, found := r.owners[pin]; found {
		return errors.Wrapf(PinBusyError, "pin %d in use by %s driver", pin, current)
	}
	r.owners[pin] = owner
	return nil
}

// Release removes the claim on the given pin.
// Releasing an unclaimed pin is a no-op.
func (r *Registry) Release(pin int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.owners, pin)
}

// Owner returns the current owner of the given pin.
func (r *Registry) Owner(pin int) (Owner, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	owner, found := r.owners[pin]
	return owner, found
}

// ActiveCount returns the number of claimed pins.
func (r *Registry) ActiveCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.owners)
}
