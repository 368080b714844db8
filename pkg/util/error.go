package util

import (
	"sync"

	"go.uber.org/multierr"
)

// SyncError collects errors from multiple goroutines.
type SyncError struct {
	err   error
	mutex sync.Mutex
}

// Add the given error to the sync error.
func (se *SyncError) Add(err error) {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	multierr.AppendInto(&se.err, err)
}

// Returns the combined error (if any)
func (se *SyncError) AsError() error {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	return se.err
}
