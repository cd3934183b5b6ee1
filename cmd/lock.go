package cmd

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/littlejohn-app/littlejohn/internal/config"
)

var instanceLock *flock.Flock

// AcquireLock takes the single-instance lock. Returns false when another
// instance already holds it.
func AcquireLock() (bool, error) {
	instanceLock = flock.New(filepath.Join(config.GetAppDir(), "littlejohn.lock"))
	return instanceLock.TryLock()
}

// ReleaseLock drops the single-instance lock.
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	return instanceLock.Unlock()
}
