package config

import (
	"fmt"
	"path/filepath"

	"github.com/harrison/phonepilot/internal/filelock"
)

// AcquireRunLock takes the exclusive run lock under the home directory.
// It fails immediately when another supervisor already holds it; the
// caller must Unlock the returned lock when the run ends.
func AcquireRunLock() (*filelock.FileLock, error) {
	home, err := GetHome()
	if err != nil {
		return nil, err
	}

	lock := filelock.NewFileLock(filepath.Join(home, "run.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another run is already active (lock held at %s)", lock.Path())
	}
	return lock, nil
}
