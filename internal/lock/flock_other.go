//go:build !unix

package lock

import (
	"errors"
	"os"
)

// Without flock every Acquire fails; runs on these platforms need
// lock.disabled.
var errUnsupported = errors.New("file locking is not supported on this platform")

func tryLock(*os.File) (bool, error) {
	return false, errUnsupported
}

func unlock(*os.File) error {
	return errUnsupported
}
