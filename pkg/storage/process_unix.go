//go:build unix

package storage

import (
	"errors"
	"syscall"
)

// processAlive sends signal 0 to pid. EPERM means it runs under another
// user.
func processAlive(pid int) (alive, known bool) {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM), true
}
