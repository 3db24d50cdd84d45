//go:build !unix

package storage

// processAlive cannot tell on this platform; locks fall back to their age
func processAlive(pid int) (alive, known bool) {
	return true, false
}
