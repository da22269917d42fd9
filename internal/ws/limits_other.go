//go:build !linux && !darwin

package ws

// RaiseFileLimit is a no-op on platforms without rlimits.
func RaiseFileLimit() (uint64, error) {
	return 0, nil
}
