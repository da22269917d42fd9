//go:build linux || darwin

package ws

import (
	"log"

	"golang.org/x/sys/unix"
)

// RaiseFileLimit lifts the soft open-file limit to the hard limit so the
// process can hold one descriptor per connection. Returns the new soft limit.
func RaiseFileLimit() (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	if rl.Cur >= rl.Max {
		return rl.Cur, nil
	}

	prev := rl.Cur
	rl.Cur = rl.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return prev, err
	}
	log.Printf("ws: raised open file limit %d -> %d", prev, rl.Cur)
	return rl.Cur, nil
}
