//go:build linux

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Set locks the calling goroutine to its current OS thread and restricts
// that thread to the given CPU cores. It must be called from the goroutine
// that should be pinned (the scheduler's Run goroutine) before Run starts
// its loop; it is a one-shot operation, matching fg_affinity.c's behavior
// of never restoring a previous mask.
func Set(cores []int) error {
	if len(cores) == 0 {
		return nil
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		if c < 0 {
			return fmt.Errorf("affinity: negative core id %d", c)
		}
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: SchedSetaffinity: %w", err)
	}
	return nil
}
