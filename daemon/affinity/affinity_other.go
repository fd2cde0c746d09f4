//go:build !linux

package affinity

import "errors"

// Set is unsupported outside Linux; CPU affinity requests are logged and
// ignored by the daemon CLI rather than failing startup, matching the
// original daemon's behavior of compiling affinity support out entirely on
// platforms without a pthread_setaffinity_np equivalent it was built with.
func Set(cores []int) error {
	if len(cores) == 0 {
		return nil
	}
	return errors.New("affinity: not supported on this platform")
}
