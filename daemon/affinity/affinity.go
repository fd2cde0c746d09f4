// Package affinity binds the calling OS thread to a fixed set of CPU
// cores, the Go analogue of fg_affinity.c's pthread_setaffinity wrapper.
// Unlike the C daemon (one thread per core list entry is meaningless since
// Flowgrind only ever runs a single scheduler thread), this package binds
// the single event-loop goroutine's underlying OS thread once at daemon
// startup.
package affinity

import "runtime"

// NumCores returns the number of CPUs configured on this host, the
// equivalent of get_ncores(NCORE_CONFIG) in fg_affinity.c.
func NumCores() int {
	return runtime.NumCPU()
}
