//go:build !linux

package daemon

import "net"

// interfaceMTU has no netlink source outside Linux; the Final report omits
// the interface MTU field in that case.
func interfaceMTU(addr net.Addr) (int, error) {
	return 0, errUnsupportedPlatform
}
