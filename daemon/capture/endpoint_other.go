//go:build !linux

package capture

import "fmt"

// localEndpoint is only implemented on Linux; other platforms report an
// error and Start surfaces it as a capture admission failure rather than
// silently capturing nothing.
func localEndpoint(fd int) (port int, iface string, err error) {
	return 0, "", fmt.Errorf("capture: endpoint introspection not supported on this platform")
}
