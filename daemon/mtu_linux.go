//go:build linux

package daemon

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// interfaceMTU looks up the MTU of the network interface carrying addr's
// local side, used for the Final report's interface_mtu field.
func interfaceMTU(addr net.Addr) (int, error) {
	host, _, err := splitHostPort(addr)
	if err != nil {
		return 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return 0, fmt.Errorf("daemon: %q is not an IP address", host)
	}

	links, err := netlink.LinkList()
	if err != nil {
		return 0, err
	}
	for _, link := range links {
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if a.IP.Equal(ip) {
				return link.Attrs().MTU, nil
			}
		}
	}
	return 0, fmt.Errorf("daemon: no interface found carrying address %s", host)
}
