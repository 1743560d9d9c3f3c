package utils

import (
	"net"
	"net/netip"
	"strings"
)

// Shared address space (RFC 6598). Carrier NAT, Tailscale and Cloudflare
// WARP hand out addresses from it; direct paths from there rarely work.
var cgnatPrefix = netip.MustParsePrefix("100.64.0.0/10")

// Interface name fragments of tunnel and point-to-point adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// RelayHint reports whether this host looks like it sits behind a VPN or
// carrier NAT, where only TURN relayed candidates are worth trying, and names
// the interface that gave it away.
func RelayHint() (string, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return iface.Name, true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if inCGNAT(addr) {
				return iface.Name, true
			}
		}
	}
	return "", false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, frag := range tunnelNames {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

func inCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return false
	}
	a, ok := netip.AddrFromSlice(ip)
	return ok && cgnatPrefix.Contains(a.Unmap())
}
