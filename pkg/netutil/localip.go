// Package netutil supplies the one piece of host discovery the core
// needs when it isn't embedded behind a platform-specific Wi-Fi Direct /
// hotspot collaborator (spec §6): a best-effort local IPv4 address, used
// to satisfy facade.GroupIPSource for standalone/CLI use on a plain LAN.
package netutil

import "net"

// LocalIPv4 implements facade.GroupIPSource by scanning local interfaces
// for the first up, non-loopback global unicast IPv4 address, the same
// interface-walk idiom as the teacher's pkg/config.hasIPV6, adapted from
// "does an IPv6 address exist" to "what is our IPv4 address."
type LocalIPv4 struct{}

// CurrentIP returns the discovered address, or "" if none is found.
func (LocalIPv4) CurrentIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if ip4.IsGlobalUnicast() && !ip4.IsLinkLocalUnicast() {
				return ip4.String()
			}
		}
	}

	return ""
}
