package resolve

import (
	"fmt"
	"net"
)

// LookupFunc resolves a hostname. Injectable for unit tests; the default is
// the system resolver (/etc/hosts, configured DNS).
type LookupFunc func(host string) ([]net.IP, error)

// Resolver maps zone names to IPv4 addresses. Zone names double as
// resolvable hostnames.
type Resolver struct {
	lookup LookupFunc
}

func New(lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = net.LookupIP
	}
	return &Resolver{lookup: lookup}
}

// Resolve resolves every zone eagerly and returns zone -> dotted-quad IPv4.
// The first zone that fails to resolve (or has no IPv4 address) fails the
// whole call, so a bad entry is caught before any shaping command exists.
func (r *Resolver) Resolve(zones []string) (map[string]string, error) {
	ips := make(map[string]string, len(zones))
	for _, zone := range zones {
		addrs, err := r.lookup(zone)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", zone, err)
		}
		ip := firstIPv4(addrs)
		if ip == "" {
			return nil, fmt.Errorf("resolve %s: no IPv4 address", zone)
		}
		ips[zone] = ip
	}
	return ips, nil
}

func firstIPv4(addrs []net.IP) string {
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
