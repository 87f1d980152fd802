package geoip

import (
	"context"
	"net"

	"github.com/bazarhub/auth-service/internal/core/port"
)

// StaticResolver maps IP addresses to location labels from an in-memory
// table, falling back to a coarse label for private and loopback ranges.
// It stands in for a commercial geolocation provider.
type StaticResolver struct {
	entries map[string]string
}

// NewStaticResolver constructs a resolver over the provided table. Keys are
// exact IP strings or CIDR prefixes.
func NewStaticResolver(entries map[string]string) *StaticResolver {
	if entries == nil {
		entries = map[string]string{}
	}
	return &StaticResolver{entries: entries}
}

// Locate returns the location label for the address, or "" when unknown.
func (r *StaticResolver) Locate(_ context.Context, ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", nil
	}

	if label, ok := r.entries[ip]; ok {
		return label, nil
	}

	for prefix, label := range r.entries {
		_, network, err := net.ParseCIDR(prefix)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return label, nil
		}
	}

	if parsed.IsLoopback() || parsed.IsPrivate() {
		return "Internal", nil
	}

	return "", nil
}

var _ port.GeoResolver = (*StaticResolver)(nil)
