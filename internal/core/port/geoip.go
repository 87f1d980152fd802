package port

import "context"

// GeoResolver maps an IP address to a coarse location label such as
// "Tehran, IR". Resolvers return an empty string when the address is unknown.
type GeoResolver interface {
	Locate(ctx context.Context, ip string) (string, error)
}
