package tracker

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrNoClientIP is returned when no usable client address is available.
var ErrNoClientIP = errors.New("client ip unavailable")

type clientIPKey struct{}

// WithClientIP attaches the client address fiber resolved for the request
// (the socket peer, or the proxy header when the peer is a trusted proxy).
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address attached by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ContextIPResolver returns the address attached to the request context.
type ContextIPResolver struct{}

func (ContextIPResolver) ResolveIP(ctx context.Context) (string, error) {
	ip := strings.TrimSpace(ClientIPFromContext(ctx))
	if net.ParseIP(ip) == nil {
		return "", ErrNoClientIP
	}
	return ip, nil
}
