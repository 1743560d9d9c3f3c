// Package dns resolves the relay host even when the system resolver is
// broken or filtered, by racing well-known public resolvers.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var errNoAddress = errors.New("no addresses returned")

// Well-known, high-availability public resolvers.
var publicServers = []string{
	// Cloudflare
	"1.1.1.1", "1.0.0.1", "2606:4700:4700::1111",
	// Google
	"8.8.8.8", "8.8.4.4", "2001:4860:4860::8888",
	// Quad9
	"9.9.9.9", "149.112.112.112", "2620:fe::fe",
	// OpenDNS
	"208.67.222.222", "208.67.220.220",
}

// Resolver tries the system resolver first, then races Fallback servers.
type Resolver struct {
	Fallback     []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration
}

// Default is used by Lookup and DialContext.
var Default = &Resolver{
	Fallback:     publicServers,
	LocalTimeout: time.Second,
	RaceTimeout:  2 * time.Second,
}

// Lookup resolves host with the Default resolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return Default.Lookup(ctx, host)
}

// DialContext dials through the Default resolver. It matches
// websocket.Dialer.NetDialContext.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return Default.DialContext(ctx, network, addr)
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	local, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := lookupWith(local, net.DefaultResolver, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if len(r.Fallback) == 0 {
		return "", err
	}
	return r.race(ctx, host)
}

func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// race returns the first answer any fallback server gives.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	type answer struct {
		ip  string
		err error
	}
	answers := make(chan answer, len(r.Fallback))
	for _, server := range r.Fallback {
		go func() {
			ip, err := lookupWith(ctx, viaServer(server), host)
			answers <- answer{ip, err}
		}()
	}

	var errs []error
	for range r.Fallback {
		select {
		case a := <-answers:
			if a.err == nil {
				return a.ip, nil
			}
			errs = append(errs, a.err)
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: fallback servers timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d fallback servers failed: %w", host, len(errs), errors.Join(errs...))
}

// viaServer builds a resolver that only asks server, on port 53.
func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
