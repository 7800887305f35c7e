package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies decides whether forwarded-for headers from a peer can be
// believed. Only requests arriving from a configured CIDR range have their
// X-Forwarded-For / X-Real-IP headers honored.
type TrustedProxies struct {
	nets []*net.IPNet
}

// NewTrustedProxies parses the given CIDR list. A bare IP is accepted and
// treated as a /32 (or /128) range.
func NewTrustedProxies(cidrs []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", cidr)
			}
			if ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		tp.nets = append(tp.nets, ipNet)
	}
	return tp, nil
}

// IsTrusted reports whether ip falls inside any configured range.
func (tp *TrustedProxies) IsTrusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range tp.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the real client address for a request. Forwarded headers
// are only consulted when the direct peer is a trusted proxy.
func (tp *TrustedProxies) ClientIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	remote := net.ParseIP(host)

	if remote == nil || !tp.IsTrusted(remote) {
		return remote
	}

	// X-Forwarded-For: client, proxy1, proxy2. Leftmost entry is the
	// original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(parts[0])); ip != nil {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}
	return remote
}

// ClientIPString is ClientIP rendered as a string, falling back to the raw
// RemoteAddr host when the address does not parse.
func (tp *TrustedProxies) ClientIPString(r *http.Request) string {
	if ip := tp.ClientIP(r); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
