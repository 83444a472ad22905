// Package realip resolves the client address of a request, honoring
// forwarding headers only when the direct peer is a trusted proxy.
package realip

import (
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is a set of proxy networks allowed to forward client addresses.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs and bare addresses. Invalid entries are skipped.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls in a trusted network.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	if tp == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the client address. X-Forwarded-For (first valid entry)
// and then X-Real-IP are consulted only for requests from a trusted proxy.
func (tp *TrustedProxies) GetClientIP(r *http.Request) netip.Addr {
	direct := parseRemoteAddr(r.RemoteAddr)
	if !direct.IsValid() || !tp.IsTrusted(direct) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return addr.Unmap()
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap()
		}
	}
	return direct
}

// GetClientIPString is GetClientIP for logs and rate-limit keys.
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	addr := tp.GetClientIP(r)
	if !addr.IsValid() {
		return "unknown"
	}
	return addr.String()
}

func parseRemoteAddr(remote string) netip.Addr {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap()
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
