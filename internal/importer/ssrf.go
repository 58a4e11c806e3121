package importer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// blockedPrefixes covers ranges not caught by the netip predicates.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// blockedAddr reports whether a is loopback, link-local, private or
// otherwise not publicly routable. IPv4-mapped IPv6 addresses are checked
// as IPv4.
func blockedAddr(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() || a.IsLoopback() || a.IsPrivate() || a.IsUnspecified() ||
		a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() || a.IsInterfaceLocalMulticast() || a.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Guard enforces the outbound request policy.
type Guard struct {
	resolver     Resolver
	blockedHosts map[string]struct{}
}

// NewGuard creates a guard. A nil resolver selects net.DefaultResolver.
func NewGuard(resolver Resolver, blockedHosts []string) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	g := &Guard{resolver: resolver, blockedHosts: map[string]struct{}{"metadata.google.internal": {}}}
	for _, h := range blockedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.blockedHosts[h] = struct{}{}
		}
	}
	return g
}

// CheckURL validates raw before any request is made: scheme, credentials,
// host name, and every address the host resolves to.
func (g *Guard) CheckURL(ctx context.Context, raw string) (*url.URL, *Error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fail(KindInvalidURL, "cannot parse url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fail(KindInvalidURL, fmt.Sprintf("scheme %q not allowed", u.Scheme), nil)
	}
	if u.User != nil {
		return nil, fail(KindCredentials, "url carries embedded credentials", nil)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, fail(KindInvalidURL, "missing host", nil)
	}
	if _, ok := g.blockedHosts[host]; ok || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fail(KindDisallowedHost, "host "+host+" is blocked", nil)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr.WithZone("")) {
			return nil, fail(KindDisallowedHost, "address "+addr.String()+" is not public", nil)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fail(KindFetchFailed, "cannot resolve "+host, err)
	}
	if len(addrs) == 0 {
		return nil, fail(KindFetchFailed, "no addresses for "+host, nil)
	}
	for _, a := range addrs {
		if blockedAddr(a) {
			return nil, fail(KindDisallowedHost, fmt.Sprintf("%s resolves to non-public address %s", host, a), nil)
		}
	}
	return u, nil
}

// Control is a net.Dialer control hook that rejects connections to
// non-public addresses, closing the window between resolution and connect.
func (g *Guard) Control(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("importer: dial %s: %w", address, err)
	}
	if blockedAddr(ap.Addr()) {
		return fmt.Errorf("importer: dial %s: address is not public", address)
	}
	return nil
}
