package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/fuomag9/checkpulse/internal/models"
)

// ErrForbiddenTarget is returned when a check points at an address that must not be probed
var ErrForbiddenTarget = errors.New("check target is not allowed")

// Resolver looks up the addresses of a host
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// TargetGuard rejects checks whose target resolves to loopback, private,
// link-local or cloud metadata addresses
type TargetGuard struct {
	allowPrivate bool
	resolver     Resolver
}

// NewTargetGuard creates a guard. With allowPrivate set only metadata
// endpoints are refused.
func NewTargetGuard(allowPrivate bool) *TargetGuard {
	return &TargetGuard{allowPrivate: allowPrivate, resolver: net.DefaultResolver}
}

var metadataHosts = []string{
	"169.254.169.254",
	"169.254.170.2",
	"metadata.google.internal",
	"fd00:ec2::254",
}

var localHosts = []string{
	"localhost",
	"localhost.localdomain",
}

var privateNets = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
)

// Check validates the target of a check
func (g *TargetGuard) Check(ctx context.Context, check *models.Check) error {
	u, err := url.Parse(check.Target())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenTarget, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrForbiddenTarget)
	}

	for _, blocked := range metadataHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("%w: %s is a metadata endpoint", ErrForbiddenTarget, host)
		}
	}
	if g.allowPrivate {
		return nil
	}
	for _, blocked := range localHosts {
		if host == blocked {
			return fmt.Errorf("%w: %s is local", ErrForbiddenTarget, host)
		}
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := g.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: failed to resolve %s: %v", ErrForbiddenTarget, host, err)
		}
		for _, addr := range addrs {
			ips = append(ips, addr.IP)
		}
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: %s does not resolve", ErrForbiddenTarget, host)
	}

	for _, ip := range ips {
		if isInternal(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrForbiddenTarget, host, ip)
		}
	}
	return nil
}

// DialControl refuses connections to internal addresses after DNS
// resolution, so a name that changes to a private address is still caught.
// It has the signature of net.Dialer.Control.
func (g *TargetGuard) DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenTarget, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s is not an address", ErrForbiddenTarget, host)
	}

	if isMetadata(ip) {
		return fmt.Errorf("%w: %s is a metadata endpoint", ErrForbiddenTarget, ip)
	}
	if !g.allowPrivate && isInternal(ip) {
		return fmt.Errorf("%w: %s is internal", ErrForbiddenTarget, ip)
	}
	return nil
}

func isMetadata(ip net.IP) bool {
	for _, blocked := range metadataHosts {
		if blockedIP := net.ParseIP(blocked); blockedIP != nil && blockedIP.Equal(ip) {
			return true
		}
	}
	return false
}

func isInternal(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
