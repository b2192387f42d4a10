package monitor

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/models"
)

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	addrs := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return addrs, nil
}

func TestTargetGuard(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{
		"example.com":  {"93.184.216.34"},
		"intranet.lan": {"10.1.2.3"},
		"mixed.test":   {"93.184.216.34", "127.0.0.1"},
	}

	tests := []struct {
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{"example.com/health", false, false},
		{"example.com:8443/health", false, false},
		{"intranet.lan/status", false, true},
		{"intranet.lan/status", true, false},
		{"mixed.test", false, true},
		{"localhost:8080", false, true},
		{"127.0.0.1/x", false, true},
		{"[::1]/x", false, true},
		{"169.254.169.254/latest/meta-data", true, true},
		{"metadata.google.internal", true, true},
		{"unknown.test", false, true},
	}

	for _, tc := range tests {
		guard := &TargetGuard{allowPrivate: tc.allowPrivate, resolver: resolver}
		err := guard.Check(context.Background(), &models.Check{Protocol: "https", URL: tc.url})
		if tc.wantErr {
			require.ErrorIs(t, err, ErrForbiddenTarget, tc.url)
		} else {
			require.NoError(t, err, tc.url)
		}
	}
}

func TestTargetGuardDialControl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address      string
		allowPrivate bool
		wantErr      bool
	}{
		{"93.184.216.34:443", false, false},
		{"127.0.0.1:8080", false, true},
		{"127.0.0.1:8080", true, false},
		{"10.1.2.3:80", false, true},
		{"[::1]:80", false, true},
		{"169.254.169.254:80", true, true},
		{"[fd00:ec2::254]:80", true, true},
		{"not-an-address", true, true},
	}

	for _, tc := range tests {
		guard := NewTargetGuard(tc.allowPrivate)
		err := guard.DialControl("tcp", tc.address, nil)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrForbiddenTarget, tc.address)
		} else {
			require.NoError(t, err, tc.address)
		}
	}
}
