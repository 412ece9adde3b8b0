package webhook

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolvedGuard(domains []string, addrs map[string][]string) *Guard {
	g := NewGuard(domains)
	g.resolve = func(host string) ([]net.IP, error) {
		recs, ok := addrs[host]
		if !ok {
			return nil, fmt.Errorf("no such host: %s", host)
		}
		ips := make([]net.IP, len(recs))
		for i, rec := range recs {
			ips[i] = net.ParseIP(rec)
		}
		return ips, nil
	}
	return g
}

func TestValidateURLAcceptsPublicHost(t *testing.T) {
	g := resolvedGuard(nil, map[string][]string{
		"hooks.example.com": {"93.184.216.34"},
	})
	assert.NoError(t, g.ValidateURL("https://hooks.example.com/notify"))
}

func TestValidateURLRejectsSchemes(t *testing.T) {
	g := resolvedGuard(nil, nil)

	for _, rawURL := range []string{
		"ftp://example.com/x",
		"file:///etc/passwd",
		"gopher://example.com",
		"",
		"://bad",
	} {
		assert.Error(t, g.ValidateURL(rawURL), "url %q must be rejected", rawURL)
	}
}

func TestValidateURLRejectsBlockedIPLiterals(t *testing.T) {
	g := resolvedGuard(nil, nil)

	for _, host := range []string{
		"127.0.0.1",
		"10.1.2.3",
		"172.16.0.9",
		"192.168.1.1",
		"100.64.0.1",      // CGNAT
		"169.254.169.254", // cloud metadata
		"0.0.0.0",
		"[::1]",
		"[fe80::1]",
		"[fc00::1]",
	} {
		err := g.ValidateURL("http://" + host + "/hook")
		assert.Error(t, err, "host %q must be rejected", host)
	}
}

func TestValidateURLRejectsHostResolvingPrivate(t *testing.T) {
	g := resolvedGuard(nil, map[string][]string{
		"internal.example.com": {"93.184.216.34", "10.0.0.5"},
	})

	err := g.ValidateURL("https://internal.example.com/hook")
	assert.Error(t, err, "one private record is enough to reject the host")
}

func TestValidateURLRejectsLocalhostNames(t *testing.T) {
	g := resolvedGuard(nil, nil)
	assert.Error(t, g.ValidateURL("http://localhost/hook"))
	assert.Error(t, g.ValidateURL("http://LOCALHOST/hook"))
	assert.Error(t, g.ValidateURL("http://metadata.google.internal/computeMetadata"))
}

func TestValidateURLRejectsUnresolvableHost(t *testing.T) {
	g := resolvedGuard(nil, map[string][]string{})
	assert.Error(t, g.ValidateURL("https://nonexistent.example.com/hook"))
}

func TestAllowedDomainsMatchSubdomains(t *testing.T) {
	g := resolvedGuard([]string{"example.com"}, map[string][]string{
		"example.com":         {"93.184.216.34"},
		"hooks.example.com":   {"93.184.216.34"},
		"evil-example.com":    {"93.184.216.34"},
		"example.com.evil.io": {"93.184.216.34"},
	})

	assert.NoError(t, g.ValidateURL("https://example.com/hook"))
	assert.NoError(t, g.ValidateURL("https://hooks.example.com/hook"))
	assert.Error(t, g.ValidateURL("https://evil-example.com/hook"), "prefix tricks must not match")
	assert.Error(t, g.ValidateURL("https://example.com.evil.io/hook"), "suffix tricks must not match")
}
