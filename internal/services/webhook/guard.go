package webhook

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var allowedSchemes = []string{"http", "https"}

// blockedNetworks are address ranges callback URLs must never resolve into.
// Parsed once at init. The safeurl client re-checks resolved addresses at
// dial time, which also covers DNS rebinding between validation and delivery.
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// Private ranges (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// Carrier-grade NAT (RFC 6598)
		"100.64.0.0/10",
		// Loopback (RFC 1122)
		"127.0.0.0/8",
		// Link-local (RFC 3927), includes cloud metadata 169.254.169.254
		"169.254.0.0/16",
		// Current network
		"0.0.0.0/8",
		// IPv6 loopback
		"::1/128",
		// IPv6 link-local
		"fe80::/10",
		// IPv6 unique local
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

var blockedHostnames = []string{
	"localhost",
	"metadata.google.internal",
}

// Guard validates callback URLs before the dispatcher will deliver to them.
// Validation is two-layered: a static check at registration time here, and
// the safeurl dialer check on every actual request.
type Guard struct {
	allowedDomains []string
	resolve        func(host string) ([]net.IP, error)
}

// NewGuard creates a callback URL guard. allowedDomains is optional; when
// set, only those domains and their subdomains are accepted.
func NewGuard(allowedDomains []string) *Guard {
	return &Guard{
		allowedDomains: allowedDomains,
		resolve:        net.LookupIP,
	}
}

// NewSafeClient builds the HTTP client used for actual webhook delivery.
// The safeurl dialer verifies every resolved address against its blocklist,
// so a host that passes ValidateURL and then re-resolves to a private
// address still gets refused.
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	// A redirect could point the validated request somewhere unvalidated
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return client
}

// ValidateURL checks a callback URL's scheme, host, and resolved addresses.
// Every address the host resolves to must be public; hosting a callback on
// a name with one private A record is enough to reject it.
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty callback URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in callback URL")
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	if len(g.allowedDomains) > 0 && !g.domainAllowed(host) {
		return fmt.Errorf("host not in allowed domains: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	ips, err := g.resolve(host)
	if err != nil {
		return fmt.Errorf("failed to resolve callback host %s: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("callback host %s resolved to no addresses", host)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("callback host %s resolves to blocked address %s", host, ip.String())
		}
	}

	return nil
}

// domainAllowed matches host against the allowlist, accepting exact matches
// and subdomains. "evil-example.com" does not match "example.com".
func (g *Guard) domainAllowed(host string) bool {
	lower := strings.ToLower(host)
	for _, domain := range g.allowedDomains {
		allowed := strings.ToLower(domain)
		if lower == allowed || strings.HasSuffix(lower, "."+allowed) {
			return true
		}
	}
	return false
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
