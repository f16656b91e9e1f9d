package connectors

import (
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// SafetyConfig - правила SSRF-проверки. Нулевое значение: только https, приватные IP запрещены.
//
// Проверка не резолвит DNS: имя из allow-list, указывающее на приватный адрес, пройдет.
type SafetyConfig struct {
	AllowedHosts    []string
	AllowHTTP       bool
	AllowPrivateIPs bool
}

var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
}

// AssertSafeURL возвращает ошибку, обернутую в ErrUnsafeURL.
func AssertSafeURL(u *url.URL, cfg SafetyConfig) error {
	proto := strings.ToLower(u.Scheme)
	if proto != "https" && !(cfg.AllowHTTP && proto == "http") {
		return fmt.Errorf("%w: Blocked protocol: %s:", ErrUnsafeURL, u.Scheme)
	}

	host := normalizeHost(u.Hostname())
	if !hostAllowed(host, cfg.AllowedHosts) {
		return fmt.Errorf("%w: Blocked host: %s (not in allowedHosts)", ErrUnsafeURL, host)
	}

	if cfg.AllowPrivateIPs {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.Is4() && isPrivateV4(addr) {
			return fmt.Errorf("%w: Blocked private IPv4 host: %s", ErrUnsafeURL, host)
		}
		if addr.Is6() && (addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()) {
			return fmt.Errorf("%w: Blocked private IPv6 host: %s", ErrUnsafeURL, host)
		}
	} else if strings.Contains(host, ":") {
		// неразбираемый IPv6-литерал
		return fmt.Errorf("%w: Blocked private IPv6 host: %s", ErrUnsafeURL, host)
	}
	return nil
}

func isPrivateV4(addr netip.Addr) bool {
	for _, p := range privateV4 {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostAllowed(host string, allowed []string) bool {
	for _, h := range allowed {
		if normalizeHost(h) == host {
			return true
		}
	}
	return false
}

func normalizeHost(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

var crlf = regexp.MustCompile(`[\r\n]+`)

// SanitizeHeaderValue защищает от CRLF-инъекций (header/response splitting).
func SanitizeHeaderValue(v string) string {
	return strings.TrimSpace(crlf.ReplaceAllString(v, " "))
}

// hop-by-hop и заголовки, которые нельзя пробрасывать наверх
var blockedHeaders = map[string]struct{}{
	"host":                {},
	"connection":          {},
	"keep-alive":          {},
	"transfer-encoding":   {},
	"te":                  {},
	"trailer":             {},
	"upgrade":             {},
	"proxy-authorization": {},
	"proxy-connection":    {},
}

// FilterHeaders приводит имена к нижнему регистру, выкидывает запрещенные и чистит значения.
func FilterHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		if _, blocked := blockedHeaders[name]; blocked {
			continue
		}
		out[name] = SanitizeHeaderValue(v)
	}
	return out
}
