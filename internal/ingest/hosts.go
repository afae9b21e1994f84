package ingest

import (
	"net/url"
	"strings"
)

// DefaultAllowedHost is used when the allow-list is empty.
const DefaultAllowedHost = "nitter.shibadogcap.com"

// HostValidator approves feed URLs whose host equals, or is a subdomain of,
// an allow-listed host.
type HostValidator struct {
	allowed []string
}

func NewHostValidator(hosts []string) *HostValidator {
	allowed := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			allowed = append(allowed, h)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{DefaultAllowedHost}
	}
	return &HostValidator{allowed: allowed}
}

func (v *HostValidator) Hosts() []string {
	return append([]string(nil), v.allowed...)
}

// Validate parses raw and checks scheme and host. It performs no I/O.
func (v *HostValidator) Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, validationErrorf(ErrInvalidURL, "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, validationErrorf(ErrInvalidURL, "%q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, validationErrorf(ErrInvalidURL, "%q has no scheme", raw)
	default:
		return nil, validationErrorf(ErrUnsupportedProtocol, "%q", u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nil, validationErrorf(ErrInvalidURL, "%q has no host", raw)
	}
	if !v.allows(host) {
		return nil, validationErrorf(ErrHostNotAllowed, "%s", host)
	}
	return u, nil
}

func (v *HostValidator) allows(host string) bool {
	for _, a := range v.allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
