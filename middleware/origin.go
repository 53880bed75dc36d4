package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// CheckOrigin builds a WebSocket origin policy from an allow list. An empty
// list accepts every origin. Requests without an Origin header are not
// browser initiated and are accepted. Entries are either a full origin
// ("https://app.example.com"), a host ("app.example.com"), a wildcard
// subdomain ("*.example.com") or "*".
func CheckOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	rules := make([]string, 0, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
		if a != "" {
			rules = append(rules, a)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		full := strings.ToLower(u.Scheme + "://" + u.Host)
		host := strings.ToLower(u.Host)
		for _, rule := range rules {
			switch {
			case strings.Contains(rule, "://"):
				if rule == full {
					return true
				}
			case strings.HasPrefix(rule, "*."):
				if strings.HasSuffix(host, rule[1:]) {
					return true
				}
			case rule == host:
				return true
			}
		}
		return false
	}
}
