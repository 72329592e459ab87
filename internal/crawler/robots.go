package crawler

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// RobotsChecker fetches and caches robots.txt rules per host. URLs
// disallowed for our user agent are classified Skipped before any
// page fetch happens.
type RobotsChecker struct {
	httpClient *HTTPClient
	userAgent  string
	enabled    bool

	mu    sync.RWMutex
	rules map[string]*robotRules
}

type robotRules struct {
	disallowed []string
	allowed    []string
}

// NewRobotsChecker creates a checker. When enabled is false every URL
// is allowed.
func NewRobotsChecker(httpClient *HTTPClient, userAgent string, enabled bool) *RobotsChecker {
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
		enabled:    enabled,
		rules:      make(map[string]*robotRules),
	}
}

// Allowed reports whether the URL may be fetched. An unreachable
// robots.txt allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, urlStr string) bool {
	if !r.enabled {
		return true
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	rules, err := r.getRules(ctx, u.Scheme, u.Host)
	if err != nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range rules.disallowed {
		if matchesRobotsPattern(path, pattern) {
			// A longer allow rule overrides the disallow.
			for _, allow := range rules.allowed {
				if matchesRobotsPattern(path, allow) && len(allow) > len(pattern) {
					return true
				}
			}
			return false
		}
	}
	return true
}

func (r *RobotsChecker) getRules(ctx context.Context, scheme, host string) (*robotRules, error) {
	r.mu.RLock()
	rules, exists := r.rules[host]
	r.mu.RUnlock()
	if exists {
		return rules, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	resp, err := r.httpClient.Get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case 200:
		rules = r.parse(string(resp.Body))
	case 404:
		// No robots.txt means everything is allowed.
		rules = &robotRules{}
	default:
		return nil, fmt.Errorf("robots.txt fetch returned %d", resp.StatusCode)
	}

	r.mu.Lock()
	r.rules[host] = rules
	r.mu.Unlock()
	return rules, nil
}

func (r *RobotsChecker) parse(content string) *robotRules {
	rules := &robotRules{}
	agent := strings.ToLower(r.userAgent)

	scanner := bufio.NewScanner(strings.NewReader(content))
	applies := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			ua := strings.ToLower(value)
			applies = ua == "*" || strings.Contains(agent, ua)
		case "disallow":
			if applies && value != "" {
				rules.disallowed = append(rules.disallowed, value)
			}
		case "allow":
			if applies && value != "" {
				rules.allowed = append(rules.allowed, value)
			}
		}
	}
	return rules
}

// matchesRobotsPattern supports prefix matching plus the * and $
// extensions most crawlers honor.
func matchesRobotsPattern(path, pattern string) bool {
	if strings.HasSuffix(pattern, "$") {
		pattern = strings.TrimSuffix(pattern, "$")
		if !strings.Contains(pattern, "*") {
			return path == pattern
		}
	}

	if !strings.Contains(pattern, "*") {
		return strings.HasPrefix(path, pattern)
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	remaining := path[len(parts[0]):]
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		idx := strings.Index(remaining, part)
		if idx == -1 {
			return false
		}
		remaining = remaining[idx+len(part):]
	}
	return true
}
