package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// URLFilter decides which discovered URLs are eligible for the frontier.
type URLFilter struct {
	allowedHosts    map[string]struct{}
	followExternal  bool
	include         []*regexp.Regexp
	exclude         []*regexp.Regexp
	ignoreExtension map[string]struct{}
}

// NewURLFilter compiles the include/exclude patterns and records the
// seed host. Patterns are validated by config.Validate, so compile
// errors here indicate a programming error and are skipped.
func NewURLFilter(seedHost string, followExternal bool, include, exclude, ignoreExts []string) *URLFilter {
	f := &URLFilter{
		allowedHosts:    map[string]struct{}{strings.ToLower(seedHost): {}},
		followExternal:  followExternal,
		ignoreExtension: make(map[string]struct{}, len(ignoreExts)),
	}
	for _, p := range include {
		if re, err := regexp.Compile(p); err == nil {
			f.include = append(f.include, re)
		}
	}
	for _, p := range exclude {
		if re, err := regexp.Compile(p); err == nil {
			f.exclude = append(f.exclude, re)
		}
	}
	for _, ext := range ignoreExts {
		f.ignoreExtension[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return f
}

// Allow reports whether a normalized URL passes host, extension, and
// pattern checks.
func (f *URLFilter) Allow(normalizedURL string) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if !f.followExternal {
		if _, ok := f.allowedHosts[strings.ToLower(u.Host)]; !ok {
			return false
		}
	}

	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); ext != "" {
		if _, ok := f.ignoreExtension[ext]; ok {
			return false
		}
	}

	if len(f.include) > 0 {
		matched := false
		for _, re := range f.include {
			if re.MatchString(normalizedURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range f.exclude {
		if re.MatchString(normalizedURL) {
			return false
		}
	}

	return true
}
