// Package parser provides HTML content extraction for the crawler.
// It produces the normalized text used for duplicate fingerprinting
// and the outgoing links fed back into the frontier.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"webharvest/internal/crawler"
)

// HTMLExtractor implements the crawler's ContentExtractor contract on
// top of golang.org/x/net/html.
type HTMLExtractor struct{}

// New returns a ready extractor.
func New() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract parses the page and returns its title, whitespace-collapsed
// visible text, and absolute outgoing links. Links keep only http(s)
// schemes; fragments are dropped before resolution.
func (e *HTMLExtractor) Extract(baseURL string, body []byte) (*crawler.ExtractedContent, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		title    string
		textBuf  strings.Builder
		links    []string
		seenLink = make(map[string]struct{})
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if title == "" {
					title = nodeText(n)
				}
				return
			case "a":
				if href, ok := attr(n, "href"); ok {
					if resolved := resolveLink(base, href); resolved != "" {
						if _, dup := seenLink[resolved]; !dup {
							seenLink[resolved] = struct{}{}
							links = append(links, resolved)
						}
					}
				}
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				if textBuf.Len() > 0 {
					textBuf.WriteByte(' ')
				}
				textBuf.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return &crawler.ExtractedContent{
		Title:          title,
		NormalizedText: collapseWhitespace(textBuf.String()),
		Links:          links,
	}, nil
}

// resolveLink turns an href into an absolute http(s) URL, or "" when
// the link is not crawlable (mailto:, javascript:, bare fragments).
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
