package walker

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// skipSchemes are link targets that never represent a navigable page.
var skipSchemes = map[string]bool{
	"mailto":     true,
	"javascript": true,
	"tel":        true,
	"ftp":        true,
}

// ExtractLinks tokenizes body and returns the absolute URLs of every
// <a href> it finds, resolved against base. Fragment-only hrefs and
// non-http(s) schemes are dropped.
func ExtractLinks(body []byte, base *url.URL) []*url.URL {
	var links []*url.URL
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := tokenizer.Token()
		if tok.Data != "a" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key != "href" {
				continue
			}
			href := strings.TrimSpace(attr.Val)
			if href == "" || strings.HasPrefix(href, "#") {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			abs := base.ResolveReference(ref)
			if skipSchemes[abs.Scheme] {
				continue
			}
			if abs.Scheme != "http" && abs.Scheme != "https" {
				continue
			}
			links = append(links, abs)
		}
	}
	return links
}

// FilterSameDomain keeps only the links whose host exactly matches domain.
// Subdomains are treated as distinct hosts, not folded into a parent
// domain.
func FilterSameDomain(links []*url.URL, domain string) []*url.URL {
	var out []*url.URL
	for _, u := range links {
		if u.Host == domain {
			out = append(out, u)
		}
	}
	return out
}

// PickRandomLinks drops anything already in visited, shuffles the
// remainder uniformly, and returns up to n of them. It may return fewer
// than n, or nil if nothing unvisited remains.
func PickRandomLinks(links []*url.URL, n int, visited map[string]bool) []*url.URL {
	var unvisited []*url.URL
	for _, u := range links {
		if !visited[u.String()] {
			unvisited = append(unvisited, u)
		}
	}
	shuffle(unvisited)
	if n > len(unvisited) {
		n = len(unvisited)
	}
	if n <= 0 {
		return nil
	}
	return unvisited[:n]
}

func shuffle(links []*url.URL) {
	for i := len(links) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return
		}
		links[i], links[j] = links[j], links[i]
	}
}
