package httpx

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// userAgents mirrors the rotation of real desktop-browser strings a decoy
// walker presents, so its traffic does not stand out from ordinary users.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
}

const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptLang     = "en-US,en;q=0.9"
	acceptEncode   = "gzip, deflate, br"
	maxRedirects   = 10
	connectTimeout = 30 * time.Second

	// defaultTotalTimeout is used only when BuildClient is called with a
	// zero timeout, which test code and tools that don't have a Config in
	// hand do; a real run always passes cfg.HTTPTimeout().
	defaultTotalTimeout = 60 * time.Second
)

// RandomUserAgent returns a random entry from the rotation table.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Client wraps an *http.Client together with the fixed User-Agent it was
// built with, so request builders can reapply it without re-deriving it.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// BuildClient constructs a new browser-shaped client: a fresh cookie jar, a
// randomly chosen User-Agent, TLS verification disabled (decoy traffic
// targets arbitrary self-hosted lab endpoints), and a bounded redirect
// policy. Accept-Encoding is set explicitly to exercise manual
// decompression in decode.go, since net/http disables its own transparent
// decoding once the header is set by the caller. totalTimeout overrides the
// whole-request deadline; pass 0 to fall back to defaultTotalTimeout.
func BuildClient(totalTimeout time.Duration) (*Client, error) {
	if totalTimeout <= 0 {
		totalTimeout = defaultTotalTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: build client: %w", err)
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}

	ua := RandomUserAgent()

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   totalTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("httpx: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Client{HTTP: client, UserAgent: ua}, nil
}

// ApplyHeaders sets the browser-shaped header set on req, including the
// Referer when one is known.
func (c *Client) ApplyHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLang)
	req.Header.Set("Accept-Encoding", acceptEncode)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}
