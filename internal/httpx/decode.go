package httpx

import (
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// DecodeBody reads and decompresses resp.Body according to its
// Content-Encoding header. Go's net/http only decompresses gzip
// automatically, and only when the caller has not set an Accept-Encoding
// header — BuildClient sets one explicitly, so every encoding the server
// might choose has to be handled here.
func DecodeBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpx: gzip decode: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		r = flate.NewReader(resp.Body)
	case "br":
		r = brotli.NewReader(resp.Body)
	case "", "identity":
		// no-op
	default:
		return nil, fmt.Errorf("httpx: unsupported content-encoding %q", resp.Header.Get("Content-Encoding"))
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("httpx: read body: %w", err)
	}
	return body, nil
}
