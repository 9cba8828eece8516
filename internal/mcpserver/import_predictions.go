package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Spiffical/hydrolabel/internal/schema"
)

const maxDocumentSize = 50 << 20 // 50 MB

func (s *Server) importPredictions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inline := ""
	if v, err := req.RequireString("document"); err == nil {
		inline = v
	}
	rawURL := ""
	if v, err := req.RequireString("url"); err == nil {
		rawURL = v
	}
	if inline == "" && rawURL == "" {
		return mcp.NewToolResultError("provide either 'document' or 'url'"), nil
	}
	if inline != "" && rawURL != "" {
		return mcp.NewToolResultError("'document' and 'url' are mutually exclusive"), nil
	}

	var data []byte
	if inline != "" {
		data = []byte(inline)
	} else {
		fetched, err := fetchDocument(rawURL)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data = fetched
	}
	if len(data) > maxDocumentSize {
		return mcp.NewToolResultError(fmt.Sprintf("document too large: %d bytes (max %d)", len(data), maxDocumentSize)), nil
	}

	dest := ""
	if v, err := req.RequireString("path"); err == nil {
		dest = v
	}
	if dest == "" {
		dest = destinationFromURL(rawURL)
	}
	if !strings.HasSuffix(dest, ".json") {
		return mcp.NewToolResultError(fmt.Sprintf("destination path must end with .json: %s", dest)), nil
	}

	detail, err := s.svc.ImportDocument(ctx, dest, data)
	if err != nil {
		if errs := schema.AsErrors(err); len(errs) > 0 {
			lines := make([]string, len(errs))
			for i, e := range errs {
				lines[i] = e.Error()
			}
			return mcp.NewToolResultError("document rejected:\n" + strings.Join(lines, "\n")), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("imported: %s (%d items, checksum %s)",
		detail.Path, detail.Summary.TotalItems, detail.Checksum)), nil
}

// fetchDocument downloads a JSON document from an HTTP/HTTPS URL with
// security checks.
func fetchDocument(rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	resp, err := client.Get(rawURL) //nolint:noctx
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxDocumentSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document too large: exceeds %d bytes", maxDocumentSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// destinationFromURL derives a library path from a URL, falling back to a
// UUID filename when the URL has no usable basename.
func destinationFromURL(rawURL string) string {
	if rawURL != "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.HasSuffix(base, ".json") {
				return base
			}
		}
	}
	return uuid.New().String() + ".json"
}
