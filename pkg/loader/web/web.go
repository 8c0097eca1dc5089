// Package web loads document content from HTTP URLs. HTML pages are
// reduced to their readable article text; everything else is returned
// as fetched.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"

	"github.com/stratum-kg/stratum/pkg/loader"
)

// WebLoader fetches URLs and caches results by URL for its lifetime.
// Concurrent loads of the same URL collapse into one request.
type WebLoader struct {
	client *http.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewWebLoader() *WebLoader {
	return &WebLoader{
		client: http.DefaultClient,
		cache:  make(map[string][]byte),
	}
}

// NewWebLoaderWithClient uses the given HTTP client, e.g. one with a
// timeout or proxy configured.
func NewWebLoaderWithClient(client *http.Client) *WebLoader {
	return &WebLoader{
		client: client,
		cache:  make(map[string][]byte),
	}
}

// Load fetches ref and returns its text content. For HTML responses the
// main article content is extracted; scripts, navigation, and boilerplate
// are dropped.
func (l *WebLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	key := loader.CacheKey(ref)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fetching %s: unexpected status %s", ref, resp.Status)
		}

		var content []byte
		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			u, err := url.Parse(ref)
			if err != nil {
				return nil, fmt.Errorf("failed to parse url: %w", err)
			}
			article, err := readability.FromReader(resp.Body, u)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			content = []byte(builder.String())
		} else {
			content, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
		}

		l.cacheMu.Lock()
		l.cache[key] = content
		l.cacheMu.Unlock()

		return content, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
