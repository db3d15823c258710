package urlstrategy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Mapper translates between object keys and the public URLs handed to callers
type Mapper interface {
	// URL returns the public URL of an object key
	URL(objectKey string) string

	// Key accepts either a URL produced by URL or a bare key and returns the key
	Key(urlOrKey string) (string, error)
}

// PublicURL maps keys under a fixed base URL, e.g. a CDN or bucket endpoint.
type PublicURL struct {
	BaseURL string // e.g., "https://cdn.example.com/media"
}

// NewPublicURL creates a mapper rooted at baseURL
func NewPublicURL(baseURL string) *PublicURL {
	// Ensure baseURL doesn't have trailing slash
	return &PublicURL{BaseURL: strings.TrimRight(baseURL, "/")}
}

// URL escapes every key segment and joins it to the base URL
func (p *PublicURL) URL(objectKey string) string {
	segments := strings.Split(objectKey, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return p.BaseURL + "/" + strings.Join(segments, "/")
}

func (p *PublicURL) Key(urlOrKey string) (string, error) {
	key := urlOrKey
	prefix := p.BaseURL + "/"
	switch {
	case strings.HasPrefix(urlOrKey, prefix):
		escaped := strings.TrimPrefix(urlOrKey, prefix)
		if i := strings.IndexAny(escaped, "?#"); i >= 0 {
			escaped = escaped[:i]
		}
		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			return "", fmt.Errorf("%w: %v", simplemedia.ErrInvalidPath, err)
		}
		key = unescaped
	case strings.Contains(urlOrKey, "://"):
		return "", fmt.Errorf("%w: %q is not under %s", simplemedia.ErrInvalidPath, urlOrKey, p.BaseURL)
	}

	if err := simplemedia.ValidateObjectKey(key); err != nil {
		return "", err
	}
	return key, nil
}
