package pack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/persistence/object"
)

const maxFetchBytes = 512 << 20

// Loader resolves a data locator to a decoded graph. Locators are local file
// paths, http(s) URLs, or s3://bucket/key (requires Objects).
type Loader struct {
	HTTP    *http.Client
	Objects *object.Client
}

func NewLoader(objects *object.Client) *Loader {
	return &Loader{
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		Objects: objects,
	}
}

func (l *Loader) Load(ctx context.Context, locator string) (*graph.Graph, error) {
	b, err := l.fetch(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	p, err := Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locator, err)
	}
	g, err := Decode(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locator, err)
	}
	return g, nil
}

func (l *Loader) fetch(ctx context.Context, locator string) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	switch {
	case locator == "":
		return nil, fmt.Errorf("empty locator")
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return l.fetchHTTP(ctx, locator)
	case strings.HasPrefix(locator, "s3://"):
		bucket, key, ok := object.ParseLocator(locator)
		if !ok {
			return nil, fmt.Errorf("bad s3 locator")
		}
		if l.Objects == nil {
			return nil, fmt.Errorf("object storage not configured")
		}
		if bucket != l.Objects.Bucket() {
			return nil, fmt.Errorf("bucket %q not configured (have %q)", bucket, l.Objects.Bucket())
		}
		return l.Objects.Get(ctx, key)
	default:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(strings.TrimPrefix(locator, "file://"))
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, u string) ([]byte, error) {
	c := l.HTTP
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
}
