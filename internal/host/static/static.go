// Package static exposes HTTP-fetched launch pages as a host.Environment
// graph. Pages are parsed, not executed: frames and locations are
// available, globals are always undefined and Invoke is unsupported. That
// is enough for URL-launched protocols (AICC, cmi5).
package static

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"lmsbridge/internal/host"
)

const (
	// DefaultTimeout bounds each page fetch
	DefaultTimeout = 8 * time.Second
	// maxPageSize caps how much of a page is parsed
	maxPageSize = 4 << 20
)

// Loader fetches pages and caches them by URL, so a frame that points back
// at an ancestor yields the same environment.
type Loader struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	pages map[string]*Page
}

// NewLoader creates a loader. client may be nil.
func NewLoader(client *http.Client, timeout time.Duration, logger *zap.Logger) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{client: client, timeout: timeout, logger: logger, pages: map[string]*Page{}}
}

// Open returns the root page for rawURL. Nothing is fetched until the
// page's frames are first requested.
func (l *Loader) Open(rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse launch url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("launch url %q: only http and https are supported", rawURL)
	}
	return l.page(u.String(), nil), nil
}

func (l *Loader) page(rawURL string, parent *Page) *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pages[rawURL]; ok {
		return p
	}
	p := &Page{loader: l, url: rawURL, parent: parent}
	l.pages[rawURL] = p
	return p
}

// Page is one fetched document.
type Page struct {
	loader *Loader
	url    string
	parent *Page

	once   sync.Once
	frames []*Page
	err    error
}

var _ host.Environment = (*Page)(nil)

func (p *Page) ID() string {
	return p.url
}

// Location is the URL the page was requested with. It is known without a
// fetch, so a page that fails to load still reports its launch parameters.
func (p *Page) Location(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *Page) Parent(ctx context.Context) (host.Environment, error) {
	if p.parent == nil {
		return nil, nil
	}
	return p.parent, nil
}

// Opener is always nil; popups only exist in a running browser.
func (p *Page) Opener(ctx context.Context) (host.Environment, error) {
	return nil, nil
}

// Frames fetches the page once and returns its frame, iframe and
// meta-refresh targets in document order.
func (p *Page) Frames(ctx context.Context) ([]host.Environment, error) {
	p.once.Do(func() {
		p.err = p.load(ctx)
	})
	if p.err != nil {
		return nil, p.err
	}
	out := make([]host.Environment, 0, len(p.frames))
	for _, f := range p.frames {
		out = append(out, f)
	}
	return out, nil
}

// Probe finds nothing: a parsed page has no script globals.
func (p *Page) Probe(ctx context.Context, path ...string) (host.Ref, error) {
	return host.Ref{Type: host.TypeUndefined}, nil
}

func (p *Page) Invoke(ctx context.Context, path []string, method string, args ...any) (any, error) {
	return nil, host.ErrUnsupported
}

func (p *Page) load(ctx context.Context) error {
	l := p.loader
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("fetch %s: %w (HTTP %d)", p.url, host.ErrAccessDenied, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: HTTP %d", p.url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && !strings.Contains(mt, "html") {
			l.logger.Debug("not an html page", zap.String("url", p.url), zap.String("content_type", mt))
			return nil
		}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return fmt.Errorf("parse %s: %w", p.url, err)
	}

	base := resp.Request.URL
	for _, ref := range frameRefs(doc) {
		target, err := base.Parse(ref)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
			continue
		}
		target.Fragment = ""
		p.frames = append(p.frames, l.page(target.String(), p))
	}
	l.logger.Debug("page loaded", zap.String("url", p.url), zap.Int("frames", len(p.frames)))
	return nil
}

// frameRefs collects the src of every frame and iframe, plus the target
// of a meta refresh, honouring <base href>.
func frameRefs(doc *html.Node) []string {
	var (
		base string
		refs []string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				if base == "" {
					base = attr(n, "href")
				}
			case atom.Frame, atom.Iframe:
				if src := strings.TrimSpace(attr(n, "src")); src != "" && !strings.HasPrefix(src, "about:") {
					refs = append(refs, src)
				}
			case atom.Meta:
				if strings.EqualFold(attr(n, "http-equiv"), "refresh") {
					if target := refreshTarget(attr(n, "content")); target != "" {
						refs = append(refs, target)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if base == "" {
		return refs
	}
	b, err := url.Parse(base)
	if err != nil {
		return refs
	}
	for i, r := range refs {
		if u, err := b.Parse(r); err == nil {
			refs[i] = u.String()
		}
	}
	return refs
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// refreshTarget extracts the URL from `5; url=next.html`.
func refreshTarget(content string) string {
	_, rest, ok := strings.Cut(content, ";")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:4], "url=") {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest[4:]), `'"`)
}
