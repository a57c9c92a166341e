// Package browser exposes live Chrome pages as host.Environment graphs over
// the DevTools protocol. Probes and calls are evaluated in the page's top
// document; frames on another origin are reported as access denied.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"lmsbridge/internal/host"
)

// bindingName is the page global that carries callback invocations back.
const bindingName = "__lmsbridgeFire"

// Config selects the browser to drive.
type Config struct {
	// DebuggerURL attaches to a running browser (ws://...). When empty a
	// browser is launched.
	DebuggerURL       string
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
}

// DefaultConfig launches a headless browser.
func DefaultConfig() Config {
	return Config{Headless: true, NavigationTimeout: 30 * time.Second}
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Session owns the browser connection and the pages opened through it.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
	pages    []*pageState
}

// NewSession creates an unconnected session.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, logger: logger}
}

// Start connects to the configured browser or launches one.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		s.logger.Warn("stale browser connection, reconnecting")
		_ = s.browser.Close()
		s.browser = nil
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		s.launched = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b
	s.logger.Debug("browser connected", zap.String("control_url", controlURL))
	return nil
}

// Open navigates a new page to url and returns its top window.
func (s *Session) Open(ctx context.Context, url string) (*Window, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	ps, err := s.track(page)
	if err != nil {
		_ = page.Close()
		return nil, err
	}

	nav := page.Context(ctx).Timeout(s.cfg.navigationTimeout())
	if err := nav.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", url, err)
	}
	return ps.window(0), nil
}

// Attach returns the top window of an already open page whose URL
// contains match. This is how a course the user launched by hand is
// reached through --debugger-url.
func (s *Session) Attach(ctx context.Context, match string) (*Window, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()

	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, page := range pages {
		info, err := page.Info()
		if err != nil || !strings.Contains(info.URL, match) {
			continue
		}
		ps, err := s.track(page)
		if err != nil {
			return nil, err
		}
		return ps.window(0), nil
	}
	return nil, fmt.Errorf("no open page matches %q", match)
}

// Close closes pages opened by the session and any launched browser. An
// attached browser stays running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, ps := range s.pages {
		if err := ps.close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.pages = nil

	if s.browser != nil && s.launched != nil {
		errs = append(errs, s.browser.Close())
		s.launched.Cleanup()
	}
	s.browser = nil
	s.launched = nil
	return errors.Join(errs...)
}

func (s *Session) track(page *rod.Page) (*pageState, error) {
	ps := &pageState{
		page:      page,
		owned:     s.cfg.DebuggerURL == "",
		callbacks: map[string]host.Callback{},
		logger:    s.logger,
	}
	stop, err := page.Expose(bindingName, ps.fire)
	if err != nil {
		return nil, fmt.Errorf("expose callback binding: %w", err)
	}
	ps.stop = stop

	s.mu.Lock()
	s.pages = append(s.pages, ps)
	s.mu.Unlock()
	return ps, nil
}

// pageState is shared by every Window of one page.
type pageState struct {
	page   *rod.Page
	owned  bool
	stop   func() error
	logger *zap.Logger

	mu        sync.Mutex
	callbacks map[string]host.Callback
	nextID    int
}

func (p *pageState) window(n int) *Window {
	return &Window{p: p, n: n}
}

func (p *pageState) close() error {
	p.mu.Lock()
	p.callbacks = map[string]host.Callback{}
	p.mu.Unlock()

	var errs []error
	if p.stop != nil {
		errs = append(errs, p.stop())
	}
	if p.owned {
		errs = append(errs, p.page.Close())
	}
	return errors.Join(errs...)
}

func (p *pageState) register(cb host.Callback) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := "cb" + strconv.Itoa(p.nextID)
	p.callbacks[id] = cb
	return id
}

// fire runs on rod's event goroutine when page code calls a callback.
func (p *pageState) fire(arg gson.JSON) (interface{}, error) {
	raw, err := arg.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var call struct {
		ID   string `json:"id"`
		Args []any  `json:"args"`
	}
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	p.mu.Lock()
	cb := p.callbacks[call.ID]
	p.mu.Unlock()
	if cb == nil {
		p.logger.Debug("callback for unknown id", zap.String("id", call.ID))
		return nil, nil
	}
	cb(call.Args...)
	return nil, nil
}

// encode replaces callbacks with placeholders the invoke script revives.
func (p *pageState) encode(v any) any {
	switch t := v.(type) {
	case host.Callback:
		return map[string]any{"__lmsbridgeCallback": p.register(t)}
	case func(args ...any):
		return map[string]any{"__lmsbridgeCallback": p.register(host.Callback(t))}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = p.encode(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = p.encode(x)
		}
		return out
	}
	return v
}
