package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmsbridge/internal/adapter"
	"lmsbridge/internal/codec"
	"lmsbridge/internal/discovery"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
	"lmsbridge/internal/host/browser"
	"lmsbridge/internal/host/static"
	"lmsbridge/internal/repository/sqlite"
	"lmsbridge/internal/service"
)

// target selects the environment a command runs against.
type target struct {
	url         string
	attach      string
	static      string
	debuggerURL string
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.url, "url", "", "Open the course launch URL in a browser")
	cmd.Flags().StringVar(&t.attach, "attach", "", "Attach to an open page whose URL contains this text")
	cmd.Flags().StringVar(&t.debuggerURL, "debugger-url", "", "DevTools websocket of a running browser (overrides browser.debugger_url)")
	cmd.Flags().StringVar(&t.static, "static", "", "Fetch the launch page over HTTP and walk its frames without a browser (AICC and cmi5 only)")
}

func (t *target) empty() bool {
	return t.url == "" && t.attach == "" && t.static == ""
}

// resolver opens the target environment once and hands it to every
// command that follows.
type resolver struct {
	c *cli
	t target

	mu      sync.Mutex
	env     host.Environment
	session *browser.Session
}

func (c *cli) resolver(t target) *resolver {
	return &resolver{c: c, t: t}
}

// Root opens the environment on first use.
func (r *resolver) Root(ctx context.Context) (host.Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.env != nil {
		return r.env, nil
	}

	switch {
	case r.t.static != "":
		loader := static.NewLoader(&http.Client{}, r.c.cfg.Network.Timeout.Duration(), r.c.logger)
		page, err := loader.Open(r.t.static)
		if err != nil {
			return nil, err
		}
		r.env = page
	case r.t.url != "" || r.t.attach != "":
		if r.session == nil {
			r.session = browser.NewSession(r.c.browserConfig(r.t.debuggerURL), r.c.logger)
		}
		var (
			w   *browser.Window
			err error
		)
		if r.t.attach != "" {
			w, err = r.session.Attach(ctx, r.t.attach)
		} else {
			w, err = r.session.Open(ctx, r.t.url)
		}
		if err != nil {
			return nil, err
		}
		r.env = w
	default:
		return nil, errors.New("no target: pass --url, --attach or --static")
	}
	return r.env, nil
}

// Close releases the browser session, if one was started.
func (r *resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		r.c.logger.Warn("browser close failed", zap.Error(err))
	}
	r.session = nil
	r.env = nil
}

func (c *cli) browserConfig(debuggerURL string) browser.Config {
	cfg := browser.Config{
		DebuggerURL:       c.cfg.Browser.DebuggerURL,
		Bin:               c.cfg.Browser.Bin,
		Headless:          c.cfg.Browser.Headless,
		NavigationTimeout: c.cfg.Browser.NavigationTimeout.Duration(),
	}
	if debuggerURL != "" {
		cfg.DebuggerURL = debuggerURL
	}
	return cfg
}

// newOrchestrator wires discovery and the configured adapters.
func (c *cli) newOrchestrator(bus *service.EventBus) (*service.Orchestrator, error) {
	opts := adapter.Options{
		Timeout: c.cfg.Network.Timeout.Duration(),
		Client:  &http.Client{},
		Logger:  c.logger,
	}
	registry := adapter.NewDefaultRegistry(opts, c.cfg.XAPIConfig())
	if err := c.cfg.Adapters.Apply(registry); err != nil {
		return nil, fmt.Errorf("configure adapters: %w", err)
	}
	return service.NewOrchestrator(discovery.New(c.cfg.DiscoveryConfig(), c.logger), registry, bus, c.logger), nil
}

func (c *cli) openArchive() (*sqlite.Repository, error) {
	repo, err := sqlite.New(c.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open report archive: %w", err)
	}
	return repo, nil
}

// print writes v to stdout in the selected output format.
func (c *cli) print(cmd *cobra.Command, v any) error {
	exp, err := codec.ExporterFor(c.output)
	if err != nil {
		return err
	}
	return exp.Export(v, cmd.OutOrStdout())
}

// parseIndex reads the optional handle index argument.
func parseIndex(args []string, fallback int) (int, error) {
	if len(args) == 0 {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid handle index %q", args[0])
	}
	return n, nil
}

// requestFlags override the configured completion request.
type requestFlags struct {
	status       string
	score        float64
	minScore     float64
	maxScore     float64
	sessionTime  time.Duration
	terminate    bool
	interactions bool
	noFallback   bool
	noVerify     bool
	keepGoing    bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.status, "status", "", "Status to report (passed, completed, failed, incomplete, browsed, not attempted)")
	fs.Float64Var(&f.score, "score", 0, "Raw score")
	fs.Float64Var(&f.minScore, "min", 0, "Minimum raw score")
	fs.Float64Var(&f.maxScore, "max", 0, "Maximum raw score")
	fs.DurationVar(&f.sessionTime, "session-time", 0, "Session time to report (default: time since start)")
	fs.BoolVar(&f.terminate, "terminate", false, "Terminate the session after committing")
	fs.BoolVar(&f.interactions, "interactions", false, "Write an interaction record")
	fs.BoolVar(&f.noFallback, "no-fallback", false, "Do not fall back to other handles")
	fs.BoolVar(&f.noVerify, "no-verify", false, "Skip read-back verification")
	fs.BoolVar(&f.keepGoing, "all", false, "Keep falling back after the first success")
}

// apply layers the flags the user set over the configured defaults.
func (f *requestFlags) apply(cmd *cobra.Command, req domain.CompletionRequest, opts service.CompletionOptions) (domain.CompletionRequest, service.CompletionOptions, error) {
	fs := cmd.Flags()
	if fs.Changed("status") {
		s := domain.ParseStatus(f.status)
		if s == "" {
			return req, opts, errors.New("--status must not be empty")
		}
		req.Status = s
	}
	if fs.Changed("score") {
		req.Score = f.score
	}
	if fs.Changed("min") {
		req.MinScore = f.minScore
	}
	if fs.Changed("max") {
		req.MaxScore = f.maxScore
	}
	if fs.Changed("session-time") {
		req.SessionTime = f.sessionTime
	}
	if fs.Changed("terminate") {
		req.TerminateSession = f.terminate
	}
	if fs.Changed("interactions") {
		req.IncludeInteractionRecord = f.interactions
	}
	if f.noFallback {
		opts.Fallback = false
	}
	if f.noVerify {
		opts.Verify = false
	}
	if f.keepGoing {
		opts.StopOnSuccess = false
	}
	if req.MaxScore < req.MinScore {
		return req, opts, fmt.Errorf("max score %v is below min score %v", req.MaxScore, req.MinScore)
	}
	return req, opts, nil
}

func kindNames(kinds []domain.ApiKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
