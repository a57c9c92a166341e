// Package discovery walks the environment graph (the current window, its
// ancestors, frames and openers) looking for completion-capable handles.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// DefaultMaxDepth bounds the walk in hops from the root environment.
const DefaultMaxDepth = 8

// Config controls what the walk visits and probes.
type Config struct {
	MaxDepth     int
	FollowOpener bool
	// Extra names are probed after the built-in ones.
	ExtraScorm12   []string
	ExtraScorm2004 []string
	ExtraXAPI      []string
	ExtraCustom    []string
}

// DefaultConfig returns the standard walk.
func DefaultConfig() Config {
	return Config{MaxDepth: DefaultMaxDepth, FollowOpener: true}
}

// Result is the outcome of one discovery pass.
type Result struct {
	Handles      []domain.ApiHandle               `json:"handles"`
	Inaccessible []domain.InaccessibleEnvironment `json:"inaccessible"`
	Visited      int                              `json:"visited"`
}

// Discoverer finds handles. It holds no state between passes.
type Discoverer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Discoverer.
func New(cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, logger: logger}
}

type probeSet struct {
	kind  domain.ApiKind
	names []string
	match Signature
}

type visit struct {
	env   host.Environment
	label string
	depth int
}

// pass is the state of a single Discover call.
type pass struct {
	d       *Discoverer
	result  *Result
	seen    map[string]bool
	located map[string]bool
	denied  map[string]bool
}

// Discover walks the graph breadth-first from root. Environments are
// visited at most once (keyed by ID) and never beyond MaxDepth hops. No
// host function is invoked.
func (d *Discoverer) Discover(ctx context.Context, root host.Environment) (*Result, error) {
	if root == nil {
		return nil, domain.Errorf(domain.KindNotFound, "discover", "no root environment")
	}

	p := &pass{
		d:       d,
		result:  &Result{Handles: []domain.ApiHandle{}, Inaccessible: []domain.InaccessibleEnvironment{}},
		seen:    map[string]bool{},
		located: map[string]bool{},
		denied:  map[string]bool{},
	}

	queue := []visit{{env: root, label: "window", depth: 0}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return p.result, domain.E(domain.KindTimeout, "discover", err)
		}
		v := queue[0]
		queue = queue[1:]

		if v.env == nil || p.seen[v.env.ID()] || v.depth > d.cfg.MaxDepth {
			continue
		}
		p.seen[v.env.ID()] = true
		p.result.Visited++

		p.probe(ctx, v)
		queue = append(queue, p.neighbours(ctx, v)...)
	}

	d.logger.Debug("discovery complete",
		zap.Int("visited", p.result.Visited),
		zap.Int("handles", len(p.result.Handles)),
		zap.Int("inaccessible", len(p.result.Inaccessible)))
	return p.result, nil
}

func (d *Discoverer) probeSets() []probeSet {
	return []probeSet{
		{kind: domain.APIScorm12, names: append(append([]string{}, Scorm12Names...), d.cfg.ExtraScorm12...), match: MatchScorm12},
		{kind: domain.APIScorm2004, names: append(append([]string{}, Scorm2004Names...), d.cfg.ExtraScorm2004...), match: MatchScorm2004},
		{kind: domain.APIXAPI, names: append(append([]string{}, XAPINames...), d.cfg.ExtraXAPI...), match: MatchXAPI},
		{kind: domain.APICustom, names: append(append([]string{}, CustomNames...), d.cfg.ExtraCustom...), match: MatchCustom},
	}
}

// probe checks every well-known name in one environment.
func (p *pass) probe(ctx context.Context, v visit) {
	loc, err := v.env.Location(ctx)
	if err != nil {
		p.deny(v.label, err)
		return
	}
	p.fromURL(v, loc)

	for _, set := range p.d.probeSets() {
		for _, name := range set.names {
			ref, err := v.env.Probe(ctx, name)
			switch {
			case errors.Is(err, host.ErrAccessDenied):
				p.deny(v.label, err)
				return
			case err != nil:
				// A throwing getter hides one name, not the window.
				p.deny(v.label+"."+name, err)
				continue
			}
			if !ref.Defined() {
				continue
			}
			if kind, ok := set.match(ref); ok {
				p.add(ctx, v, []string{name}, kind, ref)
			}
			if set.kind != domain.APIXAPI || ref.Type != host.TypeObject {
				continue
			}
			for _, child := range xapiNested {
				nested, err := v.env.Probe(ctx, name, child)
				if err != nil || !nested.Defined() {
					continue
				}
				if _, ok := MatchXAPI(nested); ok {
					p.add(ctx, v, []string{name, child}, domain.APIXAPI, nested)
				}
			}
		}
	}
}

// fromURL detects the HTTP-based protocols from query parameters.
func (p *pass) fromURL(v visit, loc string) {
	if session, ok := aiccFromURL(loc); ok {
		p.append(domain.ApiHandle{
			Kind:       domain.APIAICC,
			Location:   v.label + ".location[aicc_url]",
			Ref:        domain.CapabilityRef{Env: v.env, AICC: session},
			Methods:    []string{"GetParam", "PutParam", "ExitAU"},
			Functional: domain.FunctionalUnknown,
		})
	}
	if lrs, ok := cmi5FromURL(loc); ok {
		p.append(domain.ApiHandle{
			Kind:       domain.APIXAPI,
			Location:   v.label + ".location[endpoint]",
			Ref:        domain.CapabilityRef{Env: v.env, LRS: lrs},
			Methods:    []string{"statements"},
			Functional: domain.FunctionalUnknown,
		})
	}
}

func (p *pass) add(ctx context.Context, v visit, path []string, kind domain.ApiKind, ref host.Ref) {
	h := domain.ApiHandle{
		Kind:       kind,
		Location:   v.label + "." + strings.Join(path, "."),
		Ref:        domain.CapabilityRef{Env: v.env, Path: path},
		Methods:    ref.Methods,
		Functional: domain.FunctionalUnknown,
	}
	if kind == domain.APICustom {
		h.Methods = []string{path[len(path)-1]}
	}
	if kind == domain.APIXAPI {
		h.Ref.LRS = p.libraryLRS(ctx, v.env, path)
	}
	p.append(h)
}

// libraryLRS reads the endpoint a library was configured with, if any.
func (p *pass) libraryLRS(ctx context.Context, env host.Environment, path []string) *domain.LRSConfig {
	read := func(field string) string {
		ref, err := env.Probe(ctx, append(append([]string{}, path...), "lrs", field)...)
		if err != nil || !ref.Defined() {
			return ""
		}
		return ref.String()
	}
	endpoint := read("endpoint")
	if endpoint == "" {
		return nil
	}
	return &domain.LRSConfig{Endpoint: endpoint, Auth: read("auth"), Actor: read("actor")}
}

func (p *pass) append(h domain.ApiHandle) {
	if p.located[h.Location] {
		return
	}
	p.located[h.Location] = true
	p.result.Handles = append(p.result.Handles, h)
	p.d.logger.Debug("handle found", zap.String("kind", string(h.Kind)), zap.String("location", h.Location))
}

func (p *pass) deny(label string, err error) {
	if p.denied[label] {
		return
	}
	p.denied[label] = true
	reason := err.Error()
	if errors.Is(err, host.ErrAccessDenied) {
		reason = "cross-origin or permission denied"
	}
	p.result.Inaccessible = append(p.result.Inaccessible, domain.InaccessibleEnvironment{Location: label, Reason: reason})
}

// neighbours lists parent, frames and opener. Edge failures are recorded
// as inaccessible rather than aborting the walk.
func (p *pass) neighbours(ctx context.Context, v visit) []visit {
	var out []visit
	next := v.depth + 1

	if parent, err := v.env.Parent(ctx); err != nil {
		p.deny(v.label+".parent", err)
	} else if parent != nil {
		out = append(out, visit{env: parent, label: v.label + ".parent", depth: next})
	}

	if frames, err := v.env.Frames(ctx); err != nil {
		p.deny(v.label+".frames", err)
	} else {
		for i, f := range frames {
			out = append(out, visit{env: f, label: fmt.Sprintf("%s.frames[%d]", v.label, i), depth: next})
		}
	}

	if p.d.cfg.FollowOpener {
		if opener, err := v.env.Opener(ctx); err != nil {
			p.deny(v.label+".opener", err)
		} else if opener != nil {
			out = append(out, visit{env: opener, label: v.label + ".opener", depth: next})
		}
	}
	return out
}
