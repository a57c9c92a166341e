package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-rod/rod"

	"lmsbridge/internal/host"
)

// Window is one window of a page, addressed by its index in the page's
// window registry.
type Window struct {
	p *pageState
	n int
}

var _ host.Environment = (*Window)(nil)

type evalResult struct {
	OK     bool            `json:"ok"`
	Denied bool            `json:"denied"`
	Gone   bool            `json:"gone"`
	Thrown string          `json:"thrown"`
	Value  json.RawMessage `json:"value"`
}

func (w *Window) ID() string {
	return fmt.Sprintf("%s/%d", w.p.page.TargetID, w.n)
}

func (w *Window) eval(ctx context.Context, js string, args ...any) (evalResult, error) {
	var out evalResult
	res, err := w.p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      js,
		JSArgs:  append([]any{w.n}, args...),
		ByValue: true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, fmt.Errorf("evaluate in %s: %w", w.ID(), err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode result: %w", err)
	}

	switch {
	case out.Denied:
		return out, fmt.Errorf("%w: %s", host.ErrAccessDenied, out.Thrown)
	case out.Gone:
		return out, fmt.Errorf("%w: window %d no longer exists", host.ErrAccessDenied, w.n)
	case !out.OK:
		return out, &host.ThrownError{Message: out.Thrown}
	}
	return out, nil
}

// related resolves a script that answers with a registry index.
func (w *Window) related(ctx context.Context, js string) (host.Environment, error) {
	res, err := w.eval(ctx, js)
	if err != nil {
		return nil, err
	}
	var n int
	if err := json.Unmarshal(res.Value, &n); err != nil {
		return nil, fmt.Errorf("decode window index: %w", err)
	}
	if n < 0 {
		return nil, nil
	}
	return w.p.window(n), nil
}

func (w *Window) Location(ctx context.Context) (string, error) {
	res, err := w.eval(ctx, locationScript)
	if err != nil {
		return "", err
	}
	var loc string
	if err := json.Unmarshal(res.Value, &loc); err != nil {
		return "", fmt.Errorf("decode location: %w", err)
	}
	return loc, nil
}

func (w *Window) Parent(ctx context.Context) (host.Environment, error) {
	return w.related(ctx, parentScript)
}

func (w *Window) Opener(ctx context.Context) (host.Environment, error) {
	return w.related(ctx, openerScript)
}

func (w *Window) Frames(ctx context.Context) ([]host.Environment, error) {
	res, err := w.eval(ctx, framesScript)
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(res.Value, &ids); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}
	out := make([]host.Environment, 0, len(ids))
	for _, n := range ids {
		out = append(out, w.p.window(n))
	}
	return out, nil
}

func (w *Window) Probe(ctx context.Context, path ...string) (host.Ref, error) {
	if path == nil {
		path = []string{}
	}
	res, err := w.eval(ctx, probeScript, path)
	if err != nil {
		return host.Ref{}, err
	}
	var ref struct {
		Type    host.ValueType `json:"type"`
		Methods []string       `json:"methods"`
		Value   any            `json:"value"`
	}
	if err := json.Unmarshal(res.Value, &ref); err != nil {
		return host.Ref{}, fmt.Errorf("decode probe: %w", err)
	}
	sort.Strings(ref.Methods)
	return host.Ref{Type: ref.Type, Methods: ref.Methods, Value: ref.Value}, nil
}

func (w *Window) Invoke(ctx context.Context, path []string, method string, args ...any) (any, error) {
	if path == nil {
		path = []string{}
	}
	encoded := make([]any, len(args))
	for i, a := range args {
		encoded[i] = w.p.encode(a)
	}
	res, err := w.eval(ctx, invokeScript, path, method, encoded, bindingName)
	if err != nil {
		return nil, err
	}
	var ret any
	if len(res.Value) > 0 {
		if err := json.Unmarshal(res.Value, &ret); err != nil {
			return nil, fmt.Errorf("decode return value: %w", err)
		}
	}
	return ret, nil
}
