package adapter

import (
	"context"
	"net/url"
	"strings"

	"lmsbridge/internal/codec"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// maxActorHops bounds the ancestor walk for actor globals.
const maxActorHops = 8

// actorGlobals are the page variables learner identity is commonly left in.
var actorGlobals = [][]string{
	{"ADL", "XAPIWrapper", "lrs", "actor"},
	{"XAPIWrapper", "lrs", "actor"},
	{"TinCan", "actor"},
	{"tincan", "actor"},
	{"xapiActor"},
	{"actor"},
}

// resolveActor finds an identified actor. Sources in order: the handle's
// own LRS config, configuration, the launch URL, then ancestor globals.
// It returns the source that answered.
func resolveActor(ctx context.Context, h *domain.ApiHandle, cfg XAPIConfig) (*codec.Actor, string, error) {
	if h.Ref.LRS != nil {
		if a := parseIdentified(h.Ref.LRS.Actor); a != nil {
			return a, "handle", nil
		}
	}
	if a := parseIdentified(cfg.Actor); a != nil {
		return a, "config", nil
	}

	env := h.Ref.Env
	for hop := 0; env != nil && hop <= maxActorHops; hop++ {
		if loc, err := env.Location(ctx); err == nil {
			if a := parseIdentified(actorParam(loc)); a != nil {
				return a, "url", nil
			}
		}
		for _, path := range actorGlobals {
			ref, err := env.Probe(ctx, path...)
			if err != nil || ref.Type != host.TypeString {
				continue
			}
			if a := parseIdentified(ref.String()); a != nil {
				return a, strings.Join(path, "."), nil
			}
		}
		parent, err := env.Parent(ctx)
		if err != nil {
			break
		}
		env = parent
	}

	return nil, "", domain.Errorf(domain.KindNoActor, "xapi",
		"no actor with an mbox, mbox_sha1sum, openid or account could be resolved")
}

// parseIdentified accepts actor JSON or a bare email address and returns
// the actor only if it is identified.
func parseIdentified(raw string) *codec.Actor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.HasPrefix(raw, "{") {
		if strings.Contains(raw, "@") {
			a := &codec.Actor{Mbox: raw}
			a.Normalize()
			return a
		}
		return nil
	}
	a, err := codec.ParseActor(raw)
	if err != nil || !a.Identified() {
		return nil
	}
	return a
}

func actorParam(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	return u.Query().Get("actor")
}
