package discovery

import (
	"net/url"
	"strings"

	"lmsbridge/internal/domain"
)

// queryParams returns the query string of raw with lower-cased keys.
func queryParams(raw string) map[string]string {
	out := map[string]string{}
	u, err := url.Parse(raw)
	if err != nil {
		return out
	}
	for k, v := range u.Query() {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// aiccFromURL detects an AICC launch: aicc_sid plus aicc_url.
func aiccFromURL(raw string) (*domain.AICCSession, bool) {
	q := queryParams(raw)
	sid, endpoint := q["aicc_sid"], q["aicc_url"]
	if sid == "" || endpoint == "" {
		return nil, false
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return &domain.AICCSession{SessionID: sid, URL: endpoint}, true
}

// cmi5FromURL detects a cmi5 launch: endpoint, fetch, actor, registration
// and activityId must all be present.
func cmi5FromURL(raw string) (*domain.LRSConfig, bool) {
	q := queryParams(raw)
	lrs := &domain.LRSConfig{
		Endpoint:     q["endpoint"],
		FetchURL:     q["fetch"],
		Actor:        q["actor"],
		Registration: q["registration"],
		ActivityID:   q["activityid"],
	}
	if lrs.Endpoint == "" || lrs.FetchURL == "" || lrs.Actor == "" || lrs.Registration == "" || lrs.ActivityID == "" {
		return nil, false
	}
	return lrs, true
}
