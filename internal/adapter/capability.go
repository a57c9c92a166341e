package adapter

import (
	"encoding/base64"
	"strings"
)

// XAPIConfig holds the LRS credentials and statement defaults used when the
// launch itself does not supply them.
type XAPIConfig struct {
	// Endpoint is used for library handles that carry no endpoint and as
	// the target for `lmsbridge complete --xapi-endpoint`.
	Endpoint string
	// Auth is a complete Authorization value, or a bare token that gets
	// the Basic scheme.
	Auth string
	// Key and Secret build Basic auth when Auth is empty.
	Key    string
	Secret string
	// Actor is raw actor JSON or a bare email address.
	Actor        string
	ActivityID   string
	ActivityName string
}

// Authorization returns the header value for the configured credentials,
// or "".
func (c XAPIConfig) Authorization() string {
	if c.Auth != "" {
		return authorizationHeader(c.Auth)
	}
	if c.Key != "" || c.Secret != "" {
		return BasicAuth(c.Key, c.Secret)
	}
	return ""
}

// BasicAuth encodes key:secret for an LRS.
func BasicAuth(key, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(key+":"+secret))
}

// authorizationHeader adds the Basic scheme to a bare token.
func authorizationHeader(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "basic ") || strings.HasPrefix(lower, "bearer ") {
		return v
	}
	return "Basic " + v
}
