package static

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"lmsbridge/internal/discovery"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

func launchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/launch", func(w http.ResponseWriter, r *http.Request) {
		player := "/player?aicc_sid=S-42&aicc_url=" + url.QueryEscape(srv.URL+"/hacp")
		fmt.Fprintf(w, `<html><body><frameset><frame src=%q><frame src="/gone"></frameset></body></html>`, player)
	})
	mux.HandleFunc("/player", func(w http.ResponseWriter, r *http.Request) {
		// Points back at the launcher; the loader must not loop.
		fmt.Fprint(w, `<html><body><iframe src="/launch"></iframe><iframe src="about:blank"></iframe></body></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverAICCThroughFrames(t *testing.T) {
	srv := launchServer(t)
	loader := NewLoader(srv.Client(), 0, zaptest.NewLogger(t))
	root, err := loader.Open(srv.URL + "/launch")
	require.NoError(t, err)

	res, err := discovery.New(discovery.DefaultConfig(), nil).Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, res.Handles, 1)
	h := res.Handles[0]
	assert.Equal(t, domain.APIAICC, h.Kind)
	assert.Equal(t, "window.frames[0].location[aicc_url]", h.Location)
	require.NotNil(t, h.Ref.AICC)
	assert.Equal(t, "S-42", h.Ref.AICC.SessionID)
	assert.Equal(t, srv.URL+"/hacp", h.Ref.AICC.URL)

	// launch, player, gone; the back-reference is the cached launch page
	assert.Equal(t, 3, res.Visited)
	require.Len(t, res.Inaccessible, 1)
	assert.Equal(t, "window.frames[1].frames", res.Inaccessible[0].Location)
}

func TestFramesAreCachedByURL(t *testing.T) {
	srv := launchServer(t)
	loader := NewLoader(srv.Client(), 0, nil)
	root, err := loader.Open(srv.URL + "/launch")
	require.NoError(t, err)
	ctx := context.Background()

	frames, err := root.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	inner, err := frames[0].Frames(ctx)
	require.NoError(t, err)
	require.Len(t, inner, 1)
	assert.Same(t, root, inner[0])

	parent, err := frames[0].Parent(ctx)
	require.NoError(t, err)
	assert.Same(t, root, parent)
}

func TestPageIsReadOnly(t *testing.T) {
	srv := launchServer(t)
	root, err := NewLoader(srv.Client(), 0, nil).Open(srv.URL + "/launch")
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := root.Probe(ctx, "API")
	require.NoError(t, err)
	assert.False(t, ref.Defined())

	_, err = root.Invoke(ctx, []string{"API"}, "LMSInitialize", "")
	assert.ErrorIs(t, err, host.ErrUnsupported)

	opener, err := root.Opener(ctx)
	require.NoError(t, err)
	assert.Nil(t, opener)
}

func TestForbiddenPageIsAccessDenied(t *testing.T) {
	srv := launchServer(t)
	root, err := NewLoader(srv.Client(), 0, nil).Open(srv.URL + "/private")
	require.NoError(t, err)

	_, err = root.Frames(context.Background())
	assert.True(t, errors.Is(err, host.ErrAccessDenied))
}

func TestOpenRejectsNonHTTP(t *testing.T) {
	_, err := NewLoader(nil, 0, nil).Open("file:///etc/passwd")
	assert.Error(t, err)
}

func TestFrameRefs(t *testing.T) {
	tests := []struct {
		name string
		page string
		want []string
	}{
		{
			name: "frames and iframes in order",
			page: `<frameset><frame src="a.html"></frameset><iframe src=" b.html "></iframe>`,
			want: []string{"a.html", "b.html"},
		},
		{
			name: "meta refresh",
			page: `<head><meta http-equiv="Refresh" content="0; URL='next.html?aicc_sid=1'"></head>`,
			want: []string{"next.html?aicc_sid=1"},
		},
		{
			name: "base href",
			page: `<head><base href="https://lms.example/course/"></head><body><iframe src="sco.html"></iframe></body>`,
			want: []string{"https://lms.example/course/sco.html"},
		},
		{
			name: "blank and empty skipped",
			page: `<iframe src="about:blank"></iframe><iframe></iframe>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.page))
			require.NoError(t, err)
			assert.Equal(t, tt.want, frameRefs(doc))
		})
	}
}
