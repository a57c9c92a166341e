package adapter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsbridge/internal/codec"
	"lmsbridge/internal/domain"
)

// hacpServer is a minimal HACP endpoint that keeps the last PutParam.
type hacpServer struct {
	mu       sync.Mutex
	commands []url.Values
	status   string
	// reply overrides the response body for a command.
	reply map[string]string
}

func (s *hacpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, form)

	cmd := form.Get("command")
	if body, ok := s.reply[cmd]; ok {
		io.WriteString(w, body)
		return
	}
	switch cmd {
	case "PutParam":
		s.status = codec.ParseHACPResponse(form.Get("aicc_data")).Get("core.lesson_status")
		io.WriteString(w, "error=0\r\nerror_text=Successful\r\n")
	case "GetParam":
		io.WriteString(w, "error=0\r\nerror_text=Successful\r\naicc_data=[Core]\r\nLesson_Status="+s.status+"\r\nScore=100\r\n")
	default:
		io.WriteString(w, "error=0\r\n")
	}
}

func (s *hacpServer) sent() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.commands...)
}

func aiccHandle(endpoint string) *domain.ApiHandle {
	return &domain.ApiHandle{
		Kind:     domain.APIAICC,
		Location: "window.location[aicc_url]",
		Ref:      domain.CapabilityRef{AICC: &domain.AICCSession{SessionID: "sid-1", URL: endpoint}},
	}
}

func TestAICCComplete(t *testing.T) {
	srv := &hacpServer{reply: map[string]string{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req := domain.DefaultRequest()
	req.Status = domain.StatusPassed
	req.Score = 85
	req.SessionTime = 65 * time.Second
	a := NewAICC(testOptions())
	res := a.Complete(context.Background(), aiccHandle(ts.URL), req)

	require.True(t, res.Success, res.Errors)
	sent := srv.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "PutParam", sent[0].Get("command"))
	assert.Equal(t, "4.0", sent[0].Get("version"))
	assert.Equal(t, "sid-1", sent[0].Get("session_id"))
	assert.Equal(t, "[core]\r\nlesson_status=p\r\nscore=85\r\ntime=00:01:05\r\n", sent[0].Get("aicc_data"))
	assert.Equal(t, "ExitAU", sent[1].Get("command"))

	out := a.Verify(context.Background(), aiccHandle(ts.URL), domain.StatusPassed)
	assert.True(t, out.Verified, out.Error)
	assert.True(t, out.Meaningful)
	assert.Equal(t, domain.StatusPassed, out.ObservedStatus)
	assert.Equal(t, "100", out.ObservedScore)
}

func TestAICCErrorCodeFails(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"non zero error", "error=101\r\nerror_text=Invalid session\r\n", "error 101: Invalid session"},
		{"missing error field", "version=4.0\r\n", "no error field"},
		{"empty body", "", "no error field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &hacpServer{reply: map[string]string{"PutParam": tt.reply}}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			res := NewAICC(testOptions()).Complete(context.Background(), aiccHandle(ts.URL), domain.DefaultRequest())

			assert.False(t, res.Success)
			require.NotEmpty(t, res.Errors)
			assert.Contains(t, res.Errors[0], tt.want)
			// ExitAU is still attempted.
			assert.Len(t, srv.sent(), 2)
		})
	}
}

func TestAICCHTTPErrorWithSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "error=0\r\n")
	}))
	defer ts.Close()

	res := NewAICC(testOptions()).Complete(context.Background(), aiccHandle(ts.URL), domain.DefaultRequest())
	assert.False(t, res.Success)
	assert.Contains(t, res.Errors[0], "HTTP 500")
}

func TestAICCTimeout(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(block)

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	res := NewAICC(opts).Complete(context.Background(), aiccHandle(ts.URL), domain.DefaultRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Errors[0], string(domain.KindTimeout))
}

func TestAICCVerifyMismatch(t *testing.T) {
	srv := &hacpServer{status: "i", reply: map[string]string{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	out := NewAICC(testOptions()).Verify(context.Background(), aiccHandle(ts.URL), domain.StatusCompleted)
	assert.False(t, out.Verified)
	assert.Equal(t, domain.StatusIncomplete, out.ObservedStatus)
}

func TestAICCTestAndReadCMI(t *testing.T) {
	srv := &hacpServer{status: "c", reply: map[string]string{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a := NewAICC(testOptions())
	assert.Equal(t, domain.FunctionalConfirmed, a.Test(context.Background(), aiccHandle(ts.URL)))

	data, err := a.ReadCMI(context.Background(), aiccHandle(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "c", data["core.lesson_status"])

	srv.mu.Lock()
	srv.reply["GetParam"] = "error=1\r\n"
	srv.mu.Unlock()
	assert.Equal(t, domain.FunctionalFailed, a.Test(context.Background(), aiccHandle(ts.URL)))
}
