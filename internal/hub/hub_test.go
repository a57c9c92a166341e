package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"lmsbridge/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stream connects to srv and returns a reader positioned after the
// ": connected" preamble.
func stream(t *testing.T, ctx context.Context, srv *httptest.Server) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	return r
}

func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestHubFollowsEventBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	bus := service.NewEventBus()
	h.Follow(ctx, bus)

	srv := httptest.NewServer(h)
	reqCtx, stop := context.WithCancel(context.Background())
	r := stream(t, reqCtx, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(service.Event{Type: service.EventCompletionReport, ReportID: "r1"})

	var got service.Event
	require.NoError(t, json.Unmarshal([]byte(nextData(t, r)), &got))
	assert.Equal(t, service.EventCompletionReport, got.Type)
	assert.Equal(t, "r1", got.ReportID)
	assert.False(t, got.Time.IsZero())

	stop()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	srv.Close()
	cancel()
	<-done
}

func TestHubStreamOutlivesWriteTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	srv := httptest.NewUnstartedServer(h)
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	reqCtx, stop := context.WithCancel(context.Background())
	r := stream(t, reqCtx, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(400 * time.Millisecond)
	h.Broadcast(map[string]int{"n": 1})
	assert.Equal(t, `{"n":1}`, nextData(t, r))

	stop()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	srv.Close()
	cancel()
	<-done
}

func TestHubRunStopsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(nil)
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(h)
	defer srv.Close()
	r := stream(t, context.Background(), srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	// closeAll ends the stream, so the body reaches EOF.
	_, err := r.ReadString('\n')
	assert.Error(t, err)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHubRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(nil)
	cancel()
	h.Run(ctx)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New(nil)
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.Broadcast(i)
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
		want  string
	}{
		{"named event", service.Event{Type: service.EventVerification, ReportID: "r1", Time: time.Unix(0, 0).UTC()},
			"event: verification\ndata: {\"type\":\"verification\",\"report_id\":\"r1\",\"time\":\"1970-01-01T00:00:00Z\"}\n\n"},
		{"plain value", map[string]int{"n": 1}, "data: {\"n\":1}\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := frame(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := frame(func() {})
	assert.Error(t, err)
}
