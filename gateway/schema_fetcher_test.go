package gateway_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pampang/federation/gateway"
)

const helloSDL = `{"data":{"_service":{"sdl":"type Query { hello: String }"}}}`

// scriptedSubgraph answers SDL requests with one status and body per attempt
// and records what it received. The last reply repeats once the script runs out.
type scriptedSubgraph struct {
	mu       sync.Mutex
	replies  []reply
	requests []recordedRequest
	arrivals []time.Time
}

type reply struct {
	status int
	body   string
}

type recordedRequest struct {
	Method      string
	ContentType string
	Body        string
}

func newScriptedSubgraph(t *testing.T, replies ...reply) (*scriptedSubgraph, *httptest.Server) {
	t.Helper()

	s := &scriptedSubgraph{replies: replies}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *scriptedSubgraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{Method: r.Method, ContentType: r.Header.Get("Content-Type"), Body: string(body)})
	s.arrivals = append(s.arrivals, time.Now())
	rep := s.replies[min(len(s.requests), len(s.replies))-1]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	w.Write([]byte(rep.body)) //nolint:errcheck
}

func (s *scriptedSubgraph) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func TestFetchSDL(t *testing.T) {
	unavailable := reply{status: http.StatusServiceUnavailable}
	ok := reply{status: http.StatusOK, body: helloSDL}

	tests := []struct {
		name      string
		replies   []reply
		attempts  int
		wantSDL   string
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "first attempt succeeds",
			replies:   []reply{ok},
			attempts:  3,
			wantSDL:   "type Query { hello: String }",
			wantCalls: 1,
		},
		{
			name:      "succeeds after retries",
			replies:   []reply{unavailable, unavailable, ok},
			attempts:  3,
			wantSDL:   "type Query { hello: String }",
			wantCalls: 3,
		},
		{
			name:      "attempts exhausted",
			replies:   []reply{unavailable},
			attempts:  2,
			wantErr:   true,
			wantCalls: 2,
		},
		{
			name:      "zero attempts still tries once",
			replies:   []reply{unavailable},
			attempts:  0,
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:      "empty SDL is retried",
			replies:   []reply{{status: http.StatusOK, body: `{"data":{"_service":{"sdl":""}}}`}, ok},
			attempts:  2,
			wantSDL:   "type Query { hello: String }",
			wantCalls: 2,
		},
		{
			name:      "undecodable body",
			replies:   []reply{{status: http.StatusOK, body: `<html>`}},
			attempts:  1,
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, srv := newScriptedSubgraph(t, tt.replies...)

			got, err := gateway.FetchSDLForTest(context.Background(), srv.URL, srv.Client(), gateway.RetryOption{Attempts: tt.attempts, Timeout: "5s", Interval: "1ms"})
			if tt.wantErr != (err != nil) {
				t.Fatalf("wantErr %v, got %v", tt.wantErr, err)
			}
			if got != tt.wantSDL {
				t.Errorf("SDL mismatch: got %q, want %q", got, tt.wantSDL)
			}
			if sub.calls() != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, sub.calls())
			}
		})
	}
}

func TestFetchSDL_Request(t *testing.T) {
	sub, srv := newScriptedSubgraph(t, reply{status: http.StatusOK, body: helloSDL})

	if _, err := gateway.FetchSDLForTest(context.Background(), srv.URL, srv.Client(), gateway.RetryOption{Attempts: 1}); err != nil {
		t.Fatal(err)
	}

	want := []recordedRequest{{
		Method:      http.MethodPost,
		ContentType: "application/json",
		Body:        `{"query":"{_service{sdl}}"}`,
	}}
	if diff := cmp.Diff(want, sub.requests); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchSDL_BackoffGrowsFromInterval(t *testing.T) {
	sub, srv := newScriptedSubgraph(t, reply{status: http.StatusServiceUnavailable})

	interval := 40 * time.Millisecond
	_, err := gateway.FetchSDLForTest(context.Background(), srv.URL, srv.Client(), gateway.RetryOption{Attempts: 3, Timeout: "5s", Interval: interval.String()})
	if err == nil {
		t.Fatal("expected an error once attempts are used up")
	}

	if len(sub.arrivals) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(sub.arrivals))
	}
	if gap := sub.arrivals[1].Sub(sub.arrivals[0]); gap < interval {
		t.Errorf("first wait %s is shorter than the interval %s", gap, interval)
	}
	if gap := sub.arrivals[2].Sub(sub.arrivals[1]); gap < 2*interval {
		t.Errorf("second wait %s did not double the interval", gap)
	}
}

func TestFetchSDL_AttemptTimeout(t *testing.T) {
	canceled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(2 * time.Second):
			w.Write([]byte(helloSDL)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := gateway.FetchSDLForTest(context.Background(), srv.URL, srv.Client(), gateway.RetryOption{Attempts: 1, Timeout: "50ms"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("attempt was not bounded by its timeout: %s", elapsed)
	}

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Error("the subgraph request was not canceled")
	}
}

func TestFetchSDL_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := gateway.FetchSDLForTest(ctx, srv.URL, srv.Client(), gateway.RetryOption{Attempts: 3, Timeout: "5s", Interval: "5s"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation did not interrupt the backoff wait: %s", elapsed)
	}
}

func TestFetchSDL_CanceledBeforeStart(t *testing.T) {
	sub, srv := newScriptedSubgraph(t, reply{status: http.StatusOK, body: helloSDL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gateway.FetchSDLForTest(ctx, srv.URL, srv.Client(), gateway.RetryOption{Attempts: 3}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sub.calls() != 0 {
		t.Errorf("no request should be sent, got %d", sub.calls())
	}
}
