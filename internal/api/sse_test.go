package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/supervisor"
)

// readSSEData reads server-sent event data lines until the predicate
// matches or the scanner stops.
func readSSEData(t *testing.T, scanner *bufio.Scanner, match string, timeout time.Duration) string {
	t.Helper()
	done := make(chan string, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") && strings.Contains(line, match) {
				done <- line
				return
			}
		}
		done <- ""
	}()
	select {
	case line := <-done:
		return line
	case <-time.After(timeout):
		return ""
	}
}

func TestEventsStream(t *testing.T) {
	ctrl := &mockController{state: supervisor.State{Phase: supervisor.PhaseRunning, Port: 8000}}
	srv, bus := newTestServer(t, ctrl)

	ts := httptest.NewServer(srv.GetMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect SSE: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)

	// The stream opens with the current lifecycle snapshot.
	if line := readSSEData(t, scanner, `"running"`, 5*time.Second); line == "" {
		t.Fatal("did not receive initial state snapshot")
	}

	// A published transition reaches the subscriber.
	bus.Publish(events.StateChangedEvent{
		Phase:     "restarting",
		Attempt:   1,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if line := readSSEData(t, scanner, `"restarting"`, 5*time.Second); line == "" {
		t.Fatal("did not receive published state change")
	}
}

func TestLogsStreamSendsBufferedEntries(t *testing.T) {
	srv, _ := newTestServer(t, &mockController{})

	ts := httptest.NewServer(srv.GetMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/logs/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect SSE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
}
