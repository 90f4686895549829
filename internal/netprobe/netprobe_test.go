package netprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// reserve binds a port and returns it held open until cleanup.
func reserve(t *testing.T, port int) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Skipf("cannot reserve port %d: %v", port, err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// freePort asks the kernel for an ephemeral port and releases it.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestFindAvailablePrefersPreferred(t *testing.T) {
	preferred := freePort(t)

	got, err := FindAvailable(preferred, preferred+1, preferred+10)
	if err != nil {
		t.Fatalf("FindAvailable() error: %v", err)
	}
	if got != preferred {
		t.Errorf("got port %d, want preferred %d", got, preferred)
	}
}

func TestFindAvailableFallsBackToRange(t *testing.T) {
	base := freePort(t)
	reserve(t, base)

	got, err := FindAvailable(base, base, base+20)
	if err != nil {
		t.Fatalf("FindAvailable() error: %v", err)
	}
	if got == base {
		t.Errorf("got the reserved preferred port %d", base)
	}
	if got < base || got > base+20 {
		t.Errorf("port %d outside range %d-%d", got, base, base+20)
	}
}

func TestFindAvailableExhaustedRange(t *testing.T) {
	base := freePort(t)
	for p := base; p <= base+2; p++ {
		reserve(t, p)
	}

	_, err := FindAvailable(base, base, base+2)
	if err == nil {
		t.Fatal("FindAvailable() succeeded on fully reserved range")
	}
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("error type %T, want *RangeError", err)
	}
	if rangeErr.Low != base || rangeErr.High != base+2 {
		t.Errorf("error cites range %d-%d, want %d-%d", rangeErr.Low, rangeErr.High, base, base+2)
	}
	if !strings.Contains(err.Error(), strconv.Itoa(base)) {
		t.Errorf("error %q does not cite the range", err)
	}
}

func TestIsOurServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"version":"1.4.2"}`)
	}))
	defer srv.Close()

	port := srv.Listener.Addr().(*net.TCPAddr).Port
	ctx := context.Background()

	if !IsOurServer(ctx, port, "1.4.2") {
		t.Error("IsOurServer() = false for matching version")
	}
	if IsOurServer(ctx, port, "9.9.9") {
		t.Error("IsOurServer() = true for mismatched version")
	}
	if !IsOurServer(ctx, port, "") {
		t.Error("IsOurServer() with empty version should accept any hearth-server")
	}
}

func TestIsOurServerUnreachable(t *testing.T) {
	port := freePort(t)
	if IsOurServer(context.Background(), port, "1.0.0") {
		t.Error("IsOurServer() = true for unreachable port")
	}
}
