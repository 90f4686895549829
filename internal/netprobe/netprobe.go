// Package netprobe finds bindable TCP ports for the supervised server and
// offers a diagnostic probe to tell our server apart from a stranger
// squatting on its port.
package netprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RangeError reports that no port in the scanned range could be bound.
type RangeError struct {
	Preferred int
	Low, High int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("no available port: preferred %d and range %d-%d all in use", e.Preferred, e.Low, e.High)
}

// FindAvailable returns a bindable TCP port on localhost, trying preferred
// first and then scanning lo..hi in order, skipping preferred. The probe
// binds and immediately releases: the goal is exclusive availability, not
// liveness of whoever holds the port.
func FindAvailable(preferred, lo, hi int) (int, error) {
	if bindable(preferred) {
		return preferred, nil
	}
	for port := lo; port <= hi; port++ {
		if port == preferred {
			continue
		}
		if bindable(port) {
			return port, nil
		}
	}
	return 0, &RangeError{Preferred: preferred, Low: lo, High: hi}
}

func bindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// readyResponse is the minimal shape of the server's readiness body.
type readyResponse struct {
	Version string `json:"version"`
}

// IsOurServer checks whether the process listening on port is a
// hearth-server reporting wantVersion. Diagnostics only; lifecycle
// decisions never depend on it.
func IsOurServer(ctx context.Context, port int, wantVersion string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/ready", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return wantVersion == "" || body.Version == wantVersion
}
