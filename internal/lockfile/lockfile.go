// Package lockfile enforces single-instance ownership of a working
// directory. One claim file exists per directory; a claim whose pid is no
// longer alive is stale and gets reclaimed.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the claim file created inside the working directory. TOML so
// a support engineer can read and diff it.
const FileName = "hearth.lock"

// ErrAlreadyRunning indicates a live process holds the claim.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Claim is the on-disk record of working-directory ownership.
type Claim struct {
	PID        int       `toml:"pid"`
	Port       int       `toml:"port"`
	AcquiredAt time.Time `toml:"acquired_at"`
}

// Guard holds an acquired claim until Release.
type Guard struct {
	path     string
	released bool
	logger   *slog.Logger
}

// Acquire claims workDir for this process. An existing claim owned by a
// live process fails with ErrAlreadyRunning; a stale claim is removed and
// superseded. The claim file is created exclusively with owner-only
// permissions and synced before returning.
func Acquire(workDir string, port int, logger *slog.Logger) (*Guard, error) {
	path := filepath.Join(workDir, FileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			if werr := writeClaim(f, port); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock file %s: %w", path, werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("close lock file %s: %w", path, cerr)
			}
			logger.Info("Acquired instance lock", "path", path, "port", port)
			return &Guard{path: path, logger: logger}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		claim, rerr := Read(path)
		if rerr == nil && claim.PID > 0 && claim.PID != os.Getpid() && pidAlive(claim.PID) {
			return nil, fmt.Errorf("%w (pid %d, port %d)", ErrAlreadyRunning, claim.PID, claim.Port)
		}

		// Stale or unreadable claim. Remove it and retry the exclusive create.
		if rerr == nil {
			logger.Warn("Removing stale instance lock", "path", path, "stale_pid", claim.PID)
		} else {
			logger.Warn("Removing unreadable instance lock", "path", path, "error", rerr)
		}
		if remErr := os.Remove(path); remErr != nil && !errors.Is(remErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock file %s: %w", path, remErr)
		}
	}

	return nil, fmt.Errorf("lock file %s: could not acquire after stale cleanup", path)
}

// Release deletes the claim file. Idempotent; safe to defer on every path.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		g.logger.Warn("Failed to remove instance lock", "path", g.path, "error", err)
		return
	}
	g.logger.Info("Released instance lock", "path", g.path)
}

// Path returns the claim file location.
func (g *Guard) Path() string {
	return g.path
}

// Read parses the claim file at path.
func Read(path string) (Claim, error) {
	var claim Claim
	data, err := os.ReadFile(path)
	if err != nil {
		return claim, err
	}
	if err := toml.Unmarshal(data, &claim); err != nil {
		return claim, fmt.Errorf("parse lock file: %w", err)
	}
	return claim, nil
}

// writeClaim marshals the claim and flushes it to stable storage so a
// crash right after acquisition still leaves a parseable file.
func writeClaim(f *os.File, port int) error {
	data, err := toml.Marshal(Claim{
		PID:        os.Getpid(),
		Port:       port,
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
