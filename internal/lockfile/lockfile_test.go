package lockfile

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireWritesClaim(t *testing.T) {
	dir := t.TempDir()

	guard, err := Acquire(dir, 8000, testLogger())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer guard.Release()

	claim, err := Read(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if claim.PID != os.Getpid() {
		t.Errorf("claim.PID = %d, want %d", claim.PID, os.Getpid())
	}
	if claim.Port != 8000 {
		t.Errorf("claim.Port = %d, want 8000", claim.Port)
	}
	if claim.AcquiredAt.IsZero() {
		t.Error("claim.AcquiredAt is zero")
	}
}

func TestSecondAcquireFailsWhileHolderAlive(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, FileName)

	// Simulate a different live process owning the claim: spawn a sleeper.
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()
	writeTestClaim(t, path, cmd.Process.Pid, 8000)

	_, err := Acquire(dir, 8001, testLogger())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Acquire() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	// A pid that certainly exited: spawn and reap a short-lived process.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run helper process: %v", err)
	}
	writeTestClaim(t, path, cmd.Process.Pid, 7000)

	guard, err := Acquire(dir, 8000, testLogger())
	if err != nil {
		t.Fatalf("Acquire() over stale claim error: %v", err)
	}
	defer guard.Release()

	claim, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if claim.PID != os.Getpid() {
		t.Errorf("claim not overwritten: pid = %d, want %d", claim.PID, os.Getpid())
	}
	if claim.Port != 8000 {
		t.Errorf("claim.Port = %d, want 8000", claim.Port)
	}
}

func TestUnreadableClaimIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("not toml at all {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	guard, err := Acquire(dir, 8000, testLogger())
	if err != nil {
		t.Fatalf("Acquire() over corrupt claim error: %v", err)
	}
	guard.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	guard, err := Acquire(dir, 8000, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	guard.Release()
	guard.Release() // second call must be a no-op

	if _, err := os.Stat(filepath.Join(dir, FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file still exists after Release: %v", err)
	}

	// The directory is claimable again.
	guard2, err := Acquire(dir, 8001, testLogger())
	if err != nil {
		t.Fatalf("re-Acquire after Release error: %v", err)
	}
	guard2.Release()
}

func TestReleaseOnDeferredErrorPath(t *testing.T) {
	dir := t.TempDir()

	func() {
		guard, err := Acquire(dir, 8000, testLogger())
		if err != nil {
			t.Fatal(err)
		}
		defer guard.Release()
		// Early return path: the deferred Release must still run.
	}()

	if _, err := os.Stat(filepath.Join(dir, FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Error("lock file survived scope exit")
	}
}

func writeTestClaim(t *testing.T, path string, pid, port int) {
	t.Helper()
	data, err := toml.Marshal(Claim{PID: pid, Port: port, AcquiredAt: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}
