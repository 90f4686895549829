// Package updater checks for and applies host application updates from
// GitHub releases. The supervised server binary ships inside the release
// archive, so one update covers both.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/hearthdesk/hearth/internal/logging"
	"github.com/hearthdesk/hearth/internal/version"
)

// Error codes for update operations.
const (
	ErrCodeCheckFailed = "CHECK_FAILED"
	ErrCodeNoUpdate    = "NO_UPDATE"
	ErrCodeApplyFailed = "APPLY_FAILED"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeDisabled    = "DISABLED"
)

// Error is an update error with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// UpdateInfo describes the latest release relative to this build.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseNotes    string
	ReleaseURL      string
	PublishedAt     time.Time
	UpdateAvailable bool
}

// Service checks for and applies updates.
type Service interface {
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	// ApplyUpdate replaces the running executable with the latest
	// release. The caller restarts the application afterwards.
	ApplyUpdate(ctx context.Context) error
	IsEnabled() bool
	DisabledReason() string
}

// Options configures the updater.
type Options struct {
	// Repository is the GitHub slug, e.g. "hearthdesk/hearth".
	Repository string
	Prerelease bool
}

type service struct {
	repository selfupdate.Repository
	updater    *selfupdate.Updater

	mu     sync.Mutex
	latest *selfupdate.Release

	enabled        bool
	disabledReason string
	logger         *slog.Logger
}

// NewService creates an updater. When the executable's directory is not
// writable the service comes up disabled rather than failing.
func NewService(opts *Options) (Service, error) {
	logger := logging.GetLogger("updater")

	if ok, reason := checkWritePermission(); !ok {
		logger.Warn("Update service disabled", "reason", reason)
		return &service{disabledReason: reason, logger: logger}, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	return &service{
		repository: selfupdate.ParseSlug(opts.Repository),
		updater:    up,
		enabled:    true,
		logger:     logger,
	}, nil
}

func checkWritePermission() (bool, string) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Sprintf("cannot resolve executable path: %v", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return false, fmt.Sprintf("cannot resolve symlinks: %v", err)
	}
	dir := filepath.Dir(exe)
	tmp := filepath.Join(dir, ".hearth.update.test")
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(tmp)
	return true, ""
}

func (s *service) IsEnabled() bool {
	return s.enabled
}

func (s *service) DisabledReason() string {
	return s.disabledReason
}

func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	current := version.String()
	release, found, err := s.updater.DetectLatest(ctx, s.repository)
	if err != nil {
		return nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	// A dev build is always considered outdated.
	newer := current == "dev" || release.GreaterThan(current)
	if !newer {
		return &UpdateInfo{
			CurrentVersion: current,
			LatestVersion:  release.Version(),
		}, nil
	}

	s.mu.Lock()
	s.latest = release
	s.mu.Unlock()

	return &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		UpdateAvailable: true,
	}, nil
}

func (s *service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	s.mu.Lock()
	release := s.latest
	s.mu.Unlock()
	if release == nil {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "no update available", nil)
		}
		s.mu.Lock()
		release = s.latest
		s.mu.Unlock()
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}
	if err := s.updater.UpdateTo(ctx, release, exe); err != nil {
		return newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	s.logger.Info("Update applied", "version", release.Version())
	return nil
}
