// Package profile keeps the caller's device profile registered with the
// backend.
//
// A Synchronizer is evaluated against a Snapshot of what the client currently
// knows. When the session is authenticated, the profile read has settled and
// came back empty, and no registration is already running, it registers
// exactly one profile built from the detected device. Success invalidates the
// cached profile and build lists so the next reads see the new state.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fflux/internal/auth"
	"fflux/internal/backend"
	"fflux/internal/debug"
	"fflux/internal/domain"
	appErrors "fflux/internal/errors"
	"fflux/internal/query"
)

// State is the registration lifecycle of the device profile.
type State int

const (
	Unregistered State = iota
	Registering
	Registered
)

func (s State) String() string {
	switch s {
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	default:
		return "unregistered"
	}
}

// ErrRegistrationInFlight is returned by Register while another call is
// still waiting on the backend.
var ErrRegistrationInFlight = errors.New("device registration already in progress")

var logf = debug.Scope("profile").Logf

// Snapshot is the client's current view of the session and profile.
type Snapshot struct {
	Authenticated bool
	Profile       *domain.DeviceProfile
	Loading       bool
}

// DetectFunc returns the current device's fingerprint.
type DetectFunc func(ctx context.Context) (domain.DeviceInfo, error)

// Synchronizer registers the device profile once per missing-profile condition.
type Synchronizer struct {
	service backend.Service
	session auth.Session
	detect  DetectFunc
	cache   *query.Cache

	mu      sync.Mutex
	state   State
	lastErr error
}

// NewSynchronizer wires a Synchronizer. cache may be nil.
func NewSynchronizer(service backend.Service, session auth.Session, detect DetectFunc, cache *query.Cache) *Synchronizer {
	return &Synchronizer{
		service: service,
		session: session,
		detect:  detect,
		cache:   cache,
	}
}

// Evaluate registers the device when the snapshot calls for it and reports
// whether a registration was attempted.
func (s *Synchronizer) Evaluate(ctx context.Context, snap Snapshot) (bool, error) {
	s.mu.Lock()
	if snap.Profile != nil {
		s.state = Registered
		s.mu.Unlock()
		return false, nil
	}
	eligible := snap.Authenticated && !snap.Loading && s.state == Unregistered
	s.mu.Unlock()

	if !eligible {
		return false, nil
	}
	err := s.Register(ctx)
	if errors.Is(err, ErrRegistrationInFlight) {
		return false, nil
	}
	return true, err
}

// Register builds a profile from the detected device and upserts it.
// Unauthenticated sessions are rejected before any network call.
func (s *Synchronizer) Register(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		return appErrors.New(appErrors.CodeUnauthenticated, "Please log in to register this device", nil)
	}

	s.mu.Lock()
	if s.state == Registering {
		s.mu.Unlock()
		return ErrRegistrationInFlight
	}
	s.state = Registering
	s.mu.Unlock()

	err := s.register(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.state = Unregistered
		logf("registration failed: %v", err)
		return err
	}
	s.state = Registered
	return nil
}

func (s *Synchronizer) register(ctx context.Context) error {
	info, err := s.detect(ctx)
	if err != nil {
		return fmt.Errorf("detect device: %w", err)
	}
	profile := info.Profile(s.session.Principal())
	logf("registering %s as %q", profile.ID, profile.DeviceLabel)

	if err := s.service.RegisterDeviceProfile(ctx, profile); err != nil {
		return fmt.Errorf("register device profile: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(query.KeyDeviceProfile())
		s.cache.Invalidate(query.KeyBuilds(nil))
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error from the most recent registration, nil after a
// success.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Reset returns the synchronizer to Unregistered, e.g. after the session
// changes.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Unregistered
	s.lastErr = nil
}
