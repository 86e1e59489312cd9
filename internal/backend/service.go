// Package backend is the client side of the fflux build service.
//
// The service owns identity, build metadata and device profiles. fflux talks
// to it through the Service interface; HTTPClient implements it as JSON over
// HTTP and MockService stands in for it in tests.
package backend

import (
	"context"
	"errors"

	"fflux/internal/domain"
)

// Error variables for specific remote conditions.
var (
	ErrNotFound       = errors.New("backend: not found")
	ErrNetworkFailure = errors.New("backend: network request failed")
)

// Service is the remote API fflux depends on.
type Service interface {
	// ListBuilds returns every build, or only those for target when non-nil.
	ListBuilds(ctx context.Context, target *string) ([]domain.BuildEntry, error)
	GetBuild(ctx context.Context, id string) (domain.BuildEntry, error)
	// GetDeviceProfile returns ErrNotFound (code profile_not_found) when the
	// principal has not registered a device.
	GetDeviceProfile(ctx context.Context, principal domain.Principal) (domain.DeviceProfile, error)
	// RegisterDeviceProfile upserts by (creator, device id).
	RegisterDeviceProfile(ctx context.Context, profile domain.DeviceProfile) error
	UploadBuild(ctx context.Context, input domain.UploadBuildInput) error

	IsCallerAdmin(ctx context.Context) (bool, error)
	GetCallerUserRole(ctx context.Context) (domain.UserRole, error)
	// GetCallerUserProfile returns nil when the caller has not saved one.
	GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error)
	SaveCallerUserProfile(ctx context.Context, profile domain.UserProfile) error
	AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error
}
