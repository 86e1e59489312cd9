package backend

import (
	"context"
	"errors"
	"sync"

	"fflux/internal/domain"
)

// ErrMockNotImplemented is returned when a MockService method lacks an override.
var ErrMockNotImplemented = errors.New("backend.MockService: method not implemented")

// MockService is a test double for Service.
type MockService struct {
	ListBuildsFn            func(context.Context, *string) ([]domain.BuildEntry, error)
	GetBuildFn              func(context.Context, string) (domain.BuildEntry, error)
	GetDeviceProfileFn      func(context.Context, domain.Principal) (domain.DeviceProfile, error)
	RegisterDeviceProfileFn func(context.Context, domain.DeviceProfile) error
	UploadBuildFn           func(context.Context, domain.UploadBuildInput) error
	IsCallerAdminFn         func(context.Context) (bool, error)
	GetCallerUserRoleFn     func(context.Context) (domain.UserRole, error)
	GetCallerUserProfileFn  func(context.Context) (*domain.UserProfile, error)
	SaveCallerUserProfileFn func(context.Context, domain.UserProfile) error
	AssignCallerUserRoleFn  func(context.Context, domain.Principal, domain.UserRole) error

	mu                         sync.Mutex
	ListBuildsCallCount        int
	GetBuildCallCount          int
	GetDeviceProfileCallCount  int
	RegisterCallCount          int
	UploadBuildCallCount       int
	IsCallerAdminCallCount     int
	GetCallerUserRoleCallCount int
	GetCallerProfileCallCount  int
	SaveCallerProfileCallCount int
	AssignRoleCallCount        int
	ListBuildsCallArgs         []*string
	GetBuildCallArgs           []string
	GetDeviceProfileCallArgs   []domain.Principal
	RegisterCallArgs           []domain.DeviceProfile
	UploadBuildCallArgs        []domain.UploadBuildInput
	SaveCallerProfileCallArgs  []domain.UserProfile
	AssignRoleCallArgs         []AssignRoleCallArg
}

// AssignRoleCallArg captures arguments passed to AssignCallerUserRole.
type AssignRoleCallArg struct {
	User domain.Principal
	Role domain.UserRole
}

// NewMockService returns a MockService with zeroed handlers.
func NewMockService() *MockService {
	return &MockService{}
}

// ListBuilds invokes the configured stub or returns ErrMockNotImplemented.
func (m *MockService) ListBuilds(ctx context.Context, target *string) ([]domain.BuildEntry, error) {
	m.mu.Lock()
	m.ListBuildsCallCount++
	m.ListBuildsCallArgs = append(m.ListBuildsCallArgs, target)
	m.mu.Unlock()

	if m.ListBuildsFn == nil {
		return nil, ErrMockNotImplemented
	}
	return m.ListBuildsFn(ctx, target)
}

// GetBuild invokes the configured stub or returns ErrMockNotImplemented.
func (m *MockService) GetBuild(ctx context.Context, id string) (domain.BuildEntry, error) {
	m.mu.Lock()
	m.GetBuildCallCount++
	m.GetBuildCallArgs = append(m.GetBuildCallArgs, id)
	m.mu.Unlock()

	if m.GetBuildFn == nil {
		return domain.BuildEntry{}, ErrMockNotImplemented
	}
	return m.GetBuildFn(ctx, id)
}

// GetDeviceProfile invokes the configured stub or returns ErrMockNotImplemented.
func (m *MockService) GetDeviceProfile(ctx context.Context, principal domain.Principal) (domain.DeviceProfile, error) {
	m.mu.Lock()
	m.GetDeviceProfileCallCount++
	m.GetDeviceProfileCallArgs = append(m.GetDeviceProfileCallArgs, principal)
	m.mu.Unlock()

	if m.GetDeviceProfileFn == nil {
		return domain.DeviceProfile{}, ErrMockNotImplemented
	}
	return m.GetDeviceProfileFn(ctx, principal)
}

// RegisterDeviceProfile invokes the configured stub or returns nil (no-op by default).
func (m *MockService) RegisterDeviceProfile(ctx context.Context, profile domain.DeviceProfile) error {
	m.mu.Lock()
	m.RegisterCallCount++
	m.RegisterCallArgs = append(m.RegisterCallArgs, profile)
	m.mu.Unlock()

	if m.RegisterDeviceProfileFn == nil {
		return nil
	}
	return m.RegisterDeviceProfileFn(ctx, profile)
}

// UploadBuild invokes the configured stub or returns nil (no-op by default).
func (m *MockService) UploadBuild(ctx context.Context, input domain.UploadBuildInput) error {
	m.mu.Lock()
	m.UploadBuildCallCount++
	m.UploadBuildCallArgs = append(m.UploadBuildCallArgs, input)
	m.mu.Unlock()

	if m.UploadBuildFn == nil {
		return nil
	}
	return m.UploadBuildFn(ctx, input)
}

// IsCallerAdmin invokes the configured stub or returns false.
func (m *MockService) IsCallerAdmin(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.IsCallerAdminCallCount++
	m.mu.Unlock()

	if m.IsCallerAdminFn == nil {
		return false, nil
	}
	return m.IsCallerAdminFn(ctx)
}

// GetCallerUserRole invokes the configured stub or returns RoleGuest.
func (m *MockService) GetCallerUserRole(ctx context.Context) (domain.UserRole, error) {
	m.mu.Lock()
	m.GetCallerUserRoleCallCount++
	m.mu.Unlock()

	if m.GetCallerUserRoleFn == nil {
		return domain.RoleGuest, nil
	}
	return m.GetCallerUserRoleFn(ctx)
}

// GetCallerUserProfile invokes the configured stub or returns nil.
func (m *MockService) GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error) {
	m.mu.Lock()
	m.GetCallerProfileCallCount++
	m.mu.Unlock()

	if m.GetCallerUserProfileFn == nil {
		return nil, nil
	}
	return m.GetCallerUserProfileFn(ctx)
}

// SaveCallerUserProfile invokes the configured stub or returns nil (no-op by default).
func (m *MockService) SaveCallerUserProfile(ctx context.Context, profile domain.UserProfile) error {
	m.mu.Lock()
	m.SaveCallerProfileCallCount++
	m.SaveCallerProfileCallArgs = append(m.SaveCallerProfileCallArgs, profile)
	m.mu.Unlock()

	if m.SaveCallerUserProfileFn == nil {
		return nil
	}
	return m.SaveCallerUserProfileFn(ctx, profile)
}

// AssignCallerUserRole invokes the configured stub or returns nil (no-op by default).
func (m *MockService) AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error {
	m.mu.Lock()
	m.AssignRoleCallCount++
	m.AssignRoleCallArgs = append(m.AssignRoleCallArgs, AssignRoleCallArg{User: user, Role: role})
	m.mu.Unlock()

	if m.AssignCallerUserRoleFn == nil {
		return nil
	}
	return m.AssignCallerUserRoleFn(ctx, user, role)
}

// Calls returns a snapshot of the call counters keyed by method name.
func (m *MockService) Calls() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"ListBuilds":            m.ListBuildsCallCount,
		"GetBuild":              m.GetBuildCallCount,
		"GetDeviceProfile":      m.GetDeviceProfileCallCount,
		"RegisterDeviceProfile": m.RegisterCallCount,
		"UploadBuild":           m.UploadBuildCallCount,
		"IsCallerAdmin":         m.IsCallerAdminCallCount,
		"GetCallerUserRole":     m.GetCallerUserRoleCallCount,
		"GetCallerUserProfile":  m.GetCallerProfileCallCount,
		"SaveCallerUserProfile": m.SaveCallerProfileCallCount,
		"AssignCallerUserRole":  m.AssignRoleCallCount,
	}
}

var _ Service = (*MockService)(nil)
var _ Service = (*HTTPClient)(nil)
