// Package app composes the fflux flows: detect the device, keep its profile
// registered, list builds, pick the best one and save it locally.
//
// Each exported method is one user-facing action. Failures come back as
// internal/errors values whose message is ready to show the user; callers
// render them with errors.MessageOf.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"fflux/internal/auth"
	"fflux/internal/backend"
	"fflux/internal/blob"
	"fflux/internal/debug"
	"fflux/internal/device"
	"fflux/internal/domain"
	"fflux/internal/download"
	appErrors "fflux/internal/errors"
	"fflux/internal/profile"
	"fflux/internal/query"
	"fflux/internal/selection"
	"fflux/internal/store"
)

// ErrBusy is returned when a download is requested while another is running.
var ErrBusy = errors.New("download already in progress")

var logf = debug.Scope("app").Logf

// Blobs reads and stores build files.
type Blobs interface {
	Bytes(ctx context.Context, ref blob.Ref, progress blob.ProgressFunc) ([]byte, error)
	Put(ctx context.Context, data []byte, filename string) (blob.Ref, error)
}

// Config holds the collaborators of an App.
type Config struct {
	Service     backend.Service
	Session     auth.Session
	Blobs       Blobs
	Store       store.KV
	Signals     device.Signals
	DownloadDir string
	Reporter    Reporter
	// Cache is shared with other Apps when set; a private one is created otherwise.
	Cache *query.Cache
	// RetryDelay overrides query.DefaultRetryDelay for build list reads.
	RetryDelay time.Duration
}

// App runs fflux flows for one session.
type App struct {
	service     backend.Service
	session     auth.Session
	blobs       Blobs
	kv          store.KV
	signals     device.Signals
	downloadDir string
	reporter    Reporter
	cache       *query.Cache
	sync        *profile.Synchronizer
	retryDelay  time.Duration

	busy atomic.Bool
}

// Result describes a saved build.
type Result struct {
	Build domain.BuildEntry
	Path  string
	Size  int64
}

// Identity is the caller's status as shown by whoami.
type Identity struct {
	Authenticated bool
	Principal     domain.Principal
	Short         string
	Role          domain.UserRole
	Admin         bool
	Name          string
}

// New wires an App from cfg.
func New(cfg Config) *App {
	a := &App{
		service:     cfg.Service,
		session:     cfg.Session,
		blobs:       cfg.Blobs,
		kv:          cfg.Store,
		signals:     cfg.Signals,
		downloadDir: cfg.DownloadDir,
		reporter:    cfg.Reporter,
		cache:       cfg.Cache,
		retryDelay:  cfg.RetryDelay,
	}
	if a.reporter == nil {
		a.reporter = ReporterFunc(nil)
	}
	if a.cache == nil {
		a.cache = query.NewCache()
	}
	if a.kv == nil {
		a.kv = store.NewMemory()
	}
	if a.retryDelay <= 0 {
		a.retryDelay = query.DefaultRetryDelay
	}
	a.sync = profile.NewSynchronizer(a.service, a.session, a.Device, a.cache)
	return a
}

// Session returns the session the App acts for.
func (a *App) Session() auth.Session {
	return a.session
}

// Synchronizer exposes the registration state machine.
func (a *App) Synchronizer() *profile.Synchronizer {
	return a.sync
}

// Device fingerprints the current machine.
func (a *App) Device(ctx context.Context) (domain.DeviceInfo, error) {
	a.reporter.Stage(StageDetecting, "Detecting device...")
	info, err := device.Detect(ctx, a.signals, a.kv)
	if err != nil {
		return domain.DeviceInfo{}, appErrors.New(appErrors.CodeStorage, "could not load the device id", err)
	}
	return info, nil
}

// DeviceProfile returns the caller's registered profile, or nil when there is
// none or the session is not authenticated. A missing profile is not retried.
func (a *App) DeviceProfile(ctx context.Context) (*domain.DeviceProfile, error) {
	opts := query.Options{Disabled: !a.session.IsAuthenticated()}
	return query.Fetch(ctx, a.cache, query.KeyDeviceProfile(), opts, func(ctx context.Context) (*domain.DeviceProfile, error) {
		p, err := a.service.GetDeviceProfile(ctx, a.session.Principal())
		if errors.Is(err, backend.ErrNotFound) || appErrors.IsCode(err, appErrors.CodeProfileNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
}

// Builds lists builds newest first, optionally only those for target.
func (a *App) Builds(ctx context.Context, target *string) ([]domain.BuildEntry, error) {
	if !a.session.IsAuthenticated() {
		return nil, appErrors.New(appErrors.CodeUnauthenticated, MsgLoginToViewBuilds, nil)
	}
	a.reporter.Stage(StageLoadingBuilds, "Loading builds...")
	opts := query.Options{Retry: query.DefaultRetry, RetryDelay: a.retryDelay}
	builds, err := query.Fetch(ctx, a.cache, query.KeyBuilds(target), opts, func(ctx context.Context) ([]domain.BuildEntry, error) {
		list, err := a.service.ListBuilds(ctx, target)
		if err != nil {
			return nil, err
		}
		return selection.SortNewestFirst(list), nil
	})
	if err != nil {
		logf("list builds: %v", err)
		return nil, appErrors.New(appErrors.CodeOf(err), MsgLoadBuildsFailed, err)
	}
	return builds, nil
}

// EnsureRegistered loads the caller's profile and registers the device when
// it has none. It returns the profile as the backend now reports it, which
// may still be nil if the backend has not caught up.
func (a *App) EnsureRegistered(ctx context.Context) (*domain.DeviceProfile, error) {
	a.reporter.Stage(StageLoadingProfile, "Loading device profile...")
	p, err := a.DeviceProfile(ctx)
	if err != nil {
		return nil, err
	}

	snap := profile.Snapshot{Authenticated: a.session.IsAuthenticated(), Profile: p}
	if p == nil && snap.Authenticated {
		a.reporter.Stage(StageRegistering, "Registering this device...")
	}
	attempted, err := a.sync.Evaluate(ctx, snap)
	if err != nil {
		return nil, err
	}
	if !attempted {
		return p, nil
	}
	return a.DeviceProfile(ctx)
}

// DownloadBest picks the build best matched to this device and saves it.
func (a *App) DownloadBest(ctx context.Context) (Result, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return Result{}, appErrors.New(appErrors.CodeBusy, MsgBusy, ErrBusy)
	}
	defer a.busy.Store(false)

	if !a.session.IsAuthenticated() {
		return Result{}, appErrors.New(appErrors.CodeUnauthenticated, MsgLoginToDownload, nil)
	}

	p, err := a.EnsureRegistered(ctx)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{}, appErrors.New(appErrors.CodeProfileNotFound, MsgProfileNotReady, nil)
	}

	builds, err := a.Builds(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	if len(builds) == 0 {
		return Result{}, appErrors.New(appErrors.CodeNoBuilds, MsgNoBuilds, nil)
	}

	a.reporter.Stage(StageSelecting, fmt.Sprintf("Matching %s...", p.DeviceLabel))
	best := selection.SelectBestBuild(builds, p.DeviceLabel)
	if best == nil {
		return Result{}, appErrors.New(appErrors.CodeNoCompatibleBuild, MsgNoCompatibleBuild, nil)
	}
	logf("selected build %s (%s) for %q", best.ID, best.TargetDevice, p.DeviceLabel)
	return a.fetchAndSave(ctx, *best)
}

// DownloadBuild saves the build with the given id.
func (a *App) DownloadBuild(ctx context.Context, id string) (Result, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return Result{}, appErrors.New(appErrors.CodeBusy, MsgBusy, ErrBusy)
	}
	defer a.busy.Store(false)

	if !a.session.IsAuthenticated() {
		return Result{}, appErrors.New(appErrors.CodeUnauthenticated, MsgLoginToDownload, nil)
	}

	build, err := a.build(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return a.fetchAndSave(ctx, build)
}

// build looks id up in any cached build list before asking the backend.
func (a *App) build(ctx context.Context, id string) (domain.BuildEntry, error) {
	if list, ok := query.Peek[[]domain.BuildEntry](a.cache, query.KeyBuilds(nil)); ok {
		for _, b := range list {
			if b.ID == id {
				return b, nil
			}
		}
	}
	b, err := query.Fetch(ctx, a.cache, query.KeyBuild(id), query.Options{}, func(ctx context.Context) (domain.BuildEntry, error) {
		return a.service.GetBuild(ctx, id)
	})
	if errors.Is(err, backend.ErrNotFound) {
		return domain.BuildEntry{}, appErrors.New(appErrors.CodeNotFound, MsgBuildNotFound, err)
	}
	if err != nil {
		return domain.BuildEntry{}, appErrors.New(appErrors.CodeOf(err), MsgDownloadFailed, err)
	}
	return b, nil
}

func (a *App) fetchAndSave(ctx context.Context, build domain.BuildEntry) (Result, error) {
	a.reporter.Stage(StageDownloading, fmt.Sprintf("Downloading %s...", build.Filename))
	lastPercent := int64(-1)
	data, err := a.blobs.Bytes(ctx, build.File, func(read, total int64) {
		if total <= 0 {
			return
		}
		// Only whole-percent changes are reported.
		if pct := read * 100 / total; pct != lastPercent {
			lastPercent = pct
			a.reporter.Stage(StageDownloading, downloadDetail(read, total))
		}
	})
	if err != nil {
		logf("fetch %s: %v", build.ID, err)
		return Result{}, appErrors.New(appErrors.CodeDownloadFailed, MsgDownloadFailed, err)
	}

	a.reporter.Stage(StageSaving, fmt.Sprintf("Saving %s...", build.Filename))
	path, err := download.Save(a.downloadDir, data, build.Filename)
	if err != nil {
		logf("save %s: %v", build.ID, err)
		return Result{}, appErrors.New(appErrors.CodeDownloadFailed, MsgDownloadFailed, err)
	}
	a.reporter.Stage(StageDone, path)
	return Result{Build: build, Path: path, Size: int64(len(data))}, nil
}

// Upload stores the file at path and publishes it as a build for target.
// Only admins may upload.
func (a *App) Upload(ctx context.Context, path, target, version string) (domain.UploadBuildInput, error) {
	if !a.session.IsAuthenticated() {
		return domain.UploadBuildInput{}, appErrors.New(appErrors.CodeUnauthenticated, MsgLoginToUpload, nil)
	}
	admin, err := a.service.IsCallerAdmin(ctx)
	if err != nil {
		return domain.UploadBuildInput{}, err
	}
	if !admin {
		return domain.UploadBuildInput{}, appErrors.New(appErrors.CodeForbidden, MsgAdminRequired, nil)
	}

	//nolint:gosec // G304: Upload path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadBuildInput{}, appErrors.New(appErrors.CodeInvalidInput, fmt.Sprintf("read %s: %v", path, err), err)
	}
	filename := filepath.Base(path)
	input := domain.UploadBuildInput{TargetDevice: target, Filename: filename, Version: version, File: blob.FromBytes(data)}
	if err := input.Validate(); err != nil {
		return domain.UploadBuildInput{}, err
	}

	a.reporter.Stage(StageUploading, fmt.Sprintf("Uploading %s...", filename))
	ref, err := a.blobs.Put(ctx, data, filename)
	if err != nil {
		return domain.UploadBuildInput{}, appErrors.New(appErrors.CodeRemoteFailed, "could not store the build file", err)
	}
	input.File = ref

	if err := a.service.UploadBuild(ctx, input); err != nil {
		return domain.UploadBuildInput{}, err
	}
	a.cache.Invalidate(query.KeyBuilds(nil))
	a.reporter.Stage(StageDone, filename)
	return input, nil
}

// Whoami reports the caller's identity, role and saved profile.
func (a *App) Whoami(ctx context.Context) (Identity, error) {
	id := Identity{
		Authenticated: a.session.IsAuthenticated(),
		Principal:     a.session.Principal(),
		Short:         a.session.PrincipalShort(),
		Role:          domain.RoleGuest,
	}
	if !id.Authenticated {
		return id, nil
	}

	role, err := a.service.GetCallerUserRole(ctx)
	if err != nil {
		return id, err
	}
	id.Role = role
	id.Admin = role == domain.RoleAdmin

	up, err := a.service.GetCallerUserProfile(ctx)
	if err != nil {
		return id, err
	}
	if up != nil {
		id.Name = up.Name
	}
	return id, nil
}

// SetName saves the caller's display name.
func (a *App) SetName(ctx context.Context, name string) error {
	if !a.session.IsAuthenticated() {
		return appErrors.New(appErrors.CodeUnauthenticated, "Please log in to save a profile", nil)
	}
	return a.service.SaveCallerUserProfile(ctx, domain.UserProfile{Name: name})
}

// Grant assigns role to user. Only admins may grant roles.
func (a *App) Grant(ctx context.Context, user domain.Principal, role domain.UserRole) error {
	if !a.session.IsAuthenticated() {
		return appErrors.New(appErrors.CodeUnauthenticated, "Please log in to assign roles", nil)
	}
	admin, err := a.service.IsCallerAdmin(ctx)
	if err != nil {
		return err
	}
	if !admin {
		return appErrors.New(appErrors.CodeForbidden, MsgAdminRequiredToGrant, nil)
	}
	return a.service.AssignCallerUserRole(ctx, user, role)
}
