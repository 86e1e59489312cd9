// Package device fingerprints the machine fflux runs on.
//
// Detection reads two environment signals, a user-agent string and a platform
// string, and classifies them into an OS, a form factor and a browser. The
// resulting label has the shape "<OS> <Platform> (<Browser>)", which build
// selection relies on. A device id is kept in the local store so the same
// machine registers as the same device across runs.
package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fflux/internal/domain"
	"fflux/internal/store"

	"github.com/google/uuid"
)

// IDKey is the local store key holding the generated device id.
const IDKey = "fflux_device_id"

const unknown = "Unknown"

// Signals are the raw environment strings detection inspects.
type Signals struct {
	UserAgent string
	Platform  string
}

var timeNow = time.Now

// Detect classifies signals and loads (or creates) the persistent device id.
func Detect(ctx context.Context, signals Signals, kv store.KV) (domain.DeviceInfo, error) {
	ua := strings.ToLower(signals.UserAgent)
	platform := strings.ToLower(signals.Platform)

	os := DetectOS(ua, platform)
	browser := DetectBrowser(ua)
	formFactor := DetectPlatform(ua)

	id, err := DeviceID(ctx, kv)
	if err != nil {
		return domain.DeviceInfo{}, err
	}

	return domain.DeviceInfo{
		DeviceID:    id,
		OS:          os,
		Platform:    formFactor,
		Browser:     browser,
		DeviceLabel: domain.FormatDeviceLabel(os, formFactor, browser),
	}, nil
}

// DetectOS expects lower-cased inputs. User-agent tokens win over platform
// tokens; desktop systems are checked before mobile ones, so an Android UA that
// mentions Linux resolves to Linux.
func DetectOS(ua, platform string) string {
	switch {
	case strings.Contains(ua, "win"):
		return "Windows"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(platform, "win"):
		return "Windows"
	case strings.Contains(platform, "mac"):
		return "macOS"
	case strings.Contains(platform, "linux"):
		return "Linux"
	}
	return unknown
}

// DetectBrowser expects a lower-cased user agent. Edge is checked first since
// its UA also carries the Chrome token.
func DetectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return "Safari"
	case strings.Contains(ua, "opera"), strings.Contains(ua, "opr"):
		return "Opera"
	}
	return unknown
}

// DetectPlatform returns the form factor for a lower-cased user agent.
func DetectPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "Mobile"
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return "Tablet"
	}
	return "Desktop"
}

// DeviceID returns the stored device id, generating and persisting one when
// the store has none.
func DeviceID(ctx context.Context, kv store.KV) (string, error) {
	id, ok, err := kv.Get(ctx, IDKey)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = newDeviceID()
	if err := kv.Set(ctx, IDKey, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

func newDeviceID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("device_%d_%s", timeNow().UnixMilli(), token[:13])
}
