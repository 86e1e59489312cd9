package device

import (
	"fmt"
	"runtime"
	"strings"
)

// DefaultSignals describes the current process the way a browser would
// describe itself: a platform string in navigator.platform style and a
// user agent naming fflux and the host system.
func DefaultSignals(version string) Signals {
	return signalsFor(runtime.GOOS, runtime.GOARCH, version)
}

// WithOverrides replaces non-empty fields of s.
func (s Signals) WithOverrides(userAgent, platform string) Signals {
	if ua := strings.TrimSpace(userAgent); ua != "" {
		s.UserAgent = ua
	}
	if p := strings.TrimSpace(platform); p != "" {
		s.Platform = p
	}
	return s
}

func signalsFor(goos, goarch, version string) Signals {
	platform := platformString(goos, goarch)
	if version == "" {
		version = "dev"
	}
	return Signals{
		UserAgent: fmt.Sprintf("fflux/%s (%s)", version, systemDescriptor(goos, goarch)),
		Platform:  platform,
	}
}

func platformString(goos, goarch string) string {
	switch goos {
	case "windows":
		return "Win32"
	case "darwin":
		return "MacIntel"
	case "linux":
		return "Linux " + archName(goarch)
	case "android":
		return "Linux armv8l"
	case "ios":
		return "iPhone"
	}
	return goos
}

func systemDescriptor(goos, goarch string) string {
	switch goos {
	case "windows":
		return "Windows NT; " + archName(goarch)
	case "darwin":
		return "Macintosh; Mac OS X"
	case "linux":
		return "X11; Linux " + archName(goarch)
	case "android":
		return "Linux; Android; Mobile"
	case "ios":
		return "iPhone; Mobile"
	}
	return goos + "; " + archName(goarch)
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	}
	return goarch
}
