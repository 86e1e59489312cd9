package domain

import (
	"fmt"
	"strings"
)

// DeviceProfile is the server-side record tying a caller to a detected device.
type DeviceProfile struct {
	ID          string    `json:"id"`
	Creator     Principal `json:"creator"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	Browser     string    `json:"browser"`
	DeviceLabel string    `json:"deviceLabel"`
	IsLoggedIn  bool      `json:"isLoggedIn"`
}

// DeviceInfo is derived from the environment on every run. Only DeviceID is
// persisted between runs.
type DeviceInfo struct {
	DeviceID    string
	OS          string
	Platform    string
	Browser     string
	DeviceLabel string
}

// Profile builds the profile registered for creator on this device.
func (d DeviceInfo) Profile(creator Principal) DeviceProfile {
	return DeviceProfile{
		ID:          d.DeviceID,
		Creator:     creator,
		OS:          d.OS,
		Platform:    d.Platform,
		Browser:     d.Browser,
		DeviceLabel: d.DeviceLabel,
		IsLoggedIn:  true,
	}
}

// FormatDeviceLabel renders the "<OS> <Platform> (<Browser>)" label.
func FormatDeviceLabel(os, platform, browser string) string {
	return fmt.Sprintf("%s %s (%s)", os, platform, browser)
}

// OSToken returns the part of a device label before the first space, or the
// whole label when it has none.
func OSToken(label string) string {
	if idx := strings.IndexByte(label, ' '); idx >= 0 {
		return label[:idx]
	}
	return label
}
