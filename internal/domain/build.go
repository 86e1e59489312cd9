package domain

import (
	"strings"
	"time"

	"fflux/internal/blob"
)

// BuildEntry is a packaged artifact uploaded for a target device.
// Entries are owned by the backend; the client only holds read-only copies.
type BuildEntry struct {
	ID           string    `json:"id"`
	Creator      Principal `json:"creator"`
	TargetDevice string    `json:"targetDevice"`
	File         blob.Ref  `json:"file"`
	CreatedAt    int64     `json:"createdAt"` // nanoseconds since the Unix epoch
	Filename     string    `json:"filename"`
	Version      string    `json:"version"`
}

// CreatedTime converts the nanosecond timestamp to a time.Time.
func (b BuildEntry) CreatedTime() time.Time {
	return time.Unix(0, b.CreatedAt)
}

// UploadBuildInput describes a new build submitted by an administrator.
type UploadBuildInput struct {
	TargetDevice string   `json:"targetDevice"`
	File         blob.Ref `json:"file"`
	Filename     string   `json:"filename"`
	Version      string   `json:"version"`
}

// Validate checks the fields the backend requires.
func (in UploadBuildInput) Validate() error {
	switch {
	case strings.TrimSpace(in.TargetDevice) == "":
		return invalidUploadError("target device is required")
	case strings.TrimSpace(in.Filename) == "":
		return invalidUploadError("filename is required")
	case strings.TrimSpace(in.Version) == "":
		return invalidUploadError("version is required")
	case in.File.IsZero():
		return invalidUploadError("file is required")
	}
	return nil
}
