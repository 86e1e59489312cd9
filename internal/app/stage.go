package app

import "fmt"

// Stage enumerates the phases a command moves through.
type Stage int

const (
	StageDetecting Stage = iota
	StageLoadingProfile
	StageRegistering
	StageLoadingBuilds
	StageSelecting
	StageDownloading
	StageSaving
	StageUploading
	StageDone
)

// DownloadProgressFormat is the detail text of StageDownloading updates that
// carry byte counts. Displays parse it back with fmt.Sscanf.
const DownloadProgressFormat = "Downloading... %d/%d"

func (s Stage) String() string {
	switch s {
	case StageDetecting:
		return "Detecting device"
	case StageLoadingProfile:
		return "Loading profile"
	case StageRegistering:
		return "Registering device"
	case StageLoadingBuilds:
		return "Loading builds"
	case StageSelecting:
		return "Selecting build"
	case StageDownloading:
		return "Downloading"
	case StageSaving:
		return "Saving"
	case StageUploading:
		return "Uploading"
	case StageDone:
		return "Done"
	default:
		return "Working"
	}
}

// Reporter receives progress notifications while a command runs.
// Implementations should be safe for concurrent use.
type Reporter interface {
	Stage(stage Stage, detail string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(stage Stage, detail string)

// Stage implements Reporter.
func (f ReporterFunc) Stage(stage Stage, detail string) {
	if f == nil {
		return
	}
	f(stage, detail)
}

func downloadDetail(read, total int64) string {
	return fmt.Sprintf(DownloadProgressFormat, read, total)
}
