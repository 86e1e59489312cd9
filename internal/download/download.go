// Package download writes fetched build bytes to the local disk.
package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fflux/internal/debug"
	appErrors "fflux/internal/errors"
)

var logf = debug.Scope("download").Logf

// Save writes data to dir under the base name of filename and returns the
// final path. Path components in filename are dropped, so a build named
// "../../etc/passwd" lands in dir as "passwd". The bytes are staged in a
// temporary file beside the target and renamed into place; an existing file
// with the same name is replaced.
func Save(dir string, data []byte, filename string) (string, error) {
	name, err := SafeName(filename)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}

	//nolint:gosec // G301: Download directory is chosen by the user
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", saveError("create download directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", saveError("create temporary file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", saveError("write "+name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", saveError("close "+name, err)
	}
	//nolint:gosec // G302: Downloaded builds are ordinary user files
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return "", saveError("chmod "+name, err)
	}

	finalPath := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		cleanup()
		return "", saveError("install "+name, err)
	}
	logf("saved %d bytes to %s", len(data), finalPath)
	return finalPath, nil
}

// SafeName reduces filename to a base name that cannot escape its directory.
func SafeName(filename string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(filename, `\`, "/"))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", ".", "..":
		return "", appErrors.New(appErrors.CodeInvalidInput, fmt.Sprintf("invalid build filename %q", filename), nil)
	}
	return name, nil
}

func saveError(action string, err error) error {
	return appErrors.New(appErrors.CodeDownloadFailed, fmt.Sprintf("%s: %v", action, err), err)
}
