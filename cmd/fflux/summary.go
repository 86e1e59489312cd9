package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"fflux/internal/app"
	"fflux/internal/domain"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// createdLayout formats build timestamps in the builds table.
const createdLayout = "Jan 2, 2006, 03:04 PM"

// displayLocation is the zone build timestamps are shown in.
var displayLocation = time.Local

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// printDownloadSummary reports a saved build.
func printDownloadSummary(w io.Writer, res app.Result) {
	_, _ = fmt.Fprintln(w, okStyle.Render("Downloaded")+" "+valueStyle.Render(res.Build.Filename))
	printField(w, "Version", res.Build.Version)
	printField(w, "Target", res.Build.TargetDevice)
	printField(w, "Size", formatSize(res.Size))
	printField(w, "Saved to", res.Path)
}

// printUploadSummary reports a published build.
func printUploadSummary(w io.Writer, in domain.UploadBuildInput) {
	_, _ = fmt.Fprintln(w, okStyle.Render("Uploaded")+" "+valueStyle.Render(in.Filename))
	printField(w, "Version", in.Version)
	printField(w, "Target", in.TargetDevice)
	if u := in.File.DirectURL(); u != "" {
		printField(w, "Stored at", u)
	}
}

// printDevice shows the detected device and, when known, its registration.
func printDevice(w io.Writer, info domain.DeviceInfo, authenticated bool, registered *domain.DeviceProfile) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(info.DeviceLabel))
	printField(w, "OS", info.OS)
	printField(w, "Platform", info.Platform)
	printField(w, "Browser", info.Browser)
	printField(w, "Device ID", info.DeviceID)

	switch {
	case !authenticated:
		printField(w, "Profile", warnStyle.Render("log in to register this device"))
	case registered == nil:
		printField(w, "Profile", warnStyle.Render("not registered"))
	default:
		printField(w, "Profile", okStyle.Render("registered")+" as "+registered.DeviceLabel)
	}
}

// printIdentity shows the caller's login status.
func printIdentity(w io.Writer, id app.Identity) {
	if !id.Authenticated {
		_, _ = fmt.Fprintln(w, warnStyle.Render("Not logged in"))
		printField(w, "Role", string(domain.RoleGuest))
		return
	}
	_, _ = fmt.Fprintln(w, okStyle.Render("Logged in")+" "+valueStyle.Render(id.Short))
	printField(w, "Principal", string(id.Principal))
	printField(w, "Role", string(id.Role))
	if id.Admin {
		printField(w, "Creator", "yes")
	}
	if id.Name != "" {
		printField(w, "Name", id.Name)
	}
}

// printError writes a user-facing error line.
func printError(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, errStyle.Render("Error:")+" "+msg)
}

func printField(w io.Writer, label, value string) {
	_, _ = fmt.Fprintln(w, labelStyle.Render(label)+valueStyle.Render(value))
}

// renderBuildTable lays builds out as a table, in the order given.
func renderBuildTable(builds []domain.BuildEntry) string {
	rows := make([][]string, 0, len(builds))
	for _, b := range builds {
		rows = append(rows, []string{b.ID, b.Filename, b.Version, b.TargetDevice, formatCreated(b.CreatedAt)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dimColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "FILE", "VERSION", "TARGET", "CREATED").
		Rows(rows...)
	return t.String()
}

// formatCreated renders a nanosecond timestamp in displayLocation.
func formatCreated(ns int64) string {
	return time.Unix(0, ns).In(displayLocation).Format(createdLayout)
}

// formatSize formats a byte count using binary units.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// shortenPath replaces the home directory prefix with ~.
func shortenPath(path, home string) string {
	home = strings.TrimRight(home, string(filepath.Separator))
	switch {
	case home == "":
		return path
	case path == home:
		return "~"
	case strings.HasPrefix(path, home+string(filepath.Separator)):
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}
