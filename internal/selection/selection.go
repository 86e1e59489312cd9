package selection

import (
	"slices"
	"strings"

	"fflux/internal/domain"
)

// SelectBestBuild returns the build best matched to deviceLabel, or nil when
// builds is empty. The input slice is left untouched; the result points into
// a sorted copy.
func SelectBestBuild(builds []domain.BuildEntry, deviceLabel string) *domain.BuildEntry {
	if len(builds) == 0 {
		return nil
	}
	sorted := SortNewestFirst(builds)

	for i := range sorted {
		if sorted[i].TargetDevice == deviceLabel {
			return &sorted[i]
		}
	}

	token := domain.OSToken(deviceLabel)
	for i := range sorted {
		if strings.Contains(sorted[i].TargetDevice, token) {
			return &sorted[i]
		}
	}

	return &sorted[0]
}

// SortNewestFirst returns a copy of builds ordered by CreatedAt descending.
// Builds with equal timestamps keep their relative order.
func SortNewestFirst(builds []domain.BuildEntry) []domain.BuildEntry {
	sorted := slices.Clone(builds)
	slices.SortStableFunc(sorted, func(a, b domain.BuildEntry) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
	return sorted
}
