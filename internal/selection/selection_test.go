package selection

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"fflux/internal/domain"
)

func build(id, target string, createdAt int64) domain.BuildEntry {
	return domain.BuildEntry{ID: id, TargetDevice: target, CreatedAt: createdAt, Filename: id + ".zip", Version: "1.0.0"}
}

func TestSelectBestBuildScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		builds []domain.BuildEntry
		label  string
		wantID string
	}{
		{
			name: "exact match wins over newer build",
			builds: []domain.BuildEntry{
				build("a", "Windows Desktop (Chrome)", 100),
				build("b", "macOS Desktop (Safari)", 200),
			},
			label:  "Windows Desktop (Chrome)",
			wantID: "a",
		},
		{
			name:   "os token match",
			builds: []domain.BuildEntry{build("a", "Windows Desktop (Edge)", 100)},
			label:  "Windows Mobile (Chrome)",
			wantID: "a",
		},
		{
			name:   "fallback to newest",
			builds: []domain.BuildEntry{build("a", "Linux Desktop (Firefox)", 100)},
			label:  "Windows Desktop (Chrome)",
			wantID: "a",
		},
		{
			name: "newest os match preferred",
			builds: []domain.BuildEntry{
				build("old", "Windows Desktop (Edge)", 100),
				build("new", "Windows Desktop (Firefox)", 300),
				build("mac", "macOS Desktop (Safari)", 500),
			},
			label:  "Windows Desktop (Chrome)",
			wantID: "new",
		},
		{
			name: "newest overall when nothing matches",
			builds: []domain.BuildEntry{
				build("older", "Linux Desktop (Firefox)", 100),
				build("newest", "macOS Desktop (Safari)", 900),
				build("middle", "iOS Mobile (Safari)", 500),
			},
			label:  "Windows Desktop (Chrome)",
			wantID: "newest",
		},
		{
			name: "exact match is case sensitive",
			builds: []domain.BuildEntry{
				build("lower", "windows desktop (chrome)", 900),
				build("os", "Windows Tablet (Edge)", 100),
			},
			label:  "Windows Desktop (Chrome)",
			wantID: "os",
		},
		{
			name: "label without space uses whole label as token",
			builds: []domain.BuildEntry{
				build("a", "Linux Desktop (Firefox)", 900),
				build("b", "Android build", 100),
			},
			label:  "Android",
			wantID: "b",
		},
		{
			name: "equal timestamps keep input order",
			builds: []domain.BuildEntry{
				build("first", "Windows Desktop (Edge)", 100),
				build("second", "Windows Desktop (Firefox)", 100),
			},
			label:  "Windows Mobile (Chrome)",
			wantID: "first",
		},
		{
			name: "first of several exact matches is the newest",
			builds: []domain.BuildEntry{
				build("v1", "Linux Desktop (Firefox)", 100),
				build("v2", "Linux Desktop (Firefox)", 200),
			},
			label:  "Linux Desktop (Firefox)",
			wantID: "v2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SelectBestBuild(tt.builds, tt.label)
			if got == nil {
				t.Fatalf("SelectBestBuild returned nil, want %q", tt.wantID)
			}
			if got.ID != tt.wantID {
				t.Fatalf("SelectBestBuild = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestSelectBestBuildEmpty(t *testing.T) {
	t.Parallel()

	if got := SelectBestBuild(nil, "Windows Desktop (Chrome)"); got != nil {
		t.Fatalf("SelectBestBuild(nil) = %+v, want nil", got)
	}
	if got := SelectBestBuild([]domain.BuildEntry{}, ""); got != nil {
		t.Fatalf("SelectBestBuild(empty) = %+v, want nil", got)
	}
}

// The OS pass is a raw substring test, so a label token can hit a target that
// only mentions the OS inside another word.
func TestSelectBestBuildSubstringHeuristicLimitation(t *testing.T) {
	t.Parallel()

	builds := []domain.BuildEntry{
		build("intended", "macOS Desktop (Safari)", 900),
		build("accidental", "Darwin Linuxbox Kiosk", 100),
	}
	got := SelectBestBuild(builds, "Linux Desktop (Firefox)")
	if got == nil || got.ID != "accidental" {
		t.Fatalf("SelectBestBuild = %+v, want the literal substring hit %q", got, "accidental")
	}
}

func TestSelectBestBuildDoesNotReorderInput(t *testing.T) {
	t.Parallel()

	builds := []domain.BuildEntry{
		build("a", "Linux Desktop (Firefox)", 100),
		build("b", "macOS Desktop (Safari)", 300),
		build("c", "Windows Desktop (Edge)", 200),
	}
	before := slices.Clone(builds)
	_ = SelectBestBuild(builds, "Windows Desktop (Edge)")
	sameID := func(a, b domain.BuildEntry) bool { return a.ID == b.ID }
	if !slices.EqualFunc(before, builds, sameID) {
		t.Fatalf("input reordered: %+v", builds)
	}
}

func TestSortNewestFirstIsStable(t *testing.T) {
	t.Parallel()

	builds := []domain.BuildEntry{
		build("a", "x", 1),
		build("b", "x", 3),
		build("c", "x", 1),
		build("d", "x", 3),
		build("e", "x", 2),
	}
	var ids []string
	for _, b := range SortNewestFirst(builds) {
		ids = append(ids, b.ID)
	}
	if got := strings.Join(ids, ","); got != "b,d,e,a,c" {
		t.Fatalf("SortNewestFirst order = %s, want b,d,e,a,c", got)
	}
}

var labelPool = []string{
	"Windows Desktop (Chrome)",
	"Windows Desktop (Edge)",
	"Windows Mobile (Chrome)",
	"macOS Desktop (Safari)",
	"Linux Desktop (Firefox)",
	"Android Mobile (Chrome)",
	"iOS Tablet (Safari)",
	"Unknown Desktop (Unknown)",
}

func TestSelectBestBuildProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for iter := 0; iter < 500; iter++ {
		n := rng.IntN(8)
		builds := make([]domain.BuildEntry, n)
		for i := range builds {
			builds[i] = build(
				fmt.Sprintf("b%d", i),
				labelPool[rng.IntN(len(labelPool))],
				int64(rng.IntN(5)),
			)
		}
		label := labelPool[rng.IntN(len(labelPool))]

		got := SelectBestBuild(builds, label)
		if n == 0 {
			if got != nil {
				t.Fatalf("iteration %d: expected nil for empty input", iter)
			}
			continue
		}
		if got == nil {
			t.Fatalf("iteration %d: nil result for %d builds", iter, n)
		}
		if !slices.ContainsFunc(builds, func(b domain.BuildEntry) bool {
			return b.ID == got.ID && b.TargetDevice == got.TargetDevice && b.CreatedAt == got.CreatedAt
		}) {
			t.Fatalf("iteration %d: result %+v not drawn from input", iter, *got)
		}

		want := expectedPick(builds, label)
		if got.ID != want.ID {
			t.Fatalf("iteration %d: label %q picked %q, want %q", iter, label, got.ID, want.ID)
		}
	}
}

// expectedPick restates the ranking without sorting: the earliest input element
// among the newest candidates of the first non-empty pass.
func expectedPick(builds []domain.BuildEntry, label string) domain.BuildEntry {
	token := domain.OSToken(label)
	passes := []func(domain.BuildEntry) bool{
		func(b domain.BuildEntry) bool { return b.TargetDevice == label },
		func(b domain.BuildEntry) bool { return strings.Contains(b.TargetDevice, token) },
		func(domain.BuildEntry) bool { return true },
	}
	for _, match := range passes {
		var best *domain.BuildEntry
		for i := range builds {
			if !match(builds[i]) {
				continue
			}
			if best == nil || builds[i].CreatedAt > best.CreatedAt {
				best = &builds[i]
			}
		}
		if best != nil {
			return *best
		}
	}
	return domain.BuildEntry{}
}
