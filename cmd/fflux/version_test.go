package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name          string
		version       string
		build         string
		buildTime     string
		expectContain []string
		expectMissing []string
	}{
		{
			name:          "dev build",
			version:       "dev",
			build:         "unknown",
			expectContain: []string{"fflux version dev", "Go version:", "OS/Arch:"},
			expectMissing: []string{"(build:"},
		},
		{
			name:          "release build with commit",
			version:       "0.3.0",
			build:         "abc1234",
			buildTime:     "2026-02-01_09:30:00",
			expectContain: []string{"fflux version 0.3.0", "(build: abc1234)", "[2026-02-01_09:30:00]"},
		},
		{
			name:          "release build without buildtime",
			version:       "1.0.0",
			build:         "def5678",
			expectContain: []string{"fflux version 1.0.0", "(build: def5678)"},
			expectMissing: []string{"["},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origVersion, origBuild, origBuildTime := Version, Build, BuildTime
			t.Cleanup(func() {
				Version, Build, BuildTime = origVersion, origBuild, origBuildTime
			})
			Version, Build, BuildTime = tt.version, tt.build, tt.buildTime

			var buf bytes.Buffer
			printVersion(&buf)
			out := buf.String()
			for _, want := range tt.expectContain {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			firstLine := strings.SplitN(out, "\n", 2)[0]
			for _, unwanted := range tt.expectMissing {
				if strings.Contains(firstLine, unwanted) {
					t.Errorf("first line should not contain %q: %s", unwanted, firstLine)
				}
			}
		})
	}
}
