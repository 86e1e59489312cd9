package domain

import (
	"testing"
	"time"

	"fflux/internal/blob"
)

func TestFormatDeviceLabelAndOSToken(t *testing.T) {
	label := FormatDeviceLabel("Windows", "Desktop", "Chrome")
	if label != "Windows Desktop (Chrome)" {
		t.Fatalf("label = %q", label)
	}
	if got := OSToken(label); got != "Windows" {
		t.Fatalf("OSToken = %q, want Windows", got)
	}
	if got := OSToken("Linux"); got != "Linux" {
		t.Fatalf("OSToken without space = %q, want whole label", got)
	}
	if got := OSToken(""); got != "" {
		t.Fatalf("OSToken empty = %q", got)
	}
}

func TestDeviceInfoProfile(t *testing.T) {
	info := DeviceInfo{DeviceID: "device_1_abc", OS: "macOS", Platform: "Desktop", Browser: "Safari", DeviceLabel: "macOS Desktop (Safari)"}
	p := info.Profile("aaaaa-bbbbb")
	if p.ID != info.DeviceID || p.Creator != "aaaaa-bbbbb" || p.DeviceLabel != info.DeviceLabel {
		t.Fatalf("unexpected profile %+v", p)
	}
	if !p.IsLoggedIn {
		t.Fatalf("registered profiles are logged in")
	}
}

func TestPrincipal(t *testing.T) {
	if !Principal("").IsAnonymous() || !AnonymousPrincipal.IsAnonymous() {
		t.Fatalf("empty and anonymous principals should be anonymous")
	}
	p := Principal("rrkah-fqaaa-aaaaa-aaaaq-cai")
	if p.IsAnonymous() {
		t.Fatalf("real principal reported anonymous")
	}
	if got := p.Short(); got != "rrkah...cai" {
		t.Fatalf("Short = %q", got)
	}
	if got := Principal("abc").Short(); got != "abc" {
		t.Fatalf("Short of short principal = %q", got)
	}
}

func TestParseUserRole(t *testing.T) {
	for in, want := range map[string]UserRole{"admin": RoleAdmin, " User ": RoleUser, "GUEST": RoleGuest} {
		got, err := ParseUserRole(in)
		if err != nil {
			t.Fatalf("ParseUserRole(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseUserRole(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseUserRole("root"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestBuildCreatedTime(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := BuildEntry{CreatedAt: ts.UnixNano()}
	if !b.CreatedTime().Equal(ts) {
		t.Fatalf("CreatedTime = %v, want %v", b.CreatedTime(), ts)
	}
}

func TestUploadBuildInputValidate(t *testing.T) {
	valid := UploadBuildInput{TargetDevice: "Linux Desktop (Firefox)", Filename: "app.tar.gz", Version: "1.0.0", File: blob.FromBytes([]byte("x"))}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*UploadBuildInput)
	}{
		{"missing target", func(in *UploadBuildInput) { in.TargetDevice = " " }},
		{"missing filename", func(in *UploadBuildInput) { in.Filename = "" }},
		{"missing version", func(in *UploadBuildInput) { in.Version = "" }},
		{"missing file", func(in *UploadBuildInput) { in.File = blob.Ref{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if err := in.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
