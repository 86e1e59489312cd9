package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeLoadsDefaults(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	userCfg := filepath.Join(tmp, "user.yaml")

	if err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg), WithHomeDir(tmp)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeyStoragePath); got != filepath.Join(tmp, ".fflux", "state.db") {
		t.Fatalf("expected default %s under home, got %q", KeyStoragePath, got)
	}
	if got := GetString(KeyDownloadDir); got != "." {
		t.Fatalf("expected default %s to be '.', got %q", KeyDownloadDir, got)
	}
	if !GetBool(KeySpinner) {
		t.Fatalf("expected default %s to be true", KeySpinner)
	}
	if GetBool(KeyDebug) {
		t.Fatalf("expected default %s to be false", KeyDebug)
	}
	if got := GetString(KeyBackendURL); got != "" {
		t.Fatalf("expected empty backend url, got %q", got)
	}
}

func TestProjectConfigOverridesUser(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "repo")
	nested := filepath.Join(projectDir, "src", "pkg")
	mustMkdir(t, nested)
	writeFile(t, filepath.Join(projectDir, ".fflux", "config.yaml"), `
backend:
  url: https://project.example.com
download:
  dir: ./dist
`)

	userCfg := filepath.Join(tmp, "user.yaml")
	writeFile(t, userCfg, `
backend:
  url: https://user.example.com
auth:
  token: user-token
`)

	if err := Initialize(WithWorkingDir(nested), WithUserConfig(userCfg), WithHomeDir(tmp)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeyBackendURL); got != "https://project.example.com" {
		t.Fatalf("expected project config to win for %s, got %q", KeyBackendURL, got)
	}
	if got := GetString(KeyAuthToken); got != "user-token" {
		t.Fatalf("expected user token to survive the merge, got %q", got)
	}
	if got := GetString(KeyDownloadDir); got != "./dist" {
		t.Fatalf("expected project download dir, got %q", got)
	}
}

func TestEnvironmentAndOverridesPrecedence(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	projectCfg := filepath.Join(tmp, ".fflux", "config.yaml")
	writeFile(t, projectCfg, `
spinner: true
storage:
  path: /project/state.db
device:
  user-agent: project-agent
`)

	t.Setenv("FF_SPINNER", "false")
	t.Setenv("FF_STORAGE_PATH", "/env/state.db")
	t.Setenv("FF_DEVICE_USER_AGENT", "env-agent")

	if err := Initialize(WithWorkingDir(tmp), WithProjectConfig(projectCfg), WithHomeDir(tmp)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if GetBool(KeySpinner) {
		t.Fatalf("expected environment variable to override %s", KeySpinner)
	}
	if got := GetString(KeyStoragePath); got != "/env/state.db" {
		t.Fatalf("expected env override for %s, got %q", KeyStoragePath, got)
	}
	if got := GetString(KeyDeviceUserAgent); got != "env-agent" {
		t.Fatalf("expected env override for %s, got %q", KeyDeviceUserAgent, got)
	}

	if err := ApplyOverrides(map[string]any{KeySpinner: true, KeyStoragePath: "/flag/state.db"}); err != nil {
		t.Fatalf("ApplyOverrides returned error: %v", err)
	}
	if !GetBool(KeySpinner) {
		t.Fatalf("expected CLI override to set %s=true", KeySpinner)
	}
	if got := GetString(KeyStoragePath); got != "/flag/state.db" {
		t.Fatalf("expected CLI override for %s, got %q", KeyStoragePath, got)
	}
}

func TestDotEnvSitsBetweenConfigAndEnvironment(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, ".fflux", "config.yaml"), `
backend:
  url: https://config.example.com
upload:
  s3-bucket: config-bucket
`)
	writeFile(t, filepath.Join(tmp, ".env"), strings.Join([]string{
		"FF_BACKEND_URL=https://dotenv.example.com",
		"FF_UPLOAD_S3_BUCKET=dotenv-bucket",
		"FF_AUTH_TOKEN=dotenv-token",
		"UNRELATED=ignored",
	}, "\n"))
	t.Setenv("FF_UPLOAD_S3_BUCKET", "env-bucket")

	if err := Initialize(WithWorkingDir(tmp), WithHomeDir(tmp)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeyBackendURL); got != "https://dotenv.example.com" {
		t.Fatalf("expected .env to override config for %s, got %q", KeyBackendURL, got)
	}
	if got := GetString(KeyUploadS3Bucket); got != "env-bucket" {
		t.Fatalf("expected environment to override .env for %s, got %q", KeyUploadS3Bucket, got)
	}
	if got := GetString(KeyAuthToken); got != "dotenv-token" {
		t.Fatalf("expected token from .env, got %q", got)
	}
	if _, ok := os.LookupEnv("FF_AUTH_TOKEN"); ok {
		t.Fatal(".env loading should not modify the process environment")
	}
}

func TestInvalidConfigFileFails(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	userCfg := filepath.Join(tmp, "user.yaml")
	writeFile(t, userCfg, "backend: [unclosed")

	err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg), WithHomeDir(tmp))
	if err == nil || !strings.Contains(err.Error(), "load user config") {
		t.Fatalf("expected user config parse error, got %v", err)
	}
}

func TestSaveWritesUserConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	t.Chdir(tmp)
	userCfg := filepath.Join(tmp, "home", ".fflux", "config.yaml")
	writeFile(t, userCfg, "backend:\n  url: https://keep.example.com\n")

	if err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg), WithHomeDir(tmp)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	setUserConfigPathOverride(userCfg)

	path, err := Save(KeyAuthToken, "saved-token")
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if path != userCfg {
		t.Fatalf("Save wrote %q, want %q", path, userCfg)
	}
	if got := GetString(KeyAuthToken); got != "saved-token" {
		t.Fatalf("running config not updated, got %q", got)
	}

	data, err := os.ReadFile(userCfg)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "saved-token") || !strings.Contains(text, "https://keep.example.com") {
		t.Fatalf("saved config lost data:\n%s", text)
	}
	info, err := os.Stat(userCfg)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config permissions = %o, want 600", perm)
	}
}

func TestEnvVar(t *testing.T) {
	tests := map[string]string{
		KeyBackendURL:      "FF_BACKEND_URL",
		KeyDeviceUserAgent: "FF_DEVICE_USER_AGENT",
		KeyUploadS3Bucket:  "FF_UPLOAD_S3_BUCKET",
		KeyDebug:           "FF_DEBUG",
	}
	for key, want := range tests {
		if got := EnvVar(key); got != want {
			t.Errorf("EnvVar(%q) = %q, want %q", key, got, want)
		}
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
