package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	KeyBackendURL      = "backend.url"
	KeyAuthToken       = "auth.token"
	KeyStoragePath     = "storage.path"
	KeyDownloadDir     = "download.dir"
	KeyDeviceUserAgent = "device.user-agent"
	KeyDevicePlatform  = "device.platform"
	KeyBlobS3Region    = "blob.s3-region"
	KeyUploadS3Bucket  = "upload.s3-bucket"
	KeyDebug           = "debug"
	KeyLogPath         = "log.path"
	KeySpinner         = "spinner"
)

const (
	// DirName is the per-user and per-project directory holding fflux files.
	DirName        = ".fflux"
	configFileName = "config.yaml"
	stateFileName  = "state.db"
	dotEnvFileName = ".env"
	envPrefix      = "FF"
)

// knownKeys lists every key that may be supplied through a .env file.
var knownKeys = []string{
	KeyBackendURL,
	KeyAuthToken,
	KeyStoragePath,
	KeyDownloadDir,
	KeyDeviceUserAgent,
	KeyDevicePlatform,
	KeyBlobS3Region,
	KeyUploadS3Bucket,
	KeyDebug,
	KeyLogPath,
	KeySpinner,
}

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
	dotEnvPath        string
	homeDir           string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config and .env discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

// WithDotEnv overrides the .env file path (default: .env in the working directory).
func WithDotEnv(path string) Option {
	return func(cfg *initSettings) {
		cfg.dotEnvPath = path
	}
}

// WithHomeDir overrides the home directory used for default paths.
func WithHomeDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.homeDir = dir
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	// userConfigPathOverride is used by tests to override the user config path.
	// nolint:unused // Used in tests via reset()
	userConfigPathOverride string
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < .env < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	home := strings.TrimSpace(settings.homeDir)
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determine user home: %w", err)
		}
		home = h
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		userConfigPath = filepath.Join(home, DirName, configFileName)
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	dotEnvPath := strings.TrimSpace(settings.dotEnvPath)
	if dotEnvPath == "" {
		dotEnvPath = filepath.Join(workingDir, dotEnvFileName)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, home)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	if err := applyDotEnv(v, dotEnvPath); err != nil {
		return fmt.Errorf("load %s: %w", dotEnvPath, err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyDotEnv reads FF_* entries from a .env file. Real environment variables
// win over the file, so entries are applied only when the variable is unset.
// The process environment is left untouched.
func applyDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for _, key := range knownKeys {
		name := EnvVar(key)
		value, ok := values[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, value)
	}
	return nil
}

// EnvVar returns the environment variable that sets key, e.g. FF_BACKEND_URL.
func EnvVar(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, DirName, configFileName)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault(KeyBackendURL, "")
	v.SetDefault(KeyAuthToken, "")
	v.SetDefault(KeyStoragePath, filepath.Join(home, DirName, stateFileName))
	v.SetDefault(KeyDownloadDir, ".")
	v.SetDefault(KeyDeviceUserAgent, "")
	v.SetDefault(KeyDevicePlatform, "")
	v.SetDefault(KeyBlobS3Region, "")
	v.SetDefault(KeyUploadS3Bucket, "")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeySpinner, true)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
//
//nolint:unused // Used in config_test.go
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
	userConfigPathOverride = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithHomeDir(tmp))
	return reset
}

// setUserConfigPathOverride sets the user config path for tests.
//
//nolint:unused // Used in config_test.go
func setUserConfigPathOverride(path string) {
	userConfigPathOverride = path
}

// Save persists key=value to the appropriate config file and applies it to
// the running configuration. If a project config (.fflux/config.yaml) exists,
// it updates that file. Otherwise, it updates the user config
// (~/.fflux/config.yaml). The user config directory is auto-created if
// needed, but project config directories are never auto-created.
func Save(key string, value any) (string, error) {
	targetPath, err := findWritableConfigPath()
	if err != nil {
		return "", fmt.Errorf("find config path: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)
	_ = v.ReadInConfig() // ignore error if file doesn't exist

	v.Set(key, value)

	dir := filepath.Dir(targetPath)
	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(targetPath); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	// The file may hold a token.
	if err := os.Chmod(targetPath, 0600); err != nil {
		return "", fmt.Errorf("restrict config permissions: %w", err)
	}

	if err := Set(key, value); err != nil {
		return "", err
	}
	return targetPath, nil
}

// findWritableConfigPath returns the project config path if it exists,
// otherwise the user config path.
func findWritableConfigPath() (string, error) {
	wd, err := os.Getwd()
	if err == nil {
		projectPath, err := findProjectConfig(wd)
		if err == nil && projectPath != "" {
			return projectPath, nil
		}
	}

	if userConfigPathOverride != "" {
		return userConfigPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, DirName, configFileName), nil
}
