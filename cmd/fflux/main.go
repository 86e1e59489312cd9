package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"fflux/internal/backend"
	"fflux/internal/blob"
	"fflux/internal/config"
	"fflux/internal/debug"
	"fflux/internal/device"
	"fflux/internal/store"

	"golang.org/x/term"
)

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		os.Exit(1)
	}

	backendURLDefault := config.GetString(config.KeyBackendURL)
	destDirDefault := config.GetString(config.KeyDownloadDir)
	dbPathDefault := config.GetString(config.KeyStoragePath)
	debugDefault := config.GetBool(config.KeyDebug)
	noSpinnerDefault := !config.GetBool(config.KeySpinner)

	versionFlag := flag.Bool("version", false, "Print version information and exit")
	backendURLFlag := flag.String("backend-url", backendURLDefault, "Base URL of the fflux backend (or set FF_BACKEND_URL)")
	tokenFlag := flag.String("token", "", "Bearer token for this run; `fflux login` saves one")
	destDirFlag := flag.String("dest-dir", destDirDefault, "Directory downloaded builds are saved to")
	dbPathFlag := flag.String("db-path", dbPathDefault, "Path to the local state database")
	debugFlag := flag.Bool("debug", debugDefault, "Write a debug log to ~/.fflux/debug.log")
	noSpinnerFlag := flag.Bool("no-spinner", noSpinnerDefault, "Disable the progress display")
	flag.Usage = func() { printUsage(flag.CommandLine.Output()) }
	flag.Parse()

	if *versionFlag {
		printVersion(os.Stdout)
		os.Exit(0)
	}

	visited := map[string]struct{}{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = struct{}{}
	})

	runtime := computeRuntimeOptions(runtimeFlags{
		backendURL: backendURLFlag,
		token:      tokenFlag,
		destDir:    destDirFlag,
		dbPath:     dbPathFlag,
		debug:      debugFlag,
		noSpinner:  noSpinnerFlag,
	}, visited)

	if err := debug.Init(runtime.debug, runtime.logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
	}

	env, closeEnv := newCommandEnv(runtime, os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, env, flag.Args())
	stop()
	closeEnv()
	debug.Close()
	os.Exit(code)
}

// newCommandEnv wires the production collaborators for runtime. The returned
// func releases the local store.
func newCommandEnv(runtime runtimeOptions, stdout, stderr *os.File) (*commandEnv, func()) {
	var kv store.KV = store.NewMemory()
	closeStore := func() {}
	if runtime.dbPath != "" {
		sqlite, err := store.NewSQLite(runtime.dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: using in-memory state: %v\n", err)
		} else {
			kv = sqlite
			closeStore = func() {
				if err := sqlite.Close(); err != nil {
					debug.Logf("close state db: %v", err)
				}
			}
		}
	}

	env := &commandEnv{
		stdout:  stdout,
		stderr:  stderr,
		runtime: runtime,
		service: func() (backend.Service, error) {
			client, err := backend.NewHTTPClient(runtime.backendURL,
				backend.WithToken(runtime.token),
				backend.WithUserAgent("fflux/"+Version),
			)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		blobs: blob.NewClient(
			blob.WithS3Region(runtime.s3Region),
			blob.WithUploadBucket(runtime.uploadBucket),
		),
		store:      kv,
		signals:    device.DefaultSignals(Version).WithOverrides(runtime.userAgent, runtime.platform),
		saveConfig: config.Save,
		home:       userHome(),
	}
	if runtime.spinner && term.IsTerminal(int(stderr.Fd())) {
		env.animator = func() startupAnimator { return NewProgressDisplay(stderr) }
	}
	return env, closeStore
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

type runtimeFlags struct {
	backendURL *string
	token      *string
	destDir    *string
	dbPath     *string
	debug      *bool
	noSpinner  *bool
}

type runtimeOptions struct {
	backendURL   string
	token        string
	destDir      string
	dbPath       string
	debug        bool
	spinner      bool
	logPath      string
	userAgent    string
	platform     string
	s3Region     string
	uploadBucket string
}

func computeRuntimeOptions(flags runtimeFlags, visited map[string]struct{}) runtimeOptions {
	backendURL := strings.TrimSpace(config.GetString(config.KeyBackendURL))
	if flagWasExplicitlySet("backend-url", visited) {
		backendURL = strings.TrimSpace(*flags.backendURL)
	}

	token := strings.TrimSpace(config.GetString(config.KeyAuthToken))
	if flagWasExplicitlySet("token", visited) {
		token = strings.TrimSpace(*flags.token)
	}

	destDir := strings.TrimSpace(config.GetString(config.KeyDownloadDir))
	if flagWasExplicitlySet("dest-dir", visited) {
		destDir = strings.TrimSpace(*flags.destDir)
	}
	if destDir == "" {
		destDir = "."
	}

	dbPath := strings.TrimSpace(config.GetString(config.KeyStoragePath))
	if flagWasExplicitlySet("db-path", visited) {
		dbPath = strings.TrimSpace(*flags.dbPath)
	}

	debugEnabled := config.GetBool(config.KeyDebug)
	if flagWasExplicitlySet("debug", visited) {
		debugEnabled = *flags.debug
	}

	spinner := config.GetBool(config.KeySpinner)
	if flagWasExplicitlySet("no-spinner", visited) {
		spinner = !*flags.noSpinner
	}

	return runtimeOptions{
		backendURL:   backendURL,
		token:        token,
		destDir:      destDir,
		dbPath:       dbPath,
		debug:        debugEnabled,
		spinner:      spinner,
		logPath:      strings.TrimSpace(config.GetString(config.KeyLogPath)),
		userAgent:    config.GetString(config.KeyDeviceUserAgent),
		platform:     config.GetString(config.KeyDevicePlatform),
		s3Region:     strings.TrimSpace(config.GetString(config.KeyBlobS3Region)),
		uploadBucket: strings.TrimSpace(config.GetString(config.KeyUploadS3Bucket)),
	}
}

func flagWasExplicitlySet(name string, visited map[string]struct{}) bool {
	if _, ok := visited[name]; ok {
		return true
	}
	f := flag.CommandLine.Lookup(name)
	if f == nil {
		return false
	}
	return f.Value.String() != f.DefValue
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: fflux [flags] [command] [command flags]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Running fflux with no command is the same as `fflux %s`.\n", defaultCommand)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Flags:")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
