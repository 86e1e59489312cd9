package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fflux/internal/app"
	"fflux/internal/auth"
	"fflux/internal/backend"
	"fflux/internal/config"
	"fflux/internal/debug"
	"fflux/internal/device"
	"fflux/internal/domain"
	appErrors "fflux/internal/errors"
	"fflux/internal/store"
)

const defaultCommand = "download"

var logf = debug.Scope("cli").Logf

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *commandEnv, args []string) error
}

var commands = []command{
	{"download", "Download the newest build matched to this device", runDownload},
	{"builds", "List builds (--target LABEL, --download ID)", runBuilds},
	{"device", "Show this device and register it when logged in", runDevice},
	{"whoami", "Show login status and role (--set-name NAME)", runWhoami},
	{"login", "Save a bearer token (--token TOKEN)", runLogin},
	{"logout", "Forget the saved token", runLogout},
	{"upload", "Publish a build (--file PATH --target LABEL --version V)", runUpload},
	{"grant", "Assign a role to a user (--user PRINCIPAL --role ROLE)", runGrant},
	{"version", "Print version information", runVersion},
}

// commandEnv carries what commands need from the process.
type commandEnv struct {
	stdout  io.Writer
	stderr  io.Writer
	runtime runtimeOptions

	// service opens the backend client. Commands that never talk to the
	// backend do not call it, so a missing backend url only fails those
	// that do.
	service    func() (backend.Service, error)
	blobs      app.Blobs
	store      store.KV
	signals    device.Signals
	animator   func() startupAnimator
	saveConfig func(key string, value any) (string, error)
	home       string
}

// usageError marks a flag parsing failure that the flag package already
// reported.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// run executes the command named by args[0] and returns the process exit code.
func run(ctx context.Context, env *commandEnv, args []string) int {
	name := defaultCommand
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		printUsage(env.stdout)
		return 0
	}

	cmd, ok := lookupCommand(name)
	if !ok {
		printError(env.stderr, fmt.Sprintf("unknown command %q", name))
		printUsage(env.stderr)
		return 2
	}

	logf("run %s %v", name, args)
	err := cmd.run(ctx, env, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, new(usageError)):
		return 2
	}
	logf("%s failed: %v", name, err)
	printError(env.stderr, userMessage(err))
	return 1
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func userMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Cancelled"
	}
	return appErrors.MessageOf(err, err.Error())
}

func (e *commandEnv) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("fflux "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *commandEnv) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{err: err}
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(e.stderr, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return usageError{err: fmt.Errorf("unexpected argument %q", fs.Arg(0))}
	}
	return nil
}

func (e *commandEnv) session() auth.Session {
	return auth.NewSession(e.runtime.token)
}

// withApp runs fn against an App whose progress is shown on the animator.
// The animator is stopped before withApp returns.
func (e *commandEnv) withApp(fn func(*app.App) error) error {
	svc, err := e.service()
	if err != nil {
		return err
	}

	var anim startupAnimator = noopAnimator{}
	if e.animator != nil {
		anim = e.animator()
	}
	defer anim.Stop()

	reporter := app.ReporterFunc(func(stage app.Stage, detail string) {
		if stage != app.StageDownloading || !strings.Contains(detail, "/") {
			logf("%s: %s", stage, detail)
		}
		anim.Stage(stage, detail)
	})

	a := app.New(app.Config{
		Service:     svc,
		Session:     e.session(),
		Blobs:       e.blobs,
		Store:       e.store,
		Signals:     e.signals,
		DownloadDir: e.runtime.destDir,
		Reporter:    reporter,
	})
	return fn(a)
}

func runDownload(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("download")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	var res app.Result
	err := env.withApp(func(a *app.App) error {
		var err error
		res, err = a.DownloadBest(ctx)
		return err
	})
	if err != nil {
		return err
	}
	printDownloadSummary(env.stdout, res)
	return nil
}

func runBuilds(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("builds")
	target := fs.String("target", "", "Only list builds for this device label")
	downloadID := fs.String("download", "", "Download the build with this id")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	if id := strings.TrimSpace(*downloadID); id != "" {
		var res app.Result
		err := env.withApp(func(a *app.App) error {
			var err error
			res, err = a.DownloadBuild(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		printDownloadSummary(env.stdout, res)
		return nil
	}

	var filter *string
	if t := strings.TrimSpace(*target); t != "" {
		filter = &t
	}
	var builds []domain.BuildEntry
	err := env.withApp(func(a *app.App) error {
		var err error
		builds, err = a.Builds(ctx, filter)
		return err
	})
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		_, _ = fmt.Fprintln(env.stdout, app.MsgNoBuilds)
		return nil
	}
	_, _ = fmt.Fprintln(env.stdout, renderBuildTable(builds))
	return nil
}

func runDevice(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("device")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	var (
		info       domain.DeviceInfo
		registered *domain.DeviceProfile
	)
	authenticated := env.session().IsAuthenticated()
	err := env.withApp(func(a *app.App) error {
		var err error
		if info, err = a.Device(ctx); err != nil {
			return err
		}
		if !authenticated {
			return nil
		}
		registered, err = a.EnsureRegistered(ctx)
		return err
	})
	if err != nil {
		return err
	}
	printDevice(env.stdout, info, authenticated, registered)
	return nil
}

func runWhoami(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("whoami")
	setName := fs.String("set-name", "", "Save a display name for your account")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	var id app.Identity
	err := env.withApp(func(a *app.App) error {
		if name := strings.TrimSpace(*setName); name != "" {
			if err := a.SetName(ctx, name); err != nil {
				return err
			}
		}
		var err error
		id, err = a.Whoami(ctx)
		return err
	})
	if err != nil {
		return err
	}
	printIdentity(env.stdout, id)
	return nil
}

func runLogin(_ context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("login")
	token := fs.String("token", "", "Bearer token issued by the identity provider")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	session := auth.NewSession(*token)
	if session.Token == "" {
		return appErrors.New(appErrors.CodeInvalidInput, "--token is required", nil)
	}
	if !session.IsAuthenticated() {
		return appErrors.New(appErrors.CodeInvalidInput, "token does not identify a user or has expired", nil)
	}

	path, err := env.saveConfig(config.KeyAuthToken, session.Token)
	if err != nil {
		return appErrors.New(appErrors.CodeConfigurationError, fmt.Sprintf("could not save token: %v", err), err)
	}
	_, _ = fmt.Fprintln(env.stdout, okStyle.Render("Logged in")+" as "+session.PrincipalShort())
	printField(env.stdout, "Saved to", shortenPath(path, env.home))
	return nil
}

func runLogout(_ context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("logout")
	if err := env.parse(fs, args); err != nil {
		return err
	}

	// Saving applies the empty token to the running config, which hides any
	// environment value, so the environment is read first.
	envVar := config.EnvVar(config.KeyAuthToken)
	envToken, _ := os.LookupEnv(envVar)

	path, err := env.saveConfig(config.KeyAuthToken, "")
	if err != nil {
		return appErrors.New(appErrors.CodeConfigurationError, fmt.Sprintf("could not clear token: %v", err), err)
	}
	_, _ = fmt.Fprintln(env.stdout, okStyle.Render("Logged out"))
	printField(env.stdout, "Updated", shortenPath(path, env.home))
	if strings.TrimSpace(envToken) != "" {
		_, _ = fmt.Fprintln(env.stdout, warnStyle.Render(envVar+" is still set in the environment"))
	}
	return nil
}

func runUpload(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("upload")
	file := fs.String("file", "", "Path of the build file")
	target := fs.String("target", "", "Device label the build is for, e.g. \"Windows Desktop (Chrome)\"")
	version := fs.String("version", "", "Version string shown to users")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return appErrors.New(appErrors.CodeInvalidInput, "--file is required", nil)
	}

	var in domain.UploadBuildInput
	err := env.withApp(func(a *app.App) error {
		var err error
		in, err = a.Upload(ctx, strings.TrimSpace(*file), strings.TrimSpace(*target), strings.TrimSpace(*version))
		return err
	})
	if err != nil {
		return err
	}
	printUploadSummary(env.stdout, in)
	return nil
}

func runGrant(ctx context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("grant")
	user := fs.String("user", "", "Principal to assign the role to")
	roleFlag := fs.String("role", "", "Role to assign: admin, user or guest")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	principal := domain.Principal(strings.TrimSpace(*user))
	if principal == "" {
		return appErrors.New(appErrors.CodeInvalidInput, "--user is required", nil)
	}
	role, err := domain.ParseUserRole(*roleFlag)
	if err != nil {
		return err
	}

	if err := env.withApp(func(a *app.App) error {
		return a.Grant(ctx, principal, role)
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(env.stdout, okStyle.Render("Granted")+" "+string(role)+" to "+principal.Short())
	return nil
}

func runVersion(_ context.Context, env *commandEnv, args []string) error {
	fs := env.newFlagSet("version")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	printVersion(env.stdout)
	return nil
}
