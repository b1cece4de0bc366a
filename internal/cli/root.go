// Package cli builds the tower-cli command tree.
//
// Usage:
//
//	tower-cli [global flags] <resource> <verb> [id] [--field value ...]
//
// Resource commands are generated from the verb table of each kind in
// internal/resources.
package cli

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/config"
	"github.com/rflorenc/tower-cli/internal/platform"
	"github.com/rflorenc/tower-cli/internal/resources"
)

// Global flag names.
const (
	flagConfig    = "config"
	flagEnvFile   = "env-file"
	flagHost      = "tower-host"
	flagUsername  = "tower-username"
	flagPassword  = "tower-password"
	flagAPIPrefix = "api-prefix"
	flagInsecure  = "insecure"
	flagCACert    = "ca-cert"
	flagFormat    = "format"
	flagVerbose   = "verbose"
)

// AutoPrefix as api_prefix asks the server for its API root.
const AutoPrefix = "auto"

// App holds what the commands share: streams, settings sources and the
// resolved settings of the current invocation.
type App struct {
	Out io.Writer
	Err io.Writer

	Version string
	Loader  *config.Loader
	// Prompt is asked for job secrets that neither --secret nor the
	// environment supplies.
	Prompt resources.SecretSource

	settings *config.Settings
}

// NewApp returns an App wired to the process streams and standard settings
// locations.
func NewApp(version string) *App {
	return &App{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Loader:  config.NewLoader(),
		Prompt:  resources.NewTerminalPrompt(),
	}
}

// NewRootCmd creates the root command.
func NewRootCmd(app *App) *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:           "tower-cli",
		Short:         "Command-line interface for Ansible Tower.",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd.Flags(), configPath, envFile)
		},
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apierr.Usage("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, flagConfig, "", "Read settings from this YAML file.")
	pf.StringVar(&envFile, flagEnvFile, "", "Read TOWER_* settings from this dotenv file.")
	pf.String(flagHost, "", "The location of the Tower server.")
	pf.String(flagUsername, "", "Username to use to authenticate to Tower.")
	pf.String(flagPassword, "", "Password to use to authenticate to Tower.")
	pf.String(flagAPIPrefix, "", `API root path, e.g. /api/v2/, or "auto" to ask the server.`)
	pf.Bool(flagInsecure, false, "Skip TLS certificate verification.")
	pf.String(flagCACert, "", "PEM file with the CA certificates to trust.")
	pf.String(flagFormat, "", "Output format: json, table or id.")
	pf.BoolP(flagVerbose, "v", false, "Log requests and decisions to stderr.")

	root.AddCommand(newVersionCmd(app), newConfigCmd(app))
	for _, k := range resources.Kinds() {
		root.AddCommand(newKindCmd(app, k))
	}
	return root
}

// load resolves the settings and sets up logging.
func (a *App) load(flags *pflag.FlagSet, configPath, envFile string) error {
	layer, err := flagLayer(flags)
	if err != nil {
		return err
	}
	loader := config.Loader{}
	if a.Loader != nil {
		loader = *a.Loader
	}
	loader.ConfigPath = configPath
	loader.EnvFile = envFile
	loader.Flags = layer

	s, err := loader.Load()
	if err != nil {
		return err
	}
	a.settings = s
	setupLogger(a.Err, s.Verbose)
	log.WithField("settings", s.Redacted()).Debug("settings resolved")
	return nil
}

// flagLayer collects the global flags given on the command line. Flags left
// at their defaults do not override lower settings layers.
func flagLayer(flags *pflag.FlagSet) (config.Layer, error) {
	var l config.Layer
	var err error
	flags.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case flagHost:
			l.Host = &v
		case flagUsername:
			l.Username = &v
		case flagPassword:
			l.Password = &v
		case flagAPIPrefix:
			l.APIPrefix = &v
		case flagCACert:
			l.CACert = &v
		case flagFormat:
			l.Format = &v
		case flagInsecure, flagVerbose:
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = apierr.Usage("--%s: %q is not a boolean", f.Name, v)
				return
			}
			if f.Name == flagInsecure {
				l.Insecure = &b
			} else {
				l.Verbose = &b
			}
		}
	})
	return l, err
}

func setupLogger(w io.Writer, verbose bool) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

// ErrorMessage renders err for the user. With --verbose, API errors also
// carry the request and response that produced them.
func (a *App) ErrorMessage(err error) string {
	msg := err.Error()
	if a.settings == nil || !a.settings.Verbose {
		return msg
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return msg
	}
	detail := apiErr.Detail()
	if i := strings.Index(detail, "\n"); i >= 0 {
		msg += detail[i:]
	}
	return msg
}

// client connects to the configured server.
func (a *App) client(ctx context.Context) (*platform.Client, error) {
	conn, err := a.settings.Connection()
	if err != nil {
		return nil, err
	}
	auto := strings.EqualFold(a.settings.APIPrefix, AutoPrefix)
	var opts []platform.Option
	if !auto {
		opts = append(opts, platform.WithPrefix(a.settings.APIPrefix))
	}
	c := platform.NewClient(conn, opts...)
	if auto {
		if _, err := c.Discover(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// service returns a resource Service over a fresh client.
func (a *App) service(ctx context.Context) (*resources.Service, error) {
	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	secrets := resources.Chain{envSecrets(a.lookupEnv())}
	if a.Prompt != nil {
		secrets = append(secrets, a.Prompt)
	}
	return resources.NewService(c,
		resources.WithSecrets(secrets),
		resources.WithPolling(a.settings.PollMin, a.settings.PollMax),
	), nil
}

func (a *App) lookupEnv() func(string) (string, bool) {
	if a.Loader != nil && a.Loader.LookupEnv != nil {
		return a.Loader.LookupEnv
	}
	return os.LookupEnv
}

// SecretEnvPrefix names the environment variables consulted for job
// secrets, e.g. TOWER_SECRET_SSH_PASSWORD.
const SecretEnvPrefix = "TOWER_SECRET_"

type envSecrets func(string) (string, bool)

func (e envSecrets) Secret(name string) (string, error) {
	key := SecretEnvPrefix + strings.ToUpper(name)
	if v, ok := e(key); ok {
		return v, nil
	}
	return "", apierr.Usage("the job needs %s to start; pass --secret %s=VALUE or set %s", name, name, key)
}
