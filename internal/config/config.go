// Package config resolves the CLI settings from files, the environment and
// flags.
//
// Layers apply lowest first: built-in defaults, the global file
// /etc/awx/tower_cli.yml, the user file ~/.tower_cli.yml, an explicit
// --config file, an --env-file, TOWER_* environment variables, and finally
// flags given on the command line.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rflorenc/tower-cli/internal/apierr"
	"github.com/rflorenc/tower-cli/internal/models"
)

// Default file locations.
const (
	GlobalPath = "/etc/awx/tower_cli.yml"
	UserPath   = "~/.tower_cli.yml"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
	FormatID    = "id"
)

// Settings is the resolved configuration of one invocation.
type Settings struct {
	Host      string        `yaml:"host" json:"host"`
	Username  string        `yaml:"username" json:"username"`
	Password  string        `yaml:"password" json:"password"`
	APIPrefix string        `yaml:"api_prefix" json:"api_prefix"`
	Insecure  bool          `yaml:"insecure" json:"insecure"`
	CACert    string        `yaml:"ca_cert" json:"ca_cert"`
	Format    string        `yaml:"format" json:"format"`
	Verbose   bool          `yaml:"verbose" json:"verbose"`
	PollMin   time.Duration `yaml:"poll_min" json:"poll_min"`
	PollMax   time.Duration `yaml:"poll_max" json:"poll_max"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Host:      "127.0.0.1",
		APIPrefix: "/api/v2/",
		Format:    FormatJSON,
		PollMin:   time.Second,
		PollMax:   30 * time.Second,
	}
}

// Layer is one partial source of settings. Nil fields leave the value from
// lower layers in place.
type Layer struct {
	Host      *string        `yaml:"host"`
	Username  *string        `yaml:"username"`
	Password  *string        `yaml:"password"`
	APIPrefix *string        `yaml:"api_prefix"`
	Insecure  *bool          `yaml:"insecure"`
	CACert    *string        `yaml:"ca_cert"`
	Format    *string        `yaml:"format"`
	Verbose   *bool          `yaml:"verbose"`
	PollMin   *time.Duration `yaml:"poll_min"`
	PollMax   *time.Duration `yaml:"poll_max"`
}

func (s *Settings) apply(l Layer) {
	if l.Host != nil {
		s.Host = *l.Host
	}
	if l.Username != nil {
		s.Username = *l.Username
	}
	if l.Password != nil {
		s.Password = *l.Password
	}
	if l.APIPrefix != nil {
		s.APIPrefix = *l.APIPrefix
	}
	if l.Insecure != nil {
		s.Insecure = *l.Insecure
	}
	if l.CACert != nil {
		s.CACert = *l.CACert
	}
	if l.Format != nil {
		s.Format = *l.Format
	}
	if l.Verbose != nil {
		s.Verbose = *l.Verbose
	}
	if l.PollMin != nil {
		s.PollMin = *l.PollMin
	}
	if l.PollMax != nil {
		s.PollMax = *l.PollMax
	}
}

// Loader gathers the layers. Empty paths are skipped.
type Loader struct {
	GlobalPath string
	UserPath   string
	ConfigPath string
	EnvFile    string
	// LookupEnv reads the process environment; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
	Flags     Layer
}

// NewLoader returns a Loader for the standard file locations.
func NewLoader() *Loader {
	return &Loader{GlobalPath: GlobalPath, UserPath: UserPath, LookupEnv: os.LookupEnv}
}

// Load resolves the settings.
func (l *Loader) Load() (*Settings, error) {
	s := Defaults()

	if l.GlobalPath != "" {
		layer, err := loadFile(l.GlobalPath)
		switch {
		case err == nil:
			s.apply(layer)
		case os.IsNotExist(errors.Cause(err)):
		default:
			// unreadable global settings are skipped
			log.WithError(err).Warnf("ignoring %s", l.GlobalPath)
		}
	}
	if l.UserPath != "" {
		layer, err := loadFile(l.UserPath)
		switch {
		case err == nil:
			s.apply(layer)
		case os.IsNotExist(errors.Cause(err)):
		default:
			return nil, err
		}
	}
	if l.ConfigPath != "" {
		layer, err := loadFile(l.ConfigPath)
		if err != nil {
			return nil, err
		}
		s.apply(layer)
	}
	if l.EnvFile != "" {
		path, err := models.ExpandUser(l.EnvFile)
		if err != nil {
			return nil, err
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading env file %s", l.EnvFile)
		}
		layer, err := envLayer(func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		})
		if err != nil {
			return nil, errors.Wrap(err, l.EnvFile)
		}
		s.apply(layer)
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	layer, err := envLayer(lookup)
	if err != nil {
		return nil, errors.Wrap(err, "environment")
	}
	s.apply(layer)
	s.apply(l.Flags)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks values that cannot be used as given.
func (s *Settings) Validate() error {
	switch s.Format {
	case FormatJSON, FormatTable, FormatID:
	default:
		return apierr.Usage("invalid format %q (choose from json, table, id)", s.Format)
	}
	if strings.TrimSpace(s.Host) == "" {
		return apierr.Usage("no host configured")
	}
	if s.PollMin <= 0 || s.PollMax < s.PollMin {
		return apierr.Usage("invalid poll interval %s..%s", s.PollMin, s.PollMax)
	}
	return nil
}

// Connection returns what the transport needs. ca_cert names a PEM file.
func (s *Settings) Connection() (*models.Connection, error) {
	conn := &models.Connection{
		Host:     s.Host,
		Username: s.Username,
		Password: s.Password,
		Insecure: s.Insecure,
	}
	if s.CACert != "" {
		path, err := models.ExpandUser(s.CACert)
		if err != nil {
			return nil, err
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading ca_cert")
		}
		conn.CACert = string(pem)
	}
	return conn, nil
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	if s.Password != "" {
		s.Password = "********"
	}
	return s
}

// loadFile reads one YAML layer.
func loadFile(path string) (Layer, error) {
	var layer Layer
	expanded, err := models.ExpandUser(path)
	if err != nil {
		return layer, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return layer, errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return layer, errors.Wrapf(err, "parsing %s", path)
	}
	return layer, nil
}

// Environment variable names.
const (
	EnvHost      = "TOWER_HOST"
	EnvUsername  = "TOWER_USERNAME"
	EnvPassword  = "TOWER_PASSWORD"
	EnvAPIPrefix = "TOWER_API_PREFIX"
	EnvInsecure  = "TOWER_INSECURE"
	EnvCACert    = "TOWER_CA_CERT"
	EnvFormat    = "TOWER_FORMAT"
	EnvVerbose   = "TOWER_VERBOSE"
	EnvPollMin   = "TOWER_POLL_MIN"
	EnvPollMax   = "TOWER_POLL_MAX"
)

func envLayer(lookup func(string) (string, bool)) (Layer, error) {
	var l Layer
	str := func(key string, dst **string) {
		if v, ok := lookup(key); ok {
			*dst = &v
		}
	}
	str(EnvHost, &l.Host)
	str(EnvUsername, &l.Username)
	str(EnvPassword, &l.Password)
	str(EnvAPIPrefix, &l.APIPrefix)
	str(EnvCACert, &l.CACert)
	str(EnvFormat, &l.Format)

	for key, dst := range map[string]**bool{EnvInsecure: &l.Insecure, EnvVerbose: &l.Verbose} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return l, errors.Errorf("%s: %q is not a boolean", key, v)
		}
		*dst = &b
	}
	for key, dst := range map[string]**time.Duration{EnvPollMin: &l.PollMin, EnvPollMax: &l.PollMax} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return l, errors.Errorf("%s: %q is not a duration", key, v)
		}
		*dst = &d
	}
	return l, nil
}
