// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crim-ca/weaver/pkg/ogcerrors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Mode selects which roles the running instance fulfills.
type Mode string

const (
	// ModeADES runs only the local Application Deployment and Execution
	// Service: deployment, local Docker/Builtin dispatch, job tracking.
	ModeADES Mode = "ades"
	// ModeEMS runs only the Execution Management Service: dispatching to
	// remote providers (OAP/WPS/ESGF-CWT) and provider registration.
	ModeEMS Mode = "ems"
	// ModeHybrid runs both roles in the same process.
	ModeHybrid Mode = "hybrid"
)

// Settings represents the complete weaver daemon configuration.
type Settings struct {
	// Version indicates the config format version (1 = initial public release).
	Version int `yaml:"version,omitempty"`

	Mode Mode `yaml:"mode"`

	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	Store  StoreConfig  `yaml:"store"`
	Object ObjectConfig `yaml:"object"`
	Notify NotifyConfig `yaml:"notify"`
	Engine EngineConfig `yaml:"engine"`

	// Providers lists the remote OAP/WPS/ESGF-CWT providers known at
	// startup, keyed by provider id. Additional providers may be
	// registered at runtime through the providers API.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// HTTPConfig configures the OGC API - Processes HTTP listener.
type HTTPConfig struct {
	// ListenAddr is the TCP address the API listens on, e.g. ":8080".
	// Environment: WEAVER_HTTP_LISTEN
	ListenAddr string `yaml:"listen_addr"`

	// ExternalURL is the base URL under which this instance is reachable,
	// used to build self-referencing links in OAP responses.
	// Environment: WEAVER_HTTP_EXTERNAL_URL
	ExternalURL string `yaml:"external_url"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty"`

	// ReadTimeout and WriteTimeout bound the HTTP server's request handling.
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests and running jobs to wind down on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// MaxSyncWait is the maximum number of seconds this instance will
	// honor in a client's "Prefer: wait=<n>" header before falling back
	// to async dispatch.
	MaxSyncWait int `yaml:"max_sync_wait,omitempty"`
}

// StoreConfig configures the job and process persistence backend.
type StoreConfig struct {
	// Backend selects the job store implementation: "memory" or "postgres".
	Backend string `yaml:"backend"`

	// PostgresDSN is the connection string used when Backend is "postgres".
	// Environment: WEAVER_STORE_POSTGRES_DSN
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`

	// MaxOpenConns and MaxIdleConns bound the Postgres connection pool.
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
	MaxIdleConns int `yaml:"max_idle_conns,omitempty"`

	// JobRetention is how long completed jobs remain queryable before
	// being eligible for cleanup. Zero disables retention cleanup.
	JobRetention time.Duration `yaml:"job_retention,omitempty"`
}

// ObjectConfig configures where job working directories and staged
// outputs are written.
type ObjectConfig struct {
	// Backend selects the object store implementation: "filesystem" or "s3".
	Backend string `yaml:"backend"`

	// WPSOutputDir is the local directory backing filesystem-backed
	// output storage and local job working directories.
	WPSOutputDir string `yaml:"wps_output_dir"`

	// WPSOutputURL is the externally-reachable base URL under which
	// WPSOutputDir's contents are served.
	WPSOutputURL string `yaml:"wps_output_url"`

	// Bucket, Region, and Endpoint configure the S3 backend. Endpoint
	// may point at an S3-compatible service; empty uses AWS defaults.
	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// NotifyConfig configures job completion notifications.
type NotifyConfig struct {
	// TemplateDir holds the subscriber notification message templates.
	TemplateDir string `yaml:"template_dir,omitempty"`

	SMTP SMTPConfig `yaml:"smtp"`

	// EncryptionKeyEnv names the environment variable holding the
	// passphrase used to derive the at-rest encryption key for stored
	// subscriber emails. The key itself is never stored in config.
	EncryptionKeyEnv string `yaml:"encryption_key_env,omitempty"`

	// CallbackTimeout bounds HTTP callback subscriber notifications.
	CallbackTimeout time.Duration `yaml:"callback_timeout,omitempty"`
}

// SMTPConfig configures the mail transport used for email subscribers.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	// Password is read from WEAVER_NOTIFY_SMTP_PASSWORD and never
	// persisted to the settings file.
	Password string `yaml:"-"`
	From     string `yaml:"from,omitempty"`
	UseTLS   bool   `yaml:"use_tls,omitempty"`
}

// EngineConfig configures the execution engine and worker pool.
type EngineConfig struct {
	// MaxConcurrentJobs limits how many jobs run at once across both
	// local dispatch and remote provider monitoring.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// DefaultJobTimeout bounds a single job's total execution time.
	DefaultJobTimeout time.Duration `yaml:"default_job_timeout,omitempty"`

	// DockerBinary is the path to the docker (or compatible) CLI used
	// to run Docker-requirement Application Packages.
	DockerBinary string `yaml:"docker_binary,omitempty"`

	// MaxSyncWait is not read by the daemon: the ceiling on how long the
	// scheduler blocks a synchronous Execute request is taken from
	// HTTPConfig.MaxSyncWait instead.
	MaxSyncWait time.Duration `yaml:"max_sync_wait,omitempty"`
}

// ProviderConfig describes a remote OAP/WPS/ESGF-CWT provider known
// ahead of time. Providers registered at runtime are held in the job
// store instead.
type ProviderConfig struct {
	ID          string `yaml:"id"`
	URL         string `yaml:"url"`
	Type        string `yaml:"type"` // ogcapi, wps1, wps2, esgf-cwt, wps3-ades
	Public      bool   `yaml:"public,omitempty"`
	OAuthTokenURL string `yaml:"oauth_token_url,omitempty"`
	OAuthClientIDEnv string `yaml:"oauth_client_id_env,omitempty"`
	OAuthClientSecretEnv string `yaml:"oauth_client_secret_env,omitempty"`
}

// Default returns a Settings populated with sensible defaults for a
// single-process, filesystem-backed, in-memory-store deployment.
func Default() *Settings {
	dataDir := defaultDataDir()
	return &Settings{
		Mode: ModeHybrid,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			ListenAddr:      ":8080",
			ExternalURL:     "http://localhost:8080",
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  30 * time.Second,
			MaxSyncWait:      20,
		},
		Store: StoreConfig{
			Backend:      "memory",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			JobRetention: 30 * 24 * time.Hour,
		},
		Object: ObjectConfig{
			Backend:      "filesystem",
			WPSOutputDir: dataDir + "/outputs",
			WPSOutputURL: "http://localhost:8080/outputs",
		},
		Notify: NotifyConfig{
			TemplateDir:     dataDir + "/templates",
			CallbackTimeout: 10 * time.Second,
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
		Engine: EngineConfig{
			MaxConcurrentJobs: 10,
			DefaultJobTimeout: 24 * time.Hour,
			DockerBinary:      "docker",
			MaxSyncWait:       20 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file (if present) and then
// environment variables, which take precedence, validating the result.
func Load(configPath string) (*Settings, error) {
	cfg := Default()

	if configPath == "" {
		defaultPath, err := ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				configPath = defaultPath
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &ogcerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &ogcerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Settings) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// applyDefaults fills in zero values with sensible defaults, allowing
// minimal configs to work without specifying every field explicitly.
func (c *Settings) applyDefaults() {
	d := Default()

	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = d.HTTP.ListenAddr
	}
	if c.HTTP.ExternalURL == "" {
		c.HTTP.ExternalURL = d.HTTP.ExternalURL
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = d.HTTP.ReadTimeout
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = d.HTTP.WriteTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = d.HTTP.ShutdownTimeout
	}
	if c.HTTP.MaxSyncWait == 0 {
		c.HTTP.MaxSyncWait = d.HTTP.MaxSyncWait
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = d.Store.MaxOpenConns
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = d.Store.MaxIdleConns
	}
	if c.Object.Backend == "" {
		c.Object.Backend = d.Object.Backend
	}
	if c.Object.WPSOutputDir == "" {
		c.Object.WPSOutputDir = d.Object.WPSOutputDir
	}
	if c.Object.WPSOutputURL == "" {
		c.Object.WPSOutputURL = d.Object.WPSOutputURL
	}
	if c.Notify.TemplateDir == "" {
		c.Notify.TemplateDir = d.Notify.TemplateDir
	}
	if c.Notify.CallbackTimeout == 0 {
		c.Notify.CallbackTimeout = d.Notify.CallbackTimeout
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = d.Notify.SMTP.Port
	}
	if c.Engine.MaxConcurrentJobs == 0 {
		c.Engine.MaxConcurrentJobs = d.Engine.MaxConcurrentJobs
	}
	if c.Engine.DefaultJobTimeout == 0 {
		c.Engine.DefaultJobTimeout = d.Engine.DefaultJobTimeout
	}
	if c.Engine.DockerBinary == "" {
		c.Engine.DockerBinary = d.Engine.DockerBinary
	}
}

// loadFromEnv overrides settings with environment variables, which take
// the highest precedence.
func (c *Settings) loadFromEnv() {
	if v := os.Getenv("WEAVER_MODE"); v != "" {
		c.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv("WEAVER_HTTP_LISTEN"); v != "" {
		c.HTTP.ListenAddr = v
	}
	if v := os.Getenv("WEAVER_HTTP_EXTERNAL_URL"); v != "" {
		c.HTTP.ExternalURL = v
	}
	if v := os.Getenv("WEAVER_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("WEAVER_STORE_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("WEAVER_OBJECT_BACKEND"); v != "" {
		c.Object.Backend = v
	}
	if v := os.Getenv("WEAVER_OBJECT_BUCKET"); v != "" {
		c.Object.Bucket = v
	}
	if v := os.Getenv("WEAVER_OBJECT_WPS_OUTPUT_DIR"); v != "" {
		c.Object.WPSOutputDir = v
	}
	if v := os.Getenv("WEAVER_OBJECT_WPS_OUTPUT_URL"); v != "" {
		c.Object.WPSOutputURL = v
	}
	if v := os.Getenv("WEAVER_NOTIFY_SMTP_HOST"); v != "" {
		c.Notify.SMTP.Host = v
	}
	if v := os.Getenv("WEAVER_NOTIFY_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Notify.SMTP.Port = port
		}
	}
	if v := os.Getenv("WEAVER_NOTIFY_SMTP_USERNAME"); v != "" {
		c.Notify.SMTP.Username = v
	}
	if v := os.Getenv("WEAVER_NOTIFY_SMTP_PASSWORD"); v != "" {
		c.Notify.SMTP.Password = v
	}
	if v := os.Getenv("WEAVER_ENGINE_MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxConcurrentJobs = n
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Settings) Validate() error {
	var problems []string

	switch c.Mode {
	case ModeADES, ModeEMS, ModeHybrid:
	default:
		problems = append(problems, fmt.Sprintf("mode: unsupported value %q", c.Mode))
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			problems = append(problems, "store.postgres_dsn: required when store.backend is \"postgres\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend: unsupported value %q", c.Store.Backend))
	}

	switch c.Object.Backend {
	case "filesystem":
		if c.Object.WPSOutputDir == "" {
			problems = append(problems, "object.wps_output_dir: required when object.backend is \"filesystem\"")
		}
	case "s3":
		if c.Object.Bucket == "" {
			problems = append(problems, "object.bucket: required when object.backend is \"s3\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("object.backend: unsupported value %q", c.Object.Backend))
	}

	if c.Engine.MaxConcurrentJobs <= 0 {
		problems = append(problems, "engine.max_concurrent_jobs: must be positive")
	}

	if c.HTTP.MaxSyncWait < 0 {
		problems = append(problems, "http.max_sync_wait: must not be negative")
	}

	for id, p := range c.Providers {
		if p.URL == "" {
			problems = append(problems, fmt.Sprintf("providers.%s.url: required", id))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func defaultDataDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return "./data"
	}
	return dir + "/data"
}
