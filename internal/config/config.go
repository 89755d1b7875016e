package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("fhir-chart version %s, commit %s, built at %s", version, commit, date)
}

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "FHIR_CHART"

type Config struct {
	SMART   SMARTConfig   `mapstructure:"smart"`
	FHIR    FHIRConfig    `mapstructure:"fhir"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SMARTConfig holds the static client registration used for the PKCE login.
type SMARTConfig struct {
	ClientID     string `mapstructure:"client_id"`
	AuthorizeURL string `mapstructure:"authorize_url"`
	TokenURL     string `mapstructure:"token_url"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	Scopes       string `mapstructure:"scopes"` // space separated, as sent on the wire
	// Issuer enables id_token signature verification through OIDC discovery.
	Issuer          string        `mapstructure:"issuer"`
	Discover        bool          `mapstructure:"discover"`
	CallbackTimeout time.Duration `mapstructure:"callback_timeout"`
}

// ScopeList returns the configured scopes as a slice.
func (c *SMARTConfig) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

type FHIRConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	PatientID   string        `mapstructure:"patient_id"`
	Timeout     time.Duration `mapstructure:"timeout"` // zero leaves the transport default
}

type ServerMode string

const (
	ServerModeSSE   ServerMode = "sse"
	ServerModeSTDIO ServerMode = "stdio"
	ServerModeHTTP  ServerMode = "http"
)

type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	Host    string     `mapstructure:"host"`
	Mode    ServerMode `mapstructure:"mode"`
	Name    string     `mapstructure:"name"`
	Version string     `mapstructure:"version"`
	// AuthToken, when set, is required as bearer token by the sse and http modes.
	AuthToken    string   `mapstructure:"auth_token"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"client-id":     "smart.client_id",
	"authorize-url": "smart.authorize_url",
	"token-url":     "smart.token_url",
	"redirect-uri":  "smart.redirect_uri",
	"scopes":        "smart.scopes",
	"discover":      "smart.discover",
	"fhir-base-url": "fhir.base_url",
	"access-token":  "fhir.access_token",
	"patient":       "fhir.patient_id",
	"mode":          "server.mode",
	"host":          "server.host",
	"port":          "server.port",
	"log-level":     "logging.level",
	"log-file":      "logging.output_path",
}

// InitFlags registers the configuration flags on fs (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (default ./config.yaml or /etc/fhir-chart/config.yaml)")
	fs.String("client-id", "", "SMART client id")
	fs.String("authorize-url", "", "SMART authorization endpoint")
	fs.String("token-url", "", "SMART token endpoint")
	fs.String("redirect-uri", "", "Loopback redirect URI registered for the client")
	fs.String("scopes", "", "Space separated scopes to request")
	fs.Bool("discover", false, "Discover SMART endpoints from the FHIR server when not configured")
	fs.String("fhir-base-url", "", "FHIR server base URL")
	fs.String("access-token", "", "Use this access token instead of logging in")
	fs.String("patient", "", "Patient id (defaults to the launch context patient)")
	fs.String("mode", "", "MCP server mode (stdio|sse|http)")
	fs.String("host", "", "MCP server host for the sse and http modes")
	fs.Int("port", 0, "MCP server port for the sse and http modes")
	fs.String("log-level", "", "Log level (debug|info|warn|error)")
	fs.String("log-file", "", "Write logs to this file")
}

var envOnlyKeys = []string{
	"smart.issuer",
	"server.auth_token",
	"server.allow_origins",
	"fhir.timeout",
	"logging.format",
	"logging.disable_stacktrace",
	"logging.append_to_file",
	"logging.disable_console",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("smart.redirect_uri", "http://127.0.0.1:8765/callback")
	v.SetDefault("smart.scopes", "launch/patient openid fhirUser patient/*.read")
	v.SetDefault("smart.callback_timeout", 5*time.Minute)
	v.SetDefault("server.mode", string(ServerModeSTDIO))
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.name", "fhir-chart")
	v.SetDefault("server.version", version)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration from flags, FHIR_CHART_* environment variables and an
// optional config file, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows about
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	configFile := os.Getenv(EnvPrefix + "_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fhir-chart")
	}

	if err := v.ReadInConfig(); err != nil {
		// Flags and environment are enough on their own
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	switch config.Server.Mode {
	case ServerModeSSE, ServerModeSTDIO, ServerModeHTTP:
	default:
		return nil, fmt.Errorf("unsupported server mode %q, expected stdio, sse or http", config.Server.Mode)
	}

	return &config, nil
}

// ValidateFHIR checks the settings needed to read from the FHIR server.
func (c *Config) ValidateFHIR() error {
	if c.FHIR.BaseURL == "" {
		return missing("fhir.base_url", "--fhir-base-url")
	}
	return nil
}

// ValidateSMART checks the settings needed to run the PKCE login.
func (c *Config) ValidateSMART() error {
	if err := c.ValidateFHIR(); err != nil {
		return err
	}
	if c.SMART.ClientID == "" {
		return missing("smart.client_id", "--client-id")
	}
	if c.SMART.RedirectURI == "" {
		return missing("smart.redirect_uri", "--redirect-uri")
	}
	if !c.SMART.Discover {
		if c.SMART.AuthorizeURL == "" {
			return missing("smart.authorize_url", "--authorize-url")
		}
		if c.SMART.TokenURL == "" {
			return missing("smart.token_url", "--token-url")
		}
	}
	return nil
}

func missing(key, flag string) error {
	env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return fmt.Errorf("%s is required, please adjust the config or pass %s or %s environment variable", key, flag, env)
}
