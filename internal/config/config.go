package config

import (
	"fmt"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Color syntaxes understood by the line colorizer
const (
	ColorSyntaxIRCCat = "irccat"
	ColorSyntaxIRCFmt = "ircfmt"
)

var validate = validator.New()

// Config holds all relay configuration
type Config struct {
	Nick         string `yaml:"nick" env:"IRCCATX_NICK" validate:"required"`
	NickPass     string `yaml:"nick_pass" env:"IRCCATX_NICK_PASS"`
	Alternate    string `yaml:"alternate" env:"IRCCATX_ALTERNATE"`
	Server       string `yaml:"server" env:"IRCCATX_SERVER" validate:"required,hostname|ip"`
	Port         int    `yaml:"port" env:"IRCCATX_PORT" validate:"required,min=1,max=65535"`
	ServerPass   string `yaml:"server_pass" env:"IRCCATX_SERVER_PASS"`
	TLS          bool   `yaml:"tls" env:"IRCCATX_TLS"`
	TLSInsecure  bool   `yaml:"tls_insecure" env:"IRCCATX_TLS_INSECURE"`
	SASLLogin    string `yaml:"sasl_login" env:"IRCCATX_SASL_LOGIN"`
	SASLPassword string `yaml:"sasl_password" env:"IRCCATX_SASL_PASSWORD" validate:"required_with=SASLLogin"`
	IRCName      string `yaml:"irc_name" env:"IRCCATX_IRC_NAME"`
	Username     string `yaml:"username" env:"IRCCATX_USERNAME"`
	AdminPass    string `yaml:"admin_pass" env:"IRCCATX_ADMIN_PASS"`

	// Channels are joined on connect, optionally "#name key"
	Channels []string `yaml:"channels" validate:"dive,required"`
	// DefaultChannels receive lines that carry no target sigil
	DefaultChannels []string `yaml:"default_channels" validate:"dive,required"`
	// Keys seeds the FiSH key store: destination name -> key
	Keys map[string]string `yaml:"keys"`

	Listen        string `yaml:"listen" env:"IRCCATX_LISTEN" validate:"required,hostname_port"`
	MaxLineLength int    `yaml:"max_line_length" env:"IRCCATX_MAX_LINE_LENGTH" validate:"min=64"`
	ColorSyntax   string `yaml:"color_syntax" env:"IRCCATX_COLOR_SYNTAX" validate:"oneof=irccat ircfmt"`
	DataDir       string `yaml:"data_dir" env:"IRCCATX_DATA_DIR"`
	LogLevel      string `yaml:"log_level" env:"IRCCATX_LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Load reads and parses a YAML configuration file, applies environment
// overrides (including a .env file in the working directory, if any) and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}

	// A missing .env is the common case
	_ = godotenv.Load()
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// setDefaults fills unset fields. Port and Username derive from TLS and
// Nick, so it runs after environment overrides.
func (cfg *Config) setDefaults() {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:12345"
	}
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = 4096
	}
	if cfg.ColorSyntax == "" {
		cfg.ColorSyntax = ColorSyntaxIRCCat
	}
	if cfg.Port == 0 {
		cfg.Port = 6667
		if cfg.TLS {
			cfg.Port = 6697
		}
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Nick
	}
	if cfg.IRCName == "" {
		cfg.IRCName = "irccatx"
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	cfg.Channels = lo.Uniq(lo.Compact(lo.Map(cfg.Channels, func(c string, _ int) string {
		return strings.TrimSpace(c)
	})))
	cfg.DefaultChannels = lo.Uniq(lo.Compact(lo.Map(cfg.DefaultChannels, func(c string, _ int) string {
		return strings.TrimSpace(c)
	})))
}

// Validate checks the configuration for missing or out-of-range values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ChannelJoins splits the configured channels into names and join keys.
// Channels without a key map to the empty string.
func (c *Config) ChannelJoins() map[string]string {
	joins := make(map[string]string, len(c.Channels))
	for _, entry := range c.Channels {
		fields := strings.Fields(entry)
		name := fields[0]
		if !strings.HasPrefix(name, "#") && !strings.HasPrefix(name, "&") {
			name = "#" + name
		}
		key := ""
		if len(fields) > 1 {
			key = fields[1]
		}
		joins[name] = key
	}
	return joins
}
