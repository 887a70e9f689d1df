package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Dropbox  DropboxConfig  `mapstructure:"dropbox"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type IMAPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Folder      string        `mapstructure:"folder"`
	TLS         bool          `mapstructure:"tls"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type DropboxConfig struct {
	Token  string `mapstructure:"token"`
	Folder string `mapstructure:"folder"`
}

type WhatsAppConfig struct {
	AccessToken string `mapstructure:"access_token"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	VerifyToken string `mapstructure:"verify_token"`
}

type WebhookConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
	Workers int    `mapstructure:"workers"`
	Queue   int    `mapstructure:"queue"`
}

type RelayConfig struct {
	ScratchDir string `mapstructure:"scratch_dir"`
}

// Load initializes the configuration from a directory containing config.yaml.
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := viper.New()
		v.SetConfigType("yaml")
		v.SetConfigName("config")
		v.AddConfigPath(configPath)

		setDefaults(v)

		if readErr := v.ReadInConfig(); readErr != nil {
			// Missing file is fine; environment variables can carry everything.
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config: %w", readErr)
				return
			}
		}

		v.SetEnvPrefix("RELAYDROP")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		c := &Config{}
		if err = v.Unmarshal(c); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}

		mu.Lock()
		cfg = c
		mu.Unlock()
	})

	return err
}

// LoadFromFile loads configuration from a specific file (useful for testing).
func LoadFromFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("RELAYDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return c, nil
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "relaydrop")
	v.SetDefault("app.env", "development")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.dial_timeout", 5*time.Second)
	v.SetDefault("dropbox.folder", "/inbox")
	v.SetDefault("whatsapp.api_base_url", "https://graph.facebook.com/v17.0")
	v.SetDefault("webhook.host", "0.0.0.0")
	v.SetDefault("webhook.port", 5000)
	v.SetDefault("webhook.path", "/webhook")
	v.SetDefault("webhook.workers", 5)
	v.SetDefault("webhook.queue", 100)
}

// Validate checks that the fields required by the given channel are present.
func (c *Config) Validate(channel string) error {
	if c.Dropbox.Token == "" {
		return fmt.Errorf("dropbox token is required")
	}
	switch channel {
	case "inbox":
		if c.IMAP.Host == "" {
			return fmt.Errorf("imap host is required")
		}
		if c.IMAP.Username == "" || c.IMAP.Password == "" {
			return fmt.Errorf("imap credentials are required")
		}
	case "webhook":
		if c.WhatsApp.VerifyToken == "" {
			return fmt.Errorf("whatsapp verify token is required")
		}
		if !c.App.Debug && c.WhatsApp.AccessToken == "" {
			return fmt.Errorf("whatsapp access token is required")
		}
	default:
		return fmt.Errorf("unknown channel: %s", channel)
	}
	return nil
}

// Addr returns the webhook listen address.
func (c *WebhookConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
