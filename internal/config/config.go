package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every runtime setting of the dashboard service.
type Config struct {
	AppEnv           string `mapstructure:"app_env"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Theme     ThemeConfig     `mapstructure:"theme"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type HTTPConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	BasePath      string `mapstructure:"base_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	URL        string `mapstructure:"url"`
	Schema     string `mapstructure:"schema"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	ListTTL  time.Duration `mapstructure:"list_ttl"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	OAuth        struct {
		Google OAuthProvider `mapstructure:"google"`
		GitHub OAuthProvider `mapstructure:"github"`
	} `mapstructure:"oauth"`
}

// OAuthProvider holds the client registration of one identity provider.
type OAuthProvider struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Enabled reports whether both halves of the registration are present.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	LocalDir    string `mapstructure:"local_dir"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
	Bucket      string `mapstructure:"bucket"`
}

type WhatsAppConfig struct {
	Provider          string        `mapstructure:"provider"`
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           uint64        `mapstructure:"retries"`
	StorePath         string        `mapstructure:"store_path"`
	LogLevel          string        `mapstructure:"log_level"`
	OptimisticConnect bool          `mapstructure:"optimistic_connect"`
}

type PaymentConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeyHeader string        `mapstructure:"api_key_header"`
	ShopName     string        `mapstructure:"shop_name"`
	Message      string        `mapstructure:"message"`
	LicensePrice int64         `mapstructure:"license_price"`
	ReturnPath   string        `mapstructure:"return_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ThemeConfig struct {
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
}

type DashboardConfig struct {
	Workers int `mapstructure:"workers"`
}

// Load reads config.yaml when present, then lets the environment override it.
// Nested keys map to upper-case variables with dots replaced by underscores,
// e.g. database.url -> DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wa-dashboard")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_namespace", "wa_dashboard")

	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.public_base_url", "http://localhost:8080")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.sqlite_path", "data/dashboard.db")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.list_ttl", 5*time.Minute)

	v.SetDefault("auth.session_ttl", 7*24*time.Hour)
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "data/storage")
	v.SetDefault("storage.bucket", "uploads")

	v.SetDefault("whatsapp.provider", "http")
	v.SetDefault("whatsapp.timeout", 20*time.Second)
	v.SetDefault("whatsapp.retries", 2)
	v.SetDefault("whatsapp.store_path", "data/whatsmeow")
	v.SetDefault("whatsapp.log_level", "INFO")
	v.SetDefault("whatsapp.optimistic_connect", true)

	v.SetDefault("payment.api_key_header", "X-API-Key")
	v.SetDefault("payment.shop_name", "WhatsApp Assistant")
	v.SetDefault("payment.message", "Licence assistant WhatsApp")
	v.SetDefault("payment.license_price", 5000)
	v.SetDefault("payment.return_path", "/payments/return")
	v.SetDefault("payment.timeout", 15*time.Second)

	v.SetDefault("theme.rotation_interval", time.Minute)
	v.SetDefault("dashboard.workers", 8)
}

// bindEnvs walks the mapstructure tags so AutomaticEnv also resolves keys that
// never appear in a config file or default.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		field := ift.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		path := append(append([]string{}, parts...), tag)
		if field.Type.Kind() == reflect.Struct {
			bindEnvs(v, ifv.Field(i).Interface(), path...)
			continue
		}
		_ = v.BindEnv(strings.Join(path, "."))
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret (AUTH_JWT_SECRET) is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("config: database.url (DATABASE_URL) is required for postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("config: database.sqlite_path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "supabase":
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.WhatsApp.Provider {
	case "http", "local":
	default:
		return fmt.Errorf("config: unsupported whatsapp provider %q", c.WhatsApp.Provider)
	}
	return nil
}
