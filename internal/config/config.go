package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"   yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"    yaml:"redis"`
	Compress CompressConfig `mapstructure:"compress" yaml:"compress"`
	Auth     AuthConfig     `mapstructure:"auth"     yaml:"auth"`
	Sweep    SweepConfig    `mapstructure:"sweep"    yaml:"sweep"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"       yaml:"rate_limit"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"  yaml:"max_upload_size"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"         yaml:"driver"`
	DSN          string `mapstructure:"dsn"            yaml:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"      yaml:"log_level"`
}

// StorageConfig points at a Cloudflare R2 bucket.
type StorageConfig struct {
	AccountID       string `mapstructure:"account_id"        yaml:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"     yaml:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret" yaml:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"            yaml:"bucket"`
	PublicURL       string `mapstructure:"public_url"        yaml:"public_url"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"     yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db"       yaml:"db"`
	Prefix   string        `mapstructure:"prefix"   yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"      yaml:"ttl"`
}

type CompressConfig struct {
	WebPQuality int `mapstructure:"webp_quality" yaml:"webp_quality"`
	AVIFQuality int `mapstructure:"avif_quality" yaml:"avif_quality"`
	AVIFSpeed   int `mapstructure:"avif_speed"   yaml:"avif_speed"`
}

type AuthConfig struct {
	GoogleKey     string   `mapstructure:"google_key"     yaml:"google_key"`
	GoogleSecret  string   `mapstructure:"google_secret"  yaml:"google_secret"`
	CallbackURL   string   `mapstructure:"callback_url"   yaml:"callback_url"`
	SessionSecret string   `mapstructure:"session_secret" yaml:"session_secret"`
	SecureCookie  bool     `mapstructure:"secure_cookie"  yaml:"secure_cookie"`
	Admins        []string `mapstructure:"admins"         yaml:"admins"`
}

type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"  yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type LogConfig struct {
	Level    string         `mapstructure:"level"    yaml:"level"`
	JSON     bool           `mapstructure:"json"     yaml:"json"`
	File     string         `mapstructure:"file"     yaml:"file"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"    yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"     yaml:"max_age"`
	Compress   bool `mapstructure:"compress"    yaml:"compress"`
}

// Init prepares viper: .env files first, then the config file and the
// IMAGEHOST_ environment. A missing config file is not an error.
func Init(v *viper.Viper, path string) error {
	envFiles := []string{".env", ".env.local"}
	for _, envFile := range envFiles {
		// Missing .env files are fine
		_ = godotenv.Load(envFile)
	}

	if path != "" {
		v.SetConfigFile(path)
		dir := filepath.Dir(path)
		for _, envFile := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, envFile))
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/imagehost")
	}

	v.SetEnvPrefix("IMAGEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Auth.GoogleKey != "" && c.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required when auth.google_key is set")
	}
	return nil
}

// IsAdmin reports whether email is in the admin allowlist.
func (a AuthConfig) IsAdmin(email string) bool {
	for _, admin := range a.Admins {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}
