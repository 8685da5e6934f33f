package config

import (
	"time"

	"github.com/spf13/viper"
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			MaxUploadSize:   32 << 20,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "imagehost.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			LogLevel:     "warn",
		},
		Redis: RedisConfig{
			Prefix: "imagehost:",
			TTL:    5 * time.Minute,
		},
		Compress: CompressConfig{
			WebPQuality: 80,
			AVIFQuality: 60,
			AVIFSpeed:   6,
		},
		Auth: AuthConfig{
			CallbackURL: "http://localhost:3000/auth/google/callback",
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
			Rotation: RotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
			},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("storage.account_id", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.access_key_secret", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.public_url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("compress.webp_quality", d.Compress.WebPQuality)
	v.SetDefault("compress.avif_quality", d.Compress.AVIFQuality)
	v.SetDefault("compress.avif_speed", d.Compress.AVIFSpeed)

	v.SetDefault("auth.google_key", "")
	v.SetDefault("auth.google_secret", "")
	v.SetDefault("auth.callback_url", d.Auth.CallbackURL)
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.secure_cookie", false)
	v.SetDefault("auth.admins", []string{})

	v.SetDefault("sweep.enabled", d.Sweep.Enabled)
	v.SetDefault("sweep.interval", d.Sweep.Interval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.rotation.max_size", d.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", d.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)
}
