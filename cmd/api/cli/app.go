package cli

import (
	"context"
	"fmt"

	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/petermazzocco/go-image-host/internal/db"
	"github.com/petermazzocco/go-image-host/internal/logging"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds what every command needs: configuration, a logger and the
// database.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	db   *gorm.DB
	meta *metadata.Service
}

func newApp(v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	gdb, err := db.Open(cfg.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &app{
		cfg:  cfg,
		log:  log,
		db:   gdb,
		meta: metadata.New(gdb, metadata.WithLogger(log.Named("metadata"))),
	}, nil
}

// openCache connects to Redis when an address is configured.
func (a *app) openCache(ctx context.Context) (cache.Cache, func(), error) {
	if a.cfg.Redis.Addr == "" {
		a.log.Info("redis not configured, response cache disabled")
		return cache.Nop{}, func() {}, nil
	}
	rc, err := cache.NewRedisCache(ctx, a.cfg.Redis, a.log.Named("cache"))
	if err != nil {
		return nil, nil, err
	}
	return rc, func() { _ = rc.Close() }, nil
}

func (a *app) Close() {
	if err := db.Close(a.db); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
