package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/petermazzocco/go-image-host/internal/auth"
	"github.com/petermazzocco/go-image-host/internal/compress"
	"github.com/petermazzocco/go-image-host/internal/db"
	"github.com/petermazzocco/go-image-host/internal/handlers"
	"github.com/petermazzocco/go-image-host/internal/storage"
	"github.com/petermazzocco/go-image-host/internal/sweep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	if err := db.NewMigrator(a.db).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	blobs, err := storage.NewR2Store(ctx, cfg.Storage, a.log.Named("storage"))
	if err != nil {
		return err
	}

	responses, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	sessionStore := auth.NewSessionStore(cfg.Auth)
	var authHandler *handlers.AuthHandler
	if auth.Setup(cfg.Auth, sessionStore) {
		authHandler = handlers.NewAuthHandler(sessionStore, cfg.Auth, a.log.Named("auth"))
	} else {
		a.log.Warn("google oauth not configured, admin sign-in disabled")
	}

	h := handlers.New(a.meta, blobs, compress.NewBimgCompressor(),
		handlers.WithCache(responses),
		handlers.WithLogger(a.log.Named("http")),
		handlers.WithCompressOptions(compress.OptionsFrom(cfg.Compress)),
		handlers.WithMaxUploadSize(cfg.Server.MaxUploadSize),
	)
	router := handlers.NewRouter(h, handlers.RouterConfig{
		Admin:     auth.AdminMiddleware(sessionStore, cfg.Auth, a.log.Named("auth")),
		Auth:      authHandler,
		RateLimit: cfg.Server.RateLimit,
		Health: func(ctx context.Context) error {
			return db.Health(ctx, a.db)
		},
		Log: a.log.Named("http"),
	})

	if cfg.Sweep.Enabled {
		job := sweep.New(a.meta, blobs, responses, cfg.Sweep.Interval, a.log.Named("sweep"))
		go job.Run(ctx)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting API server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
