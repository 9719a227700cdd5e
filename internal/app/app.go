package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/linemk/tolo-delivery/internal/cache"
	"github.com/linemk/tolo-delivery/internal/config"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB
	// Cache равен nil, если redis.addr не задан
	Cache *cache.Redis
}

// PostgresDSN собирает строку подключения к БД
func PostgresDSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
	)
}

// NewApp создаёт новый экземпляр App: подключение к БД и, если настроен, к Redis
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", PostgresDSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	if cfg.Redis.Addr != "" {
		rdb := cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// без Redis цена всё равно считается, поэтому только предупреждение
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("redis is unavailable, quotes will not be cached", slog.Any("error", err))
		}
		app.Cache = rdb
	}

	return app, nil
}

// Close закрывает соединения с БД и Redis
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Error("failed to close redis", slog.Any("error", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("failed to close database", slog.Any("error", err))
	}
}
