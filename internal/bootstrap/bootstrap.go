// Package bootstrap собирает сервис достижений из конфигурации: хранилище,
// справочник и оркестратор. Общий для cmd/api и cmd/bot.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/config"
	"github.com/Spok95/achievement-service/internal/db"
	"github.com/Spok95/achievement-service/internal/directory"
	"github.com/Spok95/achievement-service/internal/memstore"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

type Deps struct {
	Service *workflow.Service
	// Health — nil в memory-режиме.
	Health interface {
		Ping(ctx context.Context) error
	}

	closers []func()
}

// Close освобождает ресурсы в обратном порядке.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{}

	var store workflow.Store
	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		store = memstore.New()
	default:
		database, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = database.Close() })
		s := db.NewStore(database)
		store = s
		d.Health = s
	}

	dir, err := buildDirectory(ctx, cfg, log, d)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Service = workflow.New(store, dir, workflow.Options{
		HallOfFameLevels: toLevels(cfg.HallOfFameLevels),
		ApproverRoles:    toRoles(cfg.ApproverRoles),
		Logger:           log,
	})
	return d, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// buildDirectory: без DIRECTORY_URL — демо-справочник; с REDIS_URL — кэш поверх клиента.
func buildDirectory(ctx context.Context, cfg *config.Config, log *zap.Logger, d *Deps) (workflow.Directory, error) {
	if cfg.DirectoryURL == "" {
		dir, sid, cid := directory.Demo()
		log.Warn("DIRECTORY_URL is empty, using demo directory",
			zap.Stringer("student_id", sid), zap.Stringer("category_id", cid))
		return dir, nil
	}
	var dir workflow.Directory = directory.NewClient(cfg.DirectoryURL, cfg.DirectoryToken, cfg.DirectoryTimeout)
	if cfg.RedisURL == "" {
		return dir, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// кэш необязателен: работаем напрямую
		log.Warn("redis unavailable, directory cache disabled", zap.Error(err))
		_ = rdb.Close()
		return dir, nil
	}
	d.closers = append(d.closers, func() { _ = rdb.Close() })
	return directory.NewCached(dir, rdb, cfg.DirectoryCacheTTL, log), nil
}

func toLevels(in []string) []models.Level {
	out := make([]models.Level, 0, len(in))
	for _, s := range in {
		out = append(out, models.Level(s))
	}
	return out
}

func toRoles(in []string) []models.Role {
	out := make([]models.Role, 0, len(in))
	for _, s := range in {
		out = append(out, models.Role(s))
	}
	return out
}
