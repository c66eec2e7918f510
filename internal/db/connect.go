package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/metrics"
)

// Open открывает пул через pgx stdlib и проверяет соединение.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(20)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(30 * time.Minute)

	if err := Ping(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// Ping с таймаутом БД и метрикой задержки.
func Ping(ctx context.Context, database *sql.DB) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	start := time.Now()
	err := database.PingContext(ctx)
	metrics.ObserveDBPing(time.Since(start))
	return err
}
