package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"orion/app/config"
	"time"

	_ "github.com/lib/pq"
)

type RepositoryAdapter struct {
	db        *sql.DB
	KeyBundle *KeyBundleRepository
	Message   *MessageRepository
}

func NewRepositoryAdapter(cfg config.DatabaseConfig, logger *slog.Logger) (*RepositoryAdapter, error) {
	connection := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	keyBundleRepo, err := NewKeyBundleRepository(db, logger)
	if err != nil {
		return nil, err
	}

	messageRepo, err := NewMessageRepository(db, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("repositories initialized")

	return &RepositoryAdapter{db: db, KeyBundle: keyBundleRepo, Message: messageRepo}, nil
}

func (r *RepositoryAdapter) Close() error {
	return r.db.Close()
}

func (r *RepositoryAdapter) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
