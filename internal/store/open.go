package store

import (
	"context"
	"fmt"

	"github.com/fuomag9/checkpulse/internal/config"
	"github.com/fuomag9/checkpulse/internal/database"
)

// Open builds the record store selected by cfg. The returned close function
// releases the backend's connections.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, func() error, error) {
	switch cfg.Type {
	case "file":
		s, err := NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil

	case "postgres":
		if err := database.RunMigrations(cfg); err != nil {
			return nil, nil, err
		}
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		return NewPostgresStore(db), sqlDB.Close, nil

	case "mongo":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return s.Close(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
