package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/database"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

func init() {
	recordstore.Register(recordstore.Registration{
		Dialect:     sql.DialectPostgres,
		DisplayName: "PostgreSQL",
		Enabled: func(cfg *config.Config) bool {
			return cfg.Database.Host != ""
		},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (recordstore.Store, error) {
			db, err := database.NewConnection(ctx, &database.Config{
				URL:            cfg.Database.URL(),
				MaxConnections: cfg.Database.MaxConnections,
			})
			if err != nil {
				return nil, err
			}
			store := New(db.Pool, recordstore.OptionsFromConfig(cfg.Planner), logger)
			store.ownedPool = true
			return store, nil
		},
	})
}
