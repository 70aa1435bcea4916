package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	asksql "github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

func init() {
	recordstore.Register(recordstore.Registration{
		Dialect:     asksql.DialectSQLServer,
		DisplayName: "SQL Server",
		Enabled: func(cfg *config.Config) bool {
			return cfg.SQLServer.Enabled()
		},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (recordstore.Store, error) {
			return Open(ctx, cfg.SQLServer.ConnectionString(), recordstore.OptionsFromConfig(cfg.Planner), logger)
		},
	})
}
