//go:build mssql || all_adapters

package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Migrated Mistral databases on SQL Server 2019+",
		},
		Factory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, profile, sessionKey string) (datasource.Connection, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, connMgr, profile, sessionKey)
		},
	})
}
