package firebird

import (
	"context"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "firebird",
			DisplayName: "Firebird",
			Description: "Mistral installations on Firebird 2.5+",
		},
		Factory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, profile, sessionKey string) (datasource.Connection, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, connMgr, profile, sessionKey, nil)
		},
	})
}
