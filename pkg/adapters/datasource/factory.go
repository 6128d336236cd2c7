package datasource

import (
	"context"
	"fmt"
)

// DatasourceAdapterFactory creates connections from the registry.
type DatasourceAdapterFactory interface {
	// Open opens a connection of type dsType for one operator session.
	Open(ctx context.Context, dsType string, config map[string]any, profile, sessionKey string) (Connection, error)

	// Release drops the managed connection of a session, if any.
	Release(profile, sessionKey string)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
// connMgr may be nil; connections are then owned by their callers.
func NewDatasourceAdapterFactory(connMgr *ConnectionManager) DatasourceAdapterFactory {
	return &registryFactory{
		connMgr: connMgr,
	}
}

func (f *registryFactory) Open(ctx context.Context, dsType string, config map[string]any, profile, sessionKey string) (Connection, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}
	return factory(ctx, config, f.connMgr, profile, sessionKey)
}

func (f *registryFactory) Release(profile, sessionKey string) {
	if f.connMgr != nil {
		f.connMgr.Release(profile, sessionKey)
	}
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
