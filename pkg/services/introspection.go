package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// IntrospectionOptions carries the per-profile discovery settings.
type IntrospectionOptions struct {
	// SchemaDump is a metadata dump used when live discovery fails.
	// Empty means the bundled Mistral dump.
	SchemaDump string

	// HashScheme is copied into a discovered table descriptor.
	HashScheme string
}

// CatalogIntrospector discovers the shape of an accounting database from its
// system catalog. It only issues read queries.
type CatalogIntrospector interface {
	// Discover runs every discovery and merges the results into one profile.
	// The profile is returned even when the error is non-nil.
	Discover(ctx context.Context, conn datasource.Connection) (*models.SchemaProfile, error)

	// DiscoverLoginMechanism finds the login routine or user table.
	DiscoverLoginMechanism(ctx context.Context, conn datasource.Connection) (*models.SchemaProfile, error)

	// DiscoverCatalogSchema finds the items and barcode tables.
	DiscoverCatalogSchema(ctx context.Context, conn datasource.Connection) (*models.CatalogDescriptor, models.DiscoveryTier, error)

	// DiscoverDeliverySchema finds the open-delivery header and detail tables.
	DiscoverDeliverySchema(ctx context.Context, conn datasource.Connection) (*models.DeliveryDescriptor, models.DiscoveryTier, error)
}

type catalogIntrospector struct {
	opts   IntrospectionOptions
	logger *zap.Logger

	dumpOnce sync.Once
	dump     *datasource.DumpCatalog
	dumpErr  error
}

// NewCatalogIntrospector creates an introspector for one connection profile.
func NewCatalogIntrospector(opts IntrospectionOptions, logger *zap.Logger) CatalogIntrospector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogIntrospector{
		opts:   opts,
		logger: logger.Named("introspector"),
	}
}

var _ CatalogIntrospector = (*catalogIntrospector)(nil)

func (s *catalogIntrospector) Discover(ctx context.Context, conn datasource.Connection) (*models.SchemaProfile, error) {
	live := newCachedCatalog(conn.Catalog())

	profile, loginErr := s.discoverLogin(ctx, live)

	catalog, catalogTier, catalogErr := s.discoverCatalog(ctx, live)
	profile.Catalog = catalog
	profile.Tier = models.WeakerTier(profile.Tier, catalogTier)

	delivery, deliveryTier, deliveryErr := s.discoverDelivery(ctx, live)
	profile.Delivery = delivery
	profile.Tier = models.WeakerTier(profile.Tier, deliveryTier)

	profile.Degraded = profile.Tier != models.TierLive

	s.logger.Info("Discovered schema profile",
		zap.String("mechanism", string(profile.Mechanism)),
		zap.String("tier", string(profile.Tier)),
		zap.Bool("degraded", profile.Degraded),
		zap.Bool("catalog", profile.Catalog != nil),
		zap.Bool("delivery", profile.Delivery != nil),
	)

	return profile, errors.Join(loginErr, catalogErr, deliveryErr)
}

func (s *catalogIntrospector) DiscoverLoginMechanism(ctx context.Context, conn datasource.Connection) (*models.SchemaProfile, error) {
	return s.discoverLogin(ctx, newCachedCatalog(conn.Catalog()))
}

func (s *catalogIntrospector) DiscoverCatalogSchema(ctx context.Context, conn datasource.Connection) (*models.CatalogDescriptor, models.DiscoveryTier, error) {
	return s.discoverCatalog(ctx, newCachedCatalog(conn.Catalog()))
}

func (s *catalogIntrospector) DiscoverDeliverySchema(ctx context.Context, conn datasource.Connection) (*models.DeliveryDescriptor, models.DiscoveryTier, error) {
	return s.discoverDelivery(ctx, newCachedCatalog(conn.Catalog()))
}

func (s *catalogIntrospector) discoverLogin(ctx context.Context, live datasource.CatalogReader) (*models.SchemaProfile, error) {
	profile := &models.SchemaProfile{
		Mechanism:    models.LoginMechanismUnknown,
		DiscoveredAt: time.Now().UTC(),
	}

	tier, err := s.runTiers(ctx, live, "login mechanism", func(ctx context.Context, reader datasource.CatalogReader) (bool, error) {
		proc, table, err := s.matchLogin(ctx, reader)
		if err != nil {
			return false, err
		}
		switch {
		case proc != nil:
			profile.Mechanism = models.LoginMechanismProcedure
		case table != nil:
			profile.Mechanism = models.LoginMechanismTable
		default:
			return false, nil
		}
		profile.Procedure = proc
		profile.Table = table
		return true, nil
	})

	profile.Tier = tier
	profile.Degraded = tier != models.TierLive

	fields := []zap.Field{
		zap.String("mechanism", string(profile.Mechanism)),
		zap.String("tier", string(tier)),
	}
	if profile.Procedure != nil {
		fields = append(fields, zap.String("procedure", profile.Procedure.Name))
	}
	if profile.Table != nil {
		fields = append(fields, zap.String("table", profile.Table.Table))
	}
	s.logger.Debug("Login mechanism discovery finished", fields...)

	return profile, err
}

// matchLogin looks for a login routine first, then a user table. The table is
// recorded even when a routine exists so a forced table login stays possible.
func (s *catalogIntrospector) matchLogin(ctx context.Context, reader datasource.CatalogReader) (*models.ProcedureDescriptor, *models.TableDescriptor, error) {
	procs, err := reader.ListProcedures(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list procedures: %w", err)
	}

	var proc *models.ProcedureDescriptor
	for _, candidate := range rankLoginProcedures(procs) {
		params, err := reader.ProcedureParameters(ctx, candidate.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("procedure %s parameters: %w", candidate.Name, err)
		}
		if len(datasource.Inputs(params)) == 0 {
			continue
		}
		proc = newProcedureDescriptor(candidate, params)
		break
	}

	table, err := s.matchLoginTable(ctx, reader)
	if err != nil {
		if proc == nil {
			return nil, nil, err
		}
		s.logger.Debug("User table scan failed after finding login procedure",
			zap.String("procedure", proc.Name),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	return proc, table, nil
}

func (s *catalogIntrospector) matchLoginTable(ctx context.Context, reader datasource.CatalogReader) (*models.TableDescriptor, error) {
	tables, err := reader.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	for _, name := range orderLoginTables(tables) {
		cols, err := reader.TableColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("table %s columns: %w", name, err)
		}
		if desc, ok := matchLoginTable(name, cols, s.opts.HashScheme); ok {
			return desc, nil
		}
	}
	return nil, nil
}

func (s *catalogIntrospector) discoverCatalog(ctx context.Context, live datasource.CatalogReader) (*models.CatalogDescriptor, models.DiscoveryTier, error) {
	var desc *models.CatalogDescriptor
	tier, err := s.runTiers(ctx, live, "catalog schema", func(ctx context.Context, reader datasource.CatalogReader) (bool, error) {
		tc, err := loadTableColumns(ctx, reader)
		if err != nil {
			return false, err
		}
		d, ok := matchCatalog(tc)
		if !ok {
			return false, nil
		}
		desc = d
		return true, nil
	})

	if desc != nil {
		s.logger.Debug("Catalog schema discovered",
			zap.String("tier", string(tier)),
			zap.String("items_table", desc.ItemsTable),
			zap.String("code_column", desc.CodeColumn),
			zap.String("name_column", desc.NameColumn),
			zap.String("barcode_table", desc.BarcodeTable),
		)
	}
	return desc, tier, err
}

func (s *catalogIntrospector) discoverDelivery(ctx context.Context, live datasource.CatalogReader) (*models.DeliveryDescriptor, models.DiscoveryTier, error) {
	var desc *models.DeliveryDescriptor
	tier, err := s.runTiers(ctx, live, "delivery schema", func(ctx context.Context, reader datasource.CatalogReader) (bool, error) {
		tc, err := loadTableColumns(ctx, reader)
		if err != nil {
			return false, err
		}
		generators, err := reader.ListGenerators(ctx)
		if err != nil {
			return false, fmt.Errorf("list generators: %w", err)
		}
		d, ok := matchDelivery(tc, generators)
		if !ok {
			return false, nil
		}
		desc = d
		return true, nil
	})

	if desc != nil {
		s.logger.Debug("Delivery schema discovered",
			zap.String("tier", string(tier)),
			zap.String("header_table", desc.HeaderTable),
			zap.String("detail_table", desc.DetailTable),
			zap.String("header_generator", desc.HeaderGenerator),
			zap.String("detail_generator", desc.DetailGenerator),
		)
	}
	return desc, tier, err
}

// matchFunc inspects one metadata source. It reports whether the source held
// what was looked for.
type matchFunc func(ctx context.Context, reader datasource.CatalogReader) (bool, error)

// runTiers tries the live catalog, then the static dump. The returned error
// wraps ErrSchemaUnavailable only when the live catalog failed and the dump
// did not match either.
func (s *catalogIntrospector) runTiers(ctx context.Context, live datasource.CatalogReader, what string, match matchFunc) (models.DiscoveryTier, error) {
	found, liveErr := match(ctx, live)
	if liveErr == nil && found {
		return models.TierLive, nil
	}
	if liveErr != nil {
		s.logger.Warn("Live metadata discovery failed",
			zap.String("what", what),
			zap.String("error", logging.SanitizeError(liveErr)),
		)
	}

	dump, err := s.staticCatalog()
	if err != nil {
		s.logger.Warn("Static metadata dump unavailable",
			zap.String("what", what),
			zap.String("path", s.opts.SchemaDump),
			zap.Error(err),
		)
	} else if found, err := match(ctx, dump); err == nil && found {
		s.logger.Warn("Using static metadata dump",
			zap.String("what", what),
			zap.String("path", s.opts.SchemaDump),
		)
		return models.TierStatic, nil
	}

	if liveErr != nil {
		return models.TierUnavailable, fmt.Errorf("%w: %s: %w", apperrors.ErrSchemaUnavailable, what, liveErr)
	}
	return models.TierUnavailable, nil
}

func (s *catalogIntrospector) staticCatalog() (*datasource.DumpCatalog, error) {
	s.dumpOnce.Do(func() {
		s.dump, s.dumpErr = datasource.LoadDumpCatalog(s.opts.SchemaDump)
	})
	return s.dump, s.dumpErr
}

// loadTableColumns reads the columns of every table.
func loadTableColumns(ctx context.Context, reader datasource.CatalogReader) (*tableColumns, error) {
	tables, err := reader.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tc := &tableColumns{columns: make(map[string][]datasource.ColumnMetadata, len(tables))}
	for _, t := range tables {
		cols, err := reader.TableColumns(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("table %s columns: %w", t.Name, err)
		}
		tc.order = append(tc.order, t.Name)
		tc.columns[t.Name] = cols
	}
	return tc, nil
}

// cachedCatalog memoizes table metadata so one discovery run reads each
// table's columns once.
type cachedCatalog struct {
	datasource.CatalogReader

	mu      sync.Mutex
	tables  []datasource.TableMetadata
	columns map[string][]datasource.ColumnMetadata
}

func newCachedCatalog(reader datasource.CatalogReader) *cachedCatalog {
	return &cachedCatalog{
		CatalogReader: reader,
		columns:       make(map[string][]datasource.ColumnMetadata),
	}
}

func (c *cachedCatalog) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables != nil {
		return c.tables, nil
	}
	tables, err := c.CatalogReader.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []datasource.TableMetadata{}
	}
	c.tables = tables
	return tables, nil
}

func (c *cachedCatalog) TableColumns(ctx context.Context, table string) ([]datasource.ColumnMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cols, ok := c.columns[table]; ok {
		return cols, nil
	}
	cols, err := c.CatalogReader.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	c.columns[table] = cols
	return cols, nil
}
