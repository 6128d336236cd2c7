package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/metrics"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

const (
	DefaultMaxCandidates      = 3
	DefaultNameMinScore       = 0.45
	DefaultNamePrefilterLimit = 50

	// identifierLookupLimit bounds barcode and code lookups; duplicates beyond
	// it are never shown anyway.
	identifierLookupLimit = 50
)

// ResolverOptions tunes line item resolution.
type ResolverOptions struct {
	MaxCandidates      int
	NameMinScore       float64
	NamePrefilterLimit int
}

func (o ResolverOptions) withDefaults() ResolverOptions {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.NameMinScore <= 0 {
		o.NameMinScore = DefaultNameMinScore
	}
	if o.NamePrefilterLimit <= 0 {
		o.NamePrefilterLimit = DefaultNamePrefilterLimit
	}
	return o
}

// ItemResolver maps parsed line items to catalog records: barcode, then code,
// then fuzzy name, then the profile mapping. It never picks among several
// candidates.
type ItemResolver interface {
	// Resolve resolves one item on the connection. maxCandidates <= 0 uses the
	// configured default.
	Resolve(ctx context.Context, conn datasource.Connection, catalog *models.CatalogDescriptor, item models.LineItem, maxCandidates int) (*models.ResolutionResult, error)

	// ResolveIn resolves one item through q, typically an open transaction.
	ResolveIn(ctx context.Context, q datasource.Querier, dialect datasource.Dialect, catalog *models.CatalogDescriptor, item models.LineItem, maxCandidates int) (*models.ResolutionResult, error)

	// ResolveBatch resolves items in order and counts the outcomes.
	ResolveBatch(ctx context.Context, conn datasource.Connection, catalog *models.CatalogDescriptor, items []models.LineItem, maxCandidates int) ([]*models.ResolutionResult, models.ResolutionStats, error)
}

type itemResolver struct {
	opts    ResolverOptions
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewItemResolver creates a resolver. m may be nil.
func NewItemResolver(opts ResolverOptions, m *metrics.Metrics, logger *zap.Logger) ItemResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &itemResolver{
		opts:    opts.withDefaults(),
		metrics: m,
		logger:  logger.Named("resolver"),
	}
}

var _ ItemResolver = (*itemResolver)(nil)

func (s *itemResolver) Resolve(ctx context.Context, conn datasource.Connection, catalog *models.CatalogDescriptor, item models.LineItem, maxCandidates int) (*models.ResolutionResult, error) {
	return s.ResolveIn(ctx, conn.DB(), conn.Dialect(), catalog, item, maxCandidates)
}

func (s *itemResolver) ResolveBatch(ctx context.Context, conn datasource.Connection, catalog *models.CatalogDescriptor, items []models.LineItem, maxCandidates int) ([]*models.ResolutionResult, models.ResolutionStats, error) {
	var stats models.ResolutionStats
	results := make([]*models.ResolutionResult, 0, len(items))
	for i, item := range items {
		result, err := s.Resolve(ctx, conn, catalog, item, maxCandidates)
		if err != nil {
			return nil, stats, fmt.Errorf("resolve item %d: %w", i, err)
		}
		results = append(results, result)
		stats.Add(result)
	}

	s.logger.Info("Resolved line items",
		zap.Int("total", stats.Total),
		zap.Int("matched", stats.Matched),
		zap.Int("mapped", stats.Mapped),
		zap.Int("candidates", stats.Candidates),
		zap.Int("unresolved", stats.Unresolved),
	)
	return results, stats, nil
}

func (s *itemResolver) ResolveIn(ctx context.Context, q datasource.Querier, dialect datasource.Dialect, catalog *models.CatalogDescriptor, item models.LineItem, maxCandidates int) (*models.ResolutionResult, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog tables were not discovered", apperrors.ErrSchemaUnavailable)
	}
	if maxCandidates <= 0 {
		maxCandidates = s.opts.MaxCandidates
	}

	result, err := s.resolve(ctx, q, dialect, catalog, item, maxCandidates)
	if err != nil {
		return nil, err
	}
	s.metrics.Resolution(string(result.Kind), string(result.Stage))
	return result, nil
}

func (s *itemResolver) resolve(ctx context.Context, q datasource.Querier, d datasource.Dialect, c *models.CatalogDescriptor, item models.LineItem, maxCandidates int) (*models.ResolutionResult, error) {
	if barcode := strings.TrimSpace(item.Barcode); barcode != "" && c.HasBarcodes() {
		items, err := s.lookupBarcode(ctx, q, d, c, barcode)
		if err != nil {
			return nil, fmt.Errorf("barcode lookup: %w", err)
		}
		if len(items) > 0 {
			return identifierResult(models.StageBarcode, items, maxCandidates), nil
		}
	}

	if code := strings.TrimSpace(item.Code); code != "" && c.CodeColumn != "" {
		items, err := s.lookupCode(ctx, q, d, c, code)
		if err != nil {
			return nil, fmt.Errorf("code lookup: %w", err)
		}
		if len(items) > 0 {
			return identifierResult(models.StageCode, items, maxCandidates), nil
		}
	}

	if c.NameColumn != "" && strings.TrimSpace(item.Description) != "" {
		result, err := s.lookupName(ctx, q, d, c, item.Description, maxCandidates)
		if err != nil {
			return nil, fmt.Errorf("name lookup: %w", err)
		}
		if result != nil {
			return result, nil
		}
	}

	if code, key, ok := mappedCode(c.Mapping, item); ok {
		items, err := s.lookupMapped(ctx, q, d, c, code)
		if err != nil {
			return nil, fmt.Errorf("mapping lookup: %w", err)
		}
		if len(items) > 0 {
			return identifierResult(models.StageMapping, items, maxCandidates), nil
		}
		s.logger.Warn("Mapped item code not in catalog",
			zap.String("key", key),
			zap.String("code", code),
		)
	}

	return models.Unresolved(), nil
}

// mappedCode looks the item up by barcode, then code, then normalized
// description. Description keys are normalized the same way as names.
func mappedCode(m models.ItemMapping, item models.LineItem) (code, key string, ok bool) {
	if len(m) == 0 {
		return "", "", false
	}
	for _, k := range []string{strings.TrimSpace(item.Barcode), strings.TrimSpace(item.Code)} {
		if k == "" {
			continue
		}
		if code, ok := m[k]; ok {
			return strings.TrimSpace(code), k, true
		}
	}

	desc := normalizeName(item.Description)
	if desc == "" {
		return "", "", false
	}
	for k, code := range m {
		if normalizeName(k) == desc {
			return strings.TrimSpace(code), k, true
		}
	}
	return "", "", false
}

// lookupMapped finds a mapped item by its code column, or by id when the
// catalog has no code column.
func (s *itemResolver) lookupMapped(ctx context.Context, q datasource.Querier, d datasource.Dialect, c *models.CatalogDescriptor, code string) ([]models.CatalogItem, error) {
	if c.CodeColumn != "" {
		return s.lookupCode(ctx, q, d, c, code)
	}
	sel := newItemSelect(d, c)
	query := fmt.Sprintf("SELECT %s FROM %s M WHERE TRIM(CAST(M.%s AS VARCHAR(64))) = ?",
		sel.list(),
		d.QuoteIdentifier(c.ItemsTable),
		d.QuoteIdentifier(c.IDColumn),
	)
	return s.queryItems(ctx, q, d.Rebind(d.Limit(query, identifierLookupLimit)), sel.fields, code)
}

// identifierResult turns barcode or code hits into a result. Several hits are
// candidates, never an automatic pick.
func identifierResult(stage models.ResolutionStage, items []models.CatalogItem, maxCandidates int) *models.ResolutionResult {
	if len(items) == 1 {
		item := items[0]
		return &models.ResolutionResult{Kind: models.ResolutionMatched, Stage: stage, Item: &item}
	}
	if len(items) > maxCandidates {
		items = items[:maxCandidates]
	}
	candidates := make([]models.Candidate, len(items))
	for i, item := range items {
		candidates[i] = models.Candidate{Item: item, Score: 1}
	}
	return &models.ResolutionResult{Kind: models.ResolutionCandidates, Stage: stage, Candidates: candidates}
}

func (s *itemResolver) lookupBarcode(ctx context.Context, q datasource.Querier, d datasource.Dialect, c *models.CatalogDescriptor, barcode string) ([]models.CatalogItem, error) {
	sel := newItemSelect(d, c)
	sel.add("B."+d.QuoteIdentifier(c.BarcodeColumn), fieldBarcode)

	key := c.IDColumn
	if c.BarcodeItemKeyCode {
		key = c.CodeColumn
	}
	query := fmt.Sprintf("SELECT %s FROM %s M JOIN %s B ON B.%s = M.%s WHERE TRIM(CAST(B.%s AS VARCHAR(64))) = ?",
		sel.list(),
		d.QuoteIdentifier(c.ItemsTable),
		d.QuoteIdentifier(c.BarcodeTable),
		d.QuoteIdentifier(c.BarcodeItemColumn),
		d.QuoteIdentifier(key),
		d.QuoteIdentifier(c.BarcodeColumn),
	)
	return s.queryItems(ctx, q, d.Rebind(d.Limit(query, identifierLookupLimit)), sel.fields, barcode)
}

// lookupCode compares upper-cased codes. The argument is upper-cased in Go:
// Firebird cannot type a parameter inside UPPER().
func (s *itemResolver) lookupCode(ctx context.Context, q datasource.Querier, d datasource.Dialect, c *models.CatalogDescriptor, code string) ([]models.CatalogItem, error) {
	sel := newItemSelect(d, c)
	query := fmt.Sprintf("SELECT %s FROM %s M WHERE UPPER(TRIM(CAST(M.%s AS VARCHAR(64)))) = ?",
		sel.list(),
		d.QuoteIdentifier(c.ItemsTable),
		d.QuoteIdentifier(c.CodeColumn),
	)
	return s.queryItems(ctx, q, d.Rebind(d.Limit(query, identifierLookupLimit)), sel.fields, strings.ToUpper(code))
}

// lookupName prefilters by the longest token in SQL and ranks the rows in Go.
// A nil result means nothing scored high enough.
func (s *itemResolver) lookupName(ctx context.Context, q datasource.Querier, d datasource.Dialect, c *models.CatalogDescriptor, description string, maxCandidates int) (*models.ResolutionResult, error) {
	token := searchToken(normalizeName(description))
	if token == "" {
		return nil, nil
	}
	token = truncateRunes(token, c.NameMaxLength)

	sel := newItemSelect(d, c)
	query := fmt.Sprintf("SELECT %s FROM %s M WHERE %s",
		sel.list(),
		d.QuoteIdentifier(c.ItemsTable),
		d.ContainsPredicate("M."+d.QuoteIdentifier(c.NameColumn)),
	)
	rows, err := s.queryItems(ctx, q, d.Rebind(d.Limit(query, s.opts.NamePrefilterLimit)), sel.fields, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	ranked := rankNames(description, names, s.opts.NameMinScore)

	s.logger.Debug("Name search",
		zap.String("token", token),
		zap.Int("prefiltered", len(rows)),
		zap.Int("ranked", len(ranked)),
	)

	switch {
	case len(ranked) == 0:
		return nil, nil
	case len(ranked) == 1:
		item := rows[ranked[0].index]
		return &models.ResolutionResult{Kind: models.ResolutionMatched, Stage: models.StageName, Item: &item}, nil
	}

	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	candidates := make([]models.Candidate, len(ranked))
	for i, r := range ranked {
		candidates[i] = models.Candidate{Item: rows[r.index], Score: r.score}
	}
	return &models.ResolutionResult{Kind: models.ResolutionCandidates, Stage: models.StageName, Candidates: candidates}, nil
}

func (s *itemResolver) queryItems(ctx context.Context, q datasource.Querier, query string, fields []itemField, arg any) ([]models.CatalogItem, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows, fields)
}

// itemField says which CatalogItem field a selected column fills.
type itemField int

const (
	fieldID itemField = iota
	fieldCode
	fieldName
	fieldUnit
	fieldPrice
	fieldVAT
	fieldBarcode
)

// itemSelect is the select list of an items query. Only discovered columns
// are selected.
type itemSelect struct {
	exprs  []string
	fields []itemField
}

func newItemSelect(d datasource.Dialect, c *models.CatalogDescriptor) *itemSelect {
	sel := &itemSelect{}
	col := func(name string, f itemField) {
		if name != "" {
			sel.add("M."+d.QuoteIdentifier(name), f)
		}
	}
	col(c.IDColumn, fieldID)
	col(c.CodeColumn, fieldCode)
	col(c.NameColumn, fieldName)
	col(c.UnitColumn, fieldUnit)
	col(c.PriceColumn, fieldPrice)
	col(c.VATColumn, fieldVAT)
	return sel
}

func (sel *itemSelect) add(expr string, f itemField) {
	sel.exprs = append(sel.exprs, expr)
	sel.fields = append(sel.fields, f)
}

func (sel *itemSelect) list() string {
	return strings.Join(sel.exprs, ", ")
}

// scanItems reads catalog rows, dropping repeated ids.
func scanItems(rows *sql.Rows, fields []itemField) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	seen := make(map[string]bool)
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		var item models.CatalogItem
		for i, f := range fields {
			switch f {
			case fieldID:
				item.ID = stringValue(values[i])
			case fieldCode:
				item.Code = stringValue(values[i])
			case fieldName:
				item.Name = stringValue(values[i])
			case fieldUnit:
				item.UnitOfMeasure = stringValue(values[i])
			case fieldPrice:
				item.Price = decimalValue(values[i])
			case fieldVAT:
				item.VAT = decimalValue(values[i])
			case fieldBarcode:
				item.Barcode = stringValue(values[i])
			}
		}
		if item.ID == "" {
			item.ID = item.Code
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	return items, rows.Err()
}
