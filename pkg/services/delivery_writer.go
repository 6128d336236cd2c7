package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/metrics"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// DefaultDeliveryNote is written to the header NOTE column.
const DefaultDeliveryNote = "ekaya-intake import"

// priceScale is the number of decimal places kept for prices and sums.
const priceScale = 4

// Column candidates of the open-delivery tables, in preference order.
var (
	headerLocationColumns = []string{"OBEKTID", "LOCATIONID"}

	detailHeaderColumns        = []string{"TEMPDELIVERYID", "TEMPDELIVERY_ID", "HEADERID"}
	detailLocationColumns      = []string{"OBEKTID", "LOCATIONID"}
	detailStorageColumns       = []string{"CKLADID", "STORAGEID"}
	detailItemCodeColumns      = []string{"ARTNOMER", "MATERIALCODE", "ITEMCODE"}
	detailQuantityColumns      = []string{"QTY", "KOL", "KOLICHESTVO"}
	detailPriceColumns         = []string{"EDPRICE", "PRICE", "DELIVERYPRICE"}
	detailPriceVATColumns      = []string{"EDPRICEDDS", "PRICEVAT"}
	detailSumColumns           = []string{"SUMA", "SUMPRICE"}
	detailSumVATColumns        = []string{"SUMADDS", "SUMPRICEVAT"}
	detailSalePriceColumns     = []string{"SALESPRICE"}
	detailSalePriceVATColumns  = []string{"SALESPRICEDDS"}
	detailSaleSumColumns       = []string{"SUMASALESPRICE"}
	detailSaleSumVATColumns    = []string{"SUMASALESPRICEDDS"}
)

// Chooser picks one of several candidates for a line item. It is called
// synchronously while the delivery transaction is open. Returning a nil item
// and nil error declines the choice.
type Chooser interface {
	Choose(ctx context.Context, index int, item models.LineItem, candidates []models.Candidate) (*models.CatalogItem, error)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(ctx context.Context, index int, item models.LineItem, candidates []models.Candidate) (*models.CatalogItem, error)

func (f ChooserFunc) Choose(ctx context.Context, index int, item models.LineItem, candidates []models.Candidate) (*models.CatalogItem, error) {
	return f(ctx, index, item, candidates)
}

// DeliveryOptions configures the writer.
type DeliveryOptions struct {
	// DryRun runs the whole push but logs inserts instead of executing them
	// and rolls the transaction back.
	DryRun bool

	// ChoiceTimeout bounds each Chooser call. Zero waits indefinitely.
	ChoiceTimeout time.Duration

	// MaxCandidates is passed to the resolver.
	MaxCandidates int
}

// PushOptions carries the per-profile values of one push.
type PushOptions struct {
	LocationID int64
	StorageID  int64
	DocTypeID  int64
	Note       string

	// Mapping is the profile's fallback item mapping.
	Mapping models.ItemMapping
}

// DeliveryWriter writes resolved line items as one open delivery.
type DeliveryWriter interface {
	// PushDelivery resolves items and writes the header and detail rows in a
	// single transaction. On failure the transaction is rolled back and the
	// summary, if any, reports status rolled_back. Insert failures are
	// *apperrors.WriteFailedError.
	PushDelivery(ctx context.Context, conn datasource.Connection, profile *models.SchemaProfile, operatorID string, items []models.LineItem, chooser Chooser, opts PushOptions) (*models.DeliverySummary, error)
}

type deliveryWriter struct {
	resolver ItemResolver
	opts     DeliveryOptions
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDeliveryWriter creates a writer. m may be nil.
func NewDeliveryWriter(resolver ItemResolver, opts DeliveryOptions, m *metrics.Metrics, logger *zap.Logger) DeliveryWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &deliveryWriter{
		resolver: resolver,
		opts:     opts,
		metrics:  m,
		logger:   logger.Named("delivery"),
	}
}

var _ DeliveryWriter = (*deliveryWriter)(nil)

// queuedLine is a resolved line waiting for its detail insert.
type queuedLine struct {
	index  int
	item   models.LineItem
	match  models.CatalogItem
	manual bool
}

func (s *deliveryWriter) PushDelivery(ctx context.Context, conn datasource.Connection, profile *models.SchemaProfile, operatorID string, items []models.LineItem, chooser Chooser, opts PushOptions) (*models.DeliverySummary, error) {
	if profile == nil || profile.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog tables were not discovered", apperrors.ErrSchemaUnavailable)
	}
	if profile.Delivery == nil {
		return nil, fmt.Errorf("%w: delivery tables were not discovered", apperrors.ErrSchemaUnavailable)
	}
	desc := profile.Delivery
	if findColumn(desc.HeaderColumns, "ID") == "" {
		return nil, fmt.Errorf("%w: delivery header %s has no ID column", apperrors.ErrSchemaUnavailable, desc.HeaderTable)
	}

	tx, err := conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delivery transaction: %w", err)
	}

	w := &deliveryTx{
		tx:      tx,
		dialect: conn.Dialect(),
		desc:    desc,
		dryRun:  s.opts.DryRun,
		logger:  s.logger,
		header:  &idAllocator{table: desc.HeaderTable, generator: desc.HeaderGenerator},
		detail:  &idAllocator{table: desc.DetailTable, generator: desc.DetailGenerator},
	}

	summary := &models.DeliverySummary{
		DryRun: s.opts.DryRun,
		Total:  len(items),
		Status: models.DeliveryOpen,
	}

	delivery, err := s.push(ctx, w, profile.Catalog.WithMapping(opts.Mapping), operatorID, items, chooser, opts, summary)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Delivery rollback failed",
				zap.String("error", logging.SanitizeError(rbErr)),
			)
		}
		s.rolledBack(delivery, summary, err)
		return summary, err
	}

	if s.opts.DryRun {
		if err := tx.Rollback(); err != nil {
			err = fmt.Errorf("roll back dry run: %w", err)
			s.rolledBack(delivery, summary, err)
			return summary, err
		}
	} else if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit delivery: %w", err)
		s.rolledBack(delivery, summary, err)
		return summary, err
	}

	if err := delivery.Transition(models.DeliveryCommitted); err != nil {
		return summary, err
	}
	summary.Status = delivery.Status
	s.metrics.Delivery(string(summary.Status), summary.DryRun, summary.AutoResolved, summary.ManuallyChosen, summary.Unresolved)

	status := string(summary.Status)
	if summary.DryRun {
		status = "dry-run"
	}
	s.logger.Info("Delivery pushed",
		zap.Int64("delivery_id", summary.DeliveryID),
		zap.String("operator_id", operatorID),
		zap.String("status", status),
		zap.Int("total", summary.Total),
		zap.Int("auto_resolved", summary.AutoResolved),
		zap.Int("manually_chosen", summary.ManuallyChosen),
		zap.Int("unresolved", summary.Unresolved),
	)
	return summary, nil
}

// rolledBack marks a failed push: the delivery and summary move to
// rolled_back, the outcome is counted and logged.
func (s *deliveryWriter) rolledBack(delivery *models.Delivery, summary *models.DeliverySummary, err error) {
	if delivery != nil {
		if tErr := delivery.Transition(models.DeliveryRolledBack); tErr != nil {
			s.logger.Warn("Delivery status transition failed",
				zap.Int64("delivery_id", delivery.ID),
				zap.Error(tErr),
			)
		}
	}
	summary.Status = models.DeliveryRolledBack
	s.metrics.Delivery(string(summary.Status), summary.DryRun, 0, 0, 0)

	fields := []zap.Field{
		zap.Int64("delivery_id", summary.DeliveryID),
		zap.Int("total", summary.Total),
		zap.Bool("dry_run", summary.DryRun),
		zap.String("error", logging.SanitizeError(err)),
	}
	var writeErr *apperrors.WriteFailedError
	if errors.As(err, &writeErr) {
		fields = append(fields, zap.Int("index", writeErr.Index))
	}
	s.logger.Error("Delivery rolled back", fields...)
}

// push runs everything inside the transaction. The delivery is returned as
// soon as its header id is known so the caller can roll it back.
func (s *deliveryWriter) push(ctx context.Context, w *deliveryTx, catalog *models.CatalogDescriptor, operatorID string, items []models.LineItem, chooser Chooser, opts PushOptions, summary *models.DeliverySummary) (*models.Delivery, error) {
	headerID, err := w.header.next(ctx, w)
	if err != nil {
		return nil, &apperrors.WriteFailedError{Index: -1, Err: fmt.Errorf("allocate delivery id: %w", err)}
	}
	delivery := models.NewDelivery(headerID, operatorID)
	summary.DeliveryID = headerID

	docNumber, err := w.documentNumber(ctx, opts.LocationID)
	if err != nil {
		return delivery, &apperrors.WriteFailedError{Index: -1, Err: fmt.Errorf("allocate document number: %w", err)}
	}
	if err := w.insertHeader(ctx, headerID, docNumber, operatorID, opts); err != nil {
		return delivery, &apperrors.WriteFailedError{Index: -1, Err: err}
	}

	var queue []queuedLine
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return delivery, err
		}

		result, err := s.resolver.ResolveIn(ctx, w.tx, w.dialect, catalog, item, s.opts.MaxCandidates)
		if err != nil {
			return delivery, fmt.Errorf("resolve item %d: %w", i, err)
		}

		switch result.Kind {
		case models.ResolutionMatched:
			queue = append(queue, queuedLine{index: i, item: item, match: *result.Item})
			summary.AutoResolved++
		case models.ResolutionCandidates:
			chosen, err := s.choose(ctx, chooser, i, item, result.Candidates)
			if err != nil {
				return delivery, err
			}
			if chosen == nil {
				summary.UnresolvedItems = append(summary.UnresolvedItems, models.UnresolvedLine{Index: i, Item: item})
				continue
			}
			queue = append(queue, queuedLine{index: i, item: item, match: *chosen, manual: true})
			summary.ManuallyChosen++
		default:
			summary.UnresolvedItems = append(summary.UnresolvedItems, models.UnresolvedLine{Index: i, Item: item})
		}
	}
	summary.Unresolved = len(summary.UnresolvedItems)

	for _, line := range queue {
		if err := ctx.Err(); err != nil {
			return delivery, err
		}
		if err := w.insertDetail(ctx, headerID, docNumber, line, opts); err != nil {
			return delivery, &apperrors.WriteFailedError{Index: line.index, Err: err}
		}
	}
	return delivery, nil
}

// choose asks the chooser under the configured timeout. A timed-out choice is
// a decline; cancellation of ctx itself is an error.
func (s *deliveryWriter) choose(ctx context.Context, chooser Chooser, index int, item models.LineItem, candidates []models.Candidate) (*models.CatalogItem, error) {
	if chooser == nil {
		return nil, nil
	}

	choiceCtx := ctx
	if s.opts.ChoiceTimeout > 0 {
		var cancel context.CancelFunc
		choiceCtx, cancel = context.WithTimeout(ctx, s.opts.ChoiceTimeout)
		defer cancel()
	}

	chosen, err := chooser.Choose(choiceCtx, index, item, candidates)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && choiceCtx.Err() != nil {
			s.logger.Warn("Candidate choice timed out",
				zap.Int("index", index),
				zap.Duration("timeout", s.opts.ChoiceTimeout),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("choose item %d: %w", index, err)
	}
	return chosen, nil
}

// deliveryTx issues the statements of one push inside its transaction.
type deliveryTx struct {
	tx      *sql.Tx
	dialect datasource.Dialect
	desc    *models.DeliveryDescriptor
	dryRun  bool
	logger  *zap.Logger
	header  *idAllocator
	detail  *idAllocator
}

// idAllocator hands out row ids: the generator when there is one (never in a
// dry run, generators ignore rollback), else MAX(ID)+1 read once and then
// counted up locally.
type idAllocator struct {
	table     string
	generator string
	nextLocal int64
}

func (a *idAllocator) next(ctx context.Context, w *deliveryTx) (int64, error) {
	if a.generator != "" && !w.dryRun {
		id, err := w.dialect.NextValue(ctx, w.tx, a.generator)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, datasource.ErrUnsupported) {
			return 0, err
		}
	}

	if a.nextLocal == 0 {
		query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s",
			w.dialect.QuoteIdentifier("ID"), w.dialect.QuoteIdentifier(a.table))
		var first int64
		if err := w.tx.QueryRowContext(ctx, query).Scan(&first); err != nil {
			return 0, fmt.Errorf("max id of %s: %w", a.table, err)
		}
		a.nextLocal = first
	}
	id := a.nextLocal
	a.nextLocal++
	return id, nil
}

// documentNumber is MAX(NOMER)+1 over the header table, per location when the
// header has a location column. Zero means the header has no NOMER column.
func (w *deliveryTx) documentNumber(ctx context.Context, locationID int64) (int64, error) {
	nomer := findColumn(w.desc.HeaderColumns, "NOMER")
	if nomer == "" {
		return 0, nil
	}
	d := w.dialect
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", d.QuoteIdentifier(nomer), d.QuoteIdentifier(w.desc.HeaderTable))
	var args []any
	if loc := findColumn(w.desc.HeaderColumns, headerLocationColumns...); loc != "" && locationID != 0 {
		query += fmt.Sprintf(" WHERE %s = ?", d.QuoteIdentifier(loc))
		args = append(args, locationID)
	}

	var n int64
	if err := w.tx.QueryRowContext(ctx, d.Rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (w *deliveryTx) insertHeader(ctx context.Context, id, docNumber int64, operatorID string, opts PushOptions) error {
	cols := w.desc.HeaderColumns
	row := &rowValues{}
	now := time.Now()

	row.set(findColumn(cols, "ID"), id)
	if opts.LocationID != 0 {
		row.set(findColumn(cols, "OBEKTID"), opts.LocationID)
		row.set(findColumn(cols, "LOCATIONID"), opts.LocationID)
	}
	if opts.StorageID != 0 {
		row.set(findColumn(cols, "STORAGEID"), opts.StorageID)
	}
	if docNumber != 0 {
		row.set(findColumn(cols, "NOMER"), docNumber)
	}
	row.set(findColumn(cols, "USERSID"), keyValue(operatorID))
	row.set(findColumn(cols, "DTSAVE"), now)
	row.set(findColumn(cols, "DOCDATE"), time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()))
	if opts.DocTypeID != 0 {
		row.set(findColumn(cols, "DOCTYPEID"), opts.DocTypeID)
	}
	row.set(findColumn(cols, "TYPEDB"), 0)
	row.set(findColumn(cols, "RAZCR"), "O")
	row.set(findColumn(cols, "CHRFORCHECK"), "0")
	note := opts.Note
	if note == "" {
		note = DefaultDeliveryNote
	}
	row.set(findColumn(cols, "NOTE"), note)

	return w.insert(ctx, w.desc.HeaderTable, row)
}

func (w *deliveryTx) insertDetail(ctx context.Context, headerID, docNumber int64, line queuedLine, opts PushOptions) error {
	cols := w.desc.DetailColumns
	row := &rowValues{}

	if idCol := findColumn(cols, "ID"); idCol != "" {
		id, err := w.detail.next(ctx, w)
		if err != nil {
			return fmt.Errorf("allocate detail id: %w", err)
		}
		row.set(idCol, id)
	}
	row.set(findColumn(cols, detailHeaderColumns...), headerID)
	if docNumber != 0 {
		row.set(findColumn(cols, "NOMER"), docNumber)
	}
	if opts.LocationID != 0 {
		row.set(findColumn(cols, detailLocationColumns...), opts.LocationID)
	}
	if opts.StorageID != 0 {
		row.set(findColumn(cols, detailStorageColumns...), opts.StorageID)
	}

	code := line.match.Code
	if code == "" {
		code = line.match.ID
	}
	row.set(findColumn(cols, detailItemCodeColumns...), keyValue(code))

	price := line.item.UnitPrice
	if price.IsZero() && line.match.Price != nil {
		price = *line.match.Price
	}
	p := priceLine(price, line.item.Quantity, line.match.VAT)
	row.set(findColumn(cols, detailQuantityColumns...), line.item.Quantity)
	row.set(findColumn(cols, detailPriceColumns...), p.Price)
	row.set(findColumn(cols, detailPriceVATColumns...), p.PriceVAT)
	row.set(findColumn(cols, detailSumColumns...), p.Sum)
	row.set(findColumn(cols, detailSumVATColumns...), p.SumVAT)

	barcode := strings.TrimSpace(line.item.Barcode)
	if barcode == "" {
		barcode = line.match.Barcode
	}
	if barcode != "" {
		row.set(findColumn(cols, "BARCODE"), barcode)
	}

	if line.item.SalePrice != nil {
		sp := priceLine(*line.item.SalePrice, line.item.Quantity, line.match.VAT)
		row.set(findColumn(cols, detailSalePriceColumns...), sp.Price)
		row.set(findColumn(cols, detailSalePriceVATColumns...), sp.PriceVAT)
		row.set(findColumn(cols, detailSaleSumColumns...), sp.Sum)
		row.set(findColumn(cols, detailSaleSumVATColumns...), sp.SumVAT)
	}

	return w.insert(ctx, w.desc.DetailTable, row)
}

// insert executes the statement, or only logs it in a dry run.
func (w *deliveryTx) insert(ctx context.Context, table string, row *rowValues) error {
	d := w.dialect
	quoted := make([]string, len(row.cols))
	for i, c := range row.cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(row.cols)), ", "),
	)

	if w.dryRun {
		w.logger.Info("Dry run: insert not executed",
			zap.String("table", table),
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Strings("args", logging.FormatArgs(row.vals)),
		)
		return nil
	}

	if _, err := w.tx.ExecContext(ctx, d.Rebind(query), row.vals...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// rowValues is an ordered column/value list. Empty column names are ignored
// so callers can pass findColumn results directly.
type rowValues struct {
	cols []string
	vals []any
}

func (r *rowValues) set(col string, v any) {
	if col == "" {
		return
	}
	for _, c := range r.cols {
		if strings.EqualFold(c, col) {
			return
		}
	}
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
}

// findColumn returns the table's spelling of the first candidate it has.
func findColumn(columns []string, candidates ...string) string {
	for _, want := range candidates {
		for _, c := range columns {
			if strings.EqualFold(c, want) {
				return c
			}
		}
	}
	return ""
}

// LinePrices are the money values of one detail row.
type LinePrices struct {
	Price    decimal.Decimal
	PriceVAT decimal.Decimal
	Sum      decimal.Decimal
	SumVAT   decimal.Decimal
}

// priceLine computes the VAT-inclusive price and the sums, rounded half-up to
// four places. Without a VAT rate the VAT-inclusive values equal the net ones.
func priceLine(price, qty decimal.Decimal, vat *decimal.Decimal) LinePrices {
	p := LinePrices{Price: price}
	p.Sum = price.Mul(qty).Round(priceScale)
	if vat == nil || vat.IsZero() {
		p.PriceVAT = price
		p.SumVAT = p.Sum
		return p
	}
	factor := decimal.NewFromInt(1).Add(vat.Div(decimal.NewFromInt(100)))
	p.PriceVAT = price.Mul(factor).Round(priceScale)
	p.SumVAT = p.PriceVAT.Mul(qty).Round(priceScale)
	return p
}
