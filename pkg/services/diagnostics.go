package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// DiagnosticsService runs support-driven login checks. Failures are reported
// in the returned report, never as errors.
type DiagnosticsService interface {
	// RunDiagnostics discovers the schema on conn and attempts login.
	RunDiagnostics(ctx context.Context, conn datasource.Connection, profile *config.Profile, login, password string, forceTable bool) *models.DiagnosticReport

	// Run opens a private connection for profile, runs RunDiagnostics on it and
	// releases it.
	Run(ctx context.Context, profile *config.Profile, login, password string, forceTable bool) *models.DiagnosticReport
}

type diagnosticsService struct {
	factory   datasource.DatasourceAdapterFactory
	validator CredentialValidator
	resolver  ItemResolver
	logger    *zap.Logger
}

// NewDiagnosticsService creates a diagnostics runner. factory is only needed by Run.
func NewDiagnosticsService(factory datasource.DatasourceAdapterFactory, validator CredentialValidator, logger *zap.Logger) DiagnosticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("diagnostics")
	return &diagnosticsService{
		factory:   factory,
		validator: validator,
		resolver:  NewItemResolver(ResolverOptions{}, nil, logger),
		logger:    logger,
	}
}

var _ DiagnosticsService = (*diagnosticsService)(nil)

// IntrospectionOptionsFor returns the discovery settings of a profile.
func IntrospectionOptionsFor(profile *config.Profile) IntrospectionOptions {
	if profile == nil {
		return IntrospectionOptions{}
	}
	return IntrospectionOptions{SchemaDump: profile.SchemaDump, HashScheme: profile.HashScheme}
}

func newReport(profile *config.Profile, forceTable bool) *models.DiagnosticReport {
	report := &models.DiagnosticReport{
		ForceTable: forceTable,
		Mechanism:  models.LoginMechanismUnknown,
		Tier:       models.TierUnavailable,
		Degraded:   true,
		Trace:      []models.LoginAttempt{},
		StartedAt:  time.Now().UTC(),

		Procedures:  []models.ProcedureInfo{},
		UserColumns: []models.ColumnInfo{},
		Samples:     []models.SampleLookup{},
	}
	if profile != nil {
		report.Profile = profile.Name
	}
	return report
}

func (s *diagnosticsService) Run(ctx context.Context, profile *config.Profile, login, password string, forceTable bool) *models.DiagnosticReport {
	if profile == nil {
		report := newReport(nil, forceTable)
		report.Error = "no profile selected"
		return report
	}
	if s.factory == nil {
		report := newReport(profile, forceTable)
		report.Error = "no datasource factory configured"
		return report
	}

	sessionKey := "diag-" + uuid.NewString()
	conn, err := s.factory.Open(ctx, profile.Driver, profile.DatasourceConfig(), profile.Name, sessionKey)
	if err != nil {
		report := newReport(profile, forceTable)
		report.Error = fmt.Sprintf("connect: %s", logging.SanitizeError(err))
		report.Duration = time.Since(report.StartedAt)
		s.logger.Warn("Diagnostics connection failed",
			zap.String("profile", profile.Name),
			zap.String("error", report.Error),
		)
		return report
	}
	defer func() {
		s.factory.Release(profile.Name, sessionKey)
		if err := conn.Close(); err != nil {
			s.logger.Debug("Closing diagnostics connection failed", zap.Error(err))
		}
	}()

	return s.RunDiagnostics(ctx, conn, profile, login, password, forceTable)
}

func (s *diagnosticsService) RunDiagnostics(ctx context.Context, conn datasource.Connection, profile *config.Profile, login, password string, forceTable bool) *models.DiagnosticReport {
	report := newReport(profile, forceTable)
	defer func() {
		report.Duration = time.Since(report.StartedAt)
	}()

	schema, discoverErr := NewCatalogIntrospector(IntrospectionOptionsFor(profile), s.logger).Discover(ctx, conn)
	if schema != nil {
		report.Mechanism = schema.Mechanism
		report.Tier = schema.Tier
		report.Degraded = schema.Degraded
		report.Procedure = schema.Procedure
		report.Table = schema.Table
		report.Catalog = schema.Catalog
	}

	var overrides PasswordOverrides
	if profile != nil {
		overrides = profile
	}
	identity, trace, authErr := s.validator.Authenticate(ctx, conn, schema, login, password, AuthOptions{
		ForceTable: forceTable,
		Overrides:  overrides,
	})
	report.Trace = trace.Attempts()
	if report.Trace == nil {
		report.Trace = []models.LoginAttempt{}
	}
	report.Identity = identity
	report.Success = identity != nil

	switch {
	case authErr != nil:
		report.Error = logging.SanitizeError(authErr)
	case discoverErr != nil:
		report.Error = logging.SanitizeError(discoverErr)
	}

	s.inventory(ctx, conn, report)

	s.logger.Info("Diagnostics run",
		zap.String("profile", report.Profile),
		zap.String("login", strings.TrimSpace(login)),
		zap.Bool("force_table", forceTable),
		zap.String("mechanism", string(report.Mechanism)),
		zap.String("tier", string(report.Tier)),
		zap.Bool("success", report.Success),
		zap.Int("attempts", len(report.Trace)),
		zap.Int("procedures", len(report.Procedures)),
		zap.Int("samples", len(report.Samples)),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report
}

// inventory lists candidate routines, user table columns, catalog counts and
// sample lookups. Read failures become warnings.
func (s *diagnosticsService) inventory(ctx context.Context, conn datasource.Connection, report *models.DiagnosticReport) {
	warn := func(what string, err error) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", what, logging.SanitizeError(err)))
	}
	cat := conn.Catalog()

	procs, err := cat.ListProcedures(ctx)
	if err != nil {
		warn("list procedures", err)
	}
	for _, p := range rankLoginProcedures(procs) {
		info := models.ProcedureInfo{Name: p.Name, Selectable: p.Selectable, Parameters: []models.ParameterInfo{}}
		params, err := cat.ProcedureParameters(ctx, p.Name)
		if err != nil {
			info.Error = logging.SanitizeError(err)
		}
		for _, param := range params {
			direction := "in"
			if param.Direction == datasource.ParameterOut {
				direction = "out"
			}
			info.Parameters = append(info.Parameters, models.ParameterInfo{Name: param.Name, Direction: direction, DataType: param.DataType})
		}
		report.Procedures = append(report.Procedures, info)
	}

	if report.Table != nil {
		cols, err := cat.TableColumns(ctx, report.Table.Table)
		if err != nil {
			warn("user table columns", err)
		}
		for _, c := range cols {
			report.UserColumns = append(report.UserColumns, models.ColumnInfo{
				Name:       c.Name,
				DataType:   c.DataType,
				Length:     c.Length,
				PrimaryKey: c.IsPrimaryKey,
			})
		}
	}

	if report.Catalog == nil {
		return
	}
	c := report.Catalog
	d := conn.Dialect()
	q := conn.DB()

	counts := &models.CatalogCounts{}
	if counts.Materials, err = countRows(ctx, q, d, c.ItemsTable); err != nil {
		warn("count "+c.ItemsTable, err)
	}
	if c.HasBarcodes() {
		n, err := countRows(ctx, q, d, c.BarcodeTable)
		if err != nil {
			warn("count "+c.BarcodeTable, err)
		}
		counts.Barcodes = &n
	}
	report.Counts = counts

	samples := []struct {
		lookup models.ResolutionStage
		table  string
		column string
		item   func(string) models.LineItem
	}{
		{models.StageBarcode, c.BarcodeTable, c.BarcodeColumn, func(v string) models.LineItem { return models.LineItem{Barcode: v} }},
		{models.StageCode, c.ItemsTable, c.CodeColumn, func(v string) models.LineItem { return models.LineItem{Code: v} }},
		{models.StageName, c.ItemsTable, c.NameColumn, func(v string) models.LineItem { return models.LineItem{Description: v} }},
	}
	for _, sample := range samples {
		if sample.table == "" || sample.column == "" {
			continue
		}
		value, err := firstValue(ctx, q, d, sample.table, sample.column)
		if err != nil {
			warn(fmt.Sprintf("sample %s", sample.lookup), err)
			continue
		}
		if value == "" {
			continue
		}

		lookup := models.SampleLookup{Lookup: sample.lookup, Input: value}
		result, err := s.resolver.Resolve(ctx, conn, c, sample.item(value), 0)
		if err != nil {
			lookup.Error = logging.SanitizeError(err)
		} else {
			lookup.Kind = result.Kind
			lookup.Stage = result.Stage
			lookup.Candidates = len(result.Candidates)
			if result.Item != nil {
				lookup.ItemID = result.Item.ID
				lookup.ItemName = result.Item.Name
			}
		}
		report.Samples = append(report.Samples, lookup)
	}
}

func countRows(ctx context.Context, q datasource.Querier, d datasource.Dialect, table string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+d.QuoteIdentifier(table)).Scan(&n)
	return n, err
}

// firstValue returns one non-null value of column, or "" for an empty table.
func firstValue(ctx context.Context, q datasource.Querier, d datasource.Dialect, table, column string) (string, error) {
	col := d.QuoteIdentifier(column)
	query := d.Limit(fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL", col, d.QuoteIdentifier(table), col), 1)
	var v any
	err := q.QueryRowContext(ctx, d.Rebind(query)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return stringValue(v), err
}

// RenderReport writes a report as text tables.
func RenderReport(w io.Writer, r *models.DiagnosticReport) {
	result := "FAILED"
	if r.Success {
		result = "OK"
	}

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Login diagnostics")
	summary.AppendRow(table.Row{"Profile", r.Profile})
	summary.AppendRow(table.Row{"Mechanism", r.Mechanism})
	summary.AppendRow(table.Row{"Discovery", fmt.Sprintf("%s (degraded: %t)", r.Tier, r.Degraded)})
	summary.AppendRow(table.Row{"Force table", r.ForceTable})
	if r.Procedure != nil {
		summary.AppendRow(table.Row{"Procedure", describeProcedure(r.Procedure)})
	}
	if r.Table != nil {
		summary.AppendRow(table.Row{"User table", describeTable(r.Table)})
	}
	if r.Catalog != nil {
		summary.AppendRow(table.Row{"Items table", r.Catalog.ItemsTable})
	}
	summary.AppendRow(table.Row{"Result", result})
	if r.Identity != nil {
		summary.AppendRow(table.Row{"Operator", fmt.Sprintf("%s (id %s)", r.Identity.Login, r.Identity.UserID)})
	}
	if r.Error != "" {
		summary.AppendRow(table.Row{"Error", r.Error})
	}
	summary.AppendRow(table.Row{"Duration", r.Duration.Round(time.Millisecond)})
	summary.Render()

	trace := table.NewWriter()
	trace.SetOutputMirror(w)
	trace.AppendHeader(table.Row{"#", "Strategy", "Outcome", "Detail"})
	for i, a := range r.Trace {
		trace.AppendRow(table.Row{i + 1, a.Strategy, a.Outcome, formatDetail(a.Detail)})
	}
	if len(r.Trace) == 0 {
		trace.AppendRow(table.Row{"-", "no attempts", "", ""})
	}
	trace.Render()

	if len(r.Procedures) > 0 {
		procs := table.NewWriter()
		procs.SetOutputMirror(w)
		procs.SetTitle("Candidate login routines")
		procs.AppendHeader(table.Row{"Routine", "Selectable", "Parameters"})
		for _, p := range r.Procedures {
			params := describeParameters(p.Parameters)
			if p.Error != "" {
				params = "error: " + p.Error
			}
			procs.AppendRow(table.Row{p.Name, p.Selectable, params})
		}
		procs.Render()
	}

	if len(r.UserColumns) > 0 {
		cols := table.NewWriter()
		cols.SetOutputMirror(w)
		cols.SetTitle("User table columns")
		cols.AppendHeader(table.Row{"Column", "Type", "Length", "PK"})
		for _, c := range r.UserColumns {
			length := ""
			if c.Length > 0 {
				length = fmt.Sprint(c.Length)
			}
			pk := ""
			if c.PrimaryKey {
				pk = "yes"
			}
			cols.AppendRow(table.Row{c.Name, c.DataType, length, pk})
		}
		cols.Render()
	}

	if r.Counts != nil || len(r.Samples) > 0 {
		catalog := table.NewWriter()
		catalog.SetOutputMirror(w)
		catalog.SetTitle("Catalog")
		if r.Counts != nil {
			catalog.AppendRow(table.Row{"Materials", r.Counts.Materials, "", ""})
			if r.Counts.Barcodes != nil {
				catalog.AppendRow(table.Row{"Barcodes", *r.Counts.Barcodes, "", ""})
			}
			catalog.AppendSeparator()
		}
		for _, l := range r.Samples {
			catalog.AppendRow(table.Row{"Sample " + string(l.Lookup), l.Input, describeLookup(l), l.ItemName})
		}
		catalog.Render()
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func describeParameters(params []models.ParameterInfo) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%s %s %s", p.Direction, p.Name, p.DataType)
	}
	return strings.Join(parts, ", ")
}

func describeLookup(l models.SampleLookup) string {
	switch {
	case l.Error != "":
		return "error: " + l.Error
	case l.Kind == models.ResolutionCandidates:
		return fmt.Sprintf("%s via %s (%d)", l.Kind, l.Stage, l.Candidates)
	case l.Kind == models.ResolutionMatched:
		return fmt.Sprintf("%s via %s: %s", l.Kind, l.Stage, l.ItemID)
	default:
		return string(l.Kind)
	}
}

func describeProcedure(p *models.ProcedureDescriptor) string {
	inputs := make([]string, len(p.Inputs))
	for i, in := range p.Inputs {
		inputs[i] = in.Name
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(inputs, ", "))
}

func describeTable(t *models.TableDescriptor) string {
	parts := []string{"login=" + t.LoginColumn}
	if t.PasswordColumn != "" {
		parts = append(parts, "password="+t.PasswordColumn)
	}
	if t.HashColumn != "" {
		parts = append(parts, "hash="+t.HashColumn)
	}
	if t.SaltColumn != "" {
		parts = append(parts, "salt="+t.SaltColumn)
	}
	return fmt.Sprintf("%s [%s]", t.Table, strings.Join(parts, " "))
}

// formatDetail renders detail as sorted key=value pairs. Values are already
// masked by the trace.
func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, detail[k])
	}
	return strings.Join(parts, " ")
}
