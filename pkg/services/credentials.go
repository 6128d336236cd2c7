package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/metrics"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Names recognized in login routine signatures and result sets.
var (
	loginParamPatterns    = []string{"LOGIN", "USERNAME", "USER_NAME", "CODE", "OPERATOR", "USER"}
	passwordParamPatterns = []string{"PASS", "PASSWORD", "PAROLA", "PWD"}
	resultFlagColumns     = []string{"RESULT", "OK", "SUCCESS", "VALID", "ALLOW", "ISVALID", "AUTHORIZED", "CHRRESULT", "CHRESULT"}
	resultIDColumns       = []string{"ID", "USER_ID", "USERSID", "OP_ID", "OPERATOR_ID"}
	affirmativeValues     = map[string]bool{
		"1": true, "TRUE": true, "T": true, "YES": true, "Y": true,
		"OK": true, "ДА": true, "VALID": true, "SUCCESS": true,
	}
)

// PasswordOverrides resolves profile-scoped password-only logins.
// *config.Profile implements it.
type PasswordOverrides interface {
	LookupPasswordOnly(password string) (config.PasswordOnlyEntry, bool)
}

// AuthOptions tunes one authentication call.
type AuthOptions struct {
	// ForceTable uses the table strategies even when a login routine exists.
	// Diagnostics only.
	ForceTable bool

	// Overrides holds the password-only map of the active profile.
	Overrides PasswordOverrides
}

// CredentialValidator performs operator login through the discovered mechanism.
type CredentialValidator interface {
	// Authenticate returns the operator identity and the ordered trace of
	// every attempt. On failure the error is an *apperrors.AuthenticationFailedError
	// carrying the same trace.
	Authenticate(ctx context.Context, conn datasource.Connection, profile *models.SchemaProfile, login, password string, opts AuthOptions) (*models.OperatorIdentity, *models.LoginTrace, error)
}

type credentialValidator struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCredentialValidator creates a validator. m may be nil.
func NewCredentialValidator(m *metrics.Metrics, logger *zap.Logger) CredentialValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &credentialValidator{
		metrics: m,
		logger:  logger.Named("credentials"),
	}
}

var _ CredentialValidator = (*credentialValidator)(nil)

// errAttemptAborted stops the sequence after a database error.
var errAttemptAborted = errors.New("login attempt aborted")

func (s *credentialValidator) Authenticate(ctx context.Context, conn datasource.Connection, profile *models.SchemaProfile, login, password string, opts AuthOptions) (*models.OperatorIdentity, *models.LoginTrace, error) {
	trace := models.NewLoginTrace()
	login = strings.TrimSpace(login)

	mechanism := models.LoginMechanismUnknown
	if profile != nil {
		mechanism = profile.Mechanism
	}
	if opts.ForceTable {
		mechanism = models.LoginMechanismTable
	}

	var identity *models.OperatorIdentity
	var err error

	switch mechanism {
	case models.LoginMechanismProcedure:
		identity = s.callProcedure(ctx, conn, profile.Procedure, login, password, trace)
		return s.finish(mechanism, login, identity, trace, nil)

	case models.LoginMechanismTable:
		var table *models.TableDescriptor
		if profile != nil {
			table = profile.Table
		}
		if table == nil {
			s.record(trace, models.StrategyPlainTable, models.OutcomeNoMatch, map[string]any{
				"reason": "table descriptor missing",
			})
		} else {
			identity, err = s.loginTable(ctx, conn, table, login, password, trace)
			if identity != nil || err != nil {
				return s.finish(mechanism, login, identity, trace, err)
			}
		}
	}

	identity = s.loginPasswordOnly(opts.Overrides, login, password, trace)
	return s.finish(mechanism, login, identity, trace, nil)
}

func (s *credentialValidator) finish(mechanism models.LoginMechanism, login string, identity *models.OperatorIdentity, trace *models.LoginTrace, cause error) (*models.OperatorIdentity, *models.LoginTrace, error) {
	s.metrics.Login(string(mechanism), identity != nil)

	if identity != nil {
		s.logger.Info("Operator authenticated",
			zap.String("login", login),
			zap.String("user_id", identity.UserID),
			zap.String("mechanism", string(mechanism)),
			zap.String("strategy", identity.Source),
			zap.Int("attempts", trace.Len()),
		)
		return identity, trace, nil
	}

	fields := []zap.Field{
		zap.String("login", login),
		zap.String("mechanism", string(mechanism)),
		zap.Int("attempts", trace.Len()),
	}
	if cause != nil {
		fields = append(fields, zap.String("error", logging.SanitizeError(cause)))
	}
	s.logger.Warn("Authentication failed", fields...)
	return nil, trace, &apperrors.AuthenticationFailedError{Trace: trace}
}

func (s *credentialValidator) record(trace *models.LoginTrace, strategy string, outcome models.AttemptOutcome, detail map[string]any) {
	trace.Append(strategy, outcome, detail)
	s.metrics.LoginAttempt(strategy, string(outcome))
}

// callProcedure makes the single routine attempt of the procedure mechanism.
func (s *credentialValidator) callProcedure(ctx context.Context, conn datasource.Connection, proc *models.ProcedureDescriptor, login, password string, trace *models.LoginTrace) *models.OperatorIdentity {
	if proc == nil {
		s.record(trace, models.StrategyProcedure, models.OutcomeError, map[string]any{
			"reason": "procedure descriptor missing",
		})
		return nil
	}

	detail := map[string]any{
		"procedure":  proc.Name,
		"selectable": proc.Selectable,
		"login":      login,
	}

	args := procedureArgs(proc.Inputs, login, trimPassword(password))
	query, err := conn.Dialect().ProcedureCall(proc.Name, len(args), proc.Selectable)
	if err != nil {
		detail["error"] = err.Error()
		s.record(trace, models.StrategyProcedure, models.OutcomeError, detail)
		return nil
	}

	rows, err := conn.DB().QueryContext(ctx, conn.Dialect().Rebind(query), args...)
	if err != nil {
		detail["error"] = logging.SanitizeError(err)
		s.record(trace, models.StrategyProcedure, models.OutcomeError, detail)
		return nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		detail["error"] = logging.SanitizeError(err)
		s.record(trace, models.StrategyProcedure, models.OutcomeError, detail)
		return nil
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			detail["error"] = logging.SanitizeError(err)
			s.record(trace, models.StrategyProcedure, models.OutcomeError, detail)
			return nil
		}
		detail["reason"] = "no rows returned"
		s.record(trace, models.StrategyProcedure, models.OutcomeNoMatch, detail)
		return nil
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		detail["error"] = logging.SanitizeError(err)
		s.record(trace, models.StrategyProcedure, models.OutcomeError, detail)
		return nil
	}

	if idx := columnIndex(columns, resultFlagColumns); idx >= 0 {
		flag := stringValue(values[idx])
		detail["result"] = flag
		if !isAffirmative(values[idx]) {
			detail["reason"] = "result flag is not affirmative"
			s.record(trace, models.StrategyProcedure, models.OutcomeNoMatch, detail)
			return nil
		}
	}

	idx := columnIndex(columns, resultIDColumns)
	if idx < 0 {
		idx = 0
	}
	userID := stringValue(values[idx])
	detail["user_id"] = userID
	s.record(trace, models.StrategyProcedure, models.OutcomeSuccess, detail)

	return &models.OperatorIdentity{
		UserID: userID,
		Login:  login,
		Source: models.StrategyProcedure,
	}
}

// procedureArgs binds login and password to routine inputs by name. Unmatched
// inputs get NULL; when no name matches, the first two inputs take login then
// password.
func procedureArgs(inputs []models.FieldDescriptor, login, password string) []any {
	args := make([]any, len(inputs))
	matched := false
	for i, in := range inputs {
		name := strings.ToUpper(in.Name)
		switch {
		case containsAny(name, passwordParamPatterns):
			args[i] = password
			matched = true
		case containsAny(name, loginParamPatterns):
			args[i] = login
			matched = true
		}
	}
	if !matched {
		if len(args) > 0 {
			args[0] = login
		}
		if len(args) > 1 {
			args[1] = password
		}
	}
	return args
}

// columnIndex returns the first column whose name equals one of names, in
// names order, or -1.
func columnIndex(columns []string, names []string) int {
	for _, name := range names {
		for i, col := range columns {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}

func isAffirmative(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return affirmativeValues[strings.ToUpper(stringValue(v))]
}

// loginTable runs the table strategies in order. It returns errAttemptAborted
// after a database error.
func (s *credentialValidator) loginTable(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, login, password string, trace *models.LoginTrace) (*models.OperatorIdentity, error) {
	if table.PasswordColumn != "" {
		identity, err := s.selectByPassword(ctx, conn, table, login, password, trace)
		if identity != nil || err != nil {
			return identity, err
		}
	}
	if table.HashColumn != "" {
		return s.selectByHash(ctx, conn, table, login, password, trace)
	}
	return nil, nil
}

// credentialRow is one user row fetched by login or password.
type credentialRow struct {
	id     string
	login  string
	stored any
	salt   string
}

// errAmbiguousPassword is returned when a password-only table lookup matches
// more than one operator.
var errAmbiguousPassword = errors.New("password matches several operators")

// fetchByLogin matches the login column case-insensitively after trimming.
func (s *credentialValidator) fetchByLogin(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, secretColumn, login string) ([]credentialRow, error) {
	d := conn.Dialect()
	where := d.Upper("TRIM("+d.QuoteIdentifier(table.LoginColumn)+")") + " = ?"
	return s.fetchRows(ctx, conn, table, secretColumn, where, strings.ToUpper(login))
}

// fetchByPassword matches the plain password column alone.
func (s *credentialValidator) fetchByPassword(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, password string) ([]credentialRow, error) {
	d := conn.Dialect()
	where := "TRIM(" + d.QuoteIdentifier(table.PasswordColumn) + ") = ?"
	return s.fetchRows(ctx, conn, table, table.PasswordColumn, where, password)
}

func (s *credentialValidator) fetchRows(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, secretColumn, where string, arg any) ([]credentialRow, error) {
	d := conn.Dialect()
	idColumn := table.IDColumn
	if idColumn == "" {
		idColumn = table.LoginColumn
	}
	cols := []string{d.QuoteIdentifier(idColumn), d.QuoteIdentifier(table.LoginColumn), d.QuoteIdentifier(secretColumn)}
	if table.SaltColumn != "" {
		cols = append(cols, d.QuoteIdentifier(table.SaltColumn))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(cols, ", "),
		d.QuoteIdentifier(table.Table),
		where,
	)

	rows, err := conn.DB().QueryContext(ctx, d.Rebind(query), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credentialRow
	for rows.Next() {
		var id, login, stored, salt any
		dest := []any{&id, &login, &stored}
		if table.SaltColumn != "" {
			dest = append(dest, &salt)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		saltText, _ := rawString(salt)
		out = append(out, credentialRow{
			id:     stringValue(id),
			login:  strings.TrimSpace(stringValue(login)),
			stored: stored,
			salt:   strings.TrimRight(saltText, " \t\r\n\x00"),
		})
	}
	return out, rows.Err()
}

// operatorLogin prefers the login stored in the user row.
func operatorLogin(row credentialRow, supplied string) string {
	if row.login != "" {
		return row.login
	}
	return supplied
}

// selectByPassword compares the stored plain password after trimming padding.
// The comparison is exact and case-sensitive. An empty login selects by the
// password alone and fails when more than one operator shares it.
func (s *credentialValidator) selectByPassword(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, login, password string, trace *models.LoginTrace) (*models.OperatorIdentity, error) {
	detail := map[string]any{
		"table":        table.Table,
		"login_column": table.LoginColumn,
		"login":        login,
	}

	supplied := trimPassword(password)
	var (
		rows []credentialRow
		err  error
	)
	if login == "" {
		if strings.TrimSpace(supplied) == "" {
			detail["reason"] = "login and password are empty"
			s.record(trace, models.StrategyPlainTable, models.OutcomeNoMatch, detail)
			return nil, nil
		}
		detail["mode"] = "password_only"
		rows, err = s.fetchByPassword(ctx, conn, table, supplied)
	} else {
		rows, err = s.fetchByLogin(ctx, conn, table, table.PasswordColumn, login)
	}
	if err != nil {
		detail["error"] = logging.SanitizeError(err)
		s.record(trace, models.StrategyPlainTable, models.OutcomeError, detail)
		return nil, fmt.Errorf("%w: %w", errAttemptAborted, err)
	}
	detail["rows"] = len(rows)

	var matches []credentialRow
	for _, row := range rows {
		stored, ok := rawString(row.stored)
		if ok && trimPassword(stored) == supplied {
			matches = append(matches, row)
		}
	}

	switch {
	case len(matches) == 0:
		s.record(trace, models.StrategyPlainTable, models.OutcomeNoMatch, detail)
		return nil, nil
	case login == "" && len(matches) > 1:
		detail["matches"] = len(matches)
		detail["error"] = errAmbiguousPassword.Error()
		s.record(trace, models.StrategyPlainTable, models.OutcomeError, detail)
		return nil, fmt.Errorf("%w: %w", errAttemptAborted, errAmbiguousPassword)
	}

	row := matches[0]
	detail["user_id"] = row.id
	s.record(trace, models.StrategyPlainTable, models.OutcomeSuccess, detail)
	return &models.OperatorIdentity{UserID: row.id, Login: operatorLogin(row, login), Source: models.StrategyPlainTable}, nil
}

// selectByHash hashes the supplied password with each row's scheme and salt.
func (s *credentialValidator) selectByHash(ctx context.Context, conn datasource.Connection, table *models.TableDescriptor, login, password string, trace *models.LoginTrace) (*models.OperatorIdentity, error) {
	detail := map[string]any{
		"table":       table.Table,
		"hash_column": table.HashColumn,
		"login":       login,
	}
	if table.HashScheme != "" {
		detail["scheme"] = table.HashScheme
	}

	rows, err := s.fetchByLogin(ctx, conn, table, table.HashColumn, login)
	if err != nil {
		detail["error"] = logging.SanitizeError(err)
		s.record(trace, models.StrategyHashTable, models.OutcomeError, detail)
		return nil, fmt.Errorf("%w: %w", errAttemptAborted, err)
	}
	detail["rows"] = len(rows)

	for _, row := range rows {
		stored := stringValue(row.stored)
		if stored == "" {
			continue
		}
		scheme := table.HashScheme
		if scheme == "" {
			scheme = InferHashScheme(stored)
		}
		ok, err := VerifyPassword(scheme, stored, password, row.salt)
		if err != nil {
			s.logger.Debug("Stored hash could not be verified",
				zap.String("table", table.Table),
				zap.String("scheme", scheme),
				zap.Error(err),
			)
			continue
		}
		if ok {
			detail["scheme"] = scheme
			detail["user_id"] = row.id
			s.record(trace, models.StrategyHashTable, models.OutcomeSuccess, detail)
			return &models.OperatorIdentity{UserID: row.id, Login: operatorLogin(row, login), Source: models.StrategyHashTable}, nil
		}
	}

	s.record(trace, models.StrategyHashTable, models.OutcomeNoMatch, detail)
	return nil, nil
}

// loginPasswordOnly consults the profile's password-only map. Nothing is
// recorded when the profile has no overrides.
func (s *credentialValidator) loginPasswordOnly(overrides PasswordOverrides, login, password string, trace *models.LoginTrace) *models.OperatorIdentity {
	if overrides == nil {
		return nil
	}
	if h, ok := overrides.(interface{ HasPasswordOnly() bool }); ok && !h.HasPasswordOnly() {
		return nil
	}

	entry, ok := overrides.LookupPasswordOnly(password)
	if !ok {
		s.record(trace, models.StrategyPasswordOnly, models.OutcomeNoMatch, nil)
		return nil
	}

	username := entry.Username
	if username == "" {
		username = login
	}
	s.record(trace, models.StrategyPasswordOnly, models.OutcomeSuccess, map[string]any{
		"username": username,
		"user_id":  entry.ID,
	})
	return &models.OperatorIdentity{UserID: entry.ID, Login: username, Source: models.StrategyPasswordOnly}
}
