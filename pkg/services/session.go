package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/metrics"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Session is one authenticated operator bound to one database connection.
// Schema, Trace and Identity are fixed at login. A session is not safe for
// concurrent use; callers hold Lock while using Conn.
type Session struct {
	ID        uuid.UUID
	Profile   *config.Profile
	Schema    *models.SchemaProfile
	Trace     *models.LoginTrace
	Identity  *models.OperatorIdentity
	Conn      datasource.Connection
	CreatedAt time.Time

	mu sync.Mutex
}

// Lock serializes use of the session connection.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// PushOptions returns the header values and item mapping configured for the
// session's profile.
func (s *Session) PushOptions() PushOptions {
	return PushOptions{
		LocationID: s.Profile.LocationID,
		StorageID:  s.Profile.StorageID,
		DocTypeID:  s.Profile.DocTypeID,
		Mapping:    s.Profile.Mapping,
	}
}

// SessionService opens, tracks and closes operator sessions.
type SessionService interface {
	// Login connects to the profile's database, discovers its schema and
	// authenticates the operator. Failed logins hold no connection and return
	// *apperrors.AuthenticationFailedError.
	Login(ctx context.Context, profileName, login, password string) (*Session, error)

	// Get returns an open session or apperrors.ErrNoSession.
	Get(id uuid.UUID) (*Session, error)

	// Logout closes the session and releases its connection.
	Logout(id uuid.UUID) error

	// Resolve resolves line items on the session connection.
	Resolve(ctx context.Context, sess *Session, items []models.LineItem, maxCandidates int) ([]*models.ResolutionResult, models.ResolutionStats, error)

	// PushDelivery writes a delivery as the session's operator.
	PushDelivery(ctx context.Context, sess *Session, items []models.LineItem, chooser Chooser) (*models.DeliverySummary, error)

	// Close logs out every session.
	Close() error
}

type sessionService struct {
	profiles  *config.ProfileRegistry
	factory   datasource.DatasourceAdapterFactory
	validator CredentialValidator
	resolver  ItemResolver
	writer    DeliveryWriter
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu            sync.RWMutex
	sessions      map[uuid.UUID]*Session
	introspectors map[string]CatalogIntrospector
}

// NewSessionService creates a session service. m may be nil.
func NewSessionService(
	profiles *config.ProfileRegistry,
	factory datasource.DatasourceAdapterFactory,
	validator CredentialValidator,
	resolver ItemResolver,
	writer DeliveryWriter,
	m *metrics.Metrics,
	logger *zap.Logger,
) SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionService{
		profiles:      profiles,
		factory:       factory,
		validator:     validator,
		resolver:      resolver,
		writer:        writer,
		metrics:       m,
		logger:        logger.Named("sessions"),
		sessions:      make(map[uuid.UUID]*Session),
		introspectors: make(map[string]CatalogIntrospector),
	}
}

var _ SessionService = (*sessionService)(nil)

// introspector returns the profile's introspector. One per profile keeps the
// static dump parsed once.
func (s *sessionService) introspector(profile *config.Profile) CatalogIntrospector {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.introspectors[profile.Name]; ok {
		return i
	}
	i := NewCatalogIntrospector(IntrospectionOptionsFor(profile), s.logger)
	s.introspectors[profile.Name] = i
	return i
}

func (s *sessionService) Login(ctx context.Context, profileName, login, password string) (*Session, error) {
	profile, err := s.profiles.Get(profileName)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	conn, err := s.factory.Open(ctx, profile.Driver, profile.DatasourceConfig(), profile.Name, id.String())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", profile.Name, err)
	}

	schema, err := s.introspector(profile).Discover(ctx, conn)
	if err != nil {
		s.logger.Warn("Schema discovery incomplete",
			zap.String("profile", profile.Name),
			zap.String("tier", string(schema.Tier)),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	s.metrics.Discovery(string(schema.Tier))

	identity, trace, err := s.validator.Authenticate(ctx, conn, schema, login, password, AuthOptions{Overrides: profile})
	if err != nil {
		s.release(profile.Name, id, conn)
		return nil, err
	}

	sess := &Session{
		ID:        id,
		Profile:   profile,
		Schema:    schema,
		Trace:     trace,
		Identity:  identity,
		Conn:      conn,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	s.logger.Info("Session opened",
		zap.String("session_id", id.String()),
		zap.String("profile", profile.Name),
		zap.String("user_id", identity.UserID),
		zap.String("mechanism", string(schema.Mechanism)),
		zap.String("tier", string(schema.Tier)),
		zap.Bool("degraded", schema.Degraded),
	)
	return sess, nil
}

func (s *sessionService) Get(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.ErrNoSession
	}
	return sess, nil
}

func (s *sessionService) Logout(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return apperrors.ErrNoSession
	}

	sess.Lock()
	defer sess.Unlock()
	s.release(sess.Profile.Name, id, sess.Conn)
	s.metrics.SessionClosed()

	s.logger.Info("Session closed",
		zap.String("session_id", id.String()),
		zap.String("profile", sess.Profile.Name),
	)
	return nil
}

func (s *sessionService) release(profile string, id uuid.UUID, conn datasource.Connection) {
	s.factory.Release(profile, id.String())
	if err := conn.Close(); err != nil {
		s.logger.Debug("Closing session connection failed",
			zap.String("session_id", id.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

func (s *sessionService) Resolve(ctx context.Context, sess *Session, items []models.LineItem, maxCandidates int) ([]*models.ResolutionResult, models.ResolutionStats, error) {
	catalog := sess.Schema.Catalog.WithMapping(sess.Profile.Mapping)
	return s.resolver.ResolveBatch(ctx, sess.Conn, catalog, items, maxCandidates)
}

func (s *sessionService) PushDelivery(ctx context.Context, sess *Session, items []models.LineItem, chooser Chooser) (*models.DeliverySummary, error) {
	return s.writer.PushDelivery(ctx, sess.Conn, sess.Schema, sess.Identity.UserID, items, chooser, sess.PushOptions())
}

func (s *sessionService) Close() error {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := s.Logout(id); err != nil && !errors.Is(err, apperrors.ErrNoSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
