package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes     = 30
	DefaultCleanupInterval          = 1 * time.Minute
	DefaultMaxConnectionsPerProfile = 20
	DefaultConnectTimeout           = 10 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes               int
	MaxConnectionsPerProfile int
	ConnectTimeout           time.Duration
}

// ConnectionManager owns one database handle per operator session with
// TTL-based expiry and automatic cleanup.
type ConnectionManager struct {
	mu                       sync.RWMutex
	connections              map[string]*ManagedConnection // key: "{profile}:{sessionKey}"
	ttl                      time.Duration
	maxConnectionsPerProfile int
	connectTimeout           time.Duration
	stopped                  bool
	stopChan                 chan struct{}
	logger                   *zap.Logger
}

// ManagedConnection is a session's database handle with its last use time.
type ManagedConnection struct {
	db       *sql.DB
	driver   string
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnectionsPerProfile <= 0 {
		cfg.MaxConnectionsPerProfile = DefaultMaxConnectionsPerProfile
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		connections:              make(map[string]*ManagedConnection),
		ttl:                      time.Duration(cfg.TTLMinutes) * time.Minute,
		maxConnectionsPerProfile: cfg.MaxConnectionsPerProfile,
		connectTimeout:           cfg.ConnectTimeout,
		stopChan:                 make(chan struct{}),
		logger:                   logger,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

func connectionKey(profile, sessionKey string) string {
	return profile + ":" + sessionKey
}

// profileOf extracts the profile from a key. Profile names may contain ':'
// only if session keys do not, so the last separator is used.
func profileOf(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[:i]
	}
	return key
}

// countConnectionsForProfile counts active connections for a profile.
// Caller must hold m.mu lock.
func (m *ConnectionManager) countConnectionsForProfile(profile string) int {
	count := 0
	for key := range m.connections {
		if profileOf(key) == profile {
			count++
		}
	}
	return count
}

// GetOrOpen returns the session's database handle, opening it on first use.
// A handle that fails its health check is closed and reopened.
func (m *ConnectionManager) GetOrOpen(ctx context.Context, profile, sessionKey, driver, dsn string) (*sql.DB, error) {
	key := connectionKey(profile, sessionKey)

	m.mu.RLock()
	managed, exists := m.connections[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()
		healthCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		err := managed.db.PingContext(healthCtx)
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, reopening",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.open(ctx, key, profile, driver, dsn)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.db, nil
	}

	return m.open(ctx, key, profile, driver, dsn)
}

// open creates a handle with retry logic for transient network failures.
// Caller must NOT hold any locks.
func (m *ConnectionManager) open(ctx context.Context, key, profile, driver, dsn string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.db, nil
	}

	count := m.countConnectionsForProfile(profile)
	if count >= m.maxConnectionsPerProfile {
		m.logger.Warn("profile reached max connections limit",
			zap.String("profile", profile),
			zap.Int("current", count),
			zap.Int("max", m.maxConnectionsPerProfile),
		)
		return nil, fmt.Errorf("profile %s has reached maximum connections limit (%d)", profile, m.maxConnectionsPerProfile)
	}

	db, err := OpenDB(ctx, driver, dsn, m.connectTimeout)
	if err != nil {
		m.logger.Error("failed to open connection",
			zap.String("key", key),
			zap.String("driver", driver),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}
	db.SetConnMaxIdleTime(m.ttl)

	m.connections[key] = &ManagedConnection{
		db:       db,
		driver:   driver,
		lastUsed: time.Now(),
	}

	m.logger.Info("opened session connection",
		zap.String("key", key),
		zap.String("driver", driver),
		zap.Int("profileTotalConnections", count+1),
	)

	return db, nil
}

// OpenDB opens and pings a single-connection handle, retrying transient failures.
func OpenDB(ctx context.Context, driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %s", driver, logging.SanitizeError(err))
	}
	return db, nil
}

// Release closes and forgets the session's handle.
func (m *ConnectionManager) Release(profile, sessionKey string) {
	m.removeConnection(connectionKey(profile, sessionKey))
}

// removeConnection removes a connection and closes it.
// Caller must NOT hold m.mu lock.
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if managed.db != nil {
			managed.db.Close()
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection",
			zap.String("key", key),
		)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expiredKeys []string

	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("key", key),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, key := range expiredKeys {
		if managed := m.connections[key]; managed != nil && managed.db != nil {
			managed.db.Close()
		}
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.db != nil {
			managed.db.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:         len(m.connections),
		MaxConnectionsPerProfile: m.maxConnectionsPerProfile,
		TTLMinutes:               int(m.ttl.Minutes()),
		ConnectionsByProfile:     make(map[string]int),
		ConnectionsByDriver:      make(map[string]int),
	}

	for key, managed := range m.connections {
		stats.ConnectionsByProfile[profileOf(key)]++
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		driver := managed.driver
		managed.mu.Unlock()

		stats.ConnectionsByDriver[driver]++
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections         int            `json:"total_connections"`
	MaxConnectionsPerProfile int            `json:"max_connections_per_profile"`
	TTLMinutes               int            `json:"ttl_minutes"`
	ConnectionsByProfile     map[string]int `json:"connections_by_profile"`
	ConnectionsByDriver      map[string]int `json:"connections_by_driver"`
	OldestIdleSeconds        int            `json:"oldest_idle_seconds"`
}
