package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/nakagami/firebirdsql" // Firebird driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// FirebirdTestImage is the Firebird server image used for integration tests.
const FirebirdTestImage = "jacobalberty/firebird:v4.0"

// FirebirdIntegrationEnv enables Firebird integration tests when set to "1".
const FirebirdIntegrationEnv = "EKAYA_FIREBIRD_IT"

const (
	firebirdPassword = "masterkey"
	firebirdDatabase = "/firebird/data/mistral.fdb"
)

// LoginProcedure is a selectable login routine installed in the Firebird fixture.
// RESULT is 0 when the credentials do not match.
const LoginProcedure = `CREATE PROCEDURE CHECKLOGIN (LOGIN VARCHAR(30), PASS VARCHAR(20))
RETURNS (ID INTEGER, RESULT SMALLINT)
AS
BEGIN
  ID = NULL;
  RESULT = 0;
  SELECT FIRST 1 ID FROM USERS WHERE TRIM(NAME) = :LOGIN AND TRIM(PASS) = :PASS INTO :ID;
  IF (ID IS NOT NULL) THEN RESULT = 1;
  SUSPEND;
END`

// FirebirdGenerators are created in the Firebird fixture for delivery ids.
var FirebirdGenerators = []string{
	`CREATE GENERATOR GEN_TEMPDELIVERY_ID`,
	`CREATE GENERATOR GEN_TEMPDELIVERYSDR_ID`,
}

// FirebirdDB holds a shared Firebird container seeded with the Mistral fixture.
type FirebirdDB struct {
	Container testcontainers.Container
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
	DB        *sql.DB
}

// Config returns the adapter configuration map for the container.
func (f *FirebirdDB) Config() map[string]any {
	return map[string]any{
		"host":     f.Host,
		"port":     f.Port,
		"database": f.Database,
		"user":     f.User,
		"password": f.Password,
		"charset":  "UTF8",
	}
}

var (
	sharedFirebirdDB     *FirebirdDB
	sharedFirebirdDBOnce sync.Once
	sharedFirebirdDBErr  error
)

// GetFirebirdDB returns a shared Firebird container for integration tests.
// The container is created once and reused across all tests in the run.
// Skipped in short mode and unless EKAYA_FIREBIRD_IT=1.
func GetFirebirdDB(t *testing.T) *FirebirdDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	if os.Getenv(FirebirdIntegrationEnv) != "1" {
		t.Skipf("Skipping Firebird integration test (set %s=1)", FirebirdIntegrationEnv)
	}

	sharedFirebirdDBOnce.Do(func() {
		sharedFirebirdDB, sharedFirebirdDBErr = setupFirebirdDB()
	})

	if sharedFirebirdDBErr != nil {
		t.Fatalf("Failed to setup Firebird database: %v", sharedFirebirdDBErr)
	}

	return sharedFirebirdDB
}

func setupFirebirdDB() (*FirebirdDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        FirebirdTestImage,
		ExposedPorts: []string{"3050/tcp"},
		Env: map[string]string{
			"ISC_PASSWORD":                      firebirdPassword,
			"FIREBIRD_DATABASE":                 "mistral.fdb",
			"FIREBIRD_DATABASE_DEFAULT_CHARSET": "UTF8",
		},
		WaitingFor: wait.ForListeningPort("3050/tcp").
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3050")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	fb := &FirebirdDB{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		Database:  firebirdDatabase,
		User:      "SYSDBA",
		Password:  firebirdPassword,
	}

	dsn := fmt.Sprintf("%s@%s:%d/%s?charset=UTF8",
		url.UserPassword(fb.User, fb.Password).String(), fb.Host, fb.Port, fb.Database)
	db, err := sql.Open("firebirdsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebird connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	// The server accepts connections a moment after the port opens.
	for i := 0; i < 20; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("firebird not ready: %w", err)
	}

	if err := ApplyMistralSchema(ctx, db); err != nil {
		return nil, err
	}
	for _, stmt := range append(FirebirdGenerators, LoginProcedure) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("firebird fixture: %w", err)
		}
	}

	fb.DB = db
	return fb, nil
}
