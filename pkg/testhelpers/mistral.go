// Package testhelpers provides fixtures for testing ekaya-intake components.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// MistralSchema creates the subset of a Mistral database the engine touches.
// The DDL is accepted by both SQLite and Firebird.
var MistralSchema = []string{
	`CREATE TABLE USERS (
		ID INTEGER NOT NULL PRIMARY KEY,
		NAME VARCHAR(30),
		PASS VARCHAR(20),
		PASS_HASH VARCHAR(100),
		SALT VARCHAR(20)
	)`,
	`CREATE TABLE MATERIAL (
		MATERIALCODE INTEGER NOT NULL PRIMARY KEY,
		MATERIAL VARCHAR(60),
		MEASURE VARCHAR(10),
		LASTDELIVERYPRICE NUMERIC(15,4),
		VAT NUMERIC(9,2)
	)`,
	`CREATE TABLE BARCODE (
		CODE VARCHAR(30) NOT NULL,
		STORAGEMATERIALCODE INTEGER NOT NULL
	)`,
	`CREATE TABLE TEMPDELIVERY (
		ID INTEGER NOT NULL PRIMARY KEY,
		NOMER INTEGER,
		OBEKTID INTEGER,
		STORAGEID INTEGER,
		USERSID INTEGER,
		DTSAVE TIMESTAMP,
		DOCDATE DATE,
		DOCTYPEID INTEGER,
		TYPEDB SMALLINT,
		RAZCR CHAR(1),
		CHRFORCHECK CHAR(1),
		NOTE VARCHAR(200)
	)`,
	`CREATE TABLE TEMPDELIVERYSDR (
		ID INTEGER NOT NULL PRIMARY KEY,
		TEMPDELIVERYID INTEGER NOT NULL,
		NOMER INTEGER,
		OBEKTID INTEGER,
		CKLADID INTEGER,
		ARTNOMER INTEGER,
		QTY NUMERIC(15,3),
		EDPRICE NUMERIC(15,4),
		EDPRICEDDS NUMERIC(15,4),
		SUMA NUMERIC(15,4),
		SUMADDS NUMERIC(15,4),
		BARCODE VARCHAR(30),
		SALESPRICE NUMERIC(15,4)
	)`,
}

// Seeded operator credentials.
const (
	// AdminPassword is stored as "admin   " (CHAR-style padding).
	AdminLogin    = "ADMIN"
	AdminPassword = "admin"
	AdminID       = 1

	// IvanPassword is stored as an upper-case salted SHA-256 ("parola123" + "x9").
	IvanLogin    = "IVAN"
	IvanPassword = "parola123"
	IvanID       = 2

	// KasaPassword is stored as unsalted MD5.
	KasaLogin    = "KASA"
	KasaPassword = "kasa1"
	KasaID       = 3

	// SkladPassword is stored as unsalted SHA-1.
	SkladLogin    = "SKLAD"
	SkladPassword = "sklad"
	SkladID       = 4
)

// MistralSeed inserts operators, catalog items and barcodes.
// Items 1002 and 1003 share the words "Мляко Верея" so a name search is ambiguous.
var MistralSeed = []string{
	`INSERT INTO USERS (ID, NAME, PASS, PASS_HASH, SALT) VALUES (1, 'ADMIN', 'admin   ', NULL, NULL)`,
	`INSERT INTO USERS (ID, NAME, PASS, PASS_HASH, SALT) VALUES (2, 'IVAN', NULL, 'F87F23F56F0151B34863D45A603E4B643CF995F69BAAC6E1E9D26709EE2603FD', 'x9')`,
	`INSERT INTO USERS (ID, NAME, PASS, PASS_HASH, SALT) VALUES (3, 'KASA', NULL, '6649254c316612bb3738855de6c9cb00', NULL)`,
	`INSERT INTO USERS (ID, NAME, PASS, PASS_HASH, SALT) VALUES (4, 'SKLAD', NULL, 'b515ad8aa921003c1baf8e3ce7ff88273c4d4d91', NULL)`,

	`INSERT INTO MATERIAL (MATERIALCODE, MATERIAL, MEASURE, LASTDELIVERYPRICE, VAT) VALUES (1001, 'Хляб Добруджа 650г', 'бр', 1.2000, 20)`,
	`INSERT INTO MATERIAL (MATERIALCODE, MATERIAL, MEASURE, LASTDELIVERYPRICE, VAT) VALUES (1002, 'Мляко Верея 3% 1л', 'бр', 2.3500, 20)`,
	`INSERT INTO MATERIAL (MATERIALCODE, MATERIAL, MEASURE, LASTDELIVERYPRICE, VAT) VALUES (1003, 'Мляко Верея 2% 1л', 'бр', 2.2500, 20)`,
	`INSERT INTO MATERIAL (MATERIALCODE, MATERIAL, MEASURE, LASTDELIVERYPRICE, VAT) VALUES (1004, 'Кафе Лаваца Оро 250г', 'бр', 8.9000, 20)`,
	`INSERT INTO MATERIAL (MATERIALCODE, MATERIAL, MEASURE, LASTDELIVERYPRICE, VAT) VALUES (1005, 'Сирене краве Маджаров 1кг', 'кг', 11.5000, 9)`,

	`INSERT INTO BARCODE (CODE, STORAGEMATERIALCODE) VALUES ('3800123456789', 1001)`,
	`INSERT INTO BARCODE (CODE, STORAGEMATERIALCODE) VALUES ('3800000000022', 1002)`,
	`INSERT INTO BARCODE (CODE, STORAGEMATERIALCODE) VALUES ('3800000000039', 1003)`,
}

// Seeded catalog values.
const (
	BreadCode     = "1001"
	BreadBarcode  = "3800123456789"
	MilkFullCode  = "1002"
	MilkLightCode = "1003"
	CoffeeCode    = "1004"
	CheeseCode    = "1005"
)

// MistralFixture is a SQLite database with the Mistral schema and seed data.
type MistralFixture struct {
	DB   *sql.DB
	Path string
}

// NewMistralFixture creates a seeded SQLite database in a temp directory.
// The handle holds a single connection, like a session connection.
func NewMistralFixture(t *testing.T) *MistralFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mistral.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open fixture database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := ApplyMistralSchema(context.Background(), db); err != nil {
		t.Fatalf("apply fixture schema: %v", err)
	}

	return &MistralFixture{DB: db, Path: path}
}

// ApplyMistralSchema runs MistralSchema and MistralSeed on db.
func ApplyMistralSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range MistralSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	for _, stmt := range MistralSeed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

// Count returns the number of rows in table.
func (f *MistralFixture) Count(t *testing.T, table string) int {
	t.Helper()

	var n int
	if err := f.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Exec runs a statement against the fixture, failing the test on error.
func (f *MistralFixture) Exec(t *testing.T, query string, args ...any) {
	t.Helper()

	if _, err := f.DB.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
