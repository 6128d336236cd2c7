package models

import "time"

// DiagnosticReport is the outcome of a support-driven login run.
// It is produced even when authentication fails.
type DiagnosticReport struct {
	Profile    string               `json:"profile"`
	ForceTable bool                 `json:"force_table"`
	Mechanism  LoginMechanism       `json:"mechanism"`
	Tier       DiscoveryTier        `json:"tier"`
	Degraded   bool                 `json:"degraded"`
	Procedure  *ProcedureDescriptor `json:"procedure,omitempty"`
	Table      *TableDescriptor     `json:"table,omitempty"`
	Catalog    *CatalogDescriptor   `json:"catalog,omitempty"`
	Trace      []LoginAttempt       `json:"trace"`
	Identity   *OperatorIdentity    `json:"identity,omitempty"`
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	Duration   time.Duration        `json:"duration_ns"`

	// Inventory of what discovery saw, for support.
	Procedures  []ProcedureInfo `json:"procedures"`
	UserColumns []ColumnInfo    `json:"user_columns"`
	Counts      *CatalogCounts  `json:"counts,omitempty"`
	Samples     []SampleLookup  `json:"samples"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// ProcedureInfo is one candidate login routine, in ranking order.
type ProcedureInfo struct {
	Name       string          `json:"name"`
	Selectable bool            `json:"selectable"`
	Parameters []ParameterInfo `json:"parameters"`
	Error      string          `json:"error,omitempty"`
}

// ParameterInfo is one routine parameter. Direction is "in" or "out".
type ParameterInfo struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	DataType  string `json:"data_type"`
}

// ColumnInfo is one column of the discovered user table.
type ColumnInfo struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Length     int    `json:"length,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// CatalogCounts holds row counts of the catalog tables. Barcodes is nil when
// no barcode table was discovered.
type CatalogCounts struct {
	Materials int64  `json:"materials"`
	Barcodes  *int64 `json:"barcodes,omitempty"`
}

// SampleLookup resolves one value read from the catalog through a single
// lookup, showing whether that lookup works against this database.
type SampleLookup struct {
	Lookup     ResolutionStage `json:"lookup"`
	Input      string          `json:"input"`
	Kind       ResolutionKind  `json:"kind,omitempty"`
	Stage      ResolutionStage `json:"stage,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	ItemName   string          `json:"item_name,omitempty"`
	Candidates int             `json:"candidates,omitempty"`
	Error      string          `json:"error,omitempty"`
}
