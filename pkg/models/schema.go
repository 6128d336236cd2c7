package models

import (
	"strings"
	"time"
)

// LoginMechanism is the way operator login is implemented by the target database.
type LoginMechanism string

const (
	LoginMechanismProcedure LoginMechanism = "procedure"
	LoginMechanismTable     LoginMechanism = "table"
	LoginMechanismUnknown   LoginMechanism = "unknown"
)

// DiscoveryTier records which source a SchemaProfile was built from.
type DiscoveryTier string

const (
	TierLive        DiscoveryTier = "live"
	TierStatic      DiscoveryTier = "static"
	TierUnavailable DiscoveryTier = "unavailable"
)

// tierRank orders tiers from strongest to weakest.
var tierRank = map[DiscoveryTier]int{
	TierLive:        0,
	TierStatic:      1,
	TierUnavailable: 2,
}

// WeakerTier returns whichever of a and b ranks lower.
func WeakerTier(a, b DiscoveryTier) DiscoveryTier {
	if tierRank[b] > tierRank[a] {
		return b
	}
	return a
}

// FieldDescriptor names a routine parameter or result column with its SQL type.
type FieldDescriptor struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// ProcedureDescriptor describes a discovered login routine.
// Inputs are in call order.
type ProcedureDescriptor struct {
	Name       string            `json:"name"`
	Inputs     []FieldDescriptor `json:"inputs"`
	Outputs    []FieldDescriptor `json:"outputs"`
	Selectable bool              `json:"selectable"`
}

// TableDescriptor describes a user table usable for login.
type TableDescriptor struct {
	Table          string `json:"table"`
	LoginColumn    string `json:"login_column"`
	PasswordColumn string `json:"password_column,omitempty"`
	HashColumn     string `json:"hash_column,omitempty"`
	SaltColumn     string `json:"salt_column,omitempty"`
	IDColumn       string `json:"id_column,omitempty"`
	HashScheme     string `json:"hash_scheme,omitempty"` // empty means inferred per stored value
}

// CatalogDescriptor locates the materials and barcode tables.
type CatalogDescriptor struct {
	ItemsTable         string `json:"items_table"`
	IDColumn           string `json:"id_column"`
	CodeColumn         string `json:"code_column,omitempty"`
	NameColumn         string `json:"name_column,omitempty"`
	NameMaxLength      int    `json:"name_max_length,omitempty"`
	UnitColumn         string `json:"unit_column,omitempty"`
	PriceColumn        string `json:"price_column,omitempty"`
	VATColumn          string `json:"vat_column,omitempty"`
	BarcodeTable       string `json:"barcode_table,omitempty"`
	BarcodeColumn      string `json:"barcode_column,omitempty"`
	BarcodeItemColumn  string `json:"barcode_item_column,omitempty"`
	BarcodeItemKeyCode bool   `json:"barcode_item_key_code,omitempty"` // FK points at the code column, not the id

	// Mapping is the profile's fallback table; it is not part of discovery.
	Mapping ItemMapping `json:"-"`
}

// WithMapping returns a copy of c carrying m. A nil c stays nil.
func (c *CatalogDescriptor) WithMapping(m ItemMapping) *CatalogDescriptor {
	if c == nil {
		return nil
	}
	out := *c
	out.Mapping = m
	return &out
}

// HasBarcodes reports whether barcode lookups are possible.
func (c *CatalogDescriptor) HasBarcodes() bool {
	return c != nil && c.BarcodeTable != "" && c.BarcodeColumn != "" && c.BarcodeItemColumn != ""
}

// DeliveryDescriptor locates the open-delivery header and detail tables.
type DeliveryDescriptor struct {
	HeaderTable     string   `json:"header_table"`
	HeaderColumns   []string `json:"header_columns"`
	DetailTable     string   `json:"detail_table"`
	DetailColumns   []string `json:"detail_columns"`
	HeaderGenerator string   `json:"header_generator,omitempty"`
	DetailGenerator string   `json:"detail_generator,omitempty"`
}

// HasHeaderColumn reports whether the header table carries column name.
func (d *DeliveryDescriptor) HasHeaderColumn(name string) bool {
	return containsFold(d.HeaderColumns, name)
}

// HasDetailColumn reports whether the detail table carries column name.
func (d *DeliveryDescriptor) HasDetailColumn(name string) bool {
	return containsFold(d.DetailColumns, name)
}

// SchemaProfile is the discovered shape of one target database.
// It is built once per connection and never modified afterwards.
type SchemaProfile struct {
	Mechanism    LoginMechanism       `json:"mechanism"`
	Procedure    *ProcedureDescriptor `json:"procedure,omitempty"`
	Table        *TableDescriptor     `json:"table,omitempty"`
	Catalog      *CatalogDescriptor   `json:"catalog,omitempty"`
	Delivery     *DeliveryDescriptor  `json:"delivery,omitempty"`
	Tier         DiscoveryTier        `json:"tier"`
	Degraded     bool                 `json:"degraded"`
	DiscoveredAt time.Time            `json:"discovered_at"`
}

// WithTableMechanism returns a copy of the profile that logs in through the
// table descriptor regardless of the discovered mechanism.
func (p *SchemaProfile) WithTableMechanism() *SchemaProfile {
	cp := *p
	cp.Mechanism = LoginMechanismTable
	cp.Procedure = nil
	return &cp
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
