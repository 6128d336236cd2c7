package models

import "github.com/shopspring/decimal"

// CatalogItem is a canonical material record read from the accounting database.
// Every field except ID may be empty.
type CatalogItem struct {
	ID            string           `json:"id"`
	Code          string           `json:"code,omitempty"`
	Barcode       string           `json:"barcode,omitempty"`
	Name          string           `json:"name,omitempty"`
	UnitOfMeasure string           `json:"unit_of_measure,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	VAT           *decimal.Decimal `json:"vat,omitempty"`
}

// LineItem is a parsed invoice row as produced by the document parser.
type LineItem struct {
	Description string           `json:"description"`
	Barcode     string           `json:"barcode,omitempty"`
	Code        string           `json:"code,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	SalePrice   *decimal.Decimal `json:"sale_price,omitempty"`
}

// ResolutionKind is the terminal state of resolving one line item.
type ResolutionKind string

const (
	ResolutionMatched    ResolutionKind = "matched"
	ResolutionCandidates ResolutionKind = "candidates"
	ResolutionUnresolved ResolutionKind = "unresolved"
)

// ResolutionStage is the lookup that produced a result.
type ResolutionStage string

const (
	StageBarcode ResolutionStage = "barcode"
	StageCode    ResolutionStage = "code"
	StageName    ResolutionStage = "name"
	StageMapping ResolutionStage = "mapping"
)

// ItemMapping maps an invoice barcode, supplier code or description to the
// catalog code of the item it stands for. It is configured per profile and
// consulted only after every catalog lookup came back empty.
type ItemMapping map[string]string

// Candidate is a catalog record with its similarity to the line item.
// Score is 1 for identifier matches.
type Candidate struct {
	Item  CatalogItem `json:"item"`
	Score float64     `json:"score"`
}

// ResolutionResult is the outcome for one line item.
type ResolutionResult struct {
	Kind       ResolutionKind  `json:"kind"`
	Stage      ResolutionStage `json:"stage,omitempty"`
	Item       *CatalogItem    `json:"item,omitempty"`
	Candidates []Candidate     `json:"candidates,omitempty"`
}

// Unresolved builds an unresolved result.
func Unresolved() *ResolutionResult {
	return &ResolutionResult{Kind: ResolutionUnresolved}
}

// ResolutionStats counts results over a batch.
type ResolutionStats struct {
	Total      int `json:"total"`
	Matched    int `json:"matched"`
	Mapped     int `json:"mapped"`
	Candidates int `json:"candidates"`
	Unresolved int `json:"unresolved"`
}

// Add counts one result. Matches found through the mapping count as Mapped,
// not Matched.
func (s *ResolutionStats) Add(r *ResolutionResult) {
	s.Total++
	switch r.Kind {
	case ResolutionMatched:
		if r.Stage == StageMapping {
			s.Mapped++
			return
		}
		s.Matched++
	case ResolutionCandidates:
		s.Candidates++
	default:
		s.Unresolved++
	}
}
