package services

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Name patterns used to recognize login, catalog and delivery metadata.
// Order matters: earlier patterns win.
var (
	loginTableNames = []string{"USERS", "LOGUSERS", "OPERATORS", "OPERATOR"}
	loginTableHints = []string{"USER", "OPER"}

	loginColumnPatterns    = []string{"LOGIN", "USERNAME", "USER_NAME", "NAME", "CODE", "USERCODE", "OPERATOR"}
	passwordColumnPatterns = []string{"PASS", "PASSWORD", "PAROLA", "PWD"}
	hashColumnPatterns     = []string{"PASS_HASH", "PASSWORD_HASH", "PWD_HASH", "PAROLA_HASH", "HASH"}
	saltColumnPatterns     = []string{"SALT", "PASS_SALT", "PASSWORD_SALT", "SALT1"}
	idColumnPatterns       = []string{"ID", "USER_ID", "USERSID", "OP_ID", "KOD", "CODE"}

	itemsTableHints      = []string{"ITEM", "PRODUCT", "GOOD", "ARTIC"}
	itemCodePatterns     = []string{"CODE", "MATERIALCODE", "ARTIC", "ARTICLE", "ARTNOMER", "INTERNALCODE", "NOMER"}
	itemNamePatterns     = []string{"NAME", "MATERIAL", "DESCR", "DESCRIPTION", "SEARCHNAME", "FULLNAME"}
	itemUnitPatterns     = []string{"UOM", "MEASURE", "MEASUREUNIT", "UNIT", "EDIN", "EDIZM"}
	itemPricePatterns    = []string{"PRICE", "LASTPRICE", "LASTDELIVERYPRICE", "SALEPRICE", "DELIVERYPRICE", "PURCHASEPRICE"}
	itemVATPatterns      = []string{"VAT", "DDS", "TAX", "TAXRATE", "TAXPERCENTAGE", "DDSPROC"}
	barcodeColumnPattern = []string{"BARCODE", "EAN", "EAN13", "UPC", "CODE"}
	barcodeItemPatterns  = []string{
		"FK_STORAGEMATERIALCODE", "STORAGEMATERIALCODE", "MATERIAL", "MATERIALID",
		"ITEM", "ITEMID", "GOOD", "PRODUCT", "IDMATERIAL",
	}

	deliveryTablePrefix = "TEMPDELIVERY"
)

const (
	minItemsTableScore   = 3.0
	minBarcodeTableScore = 3.0
)

// selectColumn picks the column matching patterns. An exact name match for any
// pattern beats a substring match; within each pass patterns are tried in order.
// Columns listed in exclude are never returned.
func selectColumn(columns []string, patterns []string, exclude ...string) string {
	usable := func(col string) bool {
		for _, e := range exclude {
			if e != "" && strings.EqualFold(col, e) {
				return false
			}
		}
		return true
	}
	for _, p := range patterns {
		for _, col := range columns {
			if strings.EqualFold(col, p) && usable(col) {
				return col
			}
		}
	}
	for _, p := range patterns {
		for _, col := range columns {
			if strings.Contains(strings.ToUpper(col), p) && usable(col) {
				return col
			}
		}
	}
	return ""
}

func hasColumn(columns []string, patterns []string) bool {
	return selectColumn(columns, patterns) != ""
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// rankLoginProcedures orders routines that may validate credentials.
// Names containing LOGIN come first, then USER; within each group names that
// also contain CHECK or AUTH are preferred. Other routines are dropped.
func rankLoginProcedures(procs []datasource.ProcedureMetadata) []datasource.ProcedureMetadata {
	type ranked struct {
		proc  datasource.ProcedureMetadata
		score int
	}
	var candidates []ranked
	for _, p := range procs {
		name := strings.ToUpper(p.Name)
		score := 0
		switch {
		case strings.Contains(name, "LOGIN"):
			score = 4
		case strings.Contains(name, "USER"):
			score = 2
		default:
			continue
		}
		if strings.Contains(name, "CHECK") || strings.Contains(name, "AUTH") {
			score++
		}
		candidates = append(candidates, ranked{proc: p, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]datasource.ProcedureMetadata, len(candidates))
	for i, c := range candidates {
		out[i] = c.proc
	}
	return out
}

// newProcedureDescriptor builds a descriptor from routine parameters.
func newProcedureDescriptor(proc datasource.ProcedureMetadata, params []datasource.ParameterMetadata) *models.ProcedureDescriptor {
	desc := &models.ProcedureDescriptor{
		Name:       proc.Name,
		Selectable: proc.Selectable,
	}
	for _, p := range datasource.Inputs(params) {
		desc.Inputs = append(desc.Inputs, models.FieldDescriptor{Name: p.Name, DataType: p.DataType})
	}
	for _, p := range datasource.Outputs(params) {
		desc.Outputs = append(desc.Outputs, models.FieldDescriptor{Name: p.Name, DataType: p.DataType})
	}
	return desc
}

// orderLoginTables returns the well-known user tables first, in pattern order,
// followed by tables whose names merely hint at operators.
func orderLoginTables(tables []datasource.TableMetadata) []string {
	var strong, weak []string
	seen := make(map[string]bool)
	for _, want := range loginTableNames {
		for _, t := range tables {
			if strings.EqualFold(t.Name, want) && !seen[t.Name] {
				strong = append(strong, t.Name)
				seen[t.Name] = true
			}
		}
	}
	for _, t := range tables {
		if seen[t.Name] {
			continue
		}
		if containsAny(strings.ToUpper(t.Name), loginTableHints) {
			weak = append(weak, t.Name)
		}
	}
	return append(strong, weak...)
}

// matchLoginTable maps the columns of one table onto a login descriptor.
// It reports false when the table has no login column or nothing to verify a
// password against.
func matchLoginTable(table string, cols []datasource.ColumnMetadata, hashScheme string) (*models.TableDescriptor, bool) {
	names := datasource.ColumnNames(cols)

	hash := selectColumn(names, hashColumnPatterns)
	salt := selectColumn(names, saltColumnPatterns, hash)
	password := selectColumn(names, passwordColumnPatterns, hash, salt)
	login := selectColumn(names, loginColumnPatterns, hash, salt, password)
	if login == "" || (password == "" && hash == "") {
		return nil, false
	}
	id := selectColumn(names, idColumnPatterns, login, hash, salt, password)

	return &models.TableDescriptor{
		Table:          table,
		LoginColumn:    login,
		PasswordColumn: password,
		HashColumn:     hash,
		SaltColumn:     salt,
		IDColumn:       id,
		HashScheme:     hashScheme,
	}, true
}

// scoreItemsTable rates how likely a table holds catalog items.
func scoreItemsTable(table string, columns []string) float64 {
	upper := strings.ToUpper(table)
	score := 0.0
	if strings.Contains(upper, "MATER") {
		score += 3
	}
	if containsAny(upper, itemsTableHints) {
		score += 2
	}
	if hasColumn(columns, itemCodePatterns) {
		score += 2.5
	}
	if hasColumn(columns, itemNamePatterns) {
		score += 2.5
	}
	if hasColumn(columns, itemPricePatterns) {
		score += 1.5
	}
	if hasColumn(columns, itemVATPatterns) {
		score += 1
	}
	if hasColumn(columns, itemUnitPatterns) {
		score += 0.5
	}
	return score
}

// scoreBarcodeTable rates how likely a table maps barcodes to items.
func scoreBarcodeTable(table string, columns []string) float64 {
	score := 0.0
	if strings.Contains(strings.ToUpper(table), "BARC") {
		score += 3
	}
	if hasColumn(columns, barcodeColumnPattern) {
		score += 2.5
	}
	if hasColumn(columns, barcodeItemPatterns) {
		score += 1
	}
	return score
}

// tableColumns is the column metadata of every table, in listing order.
type tableColumns struct {
	order   []string
	columns map[string][]datasource.ColumnMetadata
}

func (tc *tableColumns) names(table string) []string {
	return datasource.ColumnNames(tc.columns[table])
}

// matchCatalog picks the items and barcode tables with the best scores.
// Ties keep the table listed first.
func matchCatalog(tc *tableColumns) (*models.CatalogDescriptor, bool) {
	itemsTable, best := "", 0.0
	for _, t := range tc.order {
		if s := scoreItemsTable(t, tc.names(t)); s > best {
			itemsTable, best = t, s
		}
	}
	if itemsTable == "" || best < minItemsTableScore {
		return nil, false
	}

	cols := tc.columns[itemsTable]
	names := datasource.ColumnNames(cols)
	desc := &models.CatalogDescriptor{ItemsTable: itemsTable}
	desc.CodeColumn = selectColumn(names, itemCodePatterns)
	desc.NameColumn = selectColumn(names, itemNamePatterns, desc.CodeColumn)
	if desc.CodeColumn == "" && desc.NameColumn == "" {
		return nil, false
	}
	desc.UnitColumn = selectColumn(names, itemUnitPatterns, desc.CodeColumn, desc.NameColumn)
	desc.PriceColumn = selectColumn(names, itemPricePatterns, desc.CodeColumn, desc.NameColumn)
	desc.VATColumn = selectColumn(names, itemVATPatterns, desc.CodeColumn, desc.NameColumn, desc.PriceColumn)
	if desc.NameColumn != "" {
		if col, ok := datasource.FindColumn(cols, desc.NameColumn); ok {
			desc.NameMaxLength = col.Length
		}
	}
	desc.IDColumn = itemsIDColumn(cols, desc.CodeColumn)

	barcodeTable, best := "", 0.0
	for _, t := range tc.order {
		if t == itemsTable {
			continue
		}
		if s := scoreBarcodeTable(t, tc.names(t)); s > best {
			barcodeTable, best = t, s
		}
	}
	if barcodeTable != "" && best >= minBarcodeTableScore {
		bnames := tc.names(barcodeTable)
		fk := selectColumn(bnames, barcodeItemPatterns)
		barcode := selectColumn(bnames, barcodeColumnPattern, fk)
		if fk != "" && barcode != "" {
			desc.BarcodeTable = barcodeTable
			desc.BarcodeColumn = barcode
			desc.BarcodeItemColumn = fk
			desc.BarcodeItemKeyCode = strings.Contains(strings.ToUpper(fk), "CODE") && desc.CodeColumn != ""
		}
	}
	return desc, true
}

// itemsIDColumn is the primary key, else ID, else the code column.
func itemsIDColumn(cols []datasource.ColumnMetadata, codeColumn string) string {
	for _, c := range cols {
		if c.IsPrimaryKey {
			return c.Name
		}
	}
	if c, ok := datasource.FindColumn(cols, "ID"); ok {
		return c.Name
	}
	return codeColumn
}

func isDetailTable(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasSuffix(upper, "SDR") || strings.Contains(upper, "DETAIL") || strings.Contains(upper, "ITEM")
}

// matchDelivery finds the open-delivery header and detail tables and their generators.
func matchDelivery(tc *tableColumns, generators []string) (*models.DeliveryDescriptor, bool) {
	var header, detail string
	for _, t := range tc.order {
		if !strings.HasPrefix(strings.ToUpper(t), deliveryTablePrefix) {
			continue
		}
		if isDetailTable(t) {
			if detail == "" || len(t) < len(detail) {
				detail = t
			}
		} else if header == "" || len(t) < len(header) {
			header = t
		}
	}
	if header == "" || detail == "" {
		return nil, false
	}

	desc := &models.DeliveryDescriptor{
		HeaderTable:   header,
		HeaderColumns: tc.names(header),
		DetailTable:   detail,
		DetailColumns: tc.names(detail),
	}
	for _, g := range generators {
		upper := strings.ToUpper(g)
		if !strings.Contains(upper, deliveryTablePrefix) {
			continue
		}
		if strings.Contains(upper, "SDR") || strings.Contains(upper, "DETAIL") {
			if desc.DetailGenerator == "" {
				desc.DetailGenerator = g
			}
		} else if desc.HeaderGenerator == "" {
			desc.HeaderGenerator = g
		}
	}
	return desc, true
}
