package sheets

// metadata.go models the slice of the spreadsheet grid API this engine
// consumes: sheet properties, per-cell effective values and number formats,
// and per-row dimension metadata (the hidden-by-user flag).

import (
	"encoding/json"
	"fmt"
)

// ValueKind is the native type of a cell's effective value.
type ValueKind string

const (
	KindNumber  ValueKind = "number"
	KindString  ValueKind = "string"
	KindBool    ValueKind = "bool"
	KindError   ValueKind = "error"
	KindFormula ValueKind = "formula"
	KindEmpty   ValueKind = "empty"
)

// FormatKind is the display format attached to a numeric cell.
type FormatKind string

const (
	FormatUnspecified FormatKind = "unspecified"
	FormatText        FormatKind = "text"
	FormatNumber      FormatKind = "number"
	FormatPercent     FormatKind = "percent"
	FormatCurrency    FormatKind = "currency"
	FormatDate        FormatKind = "date"
	FormatTime        FormatKind = "time"
	FormatDateTime    FormatKind = "date_time"
	FormatScientific  FormatKind = "scientific"
)

// CellMetadata is the inference input for one first-row cell.
type CellMetadata struct {
	Kind   ValueKind
	Format FormatKind
}

// Cell is one fetched data cell: its unformatted value (numbers arrive as
// float64 date serials where the cell is date-formatted) and its hyperlink,
// if any.
type Cell struct {
	Value     any
	Hyperlink string
}

// Row is one fetched data row.
type Row struct {
	Cells  []Cell
	Hidden bool
}

// IsEmpty reports whether the API returned no cells at all for the row.
// Trailing empty cells are omitted by the API, so a fully empty row arrives
// as a zero-length cell list.
func (r Row) IsEmpty() bool {
	return len(r.Cells) == 0
}

// SheetProperties carries the sheet-level facts resolved by the preliminary
// metadata call.
type SheetProperties struct {
	SheetID  int64  `json:"sheetId"`
	Title    string `json:"title"`
	Index    int    `json:"index"`
	RowCount int
	ColCount int
}

// SheetMetadata is the cached result of the preliminary metadata call for
// one sheet: its properties plus the first data row's cell metadata.
type SheetMetadata struct {
	Properties SheetProperties
	FirstRow   []CellMetadata
	// RawProperties preserves the properties object verbatim for the
	// sheet_metadata stream.
	RawProperties json.RawMessage
}

// --- wire format ---

type gridResponse struct {
	SpreadsheetID string      `json:"spreadsheetId"`
	Sheets        []gridSheet `json:"sheets"`
}

type gridSheet struct {
	Properties json.RawMessage `json:"properties"`
	Data       []gridData      `json:"data"`
}

type gridProperties struct {
	SheetID        int64  `json:"sheetId"`
	Title          string `json:"title"`
	Index          int    `json:"index"`
	GridProperties struct {
		RowCount    int `json:"rowCount"`
		ColumnCount int `json:"columnCount"`
	} `json:"gridProperties"`
}

type gridData struct {
	RowData     []rowData             `json:"rowData"`
	RowMetadata []dimensionProperties `json:"rowMetadata"`
}

type rowData struct {
	Values []cellData `json:"values"`
}

type dimensionProperties struct {
	HiddenByUser bool `json:"hiddenByUser"`
}

type cellData struct {
	EffectiveValue  *extendedValue `json:"effectiveValue"`
	EffectiveFormat *cellFormat    `json:"effectiveFormat"`
	Hyperlink       string         `json:"hyperlink"`
}

type extendedValue struct {
	NumberValue  *float64        `json:"numberValue"`
	StringValue  *string         `json:"stringValue"`
	BoolValue    *bool           `json:"boolValue"`
	FormulaValue *string         `json:"formulaValue"`
	ErrorValue   json.RawMessage `json:"errorValue"`
}

type cellFormat struct {
	NumberFormat struct {
		Type string `json:"type"`
	} `json:"numberFormat"`
}

// metadata converts a wire cell into its inference input.
func (c cellData) metadata() CellMetadata {
	m := CellMetadata{Kind: KindEmpty, Format: FormatUnspecified}
	if v := c.EffectiveValue; v != nil {
		switch {
		case v.NumberValue != nil:
			m.Kind = KindNumber
		case v.StringValue != nil:
			m.Kind = KindString
		case v.BoolValue != nil:
			m.Kind = KindBool
		case len(v.ErrorValue) > 0:
			m.Kind = KindError
		case v.FormulaValue != nil:
			m.Kind = KindFormula
		}
	}
	if f := c.EffectiveFormat; f != nil {
		switch f.NumberFormat.Type {
		case "TEXT":
			m.Format = FormatText
		case "NUMBER":
			m.Format = FormatNumber
		case "PERCENT":
			m.Format = FormatPercent
		case "CURRENCY":
			m.Format = FormatCurrency
		case "DATE":
			m.Format = FormatDate
		case "TIME":
			m.Format = FormatTime
		case "DATE_TIME":
			m.Format = FormatDateTime
		case "SCIENTIFIC":
			m.Format = FormatScientific
		default:
			m.Format = FormatUnspecified
		}
	}
	return m
}

// value returns the cell's native value: float64, string, bool, or nil.
func (c cellData) value() any {
	if c.EffectiveValue == nil {
		return nil
	}
	switch v := c.EffectiveValue; {
	case v.NumberValue != nil:
		return *v.NumberValue
	case v.StringValue != nil:
		return *v.StringValue
	case v.BoolValue != nil:
		return *v.BoolValue
	case v.FormulaValue != nil:
		return *v.FormulaValue
	default:
		return nil
	}
}

// DecodeSheetMetadata parses the preliminary metadata response for a sheet.
// columns is the declared column count; the first row's metadata is padded
// with empty cells up to it because the API omits trailing empty cells.
func DecodeSheetMetadata(body json.RawMessage, columns int) (*SheetMetadata, error) {
	var resp gridResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sheet metadata: %w", err)
	}
	if len(resp.Sheets) == 0 {
		return nil, fmt.Errorf("decode sheet metadata: response contains no sheets")
	}

	sheet := resp.Sheets[0]
	var props gridProperties
	if err := json.Unmarshal(sheet.Properties, &props); err != nil {
		return nil, fmt.Errorf("decode sheet properties: %w", err)
	}

	md := &SheetMetadata{
		Properties: SheetProperties{
			SheetID:  props.SheetID,
			Title:    props.Title,
			Index:    props.Index,
			RowCount: props.GridProperties.RowCount,
			ColCount: props.GridProperties.ColumnCount,
		},
		RawProperties: sheet.Properties,
	}

	var first []cellData
	if len(sheet.Data) > 0 && len(sheet.Data[0].RowData) > 0 {
		first = sheet.Data[0].RowData[0].Values
	}
	md.FirstRow = make([]CellMetadata, columns)
	for i := range md.FirstRow {
		if i < len(first) {
			md.FirstRow[i] = first[i].metadata()
		} else {
			md.FirstRow[i] = CellMetadata{Kind: KindEmpty, Format: FormatUnspecified}
		}
	}

	return md, nil
}

// DecodeRows parses a windowed grid fetch into data rows. The returned slice
// always has exactly want entries: the API truncates trailing empty rows, so
// the tail is padded with empty rows to keep absolute row numbering intact.
func DecodeRows(body json.RawMessage, want int) ([]Row, error) {
	var resp gridResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if len(resp.Sheets) == 0 || len(resp.Sheets[0].Data) == 0 {
		return make([]Row, want), nil
	}

	data := resp.Sheets[0].Data[0]
	rows := make([]Row, want)
	for i := range rows {
		if i < len(data.RowData) {
			cells := make([]Cell, 0, len(data.RowData[i].Values))
			for _, c := range data.RowData[i].Values {
				cells = append(cells, Cell{Value: c.value(), Hyperlink: c.Hyperlink})
			}
			// The API pads interior empty rows as explicit empty value
			// lists; normalize those to no cells at all.
			empty := true
			for _, c := range cells {
				if c.Value != nil {
					empty = false
					break
				}
			}
			if !empty {
				rows[i].Cells = cells
			}
		}
		if i < len(data.RowMetadata) {
			rows[i].Hidden = data.RowMetadata[i].HiddenByUser
		}
	}
	return rows, nil
}
