package sheets

// infer.go derives a stream's record schema from the first data row's cell
// metadata. Two interchangeable strategies exist: Introspect reads the native
// value kind and number format of each first-row cell; Declared trusts the
// configured header declarations and never looks at the sheet.

import (
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/sheetsync/internal/schema"
)

// Reserved record fields attached to every sheet data record. Declared
// column names must never collide with these; config validation enforces it.
const (
	MetaLoadTime      = "__sdc_load_time"
	MetaSpreadsheetID = "__sdc_spreadsheet_id"
	MetaSheetID       = "__sdc_sheet_id"
	MetaRow           = "__sdc_row"
	MetaIsHidden      = "__sdc_is_hidden"

	// MetaPrefix is the namespace reserved for the fields above.
	MetaPrefix = "__sdc_"
)

// FieldType is the resolved semantic type driving value coercion.
type FieldType int

const (
	TypeString FieldType = iota
	TypeNumber
	TypeBoolean
	TypeDate
	TypeTime
	TypeDateTime
)

func (t FieldType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeDateTime:
		return "date_time"
	default:
		return "string"
	}
}

// ColumnSpec is one declared header column. DeclaredType and DeclaredFormat,
// when present, override inference for that column entirely.
type ColumnSpec struct {
	Name           string
	DeclaredType   []string
	DeclaredFormat string
	Link           bool
}

// Column is the per-column inference result: the sheet_metadata summary
// fields plus the resolved type the coercer dispatches on.
type Column struct {
	Index  int    `json:"columnIndex"`
	Letter string `json:"columnLetter"`
	Name   string `json:"columnName"`
	GSType string `json:"columnType"`

	Type FieldType `json:"-"`
	Link bool      `json:"-"`
}

// SchemaStrategy derives a record schema and column resolution for a sheet.
type SchemaStrategy interface {
	Infer(sheetTitle string, rng Range, cols []ColumnSpec, firstRow []CellMetadata) (*Inferred, error)
}

// Inferred is a freshly derived stream schema. It is rebuilt on every sync
// and never persisted, so source-side schema drift is absorbed silently.
type Inferred struct {
	Schema  *schema.Schema
	Columns []Column
}

// Introspect is the full inference strategy: column types come from the
// first data row's native value kinds and number formats.
type Introspect struct {
	Logger *slog.Logger
}

// Infer implements SchemaStrategy.
func (s Introspect) Infer(sheetTitle string, rng Range, cols []ColumnSpec, firstRow []CellMetadata) (*Inferred, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	firstColIdx, err := ColumnToIndex(rng.FirstColumn)
	if err != nil {
		return nil, err
	}

	out := newRecordSchema()
	columns := make([]Column, 0, len(cols))

	for i, spec := range cols {
		idx := firstColIdx + i
		letter, err := IndexToColumn(idx)
		if err != nil {
			return nil, err
		}
		cell := CellMetadata{Kind: KindEmpty, Format: FormatUnspecified}
		if i < len(firstRow) {
			cell = firstRow[i]
		}

		col := Column{Index: idx, Letter: letter, Name: spec.Name, Link: spec.Link}

		if len(spec.DeclaredType) > 0 || spec.DeclaredFormat != "" {
			// Configuration overrides inference outright.
			col.Type, col.GSType = declaredFieldType(spec)
			out.Add(spec.Name, declaredProperty(spec))
			columns = append(columns, col)
			continue
		}

		switch cell.Kind {
		case KindError, KindFormula:
			return nil, &SchemaError{
				Sheet:  sheetTitle,
				Column: spec.Name,
				Cell:   fmt.Sprintf("%s%d", letter, rng.FirstRow),
				Kind:   cell.Kind,
			}
		case KindEmpty:
			logger.Warn("no sample value in first data row, defaulting column to string",
				"sheet", sheetTitle, "column", spec.Name, "cell", fmt.Sprintf("%s%d", letter, rng.FirstRow))
			col.Type, col.GSType = TypeString, "stringValue"
			out.Add(spec.Name, schema.String())
		case KindString:
			col.Type, col.GSType = TypeString, "stringValue"
			out.Add(spec.Name, schema.String())
		case KindBool:
			col.Type, col.GSType = TypeBoolean, "boolValue"
			out.Add(spec.Name, schema.Boolean())
		case KindNumber:
			switch cell.Format {
			case FormatDateTime:
				col.Type, col.GSType = TypeDateTime, "numberType.DATE_TIME"
				out.Add(spec.Name, schema.DateTime())
			case FormatDate:
				col.Type, col.GSType = TypeDate, "numberType.DATE"
				out.Add(spec.Name, schema.Date())
			case FormatTime:
				col.Type, col.GSType = TypeTime, "numberType.TIME"
				out.Add(spec.Name, schema.Time())
			case FormatText:
				col.Type, col.GSType = TypeString, "stringValue"
				out.Add(spec.Name, schema.String())
			case FormatNumber:
				col.Type, col.GSType = TypeNumber, "numberType"
				out.Add(spec.Name, schema.Number())
			default:
				// PERCENT, CURRENCY, SCIENTIFIC, or no format at all:
				// still numeric, but allow string fallback and pin the
				// rounding contract.
				col.Type, col.GSType = TypeNumber, "numberType"
				out.Add(spec.Name, schema.LooseNumber())
			}
		default:
			logger.Warn("unsupported first-row value kind, defaulting column to string",
				"sheet", sheetTitle, "column", spec.Name, "kind", string(cell.Kind))
			col.Type, col.GSType = TypeString, "unsupportedValue"
			out.Add(spec.Name, schema.String())
		}

		columns = append(columns, col)
	}

	return &Inferred{Schema: out, Columns: columns}, nil
}

// Declared is the simplified strategy: column types come from the header
// declarations alone, so no metadata fetch is needed to build the schema.
// Columns without a declared type default to nullable strings.
type Declared struct{}

// Infer implements SchemaStrategy. firstRow is ignored.
func (Declared) Infer(sheetTitle string, rng Range, cols []ColumnSpec, _ []CellMetadata) (*Inferred, error) {
	firstColIdx, err := ColumnToIndex(rng.FirstColumn)
	if err != nil {
		return nil, err
	}

	out := newRecordSchema()
	columns := make([]Column, 0, len(cols))
	for i, spec := range cols {
		idx := firstColIdx + i
		letter, err := IndexToColumn(idx)
		if err != nil {
			return nil, err
		}
		col := Column{Index: idx, Letter: letter, Name: spec.Name, Link: spec.Link}
		col.Type, col.GSType = declaredFieldType(spec)
		out.Add(spec.Name, declaredProperty(spec))
		columns = append(columns, col)
	}
	return &Inferred{Schema: out, Columns: columns}, nil
}

// declaredFieldType maps a declared header onto the coercion type.
func declaredFieldType(spec ColumnSpec) (FieldType, string) {
	switch spec.DeclaredFormat {
	case "date-time":
		return TypeDateTime, "numberType.DATE_TIME"
	case "date":
		return TypeDate, "numberType.DATE"
	case "time":
		return TypeTime, "numberType.TIME"
	}
	for _, t := range spec.DeclaredType {
		switch t {
		case "number", "integer":
			return TypeNumber, "numberType"
		case "boolean":
			return TypeBoolean, "boolValue"
		}
	}
	return TypeString, "stringValue"
}
