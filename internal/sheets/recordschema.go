package sheets

import "github.com/JonMunkholm/sheetsync/internal/schema"

// newRecordSchema starts a sheet data schema with the reserved bookkeeping
// fields every record carries.
func newRecordSchema() *schema.Schema {
	return schema.Object().
		Add(MetaLoadTime, schema.DateTime()).
		Add(MetaSpreadsheetID, schema.String()).
		Add(MetaSheetID, schema.Integer()).
		Add(MetaRow, schema.Integer()).
		Add(MetaIsHidden, schema.Boolean())
}

// declaredProperty builds the schema property for a column whose type or
// format was declared in configuration. Declared values replace inference;
// they are never merged with it.
func declaredProperty(spec ColumnSpec) schema.Property {
	types := spec.DeclaredType
	if len(types) == 0 {
		types = []string{"null", "string"}
	}
	return schema.Property{Types: types, Format: spec.DeclaredFormat}
}
