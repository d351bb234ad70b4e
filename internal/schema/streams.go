package schema

// streams.go declares the fixed schemas for the two bookkeeping streams.
// Sheet data stream schemas are inferred at run time; these two never change.

// FileMetadata is the schema for the file_metadata stream, sourced from the
// Drive files endpoint.
func FileMetadata() *Schema {
	return Object().
		Add("id", String()).
		Add("name", String()).
		Add("version", Integer()).
		Add("createdTime", DateTime()).
		Add("modifiedTime", DateTime()).
		Add("teamDriveId", String()).
		Add("driveId", String()).
		Add("lastModifyingUser", Property{Types: []string{"null", "object"}})
}

// SheetMetadata is the schema for the sheet_metadata stream: sheet
// properties enriched with the per-column inference summary.
func SheetMetadata() *Schema {
	return Object().
		Add("sheetId", Integer()).
		Add("spreadsheetId", String()).
		Add("title", String()).
		Add("index", Integer()).
		Add("sheetType", String()).
		Add("sheetUrl", String()).
		Add("gridProperties", Property{Types: []string{"null", "object"}}).
		Add("columns", Property{Types: []string{"null", "array"}})
}
