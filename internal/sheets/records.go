package sheets

// records.go turns fetched pages into typed records. Rows the API returned
// no cells for are skipped entirely, but they still occupy their absolute
// row number.

import "time"

// Record is one typed, schema-conformant output record.
type Record map[string]any

// RecordBuilder converts raw pages for one sheet into records.
type RecordBuilder struct {
	SpreadsheetID string
	SheetID       int64
	Columns       []Column
	Coercer       *Coercer
}

// Build converts a fetched page into ordered records. Missing trailing cells
// coerce to null; fully empty rows are dropped.
func (b *RecordBuilder) Build(page Page) []Record {
	records := make([]Record, 0, len(page.Rows))
	loadTime := page.CapturedAt.UTC().Format(time.RFC3339)

	for i, row := range page.Rows {
		if row.IsEmpty() {
			continue
		}
		rowNum := page.Window.From + i

		rec := Record{
			MetaLoadTime:      loadTime,
			MetaSpreadsheetID: b.SpreadsheetID,
			MetaSheetID:       b.SheetID,
			MetaRow:           rowNum,
			MetaIsHidden:      row.Hidden,
		}
		for j, col := range b.Columns {
			var cell Cell
			if j < len(row.Cells) {
				cell = row.Cells[j]
			}
			rec[col.Name] = b.Coercer.Coerce(col, cell, rowNum)
		}
		records = append(records, rec)
	}
	return records
}
