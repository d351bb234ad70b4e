package sheets

// fetch.go walks a configured row span in fixed-size windows, one fetch call
// per window. Windows advance strictly; ordering matters because absolute
// row numbers are derived from the window start.

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/client"
)

// DefaultBatchSize is the default number of rows per fetch window.
const DefaultBatchSize = 300

// gridFields limits windowed fetches to the values and row flags the record
// builder consumes.
const gridFields = "sheets.data(rowData.values(effectiveValue,hyperlink),rowMetadata.hiddenByUser)"

// Window is one inclusive row span fetched in a single call.
type Window struct {
	From int
	To   int
}

// Windows computes the strict window sequence covering [firstRow, lastRow].
// The final window is partial rather than overshooting lastRow.
func Windows(firstRow, lastRow, batchSize int) []Window {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	var out []Window
	for from := firstRow; from <= lastRow; {
		to := min(lastRow, from+batchSize-1)
		out = append(out, Window{From: from, To: to})
		from = to + 1
	}
	return out
}

// Page is the fetched contents of one window.
type Page struct {
	Window     Window
	Rows       []Row
	CapturedAt time.Time
}

// Fetcher issues the metadata and windowed data calls for one sheet.
type Fetcher struct {
	Client        client.Client
	SpreadsheetID string
	Title         string
	BatchSize     int
	Logger        *slog.Logger
}

// Metadata performs the preliminary per-sheet call: it resolves the sheet's
// numeric id and actual row count and captures the first data row's cell
// metadata for type inference. columns is the declared column count used to
// pad truncated first rows.
func (f *Fetcher) Metadata(ctx context.Context, rng Range, columns int) (*SheetMetadata, error) {
	firstRowRange := fmt.Sprintf("%s%d:%s%d", rng.FirstColumn, rng.FirstRow, rng.LastColumn, rng.FirstRow)
	query := url.Values{}
	query.Set("includeGridData", "true")
	query.Set("ranges", f.Title+"!"+firstRowRange)

	body, _, err := f.Client.Get(ctx, "sheets", "spreadsheets/"+f.SpreadsheetID, query, f.Title)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet metadata for %q: %w", f.Title, err)
	}
	return DecodeSheetMetadata(body, columns)
}

// Pages yields one Page per window covering [rng.FirstRow, lastRow].
// lastRow must already be resolved against the sheet's actual row count.
// Empty windows still execute and yield a page of empty rows.
func (f *Fetcher) Pages(ctx context.Context, rng Range, lastRow int) iter.Seq2[Page, error] {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(yield func(Page, error) bool) {
		for _, w := range Windows(rng.FirstRow, lastRow, f.BatchSize) {
			windowRange := fmt.Sprintf("%s%d:%s%d", rng.FirstColumn, w.From, rng.LastColumn, w.To)
			query := url.Values{}
			query.Set("includeGridData", "true")
			query.Set("ranges", f.Title+"!"+windowRange)
			query.Set("fields", gridFields)

			logger.Debug("fetching window", "sheet", f.Title, "range", windowRange)
			body, capturedAt, err := f.Client.Get(ctx, "sheets", "spreadsheets/"+f.SpreadsheetID, query, f.Title)
			if err != nil {
				yield(Page{}, fmt.Errorf("fetch rows %s of sheet %q: %w", windowRange, f.Title, err))
				return
			}

			rows, err := DecodeRows(body, w.To-w.From+1)
			if err != nil {
				yield(Page{}, fmt.Errorf("rows %s of sheet %q: %w", windowRange, f.Title, err))
				return
			}

			if !yield(Page{Window: w, Rows: rows, CapturedAt: capturedAt}, nil) {
				return
			}
		}
	}
}
