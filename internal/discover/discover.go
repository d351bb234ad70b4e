// Package discover builds the stream catalog: every stream the configured
// spreadsheet would produce, with its JSON schema and key properties.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/sheetsync/internal/client"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/sheets"
)

// Entry is one stream in the catalog.
type Entry struct {
	Stream        string         `json:"stream"`
	TapStreamID   string         `json:"tap_stream_id"`
	Schema        *schema.Schema `json:"schema"`
	KeyProperties []string       `json:"key_properties"`
}

// Catalog lists every discoverable stream.
type Catalog struct {
	Streams []Entry `json:"streams"`
}

// Discoverer inspects the configured spreadsheet and produces a catalog.
// Sheet schemas come from the same inference path a sync would use, so the
// catalog matches what a run will emit.
type Discoverer struct {
	Client client.Client
	Config *config.Spreadsheet
	Logger *slog.Logger
}

// Discover builds the catalog: the two fixed metadata streams plus one data
// stream per configured sheet.
func (d *Discoverer) Discover(ctx context.Context) (*Catalog, error) {
	catalog := &Catalog{
		Streams: []Entry{
			{
				Stream:        "file_metadata",
				TapStreamID:   "file_metadata",
				Schema:        schema.FileMetadata(),
				KeyProperties: []string{"id"},
			},
			{
				Stream:        "sheet_metadata",
				TapStreamID:   "sheet_metadata",
				Schema:        schema.SheetMetadata(),
				KeyProperties: []string{"sheetId"},
			},
		},
	}

	for _, sheet := range d.Config.Sheets {
		entry, err := d.discoverSheet(ctx, sheet)
		if err != nil {
			return nil, fmt.Errorf("discover sheet %q: %w", sheet.Title, err)
		}
		catalog.Streams = append(catalog.Streams, entry)
	}
	return catalog, nil
}

func (d *Discoverer) discoverSheet(ctx context.Context, sheet config.Sheet) (Entry, error) {
	fetcher := &sheets.Fetcher{
		Client:        d.Client,
		SpreadsheetID: d.Config.SpreadsheetID,
		Title:         sheet.Title,
		BatchSize:     d.Config.BatchSize,
		Logger:        d.Logger,
	}

	var strategy sheets.SchemaStrategy
	var firstRow []sheets.CellMetadata
	switch sheet.Strategy() {
	case config.InferenceDeclared:
		strategy = sheets.Declared{}
	default:
		meta, err := fetcher.Metadata(ctx, sheet.Range, len(sheet.Columns))
		if err != nil {
			return Entry{}, err
		}
		firstRow = meta.FirstRow
		strategy = sheets.Introspect{Logger: d.Logger}
	}

	inferred, err := strategy.Infer(sheet.Title, sheet.Range, sheet.Columns, firstRow)
	if err != nil {
		return Entry{}, err
	}

	stream := sheet.StreamName(d.Config.SpreadsheetID)
	return Entry{
		Stream:        stream,
		TapStreamID:   stream,
		Schema:        inferred.Schema,
		KeyProperties: []string{sheets.MetaRow},
	}, nil
}

// Write prints the catalog as indented JSON.
func (c *Catalog) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
