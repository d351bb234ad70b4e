// Package syncer orchestrates a sync run: the file-modification gate, the
// per-sheet schema/record/version lifecycle, and bookmark persistence.
//
// Sheets sync one at a time and pages within a sheet fetch one at a time;
// row-window ordering determines absolute row numbers, so nothing here is
// concurrent. State is written through after every meaningful transition, so
// a crash loses at most the in-flight sheet's partial output.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/client"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/sheets"
	"github.com/JonMunkholm/sheetsync/internal/sink"
	"github.com/JonMunkholm/sheetsync/internal/state"
	"github.com/JonMunkholm/sheetsync/internal/status"
)

// Stream names for the fixed metadata streams.
const (
	FileMetadataStream  = "file_metadata"
	SheetMetadataStream = "sheet_metadata"
)

// Controller drives one sync run.
type Controller struct {
	Client  client.Client
	Sink    sink.Sink
	Store   state.Store
	Config  *config.Spreadsheet
	Tracker *status.Tracker
	Logger  *slog.Logger

	// Now is the clock used for table versions; tests override it.
	Now func() time.Time
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run executes a full sync: gate on the file's modification time, then sync
// each configured sheet in order. The file-metadata bookmark advances only
// when every sheet completed, so a failed sheet is retried next run.
func (c *Controller) Run(ctx context.Context) error {
	st, err := c.Store.Load()
	if err != nil {
		return err
	}

	if st.CurrentlySyncing != "" {
		c.Logger.Warn("previous run stopped mid-stream; restarting that sheet from scratch",
			"stream", st.CurrentlySyncing)
		st.CurrentlySyncing = ""
	}

	file, err := c.fetchFileMetadata(ctx)
	if err != nil {
		return err
	}

	bookmark, ok := st.TimeBookmark(FileMetadataStream)
	if !ok {
		bookmark = c.Config.StartDate
	}

	if !file.modified.After(bookmark) {
		c.Logger.Info("file not modified since last sync, skipping all sheets",
			"modified", file.modified, "bookmark", bookmark)
		st.SetTimeBookmark(FileMetadataStream, bookmark)
		return c.persist(&st)
	}

	c.Logger.Info("file modified since last sync",
		"modified", file.modified, "bookmark", bookmark, "sheets", len(c.Config.Sheets))

	if err := c.emitFileMetadata(file); err != nil {
		return err
	}

	if err := c.Sink.WriteSchema(SheetMetadataStream, schema.SheetMetadata(), []string{"sheetId"}); err != nil {
		return err
	}

	for _, sheet := range c.Config.Sheets {
		c.Tracker.Register(sheet.StreamName(c.Config.SpreadsheetID))
	}

	// Metadata responses are cached per sheet title: inference and the
	// sheet_metadata record both read them, and a title never needs two
	// metadata fetches within one run.
	metaCache := make(map[string]*sheets.SheetMetadata)

	var sheetErrs []error
	for _, sheet := range c.Config.Sheets {
		if err := c.syncSheet(ctx, &st, sheet, metaCache); err != nil {
			var schemaErr *sheets.SchemaError
			if errors.As(err, &schemaErr) {
				// A formula or error cell in the sample row is a
				// source defect the operator must fix; abort so no
				// bookmark quietly skips this sheet's data.
				return err
			}
			c.Logger.Error("sheet sync failed", "sheet", sheet.Title, "error", err)
			c.Tracker.Finish(sheet.StreamName(c.Config.SpreadsheetID), true)
			sheetErrs = append(sheetErrs, fmt.Errorf("sheet %q: %w", sheet.Title, err))
			st.CurrentlySyncing = ""
			continue
		}
	}

	if len(sheetErrs) > 0 {
		// Leave the file bookmark where it was so the next run retries.
		if perr := c.persist(&st); perr != nil {
			sheetErrs = append(sheetErrs, perr)
		}
		return errors.Join(sheetErrs...)
	}

	st.SetTimeBookmark(FileMetadataStream, file.modified)
	if err := c.persist(&st); err != nil {
		return err
	}

	c.Logger.Info("sync complete", "sheets", len(c.Config.Sheets))
	return nil
}

// emitFileMetadata writes the file_metadata stream: fixed schema plus the
// single Drive record for the source file.
func (c *Controller) emitFileMetadata(file *fileMetadata) error {
	if err := c.Sink.WriteSchema(FileMetadataStream, schema.FileMetadata(), []string{"id"}); err != nil {
		return err
	}
	return c.Sink.WriteRecord(FileMetadataStream, file.record, c.now().UTC(), nil)
}

// syncSheet runs the full lifecycle for one sheet: recovery marker, schema
// inference and emission, versioned page-by-page records, activate-version,
// bookmark.
func (c *Controller) syncSheet(ctx context.Context, st *state.State, sheet config.Sheet, metaCache map[string]*sheets.SheetMetadata) error {
	stream := sheet.StreamName(c.Config.SpreadsheetID)
	logger := logging.WithFields(c.Logger, "sheet", sheet.Title, "stream", stream)

	st.CurrentlySyncing = stream
	if err := c.persist(st); err != nil {
		return err
	}
	c.Tracker.Start(stream)

	fetcher := &sheets.Fetcher{
		Client:        c.Client,
		SpreadsheetID: c.Config.SpreadsheetID,
		Title:         sheet.Title,
		BatchSize:     c.Config.BatchSize,
		Logger:        logger,
	}

	meta, ok := metaCache[sheet.Title]
	if !ok {
		var err error
		meta, err = fetcher.Metadata(ctx, sheet.Range, len(sheet.Columns))
		if err != nil {
			return err
		}
		metaCache[sheet.Title] = meta
	}

	var strategy sheets.SchemaStrategy
	switch sheet.Strategy() {
	case config.InferenceDeclared:
		strategy = sheets.Declared{}
	default:
		strategy = sheets.Introspect{Logger: logger}
	}
	inferred, err := strategy.Infer(sheet.Title, sheet.Range, sheet.Columns, meta.FirstRow)
	if err != nil {
		return err
	}

	metaRecord, err := c.sheetMetadataRecord(meta, inferred.Columns)
	if err != nil {
		return err
	}
	if err := c.Sink.WriteRecord(SheetMetadataStream, metaRecord, c.now().UTC(), nil); err != nil {
		return err
	}

	if err := c.Sink.WriteSchema(stream, inferred.Schema, []string{sheets.MetaRow}); err != nil {
		return err
	}
	if err := c.persist(st); err != nil {
		return err
	}

	version := c.now().UnixMilli()
	if _, synced := st.VersionBookmark(stream); !synced {
		// First sync of this sheet: tell the sink up front that a full
		// replace is coming.
		logger.Info("first sync for stream, activating version early", "version", version)
		if err := c.Sink.WriteActivateVersion(stream, version); err != nil {
			return err
		}
	}

	lastRow := sheet.Range.LastRow
	if lastRow == 0 || lastRow > meta.Properties.RowCount {
		lastRow = meta.Properties.RowCount
	}

	builder := &sheets.RecordBuilder{
		SpreadsheetID: c.Config.SpreadsheetID,
		SheetID:       meta.Properties.SheetID,
		Columns:       inferred.Columns,
		Coercer: &sheets.Coercer{
			Sheet:      sheet.Title,
			NullValues: c.Config.NullValues,
			Logger:     logger,
		},
	}

	var total int
	for page, err := range fetcher.Pages(ctx, sheet.Range, lastRow) {
		if err != nil {
			return err
		}
		records := builder.Build(page)
		for _, rec := range records {
			if err := c.Sink.WriteRecord(stream, rec, page.CapturedAt, &version); err != nil {
				return err
			}
		}
		total += len(records)
		c.Tracker.AddPage(stream, len(records))
		logger.Debug("page emitted", "rows", page.Window.To-page.Window.From+1, "records", len(records))
	}

	if err := c.Sink.WriteActivateVersion(stream, version); err != nil {
		return err
	}

	st.SetVersionBookmark(stream, version)
	st.CurrentlySyncing = ""
	if err := c.persist(st); err != nil {
		return err
	}

	c.Tracker.Finish(stream, false)
	logger.Info("sheet synced", "records", total, "version", version)
	return nil
}

// persist writes state durably and publishes it to the sink.
func (c *Controller) persist(st *state.State) error {
	if err := c.Store.Save(*st); err != nil {
		return err
	}
	return c.Sink.WriteState(*st)
}
