package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/sheets"
	"github.com/JonMunkholm/sheetsync/internal/state"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeClient serves canned responses routed by API and requested range.
type fakeClient struct {
	modifiedTime string
	grids        map[string]string
	calls        []string
}

func (f *fakeClient) Get(_ context.Context, api, path string, query url.Values, _ string) (json.RawMessage, time.Time, error) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if api == "files" {
		f.calls = append(f.calls, "files:"+path)
		body := fmt.Sprintf(`{
			"id": %q, "name": "Book", "version": "41",
			"createdTime": "2024-01-01T00:00:00Z",
			"modifiedTime": %q,
			"lastModifyingUser": {
				"kind": "drive#user", "displayName": "Ops",
				"emailAddress": "ops@example.com",
				"photoLink": "https://example.com/p.jpg", "me": false,
				"permissionId": "123"
			}
		}`, path, f.modifiedTime)
		return json.RawMessage(body), now, nil
	}

	rng := query.Get("ranges")
	f.calls = append(f.calls, "sheets:"+rng)
	body, ok := f.grids[rng]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("unexpected range %q", rng)
	}
	return json.RawMessage(body), now, nil
}

type sinkEvent struct {
	kind    string
	stream  string
	version *int64
	record  map[string]any
	schema  *schema.Schema
}

// fakeSink records every call in order.
type fakeSink struct {
	events []sinkEvent
	states []state.State
}

func (f *fakeSink) WriteSchema(stream string, sch *schema.Schema, _ []string) error {
	f.events = append(f.events, sinkEvent{kind: "schema", stream: stream, schema: sch})
	return nil
}

func (f *fakeSink) WriteRecord(stream string, record map[string]any, _ time.Time, version *int64) error {
	f.events = append(f.events, sinkEvent{kind: "record", stream: stream, record: record, version: version})
	return nil
}

func (f *fakeSink) WriteActivateVersion(stream string, version int64) error {
	f.events = append(f.events, sinkEvent{kind: "activate", stream: stream, version: &version})
	return nil
}

func (f *fakeSink) WriteState(st state.State) error {
	f.states = append(f.states, st)
	return nil
}

func (f *fakeSink) streamEvents(stream string) []sinkEvent {
	var out []sinkEvent
	for _, e := range f.events {
		if e.stream == stream {
			out = append(out, e)
		}
	}
	return out
}

// memStore keeps state in memory and remembers every saved snapshot.
type memStore struct {
	current state.State
	saves   []state.State
}

func (m *memStore) Load() (state.State, error) { return m.current, nil }

func (m *memStore) Save(st state.State) error {
	cp := state.State{CurrentlySyncing: st.CurrentlySyncing, Bookmarks: map[string]json.RawMessage{}}
	for k, v := range st.Bookmarks {
		cp.Bookmarks[k] = append(json.RawMessage(nil), v...)
	}
	m.current = cp
	m.saves = append(m.saves, cp)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const ordersMetadataGrid = `{"sheets":[{
	"properties": {"sheetId": 77, "title": "Orders", "index": 0,
		"gridProperties": {"rowCount": 100, "columnCount": 26}},
	"data":[{"rowData":[{"values":[
		{"effectiveValue":{"stringValue":"alpha"}},
		{"effectiveValue":{"numberValue":10},
		 "effectiveFormat":{"numberFormat":{"type":"NUMBER"}}}
	]}]}]}]}`

const ordersDataGrid = `{"sheets":[{"data":[{
	"rowData":[
		{"values":[{"effectiveValue":{"stringValue":"alpha"}},{"effectiveValue":{"numberValue":10}}]},
		{"values":[]},
		{"values":[{"effectiveValue":{"stringValue":"beta"}},{"effectiveValue":{"numberValue":12.5}}]}
	],
	"rowMetadata":[{},{},{"hiddenByUser":true}]
}]}]}`

func testConfig(t *testing.T) *config.Spreadsheet {
	t.Helper()
	rng, err := sheets.ParseRange("A2:B4")
	require.NoError(t, err)

	return &config.Spreadsheet{
		KeyfilePath:   "/secrets/sa.json",
		SpreadsheetID: "sp-1",
		UserAgent:     "sheetsync test",
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BatchSize:     300,
		NullValues:    []string{"---"},
		Sheets: []config.Sheet{{
			Title:       "Orders",
			TargetTable: "orders",
			Range:       rng,
			Columns: []sheets.ColumnSpec{
				{Name: "name"},
				{Name: "amount"},
			},
		}},
	}
}

func testController(cfg *config.Spreadsheet, client *fakeClient, out *fakeSink, store *memStore) *Controller {
	return &Controller{
		Client: client,
		Sink:   out,
		Store:  store,
		Config: cfg,
		Logger: slog.Default(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func freshClient() *fakeClient {
	return &fakeClient{
		modifiedTime: "2026-03-01T09:00:00Z",
		grids: map[string]string{
			"Orders!A2:B2": ordersMetadataGrid,
			"Orders!A2:B4": ordersDataGrid,
		},
	}
}

// ---------------------------------------------------------------------------
// Run Tests
// ---------------------------------------------------------------------------

func TestRunFirstSync(t *testing.T) {
	client := freshClient()
	out := &fakeSink{}
	store := &memStore{current: state.New()}
	c := testController(testConfig(t), client, out, store)

	require.NoError(t, c.Run(context.Background()))

	// file_metadata stream: schema then the single pruned record
	fm := out.streamEvents(FileMetadataStream)
	require.Len(t, fm, 2)
	require.Equal(t, "schema", fm[0].kind)
	require.Equal(t, "record", fm[1].kind)
	require.Equal(t, int64(41), fm[1].record["version"],
		"file version must be an integer matching the declared schema")
	user, ok := fm[1].record["lastModifyingUser"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Ops", user["displayName"])
	require.NotContains(t, user, "photoLink")
	require.NotContains(t, user, "permissionId")

	// sheet_metadata stream: schema then one record per sheet
	sm := out.streamEvents(SheetMetadataStream)
	require.Len(t, sm, 2)
	require.Equal(t, "sp-1", sm[1].record["spreadsheetId"])
	require.Equal(t, "https://docs.google.com/spreadsheets/d/sp-1/edit#gid=77", sm[1].record["sheetUrl"])

	// data stream: schema, pre-activate, records, post-activate
	orders := out.streamEvents("orders")
	require.Len(t, orders, 5)
	wantVersion := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	require.Equal(t, "schema", orders[0].kind)
	require.Equal(t, "activate", orders[1].kind)
	require.Equal(t, wantVersion, *orders[1].version)

	require.Equal(t, "record", orders[2].kind)
	require.Equal(t, "record", orders[3].kind)
	// row 3 is empty: the surviving records are rows 2 and 4
	require.Equal(t, 2, orders[2].record[sheets.MetaRow])
	require.Equal(t, 4, orders[3].record[sheets.MetaRow])
	require.Equal(t, true, orders[3].record[sheets.MetaIsHidden])
	require.Equal(t, wantVersion, *orders[2].version)

	require.Equal(t, "activate", orders[4].kind)
	require.Equal(t, wantVersion, *orders[4].version)

	// bookmarks: sheet version plus the observed file modification time
	v, ok := store.current.VersionBookmark("orders")
	require.True(t, ok)
	require.Equal(t, wantVersion, v)
	ts, ok := store.current.TimeBookmark(FileMetadataStream)
	require.True(t, ok)
	require.Equal(t, "2026-03-01T09:00:00Z", ts.Format(time.RFC3339))

	require.Empty(t, store.current.CurrentlySyncing)
}

func TestRunSecondSyncSkipsPreActivate(t *testing.T) {
	client := freshClient()
	out := &fakeSink{}
	store := &memStore{current: state.New()}
	store.current.SetVersionBookmark("orders", 1700000000000)
	c := testController(testConfig(t), client, out, store)

	require.NoError(t, c.Run(context.Background()))

	var activates int
	for _, e := range out.streamEvents("orders") {
		if e.kind == "activate" {
			activates++
		}
	}
	require.Equal(t, 1, activates, "an already-synced sheet gets only the post-sync marker")

	// post-sync marker comes after the last record
	orders := out.streamEvents("orders")
	require.Equal(t, "activate", orders[len(orders)-1].kind)
}

func TestRunShortCircuitWhenNotModified(t *testing.T) {
	client := freshClient()
	out := &fakeSink{}
	store := &memStore{current: state.New()}
	bookmark := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) // after modifiedTime
	store.current.SetTimeBookmark(FileMetadataStream, bookmark)
	c := testController(testConfig(t), client, out, store)

	require.NoError(t, c.Run(context.Background()))

	// no sheet traffic at all: one Drive call, zero grid calls
	require.Equal(t, []string{"files:sp-1"}, client.calls)
	require.Empty(t, out.events)

	// the unchanged bookmark is still rewritten
	require.NotEmpty(t, store.saves)
	ts, ok := store.current.TimeBookmark(FileMetadataStream)
	require.True(t, ok)
	require.True(t, ts.Equal(bookmark))
	require.Len(t, out.states, 1)
}

func TestRunClearsStaleCurrentlySyncing(t *testing.T) {
	client := freshClient()
	out := &fakeSink{}
	store := &memStore{current: state.New()}
	store.current.CurrentlySyncing = "orders"
	c := testController(testConfig(t), client, out, store)

	require.NoError(t, c.Run(context.Background()))
	require.Empty(t, store.current.CurrentlySyncing)

	// the full window sequence ran again despite the marker
	require.Contains(t, client.calls, "sheets:Orders!A2:B4")
}

// The recovery marker must be durably set while the sheet is mid-flight.
func TestRunPersistsCurrentlySyncingDuringSheet(t *testing.T) {
	client := freshClient()
	out := &fakeSink{}
	store := &memStore{current: state.New()}
	c := testController(testConfig(t), client, out, store)

	require.NoError(t, c.Run(context.Background()))

	var sawMarker bool
	for _, snap := range store.saves {
		if snap.CurrentlySyncing == "orders" {
			sawMarker = true
		}
	}
	require.True(t, sawMarker, "currently_syncing was never persisted as %q", "orders")
	require.Empty(t, store.saves[len(store.saves)-1].CurrentlySyncing)
}

func TestRunSchemaInferenceErrorAborts(t *testing.T) {
	client := freshClient()
	client.grids["Orders!A2:B2"] = `{"sheets":[{
		"properties": {"sheetId": 77, "title": "Orders", "index": 0,
			"gridProperties": {"rowCount": 100, "columnCount": 26}},
		"data":[{"rowData":[{"values":[
			{"effectiveValue":{"stringValue":"alpha"}},
			{"effectiveValue":{"formulaValue":"=SUM(A:A)"}}
		]}]}]}]}`

	out := &fakeSink{}
	store := &memStore{current: state.New()}
	c := testController(testConfig(t), client, out, store)

	err := c.Run(context.Background())
	require.Error(t, err)

	var schemaErr *sheets.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "amount", schemaErr.Column)

	// the file bookmark must not advance, so the next run retries
	_, ok := store.current.TimeBookmark(FileMetadataStream)
	require.False(t, ok)
}

func TestRunTransportErrorLeavesFileBookmark(t *testing.T) {
	client := freshClient()
	delete(client.grids, "Orders!A2:B4") // window fetch will fail

	out := &fakeSink{}
	store := &memStore{current: state.New()}
	c := testController(testConfig(t), client, out, store)

	err := c.Run(context.Background())
	require.Error(t, err)

	_, ok := store.current.TimeBookmark(FileMetadataStream)
	require.False(t, ok, "file bookmark must stay put when a sheet failed")
	_, ok = store.current.VersionBookmark("orders")
	require.False(t, ok, "failed sheet must not record a version bookmark")
}
