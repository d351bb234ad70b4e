package sheets

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Windows Tests
// ---------------------------------------------------------------------------

func TestWindows(t *testing.T) {
	tests := []struct {
		name      string
		firstRow  int
		lastRow   int
		batchSize int
		want      []Window
	}{
		{
			name:     "exact multiple plus remainder",
			firstRow: 2, lastRow: 1000, batchSize: 300,
			want: []Window{{2, 301}, {302, 601}, {602, 901}, {902, 1000}},
		},
		{
			name:     "single partial window",
			firstRow: 2, lastRow: 50, batchSize: 300,
			want: []Window{{2, 50}},
		},
		{
			name:     "single full window",
			firstRow: 1, lastRow: 300, batchSize: 300,
			want: []Window{{1, 300}},
		},
		{
			name:     "one row",
			firstRow: 5, lastRow: 5, batchSize: 300,
			want: []Window{{5, 5}},
		},
		{
			name:     "empty span",
			firstRow: 10, lastRow: 9, batchSize: 300,
			want: nil,
		},
		{
			name:     "batch of one",
			firstRow: 2, lastRow: 4, batchSize: 1,
			want: []Window{{2, 2}, {3, 3}, {4, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Windows(tt.firstRow, tt.lastRow, tt.batchSize)
			if len(got) != len(tt.want) {
				t.Fatalf("Windows(%d, %d, %d) = %v, want %v",
					tt.firstRow, tt.lastRow, tt.batchSize, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Windows(%d, %d, %d) = %v, want %v",
						tt.firstRow, tt.lastRow, tt.batchSize, got, tt.want)
				}
			}
		})
	}
}

// Windows must cover the span exactly once with no gaps or overlap.
func TestWindowsContiguous(t *testing.T) {
	for _, last := range []int{2, 299, 300, 301, 999, 1000, 1001} {
		next := 2
		for _, w := range Windows(2, last, 300) {
			if w.From != next {
				t.Fatalf("lastRow=%d: window starts at %d, want %d", last, w.From, next)
			}
			if w.To < w.From {
				t.Fatalf("lastRow=%d: inverted window %+v", last, w)
			}
			next = w.To + 1
		}
		if next != last+1 {
			t.Fatalf("lastRow=%d: windows end at %d, want %d", last, next-1, last)
		}
	}
}

// ---------------------------------------------------------------------------
// Fetcher Tests
// ---------------------------------------------------------------------------

// stubClient serves canned grid responses and records the ranges requested.
type stubClient struct {
	responses map[string]string
	requested []string
}

func (s *stubClient) Get(_ context.Context, _ string, _ string, query url.Values, _ string) (json.RawMessage, time.Time, error) {
	rng := query.Get("ranges")
	s.requested = append(s.requested, rng)
	body, ok := s.responses[rng]
	if !ok {
		body = `{"sheets":[{"data":[{}]}]}`
	}
	return json.RawMessage(body), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), nil
}

func TestFetcherPages(t *testing.T) {
	client := &stubClient{responses: map[string]string{
		"Orders!A2:B3": `{"sheets":[{"data":[{
			"rowData":[
				{"values":[{"effectiveValue":{"stringValue":"x"}},{"effectiveValue":{"numberValue":1}}]},
				{"values":[{"effectiveValue":{"stringValue":"y"}}]}
			],
			"rowMetadata":[{},{"hiddenByUser":true}]
		}]}]}`,
		"Orders!A4:B5": `{"sheets":[{"data":[{
			"rowData":[
				{"values":[{"effectiveValue":{"stringValue":"z"}}]}
			]
		}]}]}`,
	}}

	f := &Fetcher{Client: client, SpreadsheetID: "sp1", Title: "Orders", BatchSize: 2}
	rng := mustParseRange(t, "A2:B10")

	var pages []Page
	for page, err := range f.Pages(context.Background(), rng, 5) {
		if err != nil {
			t.Fatalf("Pages yielded error: %v", err)
		}
		pages = append(pages, page)
	}

	wantRanges := []string{"Orders!A2:B3", "Orders!A4:B5"}
	if len(client.requested) != len(wantRanges) {
		t.Fatalf("requested ranges = %v, want %v", client.requested, wantRanges)
	}
	for i := range wantRanges {
		if client.requested[i] != wantRanges[i] {
			t.Fatalf("requested ranges = %v, want %v", client.requested, wantRanges)
		}
	}

	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}

	// rows are padded to the window size
	if len(pages[0].Rows) != 2 || len(pages[1].Rows) != 2 {
		t.Fatalf("page row counts = %d, %d, want 2 each", len(pages[0].Rows), len(pages[1].Rows))
	}
	if !pages[0].Rows[1].Hidden {
		t.Error("second row of first page should carry the hidden flag")
	}
	if !pages[1].Rows[1].IsEmpty() {
		t.Error("padded trailing row should be empty")
	}
	if pages[0].Window != (Window{2, 3}) || pages[1].Window != (Window{4, 5}) {
		t.Errorf("windows = %+v, %+v", pages[0].Window, pages[1].Window)
	}
}
