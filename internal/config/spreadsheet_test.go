package config

import (
	"strings"
	"testing"
	"time"
)

const validConfig = `{
	"sa_keyfile": "/secrets/sa.json",
	"spreadsheet_id": "sheet-abc-123",
	"user_agent": "sheetsync test",
	"start_date": "2024-01-01T00:00:00Z",
	"sheets": {
		"Orders": {
			"headers": [
				{"name": "id", "type": ["null", "integer"]},
				{"name": "placed", "format": "date-time"},
				{"name": "note"}
			],
			"data": "A2:C1000"
		},
		"Inventory": {
			"headers": [{"name": "sku"}],
			"data": "B2:B",
			"target_table": "inventory",
			"schema_inference": "declared"
		}
	}
}`

func TestParseSpreadsheet(t *testing.T) {
	cfg, err := ParseSpreadsheet([]byte(validConfig))
	if err != nil {
		t.Fatalf("ParseSpreadsheet() error = %v", err)
	}

	if cfg.SpreadsheetID != "sheet-abc-123" {
		t.Errorf("SpreadsheetID = %q", cfg.SpreadsheetID)
	}
	if !cfg.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", cfg.StartDate)
	}

	// defaults
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if len(cfg.NullValues) != 1 || cfg.NullValues[0] != "---" {
		t.Errorf("NullValues = %v, want [---]", cfg.NullValues)
	}

	// document order is preserved
	if len(cfg.Sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(cfg.Sheets))
	}
	if cfg.Sheets[0].Title != "Orders" || cfg.Sheets[1].Title != "Inventory" {
		t.Errorf("sheet order = %q, %q", cfg.Sheets[0].Title, cfg.Sheets[1].Title)
	}

	orders := cfg.Sheets[0]
	if len(orders.Columns) != 3 {
		t.Fatalf("Orders has %d columns, want 3", len(orders.Columns))
	}
	if orders.Columns[1].DeclaredFormat != "date-time" {
		t.Errorf("placed format = %q", orders.Columns[1].DeclaredFormat)
	}
	if orders.Range.String() != "A2:C1000" {
		t.Errorf("Orders range = %s", orders.Range.String())
	}
	if orders.Strategy() != InferenceIntrospect {
		t.Errorf("Orders strategy = %q, want introspect default", orders.Strategy())
	}

	inventory := cfg.Sheets[1]
	if inventory.Range.LastRow != 0 {
		t.Errorf("Inventory LastRow = %d, want 0 (unbounded)", inventory.Range.LastRow)
	}
	if inventory.Strategy() != InferenceDeclared {
		t.Errorf("Inventory strategy = %q", inventory.Strategy())
	}
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		sheet Sheet
		want  string
	}{
		{Sheet{Title: "Orders"}, "Orders_sheet__abc"},
		{Sheet{Title: "Q1-Results"}, "Q1__Results_sheet__abc"},
		{Sheet{Title: "Orders", TargetTable: "orders"}, "orders"},
	}

	for _, tt := range tests {
		if got := tt.sheet.StreamName("sheet-abc"); got != tt.want {
			t.Errorf("StreamName(%q) = %q, want %q", tt.sheet.Title, got, tt.want)
		}
	}
}

func TestParseSpreadsheetErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(string) string
		wants  string
	}{
		{
			name:   "missing spreadsheet id",
			mutate: func(s string) string { return strings.Replace(s, `"spreadsheet_id": "sheet-abc-123",`, "", 1) },
			wants:  "spreadsheet_id",
		},
		{
			name:   "missing start date",
			mutate: func(s string) string { return strings.Replace(s, `"start_date": "2024-01-01T00:00:00Z",`, "", 1) },
			wants:  "start_date",
		},
		{
			name:   "header count does not span range",
			mutate: func(s string) string { return strings.Replace(s, "A2:C1000", "A2:D1000", 1) },
			wants:  "4 columns but 3 headers",
		},
		{
			name:   "malformed range",
			mutate: func(s string) string { return strings.Replace(s, "A2:C1000", "2A:C1000", 1) },
			wants:  `sheets["Orders"].data`,
		},
		{
			name:   "duplicate header",
			mutate: func(s string) string { return strings.Replace(s, `{"name": "note"}`, `{"name": "id"}`, 1) },
			wants:  "duplicate header",
		},
		{
			name:   "reserved prefix",
			mutate: func(s string) string { return strings.Replace(s, `{"name": "note"}`, `{"name": "__sdc_note"}`, 1) },
			wants:  "reserved",
		},
		{
			name:   "unknown declared format",
			mutate: func(s string) string { return strings.Replace(s, "date-time", "datetime", 1) },
			wants:  "unknown format",
		},
		{
			name:   "bad inference strategy",
			mutate: func(s string) string { return strings.Replace(s, "declared", "guess", 1) },
			wants:  "schema_inference",
		},
		{
			name:   "no sheets",
			mutate: func(s string) string { return strings.Replace(s, `"sheets": {`, `"sheets_x": {`, 1) },
			wants:  "", // unknown field rejected outright
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpreadsheet([]byte(tt.mutate(validConfig)))
			if err == nil {
				t.Fatal("ParseSpreadsheet() expected error, got nil")
			}
			if tt.wants != "" && !strings.Contains(err.Error(), tt.wants) {
				t.Errorf("error %q should mention %q", err, tt.wants)
			}
		})
	}
}

// All field errors are reported together, not one at a time.
func TestParseSpreadsheetCollectsAllErrors(t *testing.T) {
	bad := strings.Replace(validConfig, `"spreadsheet_id": "sheet-abc-123",`, "", 1)
	bad = strings.Replace(bad, `"user_agent": "sheetsync test",`, "", 1)

	_, err := ParseSpreadsheet([]byte(bad))
	if err == nil {
		t.Fatal("ParseSpreadsheet() expected error, got nil")
	}
	for _, field := range []string{"spreadsheet_id", "user_agent"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should mention %s", err, field)
		}
	}
}
