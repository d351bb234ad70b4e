package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/sheets"
)

// Declaration defaults.
const (
	DefaultBatchSize = 300
)

// defaultNullValues are the cell sentinels treated as null when no
// null_values list is configured.
var defaultNullValues = []string{"---"}

// rawSpreadsheet mirrors the JSON document shape before validation.
type rawSpreadsheet struct {
	SAKeyfile     string          `json:"sa_keyfile"`
	SpreadsheetID string          `json:"spreadsheet_id"`
	UserAgent     string          `json:"user_agent"`
	StartDate     string          `json:"start_date"`
	BatchSize     *int            `json:"batch_size"`
	NullValues    []string        `json:"null_values"`
	Sheets        json.RawMessage `json:"sheets"`
}

type rawSheet struct {
	Headers     []rawHeader `json:"headers"`
	Data        string      `json:"data"`
	TargetTable string      `json:"target_table"`
	Inference   string      `json:"schema_inference"`
}

type rawHeader struct {
	Name   string   `json:"name"`
	Type   []string `json:"type"`
	Format string   `json:"format"`
	Link   bool     `json:"link"`
}

// LoadSpreadsheet reads and validates the JSON extraction declaration at
// path. Sheets are returned in document order.
func LoadSpreadsheet(path string) (*Spreadsheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := ParseSpreadsheet(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseSpreadsheet parses and validates a JSON extraction declaration.
func ParseSpreadsheet(data []byte) (*Spreadsheet, error) {
	var raw rawSpreadsheet
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	cfg := &Spreadsheet{
		KeyfilePath:   raw.SAKeyfile,
		SpreadsheetID: raw.SpreadsheetID,
		UserAgent:     raw.UserAgent,
		BatchSize:     DefaultBatchSize,
		NullValues:    raw.NullValues,
	}
	if raw.BatchSize != nil {
		cfg.BatchSize = *raw.BatchSize
	}
	if cfg.NullValues == nil {
		cfg.NullValues = defaultNullValues
	}

	var parseErrs []string
	if raw.StartDate != "" {
		start, err := time.Parse(time.RFC3339, raw.StartDate)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("start_date: %v", err))
		} else {
			cfg.StartDate = start
		}
	}

	if len(raw.Sheets) > 0 {
		sheetList, errs := decodeSheets(raw.Sheets)
		cfg.Sheets = sheetList
		parseErrs = append(parseErrs, errs...)
	}

	if len(parseErrs) > 0 {
		return nil, fmt.Errorf("validation failed:\n  - %s", strings.Join(parseErrs, "\n  - "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeSheets decodes the "sheets" JSON object preserving key order.
// encoding/json maps lose document order, so the object is walked with a
// token decoder instead.
func decodeSheets(data json.RawMessage) ([]Sheet, []string) {
	var out []Sheet
	var errs []string

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, []string{fmt.Sprintf("sheets: %v", err)}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, []string{"sheets: must be a JSON object keyed by sheet title"}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out, append(errs, fmt.Sprintf("sheets: %v", err))
		}
		title := keyTok.(string)

		var raw rawSheet
		if err := dec.Decode(&raw); err != nil {
			return out, append(errs, fmt.Sprintf("sheets[%q]: %v", title, err))
		}

		sheet := Sheet{
			Title:       title,
			TargetTable: raw.TargetTable,
			Inference:   raw.Inference,
		}
		for _, h := range raw.Headers {
			sheet.Columns = append(sheet.Columns, sheets.ColumnSpec{
				Name:           h.Name,
				DeclaredType:   h.Type,
				DeclaredFormat: h.Format,
				Link:           h.Link,
			})
		}

		if raw.Data == "" {
			errs = append(errs, fmt.Sprintf("sheets[%q].data: is required", title))
		} else {
			rng, err := sheets.ParseRange(raw.Data)
			if err != nil {
				errs = append(errs, fmt.Sprintf("sheets[%q].data: %v", title, err))
			} else {
				sheet.Range = rng
			}
		}

		out = append(out, sheet)
	}

	return out, errs
}

