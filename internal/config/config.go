// Package config provides centralized configuration management.
//
// Two sources feed a run: environment variables carry the ambient settings
// (logging, sink selection, transport timeouts) with sensible defaults and
// fail-fast validation, and a JSON document declares the spreadsheet to
// extract (credentials path, sheets, headers, ranges). The JSON document is
// parsed once into immutable structures; malformed input is rejected at
// load time with field-path error messages, never at first use.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/sheets"
)

// Settings holds the environment-variable driven configuration.
type Settings struct {
	Logging LoggingSettings
	Sink    SinkSettings
	Client  ClientSettings
	Status  StatusSettings
}

// LoggingSettings holds logging settings.
type LoggingSettings struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SinkSettings selects where schemas, records, and state go.
type SinkSettings struct {
	// Kind is the sink implementation: singer or postgres (default: singer)
	Kind string `env:"SINK" default:"singer"`

	// DatabaseURL is the PostgreSQL connection string, required for the
	// postgres sink. Supports both DATABASE_URL and DB_URL env vars.
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// TablePrefix is prepended to stream table names in the postgres sink.
	TablePrefix string `env:"SINK_TABLE_PREFIX"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`
}

// ClientSettings tunes the API transport.
type ClientSettings struct {
	// RequestTimeout bounds a single API request attempt (default: 300s)
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" default:"300s"`

	// RetryElapsed bounds total retry time for one request (default: 10m)
	RetryElapsed time.Duration `env:"RETRY_ELAPSED" default:"10m"`
}

// StatusSettings controls the optional progress endpoint.
type StatusSettings struct {
	// Addr is the listen address for /healthz and /progress.
	// Empty disables the endpoint (default: disabled).
	Addr string `env:"STATUS_ADDR"`
}

// Validate checks the ambient settings for consistency.
// Returns an error describing all validation failures, or nil if valid.
func (s *Settings) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", s.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(s.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", s.Logging.Format))
	}

	switch s.Sink.Kind {
	case "singer":
	case "postgres":
		if s.Sink.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when SINK is postgres")
		}
		if s.Sink.MaxConns < 1 {
			errs = append(errs, "DB_MAX_CONNS must be at least 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("SINK (%q) must be one of: singer, postgres", s.Sink.Kind))
	}

	if s.Client.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}
	if s.Client.RetryElapsed <= 0 {
		errs = append(errs, "RETRY_ELAPSED must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Spreadsheet is the validated extraction declaration: one source
// spreadsheet and the sheets to pull from it. Immutable for the run.
type Spreadsheet struct {
	KeyfilePath   string
	SpreadsheetID string
	UserAgent     string
	StartDate     time.Time
	BatchSize     int
	NullValues    []string
	Sheets        []Sheet
}

// Sheet is one configured worksheet tab.
type Sheet struct {
	Title       string
	Columns     []sheets.ColumnSpec
	Range       sheets.Range
	TargetTable string

	// Inference selects the schema strategy: "introspect" (default) reads
	// first-row cell metadata, "declared" trusts the header declarations.
	Inference string
}

// Schema strategy names accepted in sheet configuration.
const (
	InferenceIntrospect = "introspect"
	InferenceDeclared   = "declared"
)

// StreamName returns the sheet's output stream name: the configured
// target_table when set, otherwise "<title>_<spreadsheet_id>" with every
// dash doubled to underscores so the name is safe as an identifier.
func (s Sheet) StreamName(spreadsheetID string) string {
	if s.TargetTable != "" {
		return s.TargetTable
	}
	return strings.ReplaceAll(s.Title+"_"+spreadsheetID, "-", "__")
}

// Strategy returns the sheet's schema strategy, defaulting to introspect.
func (s Sheet) Strategy() string {
	if s.Inference == "" {
		return InferenceIntrospect
	}
	return s.Inference
}

// declaredFormats is the set of JSON-Schema format names accepted on a
// declared header column.
var declaredFormats = map[string]bool{
	"color": true, "email": true, "idn-email": true,
	"ip-address": true, "ipv4": true, "ipv6": true,
	"hostname": true, "host-name": true, "idn-hostname": true,
	"uri": true, "uri-template": true, "uri-reference": true,
	"iri": true, "iri-reference": true,
	"date-time": true, "date": true, "time": true, "duration": true,
	"regex": true, "uuid": true,
	"json-pointer": true, "relative-json-pointer": true,
}

// validate checks the spreadsheet declaration, accumulating every problem
// with the JSON path of the offending field.
func (c *Spreadsheet) validate() error {
	var errs []string
	addf := func(path, format string, args ...any) {
		errs = append(errs, path+": "+fmt.Sprintf(format, args...))
	}

	if c.KeyfilePath == "" {
		addf("sa_keyfile", "is required")
	}
	if c.SpreadsheetID == "" {
		addf("spreadsheet_id", "is required")
	}
	if c.UserAgent == "" {
		addf("user_agent", "is required")
	}
	if c.StartDate.IsZero() {
		addf("start_date", "is required")
	}
	if c.BatchSize < 1 {
		addf("batch_size", "must be positive, got %d", c.BatchSize)
	}
	if len(c.Sheets) == 0 {
		addf("sheets", "at least one sheet must be configured")
	}

	for _, sheet := range c.Sheets {
		path := fmt.Sprintf("sheets[%q]", sheet.Title)

		if len(sheet.Columns) == 0 {
			addf(path+".headers", "header list is empty")
		}
		if sheet.Range == (sheets.Range{}) {
			// Range failed to parse; the loader already recorded why.
			continue
		}

		if span := sheet.Range.ColumnCount(); len(sheet.Columns) > 0 && span != len(sheet.Columns) {
			addf(path+".data", "range %s spans %d columns but %d headers are declared",
				sheet.Range.String(), span, len(sheet.Columns))
		}

		seen := make(map[string]bool, len(sheet.Columns))
		for i, col := range sheet.Columns {
			colPath := fmt.Sprintf("%s.headers[%d]", path, i)
			if col.Name == "" {
				addf(colPath+".name", "is required")
				continue
			}
			if seen[col.Name] {
				addf(colPath+".name", "duplicate header %q", col.Name)
			}
			seen[col.Name] = true
			if strings.HasPrefix(col.Name, sheets.MetaPrefix) {
				addf(colPath+".name", "%q collides with the reserved %s prefix", col.Name, sheets.MetaPrefix)
			}
			if col.DeclaredFormat != "" && !declaredFormats[col.DeclaredFormat] {
				addf(colPath+".format", "unknown format %q", col.DeclaredFormat)
			}
		}

		switch sheet.Strategy() {
		case InferenceIntrospect, InferenceDeclared:
		default:
			addf(path+".schema_inference", "must be %q or %q, got %q",
				InferenceIntrospect, InferenceDeclared, sheet.Inference)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
