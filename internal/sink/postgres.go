package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/state"
)

// insertBatchSize is the number of buffered rows flushed per transaction.
const insertBatchSize = 500

// stateTable holds the persisted state document for resumability when the
// sink is the system of record.
const stateTable = "sync_state"

// Postgres loads records into one table per stream. WriteSchema creates the
// table if needed, records carry the table version in _sdc_version, and an
// activate-version call deletes rows from older versions.
type Postgres struct {
	ctx    context.Context
	pool   *pgxpool.Pool
	prefix string
	logger *slog.Logger

	// per-stream column order captured at WriteSchema time
	columns map[string][]string
	pending map[string][]pendingRow
}

type pendingRow struct {
	values      []any
	extractedAt time.Time
	version     *int64
}

// PostgresOptions configures the Postgres sink.
type PostgresOptions struct {
	DatabaseURL string
	TablePrefix string
	MaxConns    int
	Logger      *slog.Logger
}

// NewPostgres connects to the database and prepares the state table.
func NewPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("sink: parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sink: ping: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Postgres{
		ctx:     ctx,
		pool:    pool,
		prefix:  opts.TablePrefix,
		logger:  logger,
		columns: make(map[string][]string),
		pending: make(map[string][]pendingRow),
	}
	if err := p.ensureStateTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close flushes buffered rows and releases the connection pool.
func (p *Postgres) Close() error {
	err := p.flushAll()
	p.pool.Close()
	return err
}

func (p *Postgres) WriteSchema(stream string, sch *schema.Schema, keyProperties []string) error {
	cols := make([]string, 0, len(sch.Properties))
	defs := make([]string, 0, len(sch.Properties)+2)
	for _, prop := range sch.Properties {
		cols = append(cols, prop.Name)
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdentifier(prop.Name), columnType(prop.Property)))
	}
	defs = append(defs,
		"_sdc_version bigint",
		"_sdc_extracted_at timestamptz not null default now()",
	)

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		p.tableName(stream), strings.Join(defs, ", "))
	if _, err := p.pool.Exec(p.ctx, query); err != nil {
		return fmt.Errorf("sink: create table for %s: %w", stream, err)
	}

	p.columns[stream] = cols
	p.logger.Debug("stream table ready", "stream", stream, "table", p.tableName(stream), "columns", len(cols))
	return nil
}

func (p *Postgres) WriteRecord(stream string, record map[string]any, extractedAt time.Time, version *int64) error {
	cols, ok := p.columns[stream]
	if !ok {
		return fmt.Errorf("sink: record for %s before its schema", stream)
	}

	values := make([]any, len(cols))
	for i, col := range cols {
		values[i] = record[col]
	}
	p.pending[stream] = append(p.pending[stream], pendingRow{
		values:      values,
		extractedAt: extractedAt,
		version:     version,
	})

	if len(p.pending[stream]) >= insertBatchSize {
		return p.flush(stream)
	}
	return nil
}

func (p *Postgres) WriteActivateVersion(stream string, version int64) error {
	if err := p.flush(stream); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE _sdc_version IS NULL OR _sdc_version < $1",
		p.tableName(stream))
	tag, err := p.pool.Exec(p.ctx, query, version)
	if err != nil {
		return fmt.Errorf("sink: activate version %d on %s: %w", version, stream, err)
	}
	p.logger.Info("activated table version",
		"stream", stream, "version", version, "retired_rows", tag.RowsAffected())
	return nil
}

func (p *Postgres) WriteState(st state.State) error {
	if err := p.flushAll(); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, document, updated_at)
		VALUES ('default', $1, now())
		ON CONFLICT (key) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		quoteIdentifier(stateTable))
	if _, err := p.pool.Exec(p.ctx, query, st); err != nil {
		return fmt.Errorf("sink: write state: %w", err)
	}
	return nil
}

// LoadState reads the persisted state document, returning an empty state
// when none has been written yet.
func (p *Postgres) LoadState() (state.State, error) {
	query := fmt.Sprintf("SELECT document FROM %s WHERE key = 'default'", quoteIdentifier(stateTable))

	var st state.State
	err := p.pool.QueryRow(p.ctx, query).Scan(&st)
	if err == pgx.ErrNoRows {
		return state.New(), nil
	}
	if err != nil {
		return state.State{}, fmt.Errorf("sink: load state: %w", err)
	}
	return st, nil
}

// StateStore exposes the sink's state table as a state.Store, so a postgres
// run keeps its sync state next to its data instead of in a local file.
func (p *Postgres) StateStore() state.Store {
	return pgStateStore{p}
}

type pgStateStore struct {
	p *Postgres
}

func (s pgStateStore) Load() (state.State, error) {
	return s.p.LoadState()
}

func (s pgStateStore) Save(st state.State) error {
	return s.p.WriteState(st)
}

func (p *Postgres) flushAll() error {
	for stream := range p.pending {
		if err := p.flush(stream); err != nil {
			return err
		}
	}
	return nil
}

// flush inserts buffered rows for stream in one transaction using a
// pipelined batch.
func (p *Postgres) flush(stream string) error {
	rows := p.pending[stream]
	if len(rows) == 0 {
		return nil
	}
	p.pending[stream] = nil

	cols := p.columns[stream]
	quoted := make([]string, 0, len(cols)+2)
	for _, col := range cols {
		quoted = append(quoted, quoteIdentifier(col))
	}
	quoted = append(quoted, "_sdc_version", "_sdc_extracted_at")

	placeholders := make([]string, len(quoted))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.tableName(stream), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, 0, len(row.values)+2)
		args = append(args, row.values...)
		args = append(args, row.version, pgtype.Timestamptz{Time: row.extractedAt, Valid: true})
		batch.Queue(query, args...)
	}

	tx, err := p.pool.Begin(p.ctx)
	if err != nil {
		return fmt.Errorf("sink: begin insert tx for %s: %w", stream, err)
	}
	defer tx.Rollback(p.ctx)

	br := tx.SendBatch(p.ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("sink: insert into %s: %w", stream, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("sink: close batch for %s: %w", stream, err)
	}
	if err := tx.Commit(p.ctx); err != nil {
		return fmt.Errorf("sink: commit insert tx for %s: %w", stream, err)
	}

	p.logger.Debug("flushed records", "stream", stream, "rows", len(rows))
	return nil
}

func (p *Postgres) ensureStateTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key text PRIMARY KEY,
		document jsonb NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`, quoteIdentifier(stateTable))
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("sink: create state table: %w", err)
	}
	return nil
}

func (p *Postgres) tableName(stream string) string {
	return quoteIdentifier(p.prefix + stream)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnType maps a JSON-Schema property to a PostgreSQL column type.
func columnType(prop schema.Property) string {
	switch prop.Format {
	case "date-time":
		return "timestamptz"
	case "date":
		return "date"
	case "time":
		return "text"
	}
	for _, t := range prop.Types {
		switch t {
		case "number", "integer":
			return "double precision"
		case "boolean":
			return "boolean"
		case "object", "array":
			return "jsonb"
		}
	}
	return "text"
}
