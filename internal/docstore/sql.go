package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the differences between the sqlite and postgres schemas.
type dialect struct {
	name      string
	dataType  string
	mergeExpr string
	orderExpr func(field string) string
	rebind    func(query string) string
}

var sqliteDialect = dialect{
	name:      "sqlite",
	dataType:  "TEXT",
	mergeExpr: "json_patch(documents.data, excluded.data)",
	orderExpr: func(field string) string { return "json_extract(data, '$." + field + "')" },
	rebind:    func(q string) string { return q },
}

var postgresDialect = dialect{
	name:      "postgres",
	dataType:  "JSONB",
	mergeExpr: "documents.data || excluded.data",
	orderExpr: func(field string) string { return "data->>'" + field + "'" },
	rebind:    dollarPlaceholders,
}

func dollarPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps every collection in one documents table with a JSON column.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

type migration struct {
	name string
	run  func(tx *sql.Tx, d dialect) error
}

var migrations = []migration{
	{name: "0001_documents", run: migrateDocuments},
	{name: "0002_documents_collection_index", run: migrateCollectionIndex},
}

// OpenSQLite opens (creating if needed) a sqlite database file.
func OpenSQLite(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; serialize connections to avoid busy/locked storms.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return newSQLStore(db, sqliteDialect)
}

type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*SQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", ErrInvalidInput)
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLStore(db, postgresDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, d: d}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.name]; ok {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if err := m.run(tx, s.d); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(
			s.d.rebind(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`),
			m.name,
			time.Now().UTC().Format(TimeLayout),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *SQLStore) appliedMigrations() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func migrateDocuments(tx *sql.Tx, d dialect) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data ` + d.dataType + ` NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);`)
	return err
}

func migrateCollectionIndex(tx *sql.Tx, d dialect) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_collection_updated ON documents(collection, updated_at);`)
	return err
}

// DB exposes the handle for tests and maintenance commands.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkKey(collection, id); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT data FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data Document) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	payload, err := encodeJSON(Compact(data))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.upsertQuery(), collection, id, payload, nowString(), nowString())
	return err
}

func (s *SQLStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := checkQuery(collection, q); err != nil {
		return nil, err
	}
	query := `SELECT id, data FROM documents WHERE collection = ?`
	args := []any{collection}
	if q.After != nil {
		expr := s.d.orderExpr(q.OrderBy)
		cmp := ">"
		if q.Descending {
			cmp = "<"
		}
		cv := toJSONValue(q.After.Value)
		query += ` AND (` + expr + ` IS NULL OR ` + expr + ` ` + cmp + ` ? OR (` + expr + ` = ? AND id > ?))`
		args = append(args, cv, cv, q.After.ID)
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += ` ORDER BY ` + s.d.orderExpr(q.OrderBy) + ` ` + dir + ` NULLS LAST, id ASC`
	} else {
		query += ` ORDER BY id ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
		records = append(records, Record{ID: id, Data: doc})
	}
	return records, rows.Err()
}

func (s *SQLStore) NewBatch() Batch {
	return &sqlBatch{store: s}
}

func (s *SQLStore) upsertQuery() string {
	return s.d.rebind(`
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = ` + s.d.mergeExpr + `,
			updated_at = excluded.updated_at
	`)
}

type sqlBatch struct {
	opList
	store *SQLStore
}

func (b *sqlBatch) Commit(ctx context.Context) (err error) {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert, err := tx.PrepareContext(ctx, b.store.upsertQuery())
	if err != nil {
		return err
	}
	defer upsert.Close()

	del, err := tx.PrepareContext(ctx, b.store.d.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`))
	if err != nil {
		return err
	}
	defer del.Close()

	now := nowString()
	for _, op := range b.ops {
		switch op.kind {
		case opSet:
			payload, encErr := encodeJSON(op.data)
			if encErr != nil {
				return encErr
			}
			if _, err = upsert.ExecContext(ctx, op.collection, op.id, payload, now, now); err != nil {
				return err
			}
		case opDelete:
			if _, err = del.ExecContext(ctx, op.collection, op.id); err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	b.reset()
	return nil
}

func nowString() string {
	return time.Now().UTC().Format(TimeLayout)
}

func encodeJSON(d Document) (string, error) {
	data, err := json.Marshal(toJSONValue(d))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func toJSONValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(TimeLayout)
	case Document:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = toJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = toJSONValue(val)
		}
		return out
	default:
		return v
	}
}

func decodeJSON(raw string) (Document, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return fromJSONValue(m).(Document), nil
}

func fromJSONValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(Document, len(tv))
		for k, val := range tv {
			out[k] = fromJSONValue(val)
		}
		return out
	case []any:
		for i, val := range tv {
			tv[i] = fromJSONValue(val)
		}
		return tv
	default:
		return v
	}
}
