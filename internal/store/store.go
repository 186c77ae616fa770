package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// Store wraps the SQLite database holding all persistent state. A single
// writer connection plus WAL mode keeps concurrent request handling safe
// without table-level locking in Go.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (or creates) the database at path and applies the schema.
// An empty path opens an in-memory database for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite allows one writer, and the serialized pool
	// sidesteps SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all tables. The embedding table is keyed uniquely by
// (document_id, chunk_index); the two FTS5 virtual tables mirror the
// document- and chunk-level lexical entries.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collection (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		title TEXT,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		meta TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(collection_id) REFERENCES collection(id)
	);

	CREATE TABLE IF NOT EXISTS embedding (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		vector BLOB NOT NULL,
		text TEXT NOT NULL,
		model TEXT,
		dim INTEGER,
		is_normalized INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(document_id) REFERENCES document(id)
	);

	CREATE INDEX IF NOT EXISTS idx_document_collection ON document(collection_id);
	CREATE INDEX IF NOT EXISTS idx_embedding_document ON embedding(document_id);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_embedding_doc_chunk ON embedding(document_id, chunk_index);

	CREATE VIRTUAL TABLE IF NOT EXISTS doc_fts USING fts5(
		content,
		document_id UNINDEXED,
		tokenize = 'porter'
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
		content,
		document_id UNINDEXED,
		chunk_index UNINDEXED,
		tokenize = 'porter'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// checkOpen returns ErrClosed after Close.
func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats returns row counts for status reporting.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection`).Scan(&st.Collections); err != nil {
		return nil, fmt.Errorf("failed to count collections: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document`).Scan(&st.Documents); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding`).Scan(&st.Embeddings); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return &st, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
