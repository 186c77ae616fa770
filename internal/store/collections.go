package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateCollection inserts a new named collection. Names are unique; a
// duplicate name returns an error.
func (s *Store) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO collection(name) VALUES(?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection id: %w", err)
	}
	return s.GetCollection(ctx, id)
}

// GetCollection fetches one collection by id, including its document count.
func (s *Store) GetCollection(ctx context.Context, id int64) (*Collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.created_at, COUNT(d.id)
		FROM collection c
		LEFT JOIN document d ON d.collection_id = c.id
		WHERE c.id = ?
		GROUP BY c.id`, id)

	var c Collection
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.DocCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get collection %d: %w", id, err)
	}
	return &c, nil
}

// ListCollections returns all collections with document counts, newest
// first.
func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.created_at, COUNT(d.id)
		FROM collection c
		LEFT JOIN document d ON d.collection_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []*Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.DocCount); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DocumentIDsByCollections resolves the candidate document set for the
// given collections. An empty input yields an empty set.
func (s *Store) DocumentIDsByCollections(ctx context.Context, collectionIDs []int64) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id FROM document WHERE collection_id IN (%s) ORDER BY id`,
		placeholders(len(collectionIDs)))
	rows, err := s.db.QueryContext(ctx, query, int64Args(collectionIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve candidate documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// placeholders builds "?,?,?" for an IN clause of n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
