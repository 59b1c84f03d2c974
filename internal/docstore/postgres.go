package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// changeChannel is the LISTEN/NOTIFY channel carrying changed document paths.
const changeChannel = "liftline_documents"

// PostgresStore keeps documents as JSONB rows in a single documents table.
// Each write is a read-modify-write under a row lock, so concurrent unions
// on the same document serialize instead of overwriting each other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the document at path.
func (s *PostgresStore) Get(ctx context.Context, path string) (Doc, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE path = $1`, path,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("getting document %s: %w", path, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return Doc{}, err
	}
	_, id := splitPath(path)
	return Doc{ID: id, Path: path, Data: data}, nil
}

// Set merges fields into the document at path, creating it when absent.
func (s *PostgresStore) Set(ctx context.Context, path string, fields map[string]any) error {
	n, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	parent, id := splitPath(path)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (path, parent, id, data)
			 VALUES ($1, $2, $3, '{}'::jsonb)
			 ON CONFLICT (path) DO NOTHING`,
			path, parent, id,
		); err != nil {
			return err
		}
		data, err := lockDocument(ctx, tx, path)
		if err != nil {
			return err
		}
		mergeFields(data, n)
		return writeDocument(ctx, tx, path, data)
	})
	if err != nil {
		return fmt.Errorf("setting document %s: %w", path, err)
	}
	return nil
}

// Update applies updates to an existing document.
func (s *PostgresStore) Update(ctx context.Context, path string, updates []Update) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		data, err := lockDocument(ctx, tx, path)
		if err != nil {
			return err
		}
		if err := applyUpdates(data, updates); err != nil {
			return err
		}
		return writeDocument(ctx, tx, path, data)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating document %s: %w", path, err)
	}
	return nil
}

// Query returns the documents directly under collection ordered by id.
func (s *PostgresStore) Query(ctx context.Context, collection string) ([]Doc, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, path, data FROM documents WHERE parent = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var d Doc
		var raw []byte
		if err := rows.Scan(&d.ID, &d.Path, &raw); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if d.Data, err = decodeData(raw); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// Watch holds a dedicated connection LISTENing for change notifications and
// re-reads the document whenever its path is announced.
func (s *PostgresStore) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening for changes: %w", err)
	}

	ch := make(chan Snapshot, 1)
	go func() {
		defer close(ch)
		defer func() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
			conn.Release()
		}()

		if !s.sendCurrent(ctx, ch, path) {
			return
		}
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					select {
					case ch <- Snapshot{Err: fmt.Errorf("waiting for notification: %w", err)}:
					case <-ctx.Done():
					}
				}
				return
			}
			if n.Payload != path {
				continue
			}
			if !s.sendCurrent(ctx, ch, path) {
				return
			}
		}
	}()
	return ch, nil
}

func (s *PostgresStore) sendCurrent(ctx context.Context, ch chan<- Snapshot, path string) bool {
	doc, err := s.Get(ctx, path)
	if err != nil {
		_, id := splitPath(path)
		doc = Doc{ID: id, Path: path}
	}
	select {
	case ch <- Snapshot{Doc: doc, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}

func lockDocument(ctx context.Context, tx pgx.Tx, path string) (map[string]any, error) {
	var raw []byte
	err := tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeData(raw)
}

func writeDocument(ctx context.Context, tx pgx.Tx, path string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET data = $2, updated_at = now() WHERE path = $1`,
		path, raw,
	); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changeChannel, path)
	return err
}

func decodeData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return data, nil
}
