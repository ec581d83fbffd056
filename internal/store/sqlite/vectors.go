package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lu-zhengda/mailpilot/internal/vector"
)

// VectorCollection is a vector.Index backed by the vectors table. Similarity
// is computed in SQL by the vector_cosine function.
type VectorCollection struct {
	db   *DB
	name string
}

var _ vector.Index = (*VectorCollection)(nil)

// Vectors returns the named collection. It is created lazily by EnsureCollection.
func (s *DB) Vectors(name string) *VectorCollection {
	return &VectorCollection{db: s, name: name}
}

func (c *VectorCollection) dimensions(ctx context.Context) (int, error) {
	var dims int
	err := c.db.db.QueryRowContext(ctx,
		`SELECT dimensions FROM vector_collections WHERE name = ?`, c.name).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", c.name, vector.ErrNoCollection)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read collection %s: %w", c.name, err)
	}
	return dims, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
// An existing collection with different dimensions is an error.
func (c *VectorCollection) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimensions %d", dims)
	}
	_, err := c.db.db.ExecContext(ctx, `
		INSERT INTO vector_collections (name, dimensions, distance, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		c.name, dims, vector.DistanceCosine, c.db.timestamp())
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.name, err)
	}
	existing, err := c.dimensions(ctx)
	if err != nil {
		return err
	}
	if existing != dims {
		return fmt.Errorf("%w: collection %s has %d, want %d", vector.ErrDimensionMismatch, c.name, existing, dims)
	}
	return nil
}

func (c *VectorCollection) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	dims, err := c.dimensions(ctx)
	if err != nil {
		return err
	}

	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		if len(p.Vector) != dims {
			return fmt.Errorf("%w: point %s has %d, want %d", vector.ErrDimensionMismatch, p.ID, len(p.Vector), dims)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vectors (collection, id, message_id, account_id, embedding, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET
				message_id = excluded.message_id,
				account_id = excluded.account_id,
				embedding  = excluded.embedding,
				payload    = excluded.payload`,
			c.name, p.ID, p.Payload.MessageID, p.Payload.AccountID, vector.Encode(p.Vector), string(payload),
		); err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vectors: %w", err)
	}
	return nil
}

// Search returns the best hit per message with score >= ScoreThreshold,
// highest score first.
func (c *VectorCollection) Search(ctx context.Context, query []float32, opts vector.SearchOptions) ([]vector.Hit, error) {
	dims, err := c.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(query), dims)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := `
		SELECT id, score, payload FROM (
			SELECT id, payload, message_id, vector_cosine(embedding, ?) AS score
			FROM vectors
			WHERE collection = ?`
	args := []any{vector.Encode(query), c.name}
	if opts.AccountID != 0 {
		q += ` AND account_id = ?`
		args = append(args, opts.AccountID)
	}
	q += `
		)
		WHERE score >= ?
		ORDER BY score DESC, id`
	args = append(args, opts.ScoreThreshold)

	rows, err := c.db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", c.name, err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var hits []vector.Hit
	for rows.Next() && len(hits) < limit {
		var h vector.Hit
		var payload string
		if err := rows.Scan(&h.ID, &h.Score, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &h.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		if seen[h.Payload.MessageID] {
			continue
		}
		seen[h.Payload.MessageID] = true
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (c *VectorCollection) Stats(ctx context.Context) (*vector.Stats, error) {
	st := &vector.Stats{Name: c.name}
	err := c.db.db.QueryRowContext(ctx,
		`SELECT dimensions, distance FROM vector_collections WHERE name = ?`, c.name,
	).Scan(&st.Dimensions, &st.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", c.name, err)
	}
	st.Exists = true
	if err := c.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vectors WHERE collection = ?`, c.name).Scan(&st.TotalVectors); err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	return st, nil
}

// DeleteCollection drops the collection and all of its vectors.
func (c *VectorCollection) DeleteCollection(ctx context.Context) error {
	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE collection = ?`, c.name); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = ?`, c.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", c.name, err)
	}
	return tx.Commit()
}

func (c *VectorCollection) DeleteByMessage(ctx context.Context, messageID int64) error {
	_, err := c.db.db.ExecContext(ctx,
		`DELETE FROM vectors WHERE collection = ? AND message_id = ?`, c.name, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors for message %d: %w", messageID, err)
	}
	return nil
}
