package sqlite

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

// UpsertEmbedding records a vector for (message, field, model), replacing
// the vector reference when one already exists.
func (s *DB) UpsertEmbedding(ctx context.Context, e *domain.MessageEmbedding) error {
	if e.Version == "" {
		e.Version = domain.EmbeddingVersion
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO message_embeddings (message_id, field_name, embedding_model, vector_id,
			qdrant_collection, vector_dimensions, embedding_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, field_name, embedding_model) DO UPDATE SET
			vector_id         = excluded.vector_id,
			qdrant_collection = excluded.qdrant_collection,
			vector_dimensions = excluded.vector_dimensions,
			embedding_version = excluded.embedding_version
		RETURNING id`,
		e.MessageID, e.FieldName, e.EmbeddingModel, e.VectorID,
		e.Collection, e.Dimensions, e.Version, s.timestamp(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for message %d: %w", e.MessageID, err)
	}
	return nil
}

func (s *DB) ListEmbeddings(ctx context.Context, messageID int64) ([]domain.MessageEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, field_name, embedding_model, vector_id, qdrant_collection,
			vector_dimensions, embedding_version, created_at
		FROM message_embeddings WHERE message_id = ? ORDER BY field_name`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.MessageEmbedding
	for rows.Next() {
		var e domain.MessageEmbedding
		var createdAt string
		if err := rows.Scan(&e.ID, &e.MessageID, &e.FieldName, &e.EmbeddingModel, &e.VectorID,
			&e.Collection, &e.Dimensions, &e.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) EmbeddingStats(ctx context.Context) (*store.EmbeddingStats, error) {
	stats := &store.EmbeddingStats{ByModel: map[string]int{}, ByField: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT embedding_model, field_name, COUNT(*) FROM message_embeddings GROUP BY embedding_model, field_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding stats: %w", err)
	}
	for rows.Next() {
		var model, field string
		var n int
		if err := rows.Scan(&model, &field, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan embedding stats: %w", err)
		}
		stats.Total += n
		stats.ByModel[model] += n
		stats.ByField[field] += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_processed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_processed THEN 0 ELSE 1 END), 0)
		FROM email_messages`).Scan(&stats.ProcessedMessages, &stats.PendingMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to count processed messages: %w", err)
	}
	return stats, nil
}
