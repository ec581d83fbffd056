package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

// setLabels replaces the label set for a message inside tx.
func setLabels(ctx context.Context, tx *sql.Tx, messageID int64, labelIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_labels WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("failed to delete message labels: %w", err)
	}
	for _, labelID := range labelIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?, ?)`,
			messageID, labelID); err != nil {
			return fmt.Errorf("failed to insert message label: %w", err)
		}
	}
	return nil
}

// loadLabels fills Labels for each message with one query.
func (s *DB) loadLabels(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	index := make(map[int64]int, len(msgs))
	args := make([]any, len(msgs))
	for i := range msgs {
		index[msgs[i].ID] = i
		args[i] = msgs[i].ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgs)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, label_id FROM message_labels WHERE message_id IN (`+placeholders+`) ORDER BY label_id`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to query message labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return fmt.Errorf("failed to scan message label: %w", err)
		}
		if i, ok := index[id]; ok {
			msgs[i].Labels = append(msgs[i].Labels, label)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate message labels: %w", err)
	}
	return nil
}

// SetRead updates the read flag and keeps the UNREAD label in step with it.
func (s *DB) SetRead(ctx context.Context, id int64, read bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE email_messages SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return fmt.Errorf("failed to update read flag on message %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if read {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM message_labels WHERE message_id = ? AND label_id = ?`, id, domain.LabelUnread)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?, ?)`, id, domain.LabelUnread)
	}
	if err != nil {
		return fmt.Errorf("failed to update UNREAD label on message %d: %w", id, err)
	}
	return tx.Commit()
}
