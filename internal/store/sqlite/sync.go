package sqlite

import (
	"context"
	"fmt"
	"time"
)

// UpdateSyncState records the ingestion cursor and last sync time for an account.
func (s *DB) UpdateSyncState(ctx context.Context, id int64, cursor string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_accounts SET
			sync_cursor  = COALESCE(NULLIF(?, ''), sync_cursor),
			last_sync_at = ?,
			updated_at   = ?
		WHERE id = ?`,
		cursor, formatTime(at), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync state for account %d: %w", id, err)
	}
	return nil
}
