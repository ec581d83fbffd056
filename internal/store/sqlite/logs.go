package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func (s *DB) InsertLog(ctx context.Context, l *domain.SystemLog) error {
	var meta sql.NullString
	if len(l.Metadata) > 0 {
		b, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO system_logs (log_level, event_type, message, user_id, account_id, session_id,
			execution_time_ms, meta_data, stack_trace, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Level, l.EventType, l.Message, nullString(l.UserID), nullInt(l.AccountID), nullString(l.SessionID),
		l.ExecutionTimeMS, meta, nullString(l.StackTrace), formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert system log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// ListLogs returns recent logs, newest first. An empty eventType matches all.
func (s *DB) ListLogs(ctx context.Context, eventType string, limit int) ([]domain.SystemLog, error) {
	query := `SELECT id, log_level, event_type, message, user_id, account_id, session_id,
		execution_time_ms, meta_data, stack_trace, created_at FROM system_logs`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.SystemLog
	for rows.Next() {
		var l domain.SystemLog
		var userID, sessionID, meta, stack sql.NullString
		var accountID sql.NullInt64
		var execMS sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&l.ID, &l.Level, &l.EventType, &l.Message, &userID, &accountID, &sessionID,
			&execMS, &meta, &stack, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		l.UserID = userID.String
		l.SessionID = sessionID.String
		l.StackTrace = stack.String
		l.ExecutionTimeMS = execMS.Float64
		if accountID.Valid {
			id := accountID.Int64
			l.AccountID = &id
		}
		if meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &l.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
