package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

const messageColumns = `m.id, m.message_uuid, m.account_id, m.external_message_id, m.thread_id,
	m.sender_email, m.sender_name, m.recipients, m.cc_recipients, m.bcc_recipients,
	m.subject, m.snippet, m.body_plain, m.body_html, m.date_sent, m.date_received,
	m.is_read, m.is_important, m.has_attachments, m.attachment_count, m.folder_name,
	m.size_bytes, m.message_format, m.is_processed, m.processing_error, m.created_at`

func scanMessage(row rowScanner) (*domain.Message, error) {
	var m domain.Message
	var threadID, senderName, to, cc, bcc sql.NullString
	var subject, snippet, bodyPlain, bodyHTML, folder, format, procErr sql.NullString
	var dateSent, createdAt string
	var dateReceived sql.NullString
	var size sql.NullInt64
	if err := row.Scan(
		&m.ID, &m.MessageUUID, &m.AccountID, &m.ExternalMessageID, &threadID,
		&m.SenderEmail, &senderName, &to, &cc, &bcc,
		&subject, &snippet, &bodyPlain, &bodyHTML, &dateSent, &dateReceived,
		&m.IsRead, &m.IsImportant, &m.HasAttachments, &m.AttachmentCount, &folder,
		&size, &format, &m.IsProcessed, &procErr, &createdAt,
	); err != nil {
		return nil, err
	}
	m.ThreadID = threadID.String
	m.SenderName = senderName.String
	m.Subject = subject.String
	m.Snippet = snippet.String
	m.BodyPlain = bodyPlain.String
	m.BodyHTML = bodyHTML.String
	m.FolderName = folder.String
	m.SizeBytes = size.Int64
	m.MessageFormat = domain.MessageFormat(format.String)
	m.ProcessingError = procErr.String

	for _, f := range []struct {
		raw string
		dst *[]domain.Address
	}{{to.String, &m.Recipients}, {cc.String, &m.CC}, {bcc.String, &m.BCC}} {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
		}
	}

	var err error
	if m.DateSent, err = parseTime(dateSent); err != nil {
		return nil, err
	}
	if m.DateReceived, err = parseNullTime(dateReceived); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func marshalAddresses(addrs []domain.Address) (sql.NullString, error) {
	if len(addrs) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal addresses: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// InsertMessage stores msg unless (account_id, external_message_id) already
// exists. It reports whether a new row was written; on a duplicate the
// existing id is returned.
func (s *DB) InsertMessage(ctx context.Context, msg *domain.Message) (int64, bool, error) {
	to, err := marshalAddresses(msg.Recipients)
	if err != nil {
		return 0, false, err
	}
	cc, err := marshalAddresses(msg.CC)
	if err != nil {
		return 0, false, err
	}
	bcc, err := marshalAddresses(msg.BCC)
	if err != nil {
		return 0, false, err
	}
	if msg.MessageUUID == "" {
		msg.MessageUUID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO email_messages (message_uuid, account_id, external_message_id, thread_id,
			sender_email, sender_name, recipients, cc_recipients, bcc_recipients,
			subject, snippet, body_plain, body_html, date_sent, date_received,
			is_read, is_important, has_attachments, attachment_count, folder_name,
			size_bytes, message_format, is_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT(account_id, external_message_id) DO NOTHING`,
		msg.MessageUUID, msg.AccountID, msg.ExternalMessageID, nullString(msg.ThreadID),
		msg.SenderEmail, nullString(msg.SenderName), to, cc, bcc,
		msg.Subject, msg.Snippet, nullString(msg.BodyPlain), nullString(msg.BodyHTML),
		formatTime(msg.DateSent), formatNullTime(msg.DateReceived),
		msg.IsRead, msg.IsImportant, msg.HasAttachments, msg.AttachmentCount, nullString(msg.FolderName),
		msg.SizeBytes, nullString(string(msg.MessageFormat)), s.timestamp(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var existing int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM email_messages WHERE account_id = ? AND external_message_id = ?`,
			msg.AccountID, msg.ExternalMessageID).Scan(&existing); err != nil {
			return 0, false, fmt.Errorf("failed to look up duplicate message: %w", err)
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read message id: %w", err)
	}
	if err := setLabels(ctx, tx, id, msg.Labels); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit message insert: %w", err)
	}
	msg.ID = id
	return id, true, nil
}

// GetMessage retrieves a single message by ID, including its labels.
func (s *DB) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM email_messages m WHERE m.id = ?`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("message %d", id))
	}
	msgs := []domain.Message{*m}
	if err := s.loadLabels(ctx, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *DB) MessageExists(ctx context.Context, accountID int64, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_messages WHERE account_id = ? AND external_message_id = ?`,
		accountID, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", externalID, err)
	}
	return n > 0, nil
}

// ListMessages returns messages newest first.
func (s *DB) ListMessages(ctx context.Context, opts store.ListMessageOptions) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages m`
	var where []string
	var args []any
	if opts.UserID != "" {
		query += ` JOIN email_accounts a ON a.id = m.account_id`
		where = append(where, "a.user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.AccountID != 0 {
		where = append(where, "m.account_id = ?")
		args = append(args, opts.AccountID)
	}
	if !opts.Since.IsZero() {
		where = append(where, "m.date_sent >= ?")
		args = append(args, formatTime(opts.Since))
	}
	if !opts.Until.IsZero() {
		where = append(where, "m.date_sent < ?")
		args = append(args, formatTime(opts.Until))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.date_sent DESC, m.id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	return s.queryMessages(ctx, query, args...)
}

// UnprocessedMessages returns messages that have no embeddings yet, oldest first.
func (s *DB) UnprocessedMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM email_messages m
		WHERE NOT m.is_processed AND m.processing_error IS NULL
		ORDER BY m.date_sent ASC, m.id ASC
		LIMIT ?`, limit)
}

// MarkProcessed flags a message as embedded. A non-empty processingError
// records a failure instead.
func (s *DB) MarkProcessed(ctx context.Context, id int64, processingError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE email_messages SET is_processed = ?, processing_error = ? WHERE id = ?`,
		processingError == "", nullString(processingError), id)
	if err != nil {
		return fmt.Errorf("failed to mark message %d processed: %w", id, err)
	}
	return nil
}

// SenderMessageCount counts messages in an account from senderEmail.
func (s *DB) SenderMessageCount(ctx context.Context, accountID int64, senderEmail string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_messages WHERE account_id = ? AND LOWER(sender_email) = LOWER(?)`,
		accountID, senderEmail).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages from %s: %w", senderEmail, err)
	}
	return n, nil
}

// queryMessages runs a message query and attaches labels once the rows are closed.
func (s *DB) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	rows.Close()

	if err := s.loadLabels(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
