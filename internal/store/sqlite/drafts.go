package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

const draftColumns = `id, draft_uuid, account_id, original_message_id, recipient_email, subject,
	body_text, body_html, draft_type, tone, length, ai_model_used, generation_prompt,
	ai_confidence, edit_count, approval_status, is_sent, sent_at, sent_message_id,
	safety_check_passed, safety_issues, created_at, updated_at`

func scanDraft(row rowScanner) (*domain.Draft, error) {
	var d domain.Draft
	var original sql.NullInt64
	var bodyHTML, tone, length, model, prompt, sentID, issues, sentAt sql.NullString
	var confidence sql.NullFloat64
	var draftType, status, createdAt, updatedAt string
	if err := row.Scan(
		&d.ID, &d.DraftUUID, &d.AccountID, &original, &d.RecipientEmail, &d.Subject,
		&d.BodyText, &bodyHTML, &draftType, &tone, &length, &model, &prompt,
		&confidence, &d.EditCount, &status, &d.IsSent, &sentAt, &sentID,
		&d.SafetyCheckPassed, &issues, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if original.Valid {
		id := original.Int64
		d.OriginalMessageID = &id
	}
	d.BodyHTML = bodyHTML.String
	d.DraftType = domain.DraftType(draftType)
	d.Tone = tone.String
	d.Length = length.String
	d.AIModelUsed = model.String
	d.GenerationPrompt = prompt.String
	d.AIConfidence = confidence.Float64
	d.ApprovalStatus = domain.ApprovalStatus(status)
	d.SentMessageID = sentID.String
	if issues.String != "" {
		if err := json.Unmarshal([]byte(issues.String), &d.SafetyIssues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal safety issues: %w", err)
		}
	}

	var err error
	if d.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DB) CreateDraft(ctx context.Context, d *domain.Draft) (int64, error) {
	issues, err := json.Marshal(d.SafetyIssues)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal safety issues: %w", err)
	}
	if d.DraftUUID == "" {
		d.DraftUUID = uuid.NewString()
	}
	if d.ApprovalStatus == "" {
		d.ApprovalStatus = domain.ApprovalPending
	}
	now := s.timestamp()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO email_drafts (draft_uuid, account_id, original_message_id, recipient_email, subject,
			body_text, body_html, draft_type, tone, length, ai_model_used, generation_prompt,
			ai_confidence, edit_count, approval_status, safety_check_passed, safety_issues,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DraftUUID, d.AccountID, nullInt(d.OriginalMessageID), d.RecipientEmail, d.Subject,
		d.BodyText, nullString(d.BodyHTML), string(d.DraftType), nullString(d.Tone), nullString(d.Length),
		nullString(d.AIModelUsed), nullString(d.GenerationPrompt),
		d.AIConfidence, d.EditCount, string(d.ApprovalStatus), d.SafetyCheckPassed, string(issues),
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create draft: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read draft id: %w", err)
	}
	d.ID = id
	return id, nil
}

func (s *DB) GetDraft(ctx context.Context, id int64) (*domain.Draft, error) {
	d, err := scanDraft(s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM email_drafts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("draft %d", id))
	}
	return d, nil
}

// ListDrafts returns an account's drafts, newest first. An empty status
// matches every status.
func (s *DB) ListDrafts(ctx context.Context, accountID int64, status domain.ApprovalStatus) ([]domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM email_drafts WHERE account_id = ?`
	args := []any{accountID}
	if status != "" {
		query += ` AND approval_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

func (s *DB) UpdateDraftStatus(ctx context.Context, id int64, status domain.ApprovalStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_drafts SET approval_status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update draft %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("draft %d", id))
}

// ClaimDraftSend flags an approved, unsent draft as sent before delivery so
// that only one caller can deliver it. It reports false when the draft was
// not approved or another caller claimed it first.
func (s *DB) ClaimDraftSend(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_drafts SET is_sent = TRUE, updated_at = ?
		WHERE id = ? AND approval_status = ? AND NOT is_sent`,
		s.timestamp(), id, string(domain.ApprovalApproved))
	if err != nil {
		return false, fmt.Errorf("failed to claim draft %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim draft %d: %w", id, err)
	}
	return n == 1, nil
}

// ReleaseDraftSend undoes a claim whose delivery failed.
func (s *DB) ReleaseDraftSend(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_drafts SET is_sent = FALSE, updated_at = ?
		WHERE id = ? AND is_sent AND sent_at IS NULL`,
		s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to release draft %d: %w", id, err)
	}
	return nil
}

func (s *DB) MarkDraftSent(ctx context.Context, id int64, sentMessageID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_drafts SET is_sent = TRUE, sent_at = ?, sent_message_id = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(at), sentMessageID, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to mark draft %d sent: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("draft %d", id))
}
