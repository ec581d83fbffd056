package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

// UpsertDigest writes the digest for (user_id, digest_date), replacing an
// earlier one for the same day.
func (s *DB) UpsertDigest(ctx context.Context, d *domain.DailyDigest) (int64, error) {
	actions, err := json.Marshal(d.ActionItems)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal action items: %w", err)
	}
	pending, err := json.Marshal(d.PendingReplies)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal pending replies: %w", err)
	}
	if d.DigestUUID == "" {
		d.DigestUUID = uuid.NewString()
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO daily_digests (digest_uuid, user_id, digest_date, summary_text, summary_html,
			total_emails, important_emails, unread_emails, action_items, pending_replies,
			delivery_method, is_delivered, delivered_at, ai_model_used, generation_time_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, digest_date) DO UPDATE SET
			summary_text            = excluded.summary_text,
			summary_html            = excluded.summary_html,
			total_emails            = excluded.total_emails,
			important_emails        = excluded.important_emails,
			unread_emails           = excluded.unread_emails,
			action_items            = excluded.action_items,
			pending_replies         = excluded.pending_replies,
			delivery_method         = excluded.delivery_method,
			ai_model_used           = excluded.ai_model_used,
			generation_time_seconds = excluded.generation_time_seconds
		RETURNING id`,
		d.DigestUUID, d.UserID, d.DigestDate, d.SummaryText, nullString(d.SummaryHTML),
		d.TotalEmails, d.ImportantEmails, d.UnreadEmails, string(actions), string(pending),
		nullString(d.DeliveryMethod), d.IsDelivered, formatNullTime(d.DeliveredAt),
		nullString(d.AIModelUsed), d.GenerationTimeSeconds, s.timestamp(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert digest for %s on %s: %w", d.UserID, d.DigestDate, err)
	}
	d.ID = id
	return id, nil
}

func (s *DB) GetDigest(ctx context.Context, userID, date string) (*domain.DailyDigest, error) {
	var d domain.DailyDigest
	var html, actions, pending, method, deliveredAt, model sql.NullString
	var genTime sql.NullFloat64
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, digest_uuid, user_id, digest_date, summary_text, summary_html,
			total_emails, important_emails, unread_emails, action_items, pending_replies,
			delivery_method, is_delivered, delivered_at, ai_model_used, generation_time_seconds, created_at
		FROM daily_digests WHERE user_id = ? AND digest_date = ?`, userID, date,
	).Scan(&d.ID, &d.DigestUUID, &d.UserID, &d.DigestDate, &d.SummaryText, &html,
		&d.TotalEmails, &d.ImportantEmails, &d.UnreadEmails, &actions, &pending,
		&method, &d.IsDelivered, &deliveredAt, &model, &genTime, &createdAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("digest for %s on %s", userID, date))
	}
	d.SummaryHTML = html.String
	d.DeliveryMethod = method.String
	d.AIModelUsed = model.String
	d.GenerationTimeSeconds = genTime.Float64
	if actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &d.ActionItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action items: %w", err)
		}
	}
	if pending.String != "" {
		if err := json.Unmarshal([]byte(pending.String), &d.PendingReplies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending replies: %w", err)
		}
	}
	if d.DeliveredAt, err = parseNullTime(deliveredAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &d, nil
}
