package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func (s *DB) SaveImportance(ctx context.Context, sc *domain.ImportanceScore) (int64, error) {
	factors, err := json.Marshal(sc.Factors)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scoring factors: %w", err)
	}
	reasons, err := json.Marshal(sc.Reasons)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scoring reasons: %w", err)
	}
	if sc.CalculatedAt.IsZero() {
		sc.CalculatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO importance_scores (message_id, overall_score, urgency_score, relevance_score,
			sender_importance, scoring_factors, scoring_reasons, model_used, model_version, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.MessageID, sc.OverallScore, sc.UrgencyScore, sc.RelevanceScore, sc.SenderImportance,
		string(factors), string(reasons), nullString(sc.ModelUsed), nullString(sc.ModelVersion),
		formatTime(sc.CalculatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save importance for message %d: %w", sc.MessageID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read score id: %w", err)
	}
	sc.ID = id
	return id, nil
}

// LatestImportance returns the most recent score for a message.
func (s *DB) LatestImportance(ctx context.Context, messageID int64) (*domain.ImportanceScore, error) {
	var sc domain.ImportanceScore
	var factors, reasons, model, version sql.NullString
	var urgency, relevance, sender sql.NullFloat64
	var calculatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, overall_score, urgency_score, relevance_score, sender_importance,
			scoring_factors, scoring_reasons, model_used, model_version, calculated_at
		FROM importance_scores WHERE message_id = ?
		ORDER BY calculated_at DESC, id DESC LIMIT 1`, messageID,
	).Scan(&sc.ID, &sc.MessageID, &sc.OverallScore, &urgency, &relevance, &sender,
		&factors, &reasons, &model, &version, &calculatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("importance for message %d", messageID))
	}
	sc.UrgencyScore = urgency.Float64
	sc.RelevanceScore = relevance.Float64
	sc.SenderImportance = sender.Float64
	sc.ModelUsed = model.String
	sc.ModelVersion = version.String
	if factors.String != "" {
		if err := json.Unmarshal([]byte(factors.String), &sc.Factors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scoring factors: %w", err)
		}
	}
	if reasons.String != "" {
		if err := json.Unmarshal([]byte(reasons.String), &sc.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scoring reasons: %w", err)
		}
	}
	if sc.CalculatedAt, err = parseTime(calculatedAt); err != nil {
		return nil, err
	}
	return &sc, nil
}
