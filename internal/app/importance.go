package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

const (
	ImportanceModel        = "heuristic-v1"
	importanceModelVersion = "1"

	frequentSenderCount = 10
	recencyWindow       = 7 * 24 * time.Hour
)

var urgencyRe = regexp.MustCompile(`\b(urgent|asap|deadline|today|immediately)\b`)

// importanceWeights sum to 1.
var importanceWeights = []struct {
	factor string
	weight float64
}{
	{"urgency", 0.30},
	{"labels", 0.25},
	{"sender", 0.20},
	{"recency", 0.15},
	{"unread", 0.10},
}

type ScoreStore interface {
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	SenderMessageCount(ctx context.Context, accountID int64, senderEmail string) (int, error)
	SaveImportance(ctx context.Context, s *domain.ImportanceScore) (int64, error)
	LatestImportance(ctx context.Context, messageID int64) (*domain.ImportanceScore, error)
}

// Scorer rates how much attention a message needs.
type Scorer struct {
	store ScoreStore
	Now   Clock
}

func NewScorer(st ScoreStore) *Scorer {
	return &Scorer{store: st}
}

// Score computes the importance of msg without saving it.
func (s *Scorer) Score(ctx context.Context, msg *domain.Message) (*domain.ImportanceScore, error) {
	count, err := s.store.SenderMessageCount(ctx, msg.AccountID, msg.SenderEmail)
	if err != nil {
		return nil, err
	}
	return scoreMessage(msg, count, s.Now.now()), nil
}

// ScoreMessage scores a stored message and saves the result.
func (s *Scorer) ScoreMessage(ctx context.Context, messageID int64) (*domain.ImportanceScore, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	sc, err := s.Score(ctx, msg)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.SaveImportance(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Latest returns the most recent saved score, computing one if none exists.
func (s *Scorer) Latest(ctx context.Context, messageID int64) (*domain.ImportanceScore, error) {
	sc, err := s.store.LatestImportance(ctx, messageID)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.ScoreMessage(ctx, messageID)
}

func scoreMessage(msg *domain.Message, senderCount int, now time.Time) *domain.ImportanceScore {
	reasons := []string{}

	text := strings.ToLower(msg.Subject + " " + msg.Snippet + " " + msg.BodyPlain)
	seen := map[string]bool{}
	for _, kw := range urgencyRe.FindAllString(text, -1) {
		seen[kw] = true
	}
	urgency := clamp01(0.4 * float64(len(seen)))
	if len(seen) > 0 {
		reasons = append(reasons, fmt.Sprintf("urgent wording (%d keywords)", len(seen)))
	}

	var labels float64
	if msg.IsImportant || msg.HasLabel(domain.LabelImportant) {
		labels += 0.7
		reasons = append(reasons, "marked important")
	}
	if msg.HasLabel(domain.LabelStarred) {
		labels += 0.3
		reasons = append(reasons, "starred")
	}
	labels = clamp01(labels)

	var unread float64
	if !msg.IsRead {
		unread = 1
		reasons = append(reasons, "unread")
	}

	sender := clamp01(float64(senderCount) / frequentSenderCount)
	if senderCount >= frequentSenderCount/2 {
		reasons = append(reasons, fmt.Sprintf("frequent sender (%d messages)", senderCount))
	}

	var recency float64
	if age := now.Sub(msg.DateSent); age < recencyWindow {
		recency = clamp01(1 - float64(max(age, 0))/float64(recencyWindow))
		if age < 24*time.Hour {
			reasons = append(reasons, "received in the last day")
		}
	}

	factors := map[string]float64{
		"urgency": round3(urgency),
		"labels":  round3(labels),
		"sender":  round3(sender),
		"recency": round3(recency),
		"unread":  unread,
	}
	var overall float64
	for _, w := range importanceWeights {
		overall += w.weight * factors[w.factor]
	}

	return &domain.ImportanceScore{
		MessageID:        msg.ID,
		OverallScore:     round3(clamp01(overall)),
		UrgencyScore:     round3(urgency),
		RelevanceScore:   round3(labels),
		SenderImportance: round3(sender),
		Factors:          factors,
		Reasons:          reasons,
		ModelUsed:        ImportanceModel,
		ModelVersion:     importanceModelVersion,
		CalculatedAt:     now,
	}
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
