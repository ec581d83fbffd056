package app

import (
	"context"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func TestScoreMessage(t *testing.T) {
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		msg         domain.Message
		senderCount int
		want        float64
		reasons     []string
	}{
		{
			name: "urgent starred unread",
			msg: domain.Message{
				Subject:  "URGENT: contract deadline",
				Labels:   []string{domain.LabelImportant, domain.LabelStarred},
				DateSent: now.Add(-time.Hour),
			},
			senderCount: 10,
			// 0.3*0.8 + 0.25*1 + 0.2*1 + 0.15*(1-1/168) + 0.1*1
			want:    0.939,
			reasons: []string{"marked important", "starred", "unread", "received in the last day"},
		},
		{
			name: "old newsletter",
			msg: domain.Message{
				Subject:  "Weekly newsletter",
				IsRead:   true,
				DateSent: now.Add(-10 * 24 * time.Hour),
			},
			want: 0,
		},
		{
			name: "unread from a stranger",
			msg: domain.Message{
				Subject:  "Hello",
				DateSent: now.Add(-10 * 24 * time.Hour),
			},
			senderCount: 1,
			// 0.2*0.1 + 0.1*1
			want: 0.12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := scoreMessage(&tt.msg, tt.senderCount, now)
			if math.Abs(sc.OverallScore-tt.want) > 0.001 {
				t.Errorf("OverallScore = %v, want %v (factors %v)", sc.OverallScore, tt.want, sc.Factors)
			}
			if sc.OverallScore < 0 || sc.OverallScore > 1 {
				t.Errorf("OverallScore = %v, outside [0, 1]", sc.OverallScore)
			}
			for _, r := range tt.reasons {
				if !slices.Contains(sc.Reasons, r) {
					t.Errorf("Reasons = %q, missing %q", sc.Reasons, r)
				}
			}
			if sc.ModelUsed != ImportanceModel {
				t.Errorf("ModelUsed = %q, want %q", sc.ModelUsed, ImportanceModel)
			}
		})
	}
}

func TestScorer_ScoreMessageAndLatest(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	msg := storeMessage(t, db, domain.Message{
		AccountID: acct.ID, ExternalMessageID: "m1", SenderEmail: "alice@corp.io",
		Subject: "Please reply asap", DateSent: now.Add(-2 * time.Hour),
	})
	s := NewScorer(db)
	s.Now = fixedClock(now)
	ctx := context.Background()

	latest, err := s.Latest(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Latest() on unscored message error: %v", err)
	}
	if latest.ID == 0 {
		t.Error("Latest() did not save the computed score")
	}
	if latest.Factors["urgency"] != 0.4 || latest.Factors["sender"] != 0.1 {
		t.Errorf("Factors = %v", latest.Factors)
	}

	again, err := s.Latest(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != latest.ID {
		t.Errorf("Latest() ID = %d, want cached %d", again.ID, latest.ID)
	}

	if _, err := s.ScoreMessage(ctx, 999); err == nil {
		t.Error("ScoreMessage() on missing message returned nil error")
	}
}
