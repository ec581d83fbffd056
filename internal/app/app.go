// Package app holds the mail workflows: ingestion, search, drafting,
// importance scoring, digests and the scheduler that drives them.
package app

import (
	"context"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/provider"
)

// ProviderOpener opens the mailbox behind an account.
type ProviderOpener interface {
	Provider(ctx context.Context, acct *domain.Account) (provider.MailProvider, error)
}

// Clock returns the current time. Workflows default to time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// round3 rounds to three decimal places.
func round3(v float64) float64 {
	if v < 0 {
		return -round3(-v)
	}
	return float64(int64(v*1000+0.5)) / 1000
}
