package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

type ActiveAccounts interface {
	ListActiveAccounts(ctx context.Context) ([]domain.Account, error)
}

// SchedulerConfig controls the background jobs run by serve.
type SchedulerConfig struct {
	SyncInterval time.Duration
	// Embed runs embedding for new mail after each sync.
	Embed bool
	// DailySummary enables the digest job at SummaryHour:SummaryMinute in
	// Location.
	DailySummary  bool
	SummaryHour   int
	SummaryMinute int
	Location      *time.Location
}

// Scheduler syncs every active account on an interval and builds digests
// once a day.
type Scheduler struct {
	accounts ActiveAccounts
	ingestor *Ingestor
	digester *Digester
	cfg      SchedulerConfig
	logger   *zap.Logger
	Now      Clock
}

// NewScheduler creates a Scheduler. digester may be nil.
func NewScheduler(accounts ActiveAccounts, ingestor *Ingestor, digester *Digester, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{accounts: accounts, ingestor: ingestor, digester: digester, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. The first sync starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	var digestC <-chan time.Time
	var digestTimer *time.Timer
	if s.cfg.DailySummary && s.digester != nil {
		digestTimer = time.NewTimer(s.untilNextDigest())
		defer digestTimer.Stop()
		digestC = digestTimer.C
	}

	s.logger.Info("scheduler started",
		zap.Duration("sync_interval", s.cfg.SyncInterval),
		zap.Bool("daily_summary", digestC != nil))
	s.SyncAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SyncAll(ctx)
		case <-digestC:
			// The digest covers the current day up to the summary time.
			s.DigestAll(ctx, s.Now.now().In(s.cfg.Location))
			digestTimer.Reset(s.untilNextDigest())
		}
	}
}

func (s *Scheduler) untilNextDigest() time.Duration {
	now := s.Now.now()
	return NextDailyRun(now, s.cfg.SummaryHour, s.cfg.SummaryMinute, s.cfg.Location).Sub(now)
}

// NextDailyRun returns the first hour:minute in loc strictly after now.
func NextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, loc)
	}
	return next
}

// SyncAll ingests mail for every active account. Accounts are synced one at
// a time so a single provider quota is never hit in parallel.
func (s *Scheduler) SyncAll(ctx context.Context) []*IngestResult {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list active accounts", zap.Error(err))
		return nil
	}
	var results []*IngestResult
	for _, acct := range accounts {
		if ctx.Err() != nil {
			break
		}
		res, err := s.ingestor.Run(ctx, acct.ID, IngestOptions{Embed: s.cfg.Embed})
		if err != nil {
			s.logger.Warn("scheduled sync failed", zap.Int64("account_id", acct.ID), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results
}

// DigestAll builds the digest for date for every user with an active
// account.
func (s *Scheduler) DigestAll(ctx context.Context, date time.Time) []*domain.DailyDigest {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list active accounts", zap.Error(err))
		return nil
	}
	users := map[string]bool{}
	for _, a := range accounts {
		users[a.UserID] = true
	}
	ids := make([]string, 0, len(users))
	for u := range users {
		ids = append(ids, u)
	}
	sort.Strings(ids)

	var out []*domain.DailyDigest
	for _, u := range ids {
		dg, err := s.digester.Build(ctx, u, date)
		if err != nil {
			s.logger.Warn("scheduled digest failed", zap.String("user_id", u), zap.Error(err))
			continue
		}
		out = append(out, dg)
	}
	return out
}
