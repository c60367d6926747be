// Package scheduler runs the periodic token refresh sweep. It keeps stored
// tokens fresh independently of live traffic: an installation that never
// receives a request still has a valid token when one finally arrives.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/tokens"
)

// TokenRefresher is the slice of the token manager the sweep needs.
type TokenRefresher interface {
	Refresh(ctx context.Context, installationID string) (*tokens.TokenRecord, error)
}

// Scheduler owns the cron entry and the sweep body. It is constructed and
// stopped by process startup/shutdown, never registered as an import side
// effect.
type Scheduler struct {
	cron      *cron.Cron
	repo      tokens.Repo
	refresher TokenRefresher
	lookahead time.Duration
	log       zerolog.Logger
	nowTime   func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Scheduler) {
		s.nowTime = nowFunc
	}
}

// New creates a refresh scheduler. lookahead is how far ahead of expiry a
// token qualifies for the sweep.
func New(repo tokens.Repo, refresher TokenRefresher, lookahead time.Duration, log zerolog.Logger, options ...Option) (*Scheduler, error) {
	if repo == nil {
		return nil, errors.New("[New] token repo is required")
	}
	if refresher == nil {
		return nil, errors.New("[New] token refresher is required")
	}

	s := &Scheduler{
		cron:      cron.New(),
		repo:      repo,
		refresher: refresher,
		lookahead: lookahead,
		log:       log.With().Str("component", "scheduler").Logger(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Start registers the sweep under the given cron spec and starts the cron
// runner.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return errors.Wrapf(err, "[Start] invalid cron spec %q", spec)
	}
	s.cron.Start()
	s.log.Info().Str("spec", spec).Dur("lookahead", s.lookahead).Msg("token refresh sweep scheduled")
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("token refresh scheduler stopped")
}

// Sweep refreshes every token expiring inside the lookahead window. One
// installation's failure never aborts the sweep for the rest; transient
// errors leave the stale record for the next run to retry.
func (s *Scheduler) Sweep(ctx context.Context) (refreshed, failed int) {
	cutoff := s.nowTime().Add(s.lookahead)
	expiring, err := s.repo.FindExpiringBefore(cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep query failed")
		return 0, 0
	}

	s.log.Info().Int("candidates", len(expiring)).Time("cutoff", cutoff).Msg("refresh sweep started")

	for _, record := range expiring {
		if _, err := s.refresher.Refresh(ctx, record.InstallationID); err != nil {
			failed++
			s.log.Warn().
				Err(err).
				Str("installation_id", record.InstallationID).
				Msg("sweep refresh failed, record left for next run")
			continue
		}
		refreshed++
	}

	s.log.Info().Int("refreshed", refreshed).Int("failed", failed).Msg("refresh sweep finished")
	return refreshed, failed
}
