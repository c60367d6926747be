package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/installations"
	installfake "github.com/engageautomations/ghl-oauth-service/installations/repofake"
	"github.com/engageautomations/ghl-oauth-service/provider"
	"github.com/engageautomations/ghl-oauth-service/scheduler"
	"github.com/engageautomations/ghl-oauth-service/tokens"
	tokenfake "github.com/engageautomations/ghl-oauth-service/tokens/repofake"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher records which installations were refreshed and fails the
// scripted ones.
type fakeRefresher struct {
	failing   map[string]bool
	refreshed []string
}

func (f *fakeRefresher) Refresh(_ context.Context, installationID string) (*tokens.TokenRecord, error) {
	if f.failing[installationID] {
		return nil, errors.New("upstream unavailable")
	}
	f.refreshed = append(f.refreshed, installationID)
	return &tokens.TokenRecord{InstallationID: installationID}, nil
}

func seedRecord(t *testing.T, repo *tokenfake.FakeTokenRepo, installationID, refreshToken string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Upsert(&tokens.TokenRecord{
		InstallationID: installationID,
		AccessToken:    "access-" + installationID,
		RefreshToken:   refreshToken,
		ExpiresAt:      expiresAt,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}))
}

func newScheduler(t *testing.T, repo *tokenfake.FakeTokenRepo, refresher *fakeRefresher) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(repo, refresher, 2*time.Hour, zerolog.Nop(),
		scheduler.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)
	return s
}

func TestSweepSelectsOnlyTokensInsideWindow(t *testing.T) {
	repo := tokenfake.NewFakeTokenRepo()
	seedRecord(t, repo, "due-soon", "refresh-1", testNow.Add(time.Hour))
	seedRecord(t, repo, "already-expired", "refresh-2", testNow.Add(-time.Hour))
	seedRecord(t, repo, "not-yet", "refresh-3", testNow.Add(3*time.Hour))

	refresher := &fakeRefresher{}
	s := newScheduler(t, repo, refresher)

	refreshed, failed := s.Sweep(context.Background())
	require.Equal(t, 2, refreshed)
	require.Zero(t, failed)
	require.ElementsMatch(t, []string{"due-soon", "already-expired"}, refresher.refreshed)
}

func TestSweepSkipsRecordsWithoutRefreshToken(t *testing.T) {
	repo := tokenfake.NewFakeTokenRepo()
	seedRecord(t, repo, "no-refresh", "", testNow.Add(-time.Hour))

	refresher := &fakeRefresher{}
	s := newScheduler(t, repo, refresher)

	refreshed, failed := s.Sweep(context.Background())
	require.Zero(t, refreshed)
	require.Zero(t, failed)
	require.Empty(t, refresher.refreshed)
}

func TestSweepFailureDoesNotAbortRemaining(t *testing.T) {
	repo := tokenfake.NewFakeTokenRepo()
	// Failing record expires first, so it is attempted first.
	seedRecord(t, repo, "failing", "refresh-1", testNow.Add(30*time.Minute))
	seedRecord(t, repo, "healthy-1", "refresh-2", testNow.Add(time.Hour))
	seedRecord(t, repo, "healthy-2", "refresh-3", testNow.Add(90*time.Minute))

	refresher := &fakeRefresher{failing: map[string]bool{"failing": true}}
	s := newScheduler(t, repo, refresher)

	refreshed, failed := s.Sweep(context.Background())
	require.Equal(t, 2, refreshed)
	require.Equal(t, 1, failed)
	require.ElementsMatch(t, []string{"healthy-1", "healthy-2"}, refresher.refreshed)
}

// fakeRefreshClient scripts the upstream refresh grant for the end-to-end
// sweep tests below.
type fakeRefreshClient struct {
	payload *provider.TokenPayload
	err     error
	calls   int
}

func (f *fakeRefreshClient) RefreshToken(_ context.Context, _ string) (*provider.TokenPayload, error) {
	f.calls++
	return f.payload, f.err
}

func TestSweepReplacesStoredTokenThroughManager(t *testing.T) {
	installationRepo := installfake.NewFakeInstallationRepo()
	repo := tokenfake.NewFakeTokenRepo()
	auditLog := audit.NewLogger(audit.NewMemorySink(), zerolog.Nop())
	t.Cleanup(auditLog.Close)

	require.NoError(t, installationRepo.Upsert(&installations.Installation{
		InstallationID: "inst-1",
		Status:         installations.StatusCompleted,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}))
	seedRecord(t, repo, "inst-1", "RT1", testNow.Add(30*time.Minute))

	manager, err := tokens.NewManager(installationRepo, repo,
		&fakeRefreshClient{payload: &provider.TokenPayload{
			AccessToken:  "AT2",
			RefreshToken: "RT2",
			ExpiresIn:    3600,
		}},
		auditLog, zerolog.Nop(),
		tokens.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)

	s, err := scheduler.New(repo, manager, 2*time.Hour, zerolog.Nop(),
		scheduler.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)

	refreshed, failed := s.Sweep(context.Background())
	require.Equal(t, 1, refreshed)
	require.Zero(t, failed)

	record, err := repo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, "AT2", record.AccessToken)
	require.Equal(t, "RT2", record.RefreshToken)
	require.Equal(t, testNow.Add(3600*time.Second), record.ExpiresAt)
}

func TestSweepDoesNotReattemptRevokedInstallation(t *testing.T) {
	installationRepo := installfake.NewFakeInstallationRepo()
	repo := tokenfake.NewFakeTokenRepo()
	auditLog := audit.NewLogger(audit.NewMemorySink(), zerolog.Nop())
	t.Cleanup(auditLog.Close)

	require.NoError(t, installationRepo.Upsert(&installations.Installation{
		InstallationID: "inst-1",
		Status:         installations.StatusCompleted,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}))
	seedRecord(t, repo, "inst-1", "dead-refresh", testNow.Add(30*time.Minute))

	client := &fakeRefreshClient{err: &provider.UpstreamError{StatusCode: 400, Code: "invalid_grant"}}
	manager, err := tokens.NewManager(installationRepo, repo, client, auditLog, zerolog.Nop(),
		tokens.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)

	s, err := scheduler.New(repo, manager, 2*time.Hour, zerolog.Nop(),
		scheduler.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)

	refreshed, failed := s.Sweep(context.Background())
	require.Zero(t, refreshed)
	require.Equal(t, 1, failed)

	installation, err := installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusRevoked, installation.Status)

	// The dead record was removed with the revocation, so the next sweep
	// finds nothing to attempt.
	refreshed, failed = s.Sweep(context.Background())
	require.Zero(t, refreshed)
	require.Zero(t, failed)
	require.Equal(t, 1, client.calls)
}

func TestStartRejectsInvalidCronSpec(t *testing.T) {
	repo := tokenfake.NewFakeTokenRepo()
	s := newScheduler(t, repo, &fakeRefresher{})

	require.Error(t, s.Start("not a cron spec"))
	require.NoError(t, s.Start("0 * * * *"))
	s.Stop()
}
