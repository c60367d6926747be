package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/exchange"
	"github.com/engageautomations/ghl-oauth-service/installations"
	installfake "github.com/engageautomations/ghl-oauth-service/installations/repofake"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/provider"
	tokenfake "github.com/engageautomations/ghl-oauth-service/tokens/repofake"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeProviderClient scripts both exchange steps.
type fakeProviderClient struct {
	companyPayload  *provider.TokenPayload
	companyErr      error
	locationPayload *provider.TokenPayload
	locationErr     error

	companyCalls  int
	locationCalls int
}

func (f *fakeProviderClient) ExchangeAuthorizationCode(_ context.Context, _ string) (*provider.TokenPayload, error) {
	f.companyCalls++
	return f.companyPayload, f.companyErr
}

func (f *fakeProviderClient) ExchangeLocationToken(_ context.Context, _, _ string) (*provider.TokenPayload, error) {
	f.locationCalls++
	return f.locationPayload, f.locationErr
}

type testFixture struct {
	installationRepo *installfake.FakeInstallationRepo
	tokenRepo        *tokenfake.FakeTokenRepo
	client           *fakeProviderClient
	sink             *audit.MemorySink
	auditLog         *audit.Logger
	service          *exchange.Service
}

func setupTestFixture(t *testing.T, client *fakeProviderClient) *testFixture {
	t.Helper()

	installationRepo := installfake.NewFakeInstallationRepo()
	tokenRepo := tokenfake.NewFakeTokenRepo()
	sink := audit.NewMemorySink()
	auditLog := audit.NewLogger(sink, zerolog.Nop())
	t.Cleanup(auditLog.Close)

	service, err := exchange.NewService(installationRepo, tokenRepo, client, auditLog, zerolog.Nop(),
		exchange.WithNowTime(func() time.Time { return testNow }),
		exchange.WithAttemptIDFunc(func() string { return "attempt-1" }))
	require.NoError(t, err)

	return &testFixture{
		installationRepo: installationRepo,
		tokenRepo:        tokenRepo,
		client:           client,
		sink:             sink,
		auditLog:         auditLog,
		service:          service,
	}
}

func companyPayload() *provider.TokenPayload {
	return &provider.TokenPayload{
		AccessToken:    "company-access",
		RefreshToken:   "company-refresh",
		ExpiresIn:      86399,
		InstallationID: "inst-1",
		LocationID:     "loc-1",
		CompanyID:      "comp-1",
		UserID:         "user-1",
	}
}

func locationPayload() *provider.TokenPayload {
	return &provider.TokenPayload{
		AccessToken:  "location-access",
		RefreshToken: "location-refresh",
		ExpiresIn:    86399,
		LocationID:   "loc-1",
		AuthClass:    "Location",
	}
}

func TestCompleteInstallationHappyPath(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload:  companyPayload(),
		locationPayload: locationPayload(),
	}
	fixture := setupTestFixture(t, client)
	require.NoError(t, fixture.service.PreRegister(context.Background(), "inst-1"))

	result, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.NoError(t, err)
	require.Equal(t, "inst-1", result.InstallationID)
	require.Equal(t, "loc-1", result.LocationID)
	require.Equal(t, "comp-1", result.CompanyID)
	require.False(t, result.Degraded)

	installation, err := fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusCompleted, installation.Status)

	// The final stored record is the location-scoped pair.
	record, err := fixture.tokenRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, "location-access", record.AccessToken)
	require.Equal(t, "location-refresh", record.RefreshToken)
	require.Equal(t, "loc-1", record.LocationID)
	require.Equal(t, "user-1", record.UserID)
	require.Equal(t, testNow.Add(86399*time.Second), record.ExpiresAt)
}

func TestCompleteInstallationMissingCodeMakesNoNetworkCall(t *testing.T) {
	client := &fakeProviderClient{}
	fixture := setupTestFixture(t, client)

	_, err := fixture.service.CompleteInstallation(context.Background(), "", "inst-1")
	require.ErrorIs(t, err, svcerrors.ErrInvalidRequest)
	require.Zero(t, client.companyCalls)
	require.Zero(t, client.locationCalls)
}

func TestCompleteInstallationCompanyExchangeFails(t *testing.T) {
	client := &fakeProviderClient{
		companyErr: &provider.UpstreamError{StatusCode: 400, Code: "invalid_grant", Description: "Code expired"},
	}
	fixture := setupTestFixture(t, client)
	require.NoError(t, fixture.service.PreRegister(context.Background(), "inst-1"))

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.ErrorIs(t, err, svcerrors.ErrUpstreamExchange)

	// Installation stays pending; no token record is written.
	installation, err := fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusPending, installation.Status)

	_, err = fixture.tokenRepo.Get("inst-1")
	require.ErrorIs(t, err, svcerrors.ErrTokenNotFound)
}

func TestCompleteInstallationPayloadIDWinsOverObserved(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload:  companyPayload(),
		locationPayload: locationPayload(),
	}
	fixture := setupTestFixture(t, client)

	result, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "observed-id")
	require.NoError(t, err)
	require.Equal(t, "inst-1", result.InstallationID)
}

func TestCompleteInstallationSynthesizesIDWhenNoneObserved(t *testing.T) {
	payload := companyPayload()
	payload.InstallationID = ""
	client := &fakeProviderClient{
		companyPayload:  payload,
		locationPayload: locationPayload(),
	}
	fixture := setupTestFixture(t, client)

	result, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "")
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.NotEmpty(t, result.InstallationID)

	installation, err := fixture.installationRepo.Get(result.InstallationID)
	require.NoError(t, err)
	require.Equal(t, installations.StatusCompleted, installation.Status)
}

func TestCompleteInstallationMissingLocationID(t *testing.T) {
	payload := companyPayload()
	payload.LocationID = ""
	client := &fakeProviderClient{companyPayload: payload}
	fixture := setupTestFixture(t, client)

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.ErrorIs(t, err, svcerrors.ErrMissingLocationID)
	require.Zero(t, client.locationCalls)
}

func TestCompleteInstallationLocationExchangeFailureLeavesActive(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload: companyPayload(),
		locationErr:    &provider.UpstreamError{StatusCode: 503},
	}
	fixture := setupTestFixture(t, client)

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.ErrorIs(t, err, svcerrors.ErrUpstreamExchange)

	// The attempt is resumable: the installation is active and the company
	// token pair is stored.
	installation, err := fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusActive, installation.Status)

	record, err := fixture.tokenRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, "company-access", record.AccessToken)
}

func TestPreRegisterAfterLocationFailureAllowsRetry(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload: companyPayload(),
		locationErr:    &provider.UpstreamError{StatusCode: 503},
	}
	fixture := setupTestFixture(t, client)
	require.NoError(t, fixture.service.PreRegister(context.Background(), "inst-1"))

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.ErrorIs(t, err, svcerrors.ErrUpstreamExchange)

	// The retry re-enters through the marketplace entry point, which must
	// not downgrade the active installation.
	require.NoError(t, fixture.service.PreRegister(context.Background(), "inst-1"))

	installation, err := fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusActive, installation.Status)

	client.locationErr = nil
	client.locationPayload = locationPayload()
	result, err := fixture.service.CompleteInstallation(context.Background(), "code-2", "inst-1")
	require.NoError(t, err)
	require.Equal(t, "inst-1", result.InstallationID)

	installation, err = fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusCompleted, installation.Status)
}

func TestPreRegisterResetsRevokedInstallation(t *testing.T) {
	fixture := setupTestFixture(t, &fakeProviderClient{})
	require.NoError(t, fixture.installationRepo.Upsert(&installations.Installation{
		InstallationID: "inst-1",
		Status:         installations.StatusRevoked,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}))

	require.NoError(t, fixture.service.PreRegister(context.Background(), "inst-1"))

	installation, err := fixture.installationRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, installations.StatusPending, installation.Status)
}

func TestCompleteInstallationReinstallOverwrites(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload:  companyPayload(),
		locationPayload: locationPayload(),
	}
	fixture := setupTestFixture(t, client)

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.NoError(t, err)

	// Same installation comes back through the flow with new tokens.
	client.locationPayload = &provider.TokenPayload{
		AccessToken:  "location-access-2",
		RefreshToken: "location-refresh-2",
		ExpiresIn:    86399,
		LocationID:   "loc-1",
	}
	_, err = fixture.service.CompleteInstallation(context.Background(), "code-2", "inst-1")
	require.NoError(t, err)

	record, err := fixture.tokenRepo.Get("inst-1")
	require.NoError(t, err)
	require.Equal(t, "location-access-2", record.AccessToken)
	require.Equal(t, "location-refresh-2", record.RefreshToken)
}

func TestAuditTrailSharesAttemptID(t *testing.T) {
	client := &fakeProviderClient{
		companyPayload:  companyPayload(),
		locationPayload: locationPayload(),
	}
	fixture := setupTestFixture(t, client)

	_, err := fixture.service.CompleteInstallation(context.Background(), "code-1", "inst-1")
	require.NoError(t, err)

	fixture.auditLog.Close()
	events := fixture.sink.Events()
	require.NotEmpty(t, events)
	for _, event := range events {
		require.Equal(t, "attempt-1", event.AttemptID)
		// Tokens never appear in full in the trail.
		for _, value := range event.Data {
			str, ok := value.(string)
			if !ok {
				continue
			}
			require.NotContains(t, str, "company-access")
			require.NotContains(t, str, "location-access")
		}
	}
}
