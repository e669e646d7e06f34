package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type credFixture struct {
	repo     *memCredRepo
	mappings *memMappingRepo
	cal      *fakeCalendar
	svc      *CredentialService
}

func newCredFixture() *credFixture {
	f := &credFixture{
		repo:     newMemCredRepo(),
		mappings: newMemMappingRepo(),
		cal:      &fakeCalendar{},
	}
	f.svc = NewCredentialService(f.repo, f.mappings, f.cal, testCipher(), zap.NewNop())
	return f
}

func TestConnectStoresEncryptedTokens(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()

	cred, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "auth-code")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusActive, cred.Status)
	assert.Equal(t, "google", cred.Provider)
	assert.NotEqual(t, "access-auth-code", cred.AccessToken, "token must be stored encrypted")
	assert.NotEqual(t, "refresh-auth-code", cred.RefreshToken)

	// The plaintext comes back only through AccessToken
	plain, err := f.svc.AccessToken(cred)
	require.NoError(t, err)
	assert.Equal(t, "access-auth-code", plain)
}

func TestConnectExchangeFailure(t *testing.T) {
	f := newCredFixture()
	f.cal.exchangeErr = authErr()

	_, err := f.svc.Connect(context.Background(), uuid.New().String(), "user@gmail.com", "bad-code")
	assert.Error(t, err)
}

func TestConnectReplacesExistingCredential(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()

	first, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code-1")
	require.NoError(t, err)

	// Simulate a broken connection, then reconnect
	require.NoError(t, f.repo.SetError(context.Background(), userID, "token revoked"))

	second, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code-2")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusActive, second.Status, "reconnect reactivates the connection")
	assert.Nil(t, second.LastError)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	plain, err := f.svc.AccessToken(second)
	require.NoError(t, err)
	assert.Equal(t, "access-code-2", plain)
}

func TestDisconnectClearsLedger(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	_ = f.mappings.Upsert(context.Background(), &domain.SyncMapping{
		ID:         uuid.New().String(),
		UserID:     userID,
		EntityKind: domain.KindGoal,
		EntityID:   uuid.New().String(),
		EventID:    "evt-1",
		CalendarID: "primary",
	})

	require.NoError(t, f.svc.Disconnect(context.Background(), userID))

	_, err = f.repo.GetByUserID(context.Background(), userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, f.mappings.mappings)
}

func TestDisconnectUnknownUser(t *testing.T) {
	f := newCredFixture()
	err := f.svc.Disconnect(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetForSyncPaused(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)
	require.NoError(t, f.svc.Pause(context.Background(), userID))

	_, err = f.svc.GetForSync(context.Background(), userID)
	assert.ErrorIs(t, err, ErrSyncPaused)
}

func TestGetForSyncRefreshesExpiringToken(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	// Push the stored expiry inside the proactive window
	stored := f.repo.creds[userID]
	stored.TokenExpiresAt = time.Now().Add(time.Minute)

	cred, err := f.svc.GetForSync(context.Background(), userID)
	require.NoError(t, err)

	plain, err := f.svc.AccessToken(cred)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", plain)
	assert.True(t, cred.TokenExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestRefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	stored := f.repo.creds[userID]
	stored.TokenExpiresAt = time.Now().Add(time.Minute)

	// Provider returns no refresh token on refresh
	cred, err := f.svc.GetForSync(context.Background(), userID)
	require.NoError(t, err)

	refresh, err := testCipher().Decrypt(cred.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-code", refresh, "old refresh token survives when none is returned")
}

func TestGetForSyncRefreshFailureKeepsClassification(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	stored := f.repo.creds[userID]
	stored.TokenExpiresAt = time.Now().Add(time.Minute)
	f.cal.refreshErr = authErr()

	_, err = f.svc.GetForSync(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, calendar.FailureAuth, calendar.KindOf(err), "refresh failures keep the client's classification")
}

func TestRefreshHealsErrorState(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	stored := f.repo.creds[userID]
	stored.TokenExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.repo.SetError(context.Background(), userID, "token expired"))

	refreshed, err := f.svc.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	cred, err := f.repo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusActive, cred.Status, "a successful refresh heals the error state")
	assert.Nil(t, cred.LastError)
}

func TestRefreshExpiringSkipsFailures(t *testing.T) {
	f := newCredFixture()

	healthy := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), healthy, "a@gmail.com", "code-a")
	require.NoError(t, err)
	f.repo.creds[healthy].TokenExpiresAt = time.Now().Add(-time.Minute)

	// Fresh token, not picked up
	fresh := uuid.New().String()
	_, err = f.svc.Connect(context.Background(), fresh, "b@gmail.com", "code-b")
	require.NoError(t, err)

	refreshed, err := f.svc.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
}

func TestMarkErrorReportsTransition(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	transitioned, err := f.svc.MarkError(context.Background(), userID, "token revoked")
	require.NoError(t, err)
	assert.True(t, transitioned, "first failure transitions into error")

	transitioned, err = f.svc.MarkError(context.Background(), userID, "still revoked")
	require.NoError(t, err)
	assert.False(t, transitioned, "repeated failures do not transition again")
}

func TestMarkSynced(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)
	_, err = f.svc.MarkError(context.Background(), userID, "blip")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkSynced(context.Background(), userID))

	cred, err := f.repo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusActive, cred.Status)
	assert.Nil(t, cred.LastError)
	assert.NotNil(t, cred.LastSyncAt)
}

func TestRotatedRefreshTokenIsStored(t *testing.T) {
	f := newCredFixture()
	userID := uuid.New().String()
	_, err := f.svc.Connect(context.Background(), userID, "user@gmail.com", "code")
	require.NoError(t, err)

	stored := f.repo.creds[userID]
	stored.TokenExpiresAt = time.Now().Add(time.Minute)
	f.cal.refreshToken = &oauth2.Token{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}

	cred, err := f.svc.GetForSync(context.Background(), userID)
	require.NoError(t, err)

	refresh, err := testCipher().Decrypt(cred.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", refresh)
}
