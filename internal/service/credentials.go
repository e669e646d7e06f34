package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/repository"
	"github.com/planwell/calendar-sync/pkg/crypto"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const providerGoogle = "google"

// ErrSyncPaused is returned when the user has paused calendar sync
var ErrSyncPaused = errors.New("calendar sync is paused")

// CredentialService owns the lifecycle of calendar credentials: OAuth
// exchange, encryption of token material at rest, proactive refresh, and the
// three-state health indicator.
type CredentialService struct {
	creds    repository.CredentialRepository
	mappings repository.MappingRepository
	cal      calendar.Client
	cipher   *crypto.Cipher
	logger   *zap.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(
	creds repository.CredentialRepository,
	mappings repository.MappingRepository,
	cal calendar.Client,
	cipher *crypto.Cipher,
	logger *zap.Logger,
) *CredentialService {
	return &CredentialService{
		creds:    creds,
		mappings: mappings,
		cal:      cal,
		cipher:   cipher,
		logger:   logger,
	}
}

// Connect exchanges an authorization code and stores the resulting credential.
// Reconnecting a user that already has a credential replaces the token
// material and reactivates the connection.
func (s *CredentialService) Connect(ctx context.Context, userID, accountEmail, code string) (*domain.Credential, error) {
	token, err := s.cal.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	cred := &domain.Credential{
		UserID:         userID,
		Provider:       providerGoogle,
		AccountEmail:   accountEmail,
		TokenExpiresAt: token.Expiry,
		Status:         domain.SyncStatusActive,
	}

	if err := s.sealTokens(cred, token); err != nil {
		return nil, err
	}

	err = s.creds.Create(ctx, cred)
	if errors.Is(err, repository.ErrDuplicateCredential) {
		// Reconnect: replace tokens on the existing row and clear any error
		if err := s.creds.UpdateTokens(ctx, cred); err != nil {
			return nil, err
		}
		if err := s.creds.UpdateStatus(ctx, userID, domain.SyncStatusActive); err != nil {
			return nil, err
		}
		return s.creds.GetByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("calendar connected", zap.String("user_id", userID))
	return cred, nil
}

// Disconnect deletes the credential together with the user's mapping ledger,
// so periodic reconciliation never tries to heal orphaned mappings
func (s *CredentialService) Disconnect(ctx context.Context, userID string) error {
	if err := s.mappings.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear mapping ledger: %w", err)
	}
	if err := s.creds.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("calendar disconnected", zap.String("user_id", userID))
	return nil
}

// Pause suspends syncing without touching token material
func (s *CredentialService) Pause(ctx context.Context, userID string) error {
	return s.creds.UpdateStatus(ctx, userID, domain.SyncStatusPaused)
}

// Resume reactivates a paused connection
func (s *CredentialService) Resume(ctx context.Context, userID string) error {
	return s.creds.UpdateStatus(ctx, userID, domain.SyncStatusActive)
}

// Status returns the credential health surface shown to the user
func (s *CredentialService) Status(ctx context.Context, userID string) (*domain.Credential, error) {
	return s.creds.GetByUserID(ctx, userID)
}

// GetForSync loads the credential for a sync attempt, refreshing the access
// token when it expires within the proactive window. Paused connections are
// rejected with ErrSyncPaused. Refresh failures carry the calendar client's
// typed classification.
func (s *CredentialService) GetForSync(ctx context.Context, userID string) (*domain.Credential, error) {
	cred, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cred.Status == domain.SyncStatusPaused {
		return nil, ErrSyncPaused
	}

	if cred.IsExpiringSoon(time.Now()) {
		if err := s.refresh(ctx, cred); err != nil {
			return nil, err
		}
	}

	return cred, nil
}

// AccessToken decrypts the stored access token for use against the provider
func (s *CredentialService) AccessToken(cred *domain.Credential) (string, error) {
	token, err := s.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return token, nil
}

// MarkError records a terminal failure on the credential. Returns true when
// this call transitioned the credential into the error state, so callers can
// notify the user exactly once.
func (s *CredentialService) MarkError(ctx context.Context, userID, message string) (bool, error) {
	cred, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}

	if err := s.creds.SetError(ctx, userID, message); err != nil {
		return false, err
	}

	return cred.Status != domain.SyncStatusError, nil
}

// MarkSynced records a successful sync pass: status active, error cleared,
// last_sync_at set to now
func (s *CredentialService) MarkSynced(ctx context.Context, userID string) error {
	return s.creds.SetSynced(ctx, userID, time.Now())
}

// ListReconcilable returns the credentials periodic reconciliation fans out over
func (s *CredentialService) ListReconcilable(ctx context.Context) ([]*domain.Credential, error) {
	return s.creds.ListActive(ctx)
}

// RefreshExpiring proactively refreshes every credential whose token expires
// within the window, regardless of health: a refresh can heal an error state
// caused by expiry. Returns how many credentials were refreshed.
func (s *CredentialService) RefreshExpiring(ctx context.Context) (int, error) {
	deadline := time.Now().Add(domain.TokenExpiryWindow)
	creds, err := s.creds.ListNeedingRefresh(ctx, deadline)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, cred := range creds {
		if err := s.refresh(ctx, cred); err != nil {
			s.logger.Warn("proactive token refresh failed",
				zap.String("user_id", cred.UserID),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}

	return refreshed, nil
}

func (s *CredentialService) refresh(ctx context.Context, cred *domain.Credential) error {
	refreshToken, err := s.cipher.Decrypt(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token, err := s.cal.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	// Providers rotate refresh tokens only sometimes; keep the old one unless
	// a replacement came back
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	if err := s.sealTokens(cred, token); err != nil {
		return err
	}
	cred.TokenExpiresAt = token.Expiry

	if err := s.creds.UpdateTokens(ctx, cred); err != nil {
		return err
	}

	// A successful refresh heals an error state caused by expiry
	if cred.Status == domain.SyncStatusError {
		if err := s.creds.UpdateStatus(ctx, cred.UserID, domain.SyncStatusActive); err != nil {
			return err
		}
		cred.Status = domain.SyncStatusActive
	}

	s.logger.Debug("access token refreshed", zap.String("user_id", cred.UserID))
	return nil
}

func (s *CredentialService) sealTokens(cred *domain.Credential, token *oauth2.Token) error {
	access, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	refresh, err := s.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	cred.AccessToken = access
	cred.RefreshToken = refresh
	return nil
}
