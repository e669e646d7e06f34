package service

import (
	"context"
	"fmt"
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/repository"
	"github.com/planwell/calendar-sync/pkg/crypto"
	"golang.org/x/oauth2"
)

const testTokenKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testCipher() *crypto.Cipher {
	c, err := crypto.NewCipher(testTokenKey)
	if err != nil {
		panic(err)
	}
	return c
}

// memCredRepo is an in-memory CredentialRepository
type memCredRepo struct {
	creds map[string]*domain.Credential
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{creds: make(map[string]*domain.Credential)}
}

func (r *memCredRepo) Create(ctx context.Context, cred *domain.Credential) error {
	if _, ok := r.creds[cred.UserID]; ok {
		return fmt.Errorf("credential for user %s: %w", cred.UserID, repository.ErrDuplicateCredential)
	}
	cp := *cred
	r.creds[cred.UserID] = &cp
	return nil
}

func (r *memCredRepo) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	cred, ok := r.creds[userID]
	if !ok {
		return nil, fmt.Errorf("credential for user %s: %w", userID, repository.ErrNotFound)
	}
	cp := *cred
	return &cp, nil
}

func (r *memCredRepo) UpdateTokens(ctx context.Context, cred *domain.Credential) error {
	stored, ok := r.creds[cred.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.AccessToken = cred.AccessToken
	stored.RefreshToken = cred.RefreshToken
	stored.TokenExpiresAt = cred.TokenExpiresAt
	return nil
}

func (r *memCredRepo) UpdateStatus(ctx context.Context, userID string, status domain.SyncStatus) error {
	stored, ok := r.creds[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = status
	if status == domain.SyncStatusActive {
		stored.LastError = nil
	}
	return nil
}

func (r *memCredRepo) SetError(ctx context.Context, userID, message string) error {
	stored, ok := r.creds[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = domain.SyncStatusError
	stored.LastError = &message
	return nil
}

func (r *memCredRepo) SetSynced(ctx context.Context, userID string, at time.Time) error {
	stored, ok := r.creds[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = domain.SyncStatusActive
	stored.LastError = nil
	stored.LastSyncAt = &at
	return nil
}

func (r *memCredRepo) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	var out []*domain.Credential
	for _, cred := range r.creds {
		if cred.Status == domain.SyncStatusActive {
			cp := *cred
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCredRepo) ListNeedingRefresh(ctx context.Context, deadline time.Time) ([]*domain.Credential, error) {
	var out []*domain.Credential
	for _, cred := range r.creds {
		if !cred.TokenExpiresAt.After(deadline) && cred.RefreshToken != "" {
			cp := *cred
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCredRepo) Delete(ctx context.Context, userID string) error {
	if _, ok := r.creds[userID]; !ok {
		return fmt.Errorf("credential for user %s: %w", userID, repository.ErrNotFound)
	}
	delete(r.creds, userID)
	return nil
}

// memMappingRepo is an in-memory MappingRepository
type memMappingRepo struct {
	mappings map[string]*domain.SyncMapping
}

func newMemMappingRepo() *memMappingRepo {
	return &memMappingRepo{mappings: make(map[string]*domain.SyncMapping)}
}

func mappingKey(userID string, ref domain.EntityRef) string {
	return userID + "/" + ref.String()
}

func (r *memMappingRepo) Upsert(ctx context.Context, m *domain.SyncMapping) error {
	cp := *m
	r.mappings[mappingKey(m.UserID, m.Ref())] = &cp
	return nil
}

func (r *memMappingRepo) GetByEntity(ctx context.Context, userID string, ref domain.EntityRef) (*domain.SyncMapping, error) {
	m, ok := r.mappings[mappingKey(userID, ref)]
	if !ok {
		return nil, fmt.Errorf("mapping for %s: %w", ref, repository.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (r *memMappingRepo) TouchSynced(ctx context.Context, id string, at time.Time) error {
	for _, m := range r.mappings {
		if m.ID == id {
			m.LastSyncedAt = at
			return nil
		}
	}
	return fmt.Errorf("mapping %s: %w", id, repository.ErrNotFound)
}

func (r *memMappingRepo) ListStale(ctx context.Context, olderThan time.Time) ([]*domain.SyncMapping, error) {
	var out []*domain.SyncMapping
	for _, m := range r.mappings {
		if m.LastSyncedAt.Before(olderThan) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMappingRepo) DeleteByEntity(ctx context.Context, userID string, ref domain.EntityRef) error {
	delete(r.mappings, mappingKey(userID, ref))
	return nil
}

func (r *memMappingRepo) DeleteByEventID(ctx context.Context, userID, eventID string) error {
	for key, m := range r.mappings {
		if m.UserID == userID && m.EventID == eventID {
			delete(r.mappings, key)
		}
	}
	return nil
}

func (r *memMappingRepo) DeleteByUserID(ctx context.Context, userID string) error {
	for key, m := range r.mappings {
		if m.UserID == userID {
			delete(r.mappings, key)
		}
	}
	return nil
}

// memPlanningRepo is an in-memory read-only PlanningRepository
type memPlanningRepo struct {
	items map[string][]*domain.PlanItem
}

func newMemPlanningRepo() *memPlanningRepo {
	return &memPlanningRepo{items: make(map[string][]*domain.PlanItem)}
}

func (r *memPlanningRepo) add(userID string, item *domain.PlanItem) {
	r.items[userID] = append(r.items[userID], item)
}

func (r *memPlanningRepo) ListSyncEligible(ctx context.Context, userID string) ([]*domain.PlanItem, error) {
	return r.items[userID], nil
}

func (r *memPlanningRepo) GetByRef(ctx context.Context, userID string, ref domain.EntityRef) (*domain.PlanItem, error) {
	for _, item := range r.items[userID] {
		if item.Ref == ref {
			return item, nil
		}
	}
	return nil, fmt.Errorf("plan item %s: %w", ref, repository.ErrNotFound)
}

// fakeCalendar is a scriptable calendar.Client
type fakeCalendar struct {
	createErr    error
	updateErr    error
	deleteErr    error
	exchangeErr  error
	refreshErr   error
	refreshToken *oauth2.Token

	created   int
	updated   int
	deleted   int
	nextID    int
	deletedI  []string
	lastEvent *calendar.Event
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, accessToken, calendarID string, ev *calendar.Event) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	f.nextID++
	f.lastEvent = ev
	return fmt.Sprintf("evt-%d", f.nextID), nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev *calendar.Event) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated++
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted++
	f.deletedI = append(f.deletedI, eventID)
	return nil
}

func (f *fakeCalendar) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeCalendar) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshToken != nil {
		return f.refreshToken, nil
	}
	return &oauth2.Token{
		AccessToken: "refreshed-access",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

// fakePusher scripts the outcome of entity pushes
type fakePusher struct {
	errs   map[string]error
	pushed []string
}

func newFakePusher() *fakePusher {
	return &fakePusher{errs: make(map[string]error)}
}

func (f *fakePusher) Push(ctx context.Context, accessToken, userID string, item *domain.PlanItem) error {
	if err, ok := f.errs[item.Ref.ID]; ok {
		return err
	}
	f.pushed = append(f.pushed, item.Ref.ID)
	return nil
}

// fakeLocker grants every lock unless the key is marked busy
type fakeLocker struct {
	busy     map[string]bool
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{busy: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(ctx context.Context, key string) (bool, error) {
	if f.busy[key] {
		return false, nil
	}
	f.acquired = append(f.acquired, key)
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, key string) error {
	f.released = append(f.released, key)
	return nil
}

type enqueuedFullSync struct {
	userID  string
	attempt int
	delay   time.Duration
}

type enqueuedEntitySync struct {
	userID  string
	ref     domain.EntityRef
	full    bool
	attempt int
	delay   time.Duration
}

type enqueuedRemove struct {
	userID     string
	eventID    string
	calendarID string
	attempt    int
	delay      time.Duration
}

// fakeEnqueuer records enqueued work
type fakeEnqueuer struct {
	fullSyncs   []enqueuedFullSync
	entitySyncs []enqueuedEntitySync
	removes     []enqueuedRemove
	failFor     map[string]error
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{failFor: make(map[string]error)}
}

func (f *fakeEnqueuer) EnqueueFullSync(ctx context.Context, userID string, attempt int, delay time.Duration) error {
	if err, ok := f.failFor[userID]; ok {
		return err
	}
	f.fullSyncs = append(f.fullSyncs, enqueuedFullSync{userID, attempt, delay})
	return nil
}

func (f *fakeEnqueuer) EnqueueEntitySync(ctx context.Context, userID string, ref domain.EntityRef, full bool, attempt int, delay time.Duration) error {
	f.entitySyncs = append(f.entitySyncs, enqueuedEntitySync{userID, ref, full, attempt, delay})
	return nil
}

func (f *fakeEnqueuer) EnqueueRemoveEvent(ctx context.Context, userID, eventID, calendarID string, attempt int, delay time.Duration) error {
	f.removes = append(f.removes, enqueuedRemove{userID, eventID, calendarID, attempt, delay})
	return nil
}

// recordingNotifier counts credential error notifications
type recordingNotifier struct {
	notified []string
}

func (n *recordingNotifier) CredentialError(ctx context.Context, cred *domain.Credential, message string) error {
	n.notified = append(n.notified, cred.UserID)
	return nil
}
