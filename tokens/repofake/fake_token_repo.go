package repofake

import (
	"sort"
	"sync"
	"time"

	"github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/tokens"
)

var _ tokens.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	records map[string]*tokens.TokenRecord
	lock    sync.RWMutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		records: make(map[string]*tokens.TokenRecord),
	}
}

func (r *FakeTokenRepo) Upsert(record *tokens.TokenRecord) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *record
	if existing, ok := r.records[record.InstallationID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	r.records[record.InstallationID] = &stored
	return nil
}

func (r *FakeTokenRepo) Get(installationID string) (*tokens.TokenRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.records[installationID]
	if !ok {
		return nil, errors.ErrTokenNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *FakeTokenRepo) FindExpiringBefore(ts time.Time) ([]*tokens.TokenRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	expiring := make([]*tokens.TokenRecord, 0)
	for _, record := range r.records {
		if !record.Refreshable() {
			continue
		}
		if record.ExpiresAt.Before(ts) {
			copied := *record
			expiring = append(expiring, &copied)
		}
	}
	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].ExpiresAt.Before(expiring[j].ExpiresAt)
	})
	return expiring, nil
}

func (r *FakeTokenRepo) FindByUserID(userID string) (*tokens.TokenRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if userID == "" {
		return nil, errors.ErrTokenNotFound
	}
	var newest *tokens.TokenRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if newest == nil || record.UpdatedAt.After(newest.UpdatedAt) {
			newest = record
		}
	}
	if newest == nil {
		return nil, errors.ErrTokenNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *FakeTokenRepo) FindByLocationID(locationID string) (*tokens.TokenRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if locationID == "" {
		return nil, errors.ErrTokenNotFound
	}
	var newest *tokens.TokenRecord
	for _, record := range r.records {
		if record.LocationID != locationID {
			continue
		}
		if newest == nil || record.UpdatedAt.After(newest.UpdatedAt) {
			newest = record
		}
	}
	if newest == nil {
		return nil, errors.ErrTokenNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *FakeTokenRepo) Delete(installationID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.records[installationID]; !ok {
		return errors.ErrTokenNotFound
	}
	delete(r.records, installationID)
	return nil
}
