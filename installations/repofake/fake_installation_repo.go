package repofake

import (
	"sort"
	"sync"

	"github.com/engageautomations/ghl-oauth-service/installations"
	"github.com/engageautomations/ghl-oauth-service/internal/errors"
)

var _ installations.Repo = (*FakeInstallationRepo)(nil)

type FakeInstallationRepo struct {
	records map[string]*installations.Installation
	lock    sync.RWMutex
}

func NewFakeInstallationRepo() *FakeInstallationRepo {
	return &FakeInstallationRepo{
		records: make(map[string]*installations.Installation),
	}
}

func (r *FakeInstallationRepo) Upsert(installation *installations.Installation) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *installation
	if existing, ok := r.records[installation.InstallationID]; ok {
		if !existing.Status.CanTransitionTo(installation.Status) {
			return errors.Wrapf(errors.ErrInvalidTransition, "cannot move %q from %s to %s",
				installation.InstallationID, existing.Status, installation.Status)
		}
		stored.CreatedAt = existing.CreatedAt
	}
	r.records[installation.InstallationID] = &stored
	return nil
}

func (r *FakeInstallationRepo) Get(installationID string) (*installations.Installation, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	installation, ok := r.records[installationID]
	if !ok {
		return nil, errors.ErrInstallationNotFound
	}
	copied := *installation
	return &copied, nil
}

func (r *FakeInstallationRepo) List(offset, limit int) ([]*installations.Installation, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	all := make([]*installations.Installation, 0, len(r.records))
	for _, installation := range r.records {
		copied := *installation
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
