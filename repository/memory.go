package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	authsession "github.com/goliatone/go-authsession"
)

// MemoryProfiles is an in-process authsession.ProfileStore, used in tests
// and single process tools.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]authsession.Profile
	now      func() time.Time
}

var _ authsession.ProfileStore = (*MemoryProfiles)(nil)

// NewMemoryProfiles creates an empty store.
func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{
		profiles: map[string]authsession.Profile{},
		now:      time.Now,
	}
}

// GetProfile implements authsession.ProfileStore.
func (m *MemoryProfiles) GetProfile(_ context.Context, id string) (*authsession.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[id]
	if !ok {
		return nil, authsession.ErrProfileNotFound.Clone().WithMetadata(map[string]any{
			"id": id,
		})
	}
	return copyProfile(profile), nil
}

// SetProfile implements authsession.ProfileStore.
func (m *MemoryProfiles) SetProfile(_ context.Context, id string, update authsession.ProfileUpdate, merge bool) (*authsession.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile := authsession.Profile{ID: id}
	if existing, ok := m.profiles[id]; ok && merge {
		profile = *copyProfile(existing)
	}

	update.Apply(&profile)
	now := m.now()
	profile.UpdatedAt = &now

	m.profiles[id] = *copyProfile(profile)
	return copyProfile(profile), nil
}

// UpdateProfile implements authsession.ProfileStore.
func (m *MemoryProfiles) UpdateProfile(_ context.Context, id string, update authsession.ProfileUpdate) (*authsession.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.profiles[id]
	if !ok {
		return nil, authsession.ErrProfileNotFound.Clone().WithMetadata(map[string]any{
			"id": id,
		})
	}

	profile := *copyProfile(existing)
	update.Apply(&profile)
	now := m.now()
	profile.UpdatedAt = &now

	m.profiles[id] = *copyProfile(profile)
	return copyProfile(profile), nil
}

// Delete removes a document, mostly to simulate missing profiles
func (m *MemoryProfiles) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
}

func copyProfile(p authsession.Profile) *authsession.Profile {
	out := p
	out.CreatedAt = copyTime(p.CreatedAt)
	out.LastLogin = copyTime(p.LastLogin)
	out.UpdatedAt = copyTime(p.UpdatedAt)
	if p.Metadata != nil {
		out.Metadata = maps.Clone(p.Metadata)
	}
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
