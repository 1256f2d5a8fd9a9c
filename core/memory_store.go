package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryGrantStore is a process-local GrantStore with the same conditional
// semantics as the SQL store: versions increment on every write, and the
// versioned primitives fail with ErrVersionConflict on a stale read.
type MemoryGrantStore struct {
	mu    sync.Mutex
	rows  map[GrantKey]Grant
	nowFn func() time.Time
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{
		rows:  map[GrantKey]Grant{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryGrantStore) WithClock(now func() time.Time) *MemoryGrantStore {
	if m != nil && now != nil {
		m.nowFn = now
	}
	return m
}

func (m *MemoryGrantStore) Get(_ context.Context, key GrantKey) (Grant, error) {
	if m == nil {
		return Grant{}, ErrGrantNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.rows[key.Normalize()]
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrGrantNotFound, key.String())
	}
	return cloneGrant(grant), nil
}

func (m *MemoryGrantStore) Upsert(_ context.Context, grant Grant) (Grant, error) {
	if m == nil {
		return Grant{}, ErrGrantNotFound
	}
	grant.Key = grant.Key.Normalize()
	if err := grant.Key.Validate(); err != nil {
		return Grant{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	existing, ok := m.rows[grant.Key]
	if ok {
		grant.CreatedAt = existing.CreatedAt
		grant.Version = existing.Version + 1
	} else {
		grant.CreatedAt = now
		grant.Version = 1
	}
	grant.UpdatedAt = now
	m.rows[grant.Key] = cloneGrant(grant)
	return cloneGrant(grant), nil
}

func (m *MemoryGrantStore) UpdateVersioned(_ context.Context, grant Grant) (Grant, error) {
	if m == nil {
		return Grant{}, ErrGrantNotFound
	}
	grant.Key = grant.Key.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[grant.Key]
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrGrantNotFound, grant.Key.String())
	}
	if existing.Version != grant.Version {
		return Grant{}, fmt.Errorf("%w: %s", ErrVersionConflict, grant.Key.String())
	}
	grant.CreatedAt = existing.CreatedAt
	grant.Version = existing.Version + 1
	grant.UpdatedAt = m.nowFn()
	m.rows[grant.Key] = cloneGrant(grant)
	return cloneGrant(grant), nil
}

func (m *MemoryGrantStore) DeleteVersioned(_ context.Context, key GrantKey, version int64) error {
	if m == nil {
		return ErrGrantNotFound
	}
	key = key.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, key.String())
	}
	if existing.Version != version {
		return fmt.Errorf("%w: %s", ErrVersionConflict, key.String())
	}
	delete(m.rows, key)
	return nil
}

func (m *MemoryGrantStore) Delete(_ context.Context, key GrantKey) (bool, error) {
	if m == nil {
		return false, nil
	}
	key = key.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[key]
	delete(m.rows, key)
	return ok, nil
}

func (m *MemoryGrantStore) ListGuild(_ context.Context, guildID string) ([]Grant, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Grant
	for key, grant := range m.rows {
		if key.GuildID == guildID {
			out = append(out, cloneGrant(grant))
		}
	}
	sortGrants(out)
	return out, nil
}

func (m *MemoryGrantStore) ListSubject(_ context.Context, guildID string, subjectID string) ([]Grant, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Grant
	for key, grant := range m.rows {
		if key.GuildID == guildID && key.SubjectID == subjectID {
			out = append(out, cloneGrant(grant))
		}
	}
	sortGrants(out)
	return out, nil
}

func (m *MemoryGrantStore) ListGuilds(_ context.Context) ([]string, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for key := range m.rows {
		if _, ok := seen[key.GuildID]; ok {
			continue
		}
		seen[key.GuildID] = struct{}{}
		out = append(out, key.GuildID)
	}
	sort.Strings(out)
	return out, nil
}

// Len reports the number of stored rows.
func (m *MemoryGrantStore) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func cloneGrant(grant Grant) Grant {
	grant.WarnedThresholds = append([]int(nil), grant.WarnedThresholds...)
	return grant
}

func sortGrants(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].Key.String() < grants[j].Key.String()
	})
}

// MemoryCreditLedger is a process-local CreditLedger. Subtract never lets a
// balance go negative.
type MemoryCreditLedger struct {
	mu    sync.Mutex
	rows  map[string]CreditBalance
	nowFn func() time.Time
}

func NewMemoryCreditLedger() *MemoryCreditLedger {
	return &MemoryCreditLedger{
		rows:  map[string]CreditBalance{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func creditKey(guildID string, subjectID string) string {
	return guildID + "/" + subjectID
}

func (m *MemoryCreditLedger) Balance(_ context.Context, guildID string, subjectID string) (CreditBalance, error) {
	if m == nil {
		return CreditBalance{GuildID: guildID, SubjectID: subjectID}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.rows[creditKey(guildID, subjectID)]
	if !ok {
		return CreditBalance{GuildID: guildID, SubjectID: subjectID}, nil
	}
	return balance, nil
}

func (m *MemoryCreditLedger) Add(_ context.Context, guildID string, subjectID string, minutes int) (CreditBalance, error) {
	if m == nil {
		return CreditBalance{}, fmt.Errorf("core: credit ledger is nil")
	}
	if minutes < 0 {
		return CreditBalance{}, badInputError("credit amount must not be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	key := creditKey(guildID, subjectID)
	balance, ok := m.rows[key]
	if !ok {
		balance = CreditBalance{GuildID: guildID, SubjectID: subjectID, CreatedAt: now}
	}
	balance.Minutes += minutes
	balance.Version++
	balance.UpdatedAt = now
	m.rows[key] = balance
	return balance, nil
}

func (m *MemoryCreditLedger) Subtract(_ context.Context, guildID string, subjectID string, minutes int) (CreditBalance, error) {
	if m == nil {
		return CreditBalance{}, fmt.Errorf("core: credit ledger is nil")
	}
	if minutes < 0 {
		return CreditBalance{}, badInputError("credit amount must not be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := creditKey(guildID, subjectID)
	balance, ok := m.rows[key]
	if !ok || balance.Minutes < minutes {
		return CreditBalance{}, fmt.Errorf("%w: %s has %d minutes, needs %d",
			ErrInsufficientCredit, subjectID, balance.Minutes, minutes)
	}
	balance.Minutes -= minutes
	balance.Version++
	balance.UpdatedAt = m.nowFn()
	m.rows[key] = balance
	return balance, nil
}

var (
	_ GrantStore   = (*MemoryGrantStore)(nil)
	_ CreditLedger = (*MemoryCreditLedger)(nil)
)
