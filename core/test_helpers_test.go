package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testKey() GrantKey {
	return GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"}
}

func newTestService(t *testing.T, clock *fakeClock, store GrantStore, ledger CreditLedger) *Service {
	t.Helper()
	svc, err := NewService(
		Config{},
		WithGrantStore(store),
		WithCreditLedger(ledger),
		WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) All() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type recordingAuthority struct {
	mu      sync.Mutex
	grants  []GrantKey
	revokes []GrantKey
}

func (a *recordingAuthority) Grant(_ context.Context, guildID, subjectID, kindID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants = append(a.grants, GrantKey{GuildID: guildID, SubjectID: subjectID, KindID: kindID})
	return nil
}

func (a *recordingAuthority) Revoke(_ context.Context, guildID, subjectID, kindID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revokes = append(a.revokes, GrantKey{GuildID: guildID, SubjectID: subjectID, KindID: kindID})
	return nil
}

func (a *recordingAuthority) Revokes() []GrantKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]GrantKey(nil), a.revokes...)
}

// conflictingStore wraps a GrantStore and fails the first n conditional
// writes with a version conflict, simulating a concurrent writer.
type conflictingStore struct {
	GrantStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) takeConflict() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conflicts == 0 {
		return false
	}
	c.conflicts--
	return true
}

func (c *conflictingStore) UpdateVersioned(ctx context.Context, grant Grant) (Grant, error) {
	if c.takeConflict() {
		return Grant{}, ErrVersionConflict
	}
	return c.GrantStore.UpdateVersioned(ctx, grant)
}

func (c *conflictingStore) DeleteVersioned(ctx context.Context, key GrantKey, version int64) error {
	if c.takeConflict() {
		return ErrVersionConflict
	}
	return c.GrantStore.DeleteVersioned(ctx, key, version)
}

func seedCredit(t *testing.T, ledger CreditLedger, guildID, subjectID string, minutes int) {
	t.Helper()
	if _, err := ledger.Add(context.Background(), guildID, subjectID, minutes); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
}
