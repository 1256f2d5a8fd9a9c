package core

import (
	"context"
	"testing"
	"time"
)

func newTestSweeper(t *testing.T, svc *Service, clock *fakeClock, authority GrantAuthority, notifier Notifier) *Sweeper {
	t.Helper()
	return NewSweeper(svc, authority, notifier, WithSweepClock(clock.Now))
}

func TestRunOnce_ExpiresLapsedGrant(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, authority, notifier)

	if _, err := svc.Set(ctx, testKey(), 30, "chan-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(31 * time.Minute)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected 1 expiry, got %+v", stats)
	}
	if store.Len() != 0 {
		t.Fatalf("expired row should be deleted")
	}
	revokes := authority.Revokes()
	if len(revokes) != 1 || revokes[0] != testKey() {
		t.Fatalf("expected one revoke for %v, got %v", testKey(), revokes)
	}
	notices := notifier.All()
	if len(notices) != 1 || notices[0].Kind != NoticeKindExpired {
		t.Fatalf("expected one expired notice, got %v", notices)
	}
	if notices[0].ChannelID != "chan-1" {
		t.Fatalf("notice channel %q, want chan-1", notices[0].ChannelID)
	}
}

func TestRunOnce_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, authority, notifier)

	if _, err := svc.Set(ctx, testKey(), 30, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(31 * time.Minute)

	if _, err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Expired != 0 || stats.Warned != 0 || stats.Resumed != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v", stats)
	}
	if len(authority.Revokes()) != 1 {
		t.Fatalf("revoke must fire once, got %d", len(authority.Revokes()))
	}
}

func TestRunOnce_WarningFiresOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, &recordingAuthority{}, notifier)

	if _, err := svc.Set(ctx, testKey(), 120, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	// 55m remaining: the 60m mark is crossed, 10m and 1m are not.
	clock.Advance(65 * time.Minute)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Warned != 1 {
		t.Fatalf("expected 1 warning, got %+v", stats)
	}
	notices := notifier.All()
	if len(notices) != 1 || notices[0].ThresholdMinutes != 60 {
		t.Fatalf("expected 60m warning, got %v", notices)
	}

	// Same position, second pass: nothing new fires.
	stats, err = sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Warned != 0 {
		t.Fatalf("warning must not repeat, got %+v", stats)
	}
}

func TestRunOnce_CrossingTwoThresholdsFiresBothOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, &recordingAuthority{}, notifier)

	if _, err := svc.Set(ctx, testKey(), 120, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Jump straight to 5m remaining: both the 60m and 10m marks were
	// crossed since the last pass and each fires exactly once.
	clock.Advance(115 * time.Minute)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Warned != 2 {
		t.Fatalf("expected 2 warnings, got %+v", stats)
	}
	notices := notifier.All()
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %v", notices)
	}
	if notices[0].ThresholdMinutes != 60 || notices[1].ThresholdMinutes != 10 {
		t.Fatalf("expected 60m then 10m, got %v", notices)
	}
}

func TestRunOnce_PausedGrantsNeitherExpireNorWarn(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	ledger := NewMemoryCreditLedger()
	svc := newTestService(t, clock, store, ledger)
	notifier := &recordingNotifier{}
	authority := &recordingAuthority{}
	sweeper := newTestSweeper(t, svc, clock, authority, notifier)

	if _, err := svc.Set(ctx, testKey(), 30, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := svc.Pause(ctx, testKey(), 240, PauseKindAdminGlobal, "admin"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(2 * time.Hour)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 0 || stats.Warned != 0 || stats.Resumed != 0 {
		t.Fatalf("paused grant must be untouched mid-pause, got %+v", stats)
	}
	if store.Len() != 1 {
		t.Fatalf("paused row must survive")
	}
	if len(notifier.All()) != 0 || len(authority.Revokes()) != 0 {
		t.Fatalf("no side effects expected while paused")
	}
}

func TestRunOnce_AutoResumesDuePause(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	sweeper := newTestSweeper(t, svc, clock, &recordingAuthority{}, &recordingNotifier{})

	if _, err := svc.Set(ctx, testKey(), 60, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := svc.Pause(ctx, testKey(), 30, PauseKindAdminGlobal, "admin"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(31 * time.Minute)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Resumed != 1 {
		t.Fatalf("expected 1 resume, got %+v", stats)
	}
	grant, err := svc.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if grant.Status != GrantStatusActive {
		t.Fatalf("status %q, want active", grant.Status)
	}
	want := clock.Now().Add(50 * time.Minute)
	if !grant.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", grant.ExpiresAt, want)
	}
}

func TestRunOnce_AutoResumeWithZeroRemainderExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, authority, notifier)

	if _, err := svc.Set(ctx, testKey(), 10, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(15 * time.Minute)
	if _, err := svc.Pause(ctx, testKey(), 5, PauseKindAdminGlobal, "admin"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(6 * time.Minute)

	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Resumed != 1 || stats.Expired != 1 {
		t.Fatalf("expected resume+expiry, got %+v", stats)
	}
	if store.Len() != 0 {
		t.Fatalf("row should be gone")
	}
	if len(authority.Revokes()) != 1 {
		t.Fatalf("expected one revoke, got %d", len(authority.Revokes()))
	}
	notices := notifier.All()
	if len(notices) != 1 || notices[0].Kind != NoticeKindExpired {
		t.Fatalf("expected expired notice, got %v", notices)
	}
}

func TestRunOnce_LostConditionalDeleteSkipsRecord(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	inner := NewMemoryGrantStore().WithClock(clock.Now)
	store := &conflictingStore{GrantStore: inner, conflicts: 1}
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	notifier := &recordingNotifier{}
	sweeper := newTestSweeper(t, svc, clock, authority, notifier)

	if _, err := svc.Set(ctx, testKey(), 30, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(31 * time.Minute)

	// The conditional delete loses to a concurrent writer: the sweep must
	// not revoke or notify, the winner's state stands.
	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Skipped != 1 || stats.Expired != 0 {
		t.Fatalf("expected skip without expiry, got %+v", stats)
	}
	if len(authority.Revokes()) != 0 || len(notifier.All()) != 0 {
		t.Fatalf("lost delete must have no side effects")
	}
	if inner.Len() != 1 {
		t.Fatalf("row must survive a lost delete")
	}
}

func TestRunOnce_ExtendAfterReadWinsOverSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	sweeper := newTestSweeper(t, svc, clock, authority, &recordingNotifier{})

	if _, err := svc.Set(ctx, testKey(), 30, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(31 * time.Minute)

	// Simulate the interleaving: sweep reads the lapsed row, then an extend
	// commits before the sweep's conditional delete runs.
	lapsed, err := store.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Extend(ctx, testKey(), 60); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if err := store.DeleteVersioned(ctx, lapsed.Key, lapsed.Version); !IsStoreConflict(err) {
		t.Fatalf("stale delete must conflict, got %v", err)
	}

	grant, err := svc.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("extended grant must survive: %v", err)
	}
	want := clock.Now().Add(60 * time.Minute)
	if !grant.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", grant.ExpiresAt, want)
	}

	// The next pass sees the extended window and leaves it alone.
	stats, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 0 {
		t.Fatalf("extended grant must not expire, got %+v", stats)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testBase)
	store := NewMemoryGrantStore().WithClock(clock.Now)
	svc := newTestService(t, clock, store, NewMemoryCreditLedger())
	authority := &recordingAuthority{}
	sweeper := NewSweeper(svc, authority, &recordingNotifier{},
		WithSweepClock(clock.Now),
		WithSweepInterval(5*time.Millisecond),
	)

	if _, err := svc.Set(ctx, testKey(), 30, ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(31 * time.Minute)

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never expired the grant")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sweeper.Stop()
	// Stop twice is safe.
	sweeper.Stop()
}
