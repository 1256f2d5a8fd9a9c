package core

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Sweeper drives the recurring maintenance pass over every stored timer:
// expiring lapsed grants, firing crossed warning thresholds, and auto-resuming
// pauses whose window has ended. It owns no state of its own; every decision
// is re-derived from the store on each tick, so a missed or duplicated tick
// changes nothing.
type Sweeper struct {
	mu               sync.Mutex
	running          bool
	stopCh           chan struct{}
	wg               sync.WaitGroup
	engine           *Service
	authority        GrantAuthority
	notifier         Notifier
	interval         time.Duration
	authorityTimeout time.Duration
	thresholds       []int
	nowFn            func() time.Time
}

// SweepStats summarizes one full pass for logging and tests.
type SweepStats struct {
	Guilds   int
	Scanned  int
	Expired  int
	Warned   int
	Resumed  int
	Skipped  int
	Failures int
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		if interval > 0 {
			sw.interval = interval
		}
	}
}

func WithSweepAuthorityTimeout(timeout time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		if timeout > 0 {
			sw.authorityTimeout = timeout
		}
	}
}

func WithSweepThresholds(thresholds []int) SweeperOption {
	return func(sw *Sweeper) {
		sw.thresholds = NormalizeThresholds(thresholds)
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(sw *Sweeper) {
		if now != nil {
			sw.nowFn = now
		}
	}
}

func NewSweeper(engine *Service, authority GrantAuthority, notifier Notifier, options ...SweeperOption) *Sweeper {
	cfg := engine.Config()
	if authority == nil {
		authority = NopGrantAuthority{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	sw := &Sweeper{
		engine:           engine,
		authority:        authority,
		notifier:         notifier,
		interval:         cfg.Sweep.Interval,
		authorityTimeout: cfg.Sweep.AuthorityTimeout,
		thresholds:       NormalizeThresholds(cfg.WarningThresholds),
		nowFn:            engine.now,
	}
	if sw.interval <= 0 {
		sw.interval = DefaultConfig().Sweep.Interval
	}
	if sw.authorityTimeout <= 0 {
		sw.authorityTimeout = DefaultConfig().Sweep.AuthorityTimeout
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(sw)
	}
	return sw
}

// Start launches the tick loop. Passes run single-flight: the next tick is
// consumed only after the previous pass returns, so a slow store or authority
// never stacks concurrent sweeps.
func (sw *Sweeper) Start(ctx context.Context) error {
	if sw == nil || sw.engine == nil {
		return errMissingStore()
	}
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.stopCh = make(chan struct{})
	stopCh := sw.stopCh
	sw.mu.Unlock()

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if _, err := sw.RunOnce(ctx); err != nil {
					sw.engine.logError(ctx, "sweep pass failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return nil
}

// Stop halts the tick loop and waits for any in-flight pass to finish.
func (sw *Sweeper) Stop() {
	if sw == nil {
		return
	}
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	close(sw.stopCh)
	sw.mu.Unlock()
	sw.wg.Wait()
}

// RunOnce performs one full pass over every guild. Per-record failures are
// counted and logged but never abort the rest of the pass; only an inability
// to enumerate guilds fails the pass itself.
func (sw *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	startedAt := sw.now()
	stats := SweepStats{}
	if sw == nil || sw.engine == nil || sw.engine.grantStore == nil {
		return stats, errMissingStore()
	}

	guildIDs, err := sw.engine.grantStore.ListGuilds(ctx)
	if err != nil {
		sw.engine.observeOperation(ctx, startedAt, "sweep", err, nil)
		return stats, sw.engine.mapError(err)
	}
	stats.Guilds = len(guildIDs)

	for _, guildID := range guildIDs {
		if err := ctx.Err(); err != nil {
			sw.engine.observeOperation(ctx, startedAt, "sweep", err, nil)
			return stats, err
		}
		sw.sweepGuild(ctx, guildID, &stats)
	}

	sw.engine.observeOperation(ctx, startedAt, "sweep", nil, map[string]any{
		"guilds":  stats.Guilds,
		"scanned": stats.Scanned,
		"expired": stats.Expired,
		"warned":  stats.Warned,
		"resumed": stats.Resumed,
	})
	return stats, nil
}

func (sw *Sweeper) sweepGuild(ctx context.Context, guildID string, stats *SweepStats) {
	grants, err := sw.engine.grantStore.ListGuild(ctx, guildID)
	if err != nil {
		stats.Failures++
		sw.engine.logError(ctx, "sweep guild listing failed", map[string]any{
			"guild_id": guildID,
			"error":    err.Error(),
		})
		return
	}
	for _, grant := range grants {
		stats.Scanned++
		sw.sweepGrant(ctx, grant, stats)
	}
}

func (sw *Sweeper) sweepGrant(ctx context.Context, grant Grant, stats *SweepStats) {
	now := sw.now()
	switch {
	case grant.PauseDue(now):
		sw.autoResume(ctx, grant, stats)
	case grant.Expired(now):
		sw.expire(ctx, grant, stats)
	case grant.Status == GrantStatusActive:
		sw.warn(ctx, grant, now, stats)
	}
}

// expire removes a lapsed row. The conditional delete runs before the
// authority revoke: losing the version match means a concurrent mutation
// (an extension, a pause) committed after our read, and that writer's state
// wins, so the record is skipped untouched.
func (sw *Sweeper) expire(ctx context.Context, grant Grant, stats *SweepStats) {
	err := sw.engine.grantStore.DeleteVersioned(ctx, grant.Key, grant.Version)
	if err != nil {
		if goerrors.Is(err, ErrVersionConflict) || goerrors.Is(err, ErrGrantNotFound) {
			stats.Skipped++
			return
		}
		stats.Failures++
		sw.engine.logError(ctx, "sweep expiry delete failed", sweepFields(grant, err))
		return
	}
	stats.Expired++
	sw.revoke(ctx, grant)
	sw.deliver(ctx, Notice{
		Key:       grant.Key,
		Kind:      NoticeKindExpired,
		ChannelID: grant.NotifyChannelID,
	})
}

// warn fires every threshold the countdown crossed since the last pass. The
// warned set is persisted with a version match before anything is sent, so
// two overlapping sweeps cannot both deliver the same threshold.
func (sw *Sweeper) warn(ctx context.Context, grant Grant, now time.Time, stats *SweepStats) {
	pending := grant.PendingWarnings(now, sw.thresholds)
	if len(pending) == 0 {
		return
	}
	updated := grant
	updated.WarnedThresholds = append(append([]int(nil), grant.WarnedThresholds...), pending...)
	stored, err := sw.engine.grantStore.UpdateVersioned(ctx, updated)
	if err != nil {
		if goerrors.Is(err, ErrVersionConflict) || goerrors.Is(err, ErrGrantNotFound) {
			stats.Skipped++
			return
		}
		stats.Failures++
		sw.engine.logError(ctx, "sweep warning update failed", sweepFields(grant, err))
		return
	}
	remaining := stored.Remaining(now)
	for _, threshold := range pending {
		stats.Warned++
		sw.deliver(ctx, Notice{
			Key:              stored.Key,
			Kind:             NoticeKindWarning,
			ChannelID:        stored.NotifyChannelID,
			ThresholdMinutes: threshold,
			Remaining:        remaining,
		})
	}
}

func (sw *Sweeper) autoResume(ctx context.Context, grant Grant, stats *SweepStats) {
	result, err := sw.engine.Resume(ctx, grant.Key)
	if err != nil {
		if IsNotPaused(err) || IsNotFound(err) || IsStoreConflict(err) {
			stats.Skipped++
			return
		}
		stats.Failures++
		sw.engine.logError(ctx, "sweep auto-resume failed", sweepFields(grant, err))
		return
	}
	stats.Resumed++
	if result.Expired {
		stats.Expired++
		sw.revoke(ctx, grant)
		for _, notice := range result.Notices {
			sw.deliver(ctx, notice)
		}
	}
}

// revoke calls the external authority under its own short deadline so one
// hung call cannot stall the pass. The store row is already gone; a failed
// revoke is logged and retried by nothing here, the authority contract is
// idempotent and external reconciliation owns stragglers.
func (sw *Sweeper) revoke(ctx context.Context, grant Grant) {
	callCtx, cancel := context.WithTimeout(ctx, sw.authorityTimeout)
	defer cancel()
	if err := sw.authority.Revoke(callCtx, grant.Key.GuildID, grant.Key.SubjectID, grant.Key.KindID); err != nil {
		sw.engine.logError(ctx, "authority revoke failed", sweepFields(grant, err))
	}
}

func (sw *Sweeper) deliver(ctx context.Context, notice Notice) {
	if sw.notifier == nil {
		return
	}
	if err := sw.notifier.Notify(ctx, notice); err != nil {
		sw.engine.logError(ctx, "notice delivery failed", map[string]any{
			"guild_id":   notice.Key.GuildID,
			"subject_id": notice.Key.SubjectID,
			"kind_id":    notice.Key.KindID,
			"notice":     string(notice.Kind),
			"error":      err.Error(),
		})
	}
}

func (sw *Sweeper) now() time.Time {
	if sw == nil || sw.nowFn == nil {
		return time.Now().UTC()
	}
	return sw.nowFn()
}

func sweepFields(grant Grant, err error) map[string]any {
	fields := keyFields(grant.Key)
	fields["error"] = err.Error()
	return fields
}
