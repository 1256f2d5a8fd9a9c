package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AuthorityDirective tells the caller which side effect to run against the
// external grant authority after a mutation commits. The engine never calls
// the authority itself: store state is the single source of truth and the
// authority call happens outside the row's atomic boundary.
type AuthorityDirective string

const (
	AuthorityNone          AuthorityDirective = ""
	AuthorityEnsureGranted AuthorityDirective = "ensure_granted"
	AuthorityRevoke        AuthorityDirective = "revoke"
)

// OpResult is the outcome of a single engine mutation: the committed row (or
// its absence), the authority directive, and any notices the caller should
// deliver best-effort.
type OpResult struct {
	Grant     Grant
	Deleted   bool
	Expired   bool
	Authority AuthorityDirective
	Notices   []Notice
}

// Set creates or replaces the timer unconditionally: a fresh active window of
// the given minutes, warnings and pause state wiped. The previous row, paused
// or not, is gone.
func (s *Service) Set(ctx context.Context, key GrantKey, minutes int, notifyChannelID string) (OpResult, error) {
	startedAt := s.now()
	result, err := s.set(ctx, key, minutes, notifyChannelID)
	s.observeOperation(ctx, startedAt, "set", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) set(ctx context.Context, key GrantKey, minutes int, notifyChannelID string) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if err := validateMinutes(minutes); err != nil {
		return OpResult{}, err
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}

	now := s.now()
	grant := Grant{
		Key:             key,
		Status:          GrantStatusActive,
		ExpiresAt:       now.Add(time.Duration(minutes) * time.Minute),
		PauseKind:       PauseKindNone,
		NotifyChannelID: strings.TrimSpace(notifyChannelID),
	}
	stored, err := s.grantStore.Upsert(ctx, grant)
	if err != nil {
		return OpResult{}, err
	}
	return OpResult{Grant: stored, Authority: AuthorityEnsureGranted}, nil
}

// Extend adds minutes to the live countdown. An active timer extends from
// max(expiresAt, now) so a row that already lapsed but has not been swept does
// not eat the new time; a paused timer grows its frozen remainder instead.
func (s *Service) Extend(ctx context.Context, key GrantKey, minutes int) (OpResult, error) {
	startedAt := s.now()
	result, err := s.extend(ctx, key, minutes)
	s.observeOperation(ctx, startedAt, "extend", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) extend(ctx context.Context, key GrantKey, minutes int) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if err := validateMinutes(minutes); err != nil {
		return OpResult{}, err
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}

	delta := time.Duration(minutes) * time.Minute
	var result OpResult
	err := s.retryOnConflict(ctx, func(ctx context.Context) error {
		grant, err := s.grantStore.Get(ctx, key)
		if err != nil {
			return err
		}
		now := s.now()
		if grant.Status == GrantStatusPaused {
			grant.PausedRemaining += delta
		} else {
			baseline := grant.ExpiresAt
			if baseline.Before(now) {
				baseline = now
			}
			grant.ExpiresAt = baseline.Add(delta)
		}
		updated, err := s.grantStore.UpdateVersioned(ctx, grant)
		if err != nil {
			return err
		}
		result = OpResult{Grant: updated}
		return nil
	})
	if err != nil {
		return OpResult{}, err
	}
	return result, nil
}

// Shrink removes minutes from the live countdown. Draining it to zero or
// below deletes the row and signals immediate expiry, with the revoke
// directive and expired notice the sweep would otherwise emit.
func (s *Service) Shrink(ctx context.Context, key GrantKey, minutes int) (OpResult, error) {
	startedAt := s.now()
	result, err := s.shrink(ctx, key, minutes)
	s.observeOperation(ctx, startedAt, "shrink", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) shrink(ctx context.Context, key GrantKey, minutes int) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if err := validateMinutes(minutes); err != nil {
		return OpResult{}, err
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}

	delta := time.Duration(minutes) * time.Minute
	var result OpResult
	err := s.retryOnConflict(ctx, func(ctx context.Context) error {
		grant, err := s.grantStore.Get(ctx, key)
		if err != nil {
			return err
		}
		now := s.now()
		remaining := grant.Remaining(now) - delta
		if remaining <= 0 {
			if err := s.grantStore.DeleteVersioned(ctx, key, grant.Version); err != nil {
				return err
			}
			result = expiredResult(grant, now)
			return nil
		}
		if grant.Status == GrantStatusPaused {
			grant.PausedRemaining = remaining
		} else {
			grant.ExpiresAt = now.Add(remaining)
		}
		updated, err := s.grantStore.UpdateVersioned(ctx, grant)
		if err != nil {
			return err
		}
		result = OpResult{Grant: updated}
		return nil
	})
	if err != nil {
		return OpResult{}, err
	}
	return result, nil
}

// Clear deletes the timer outright, paused or not, and reports whether a row
// existed. The caller still owns revoking the privilege; Clear's directive
// says so whenever something was removed.
func (s *Service) Clear(ctx context.Context, key GrantKey) (OpResult, error) {
	startedAt := s.now()
	result, err := s.clear(ctx, key)
	s.observeOperation(ctx, startedAt, "clear", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) clear(ctx context.Context, key GrantKey) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}
	existed, err := s.grantStore.Delete(ctx, key)
	if err != nil {
		return OpResult{}, err
	}
	result := OpResult{Deleted: existed}
	if existed {
		result.Authority = AuthorityRevoke
	}
	return result, nil
}

// Pause freezes an active countdown for durationMinutes. Self-funded pauses
// debit the issuer's credit ledger before touching the grant row; if the grant
// update then loses every retry, the debit is re-credited so no observer sees
// a debit without a pause.
func (s *Service) Pause(ctx context.Context, key GrantKey, durationMinutes int, kind PauseKind, issuerID string) (OpResult, error) {
	startedAt := s.now()
	result, err := s.pause(ctx, key, durationMinutes, kind, issuerID)
	s.observeOperation(ctx, startedAt, "pause", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) pause(ctx context.Context, key GrantKey, durationMinutes int, kind PauseKind, issuerID string) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if err := validateMinutes(durationMinutes); err != nil {
		return OpResult{}, err
	}
	if err := kind.Validate(); err != nil {
		return OpResult{}, err
	}
	issuerID = strings.TrimSpace(issuerID)
	if issuerID == "" {
		return OpResult{}, badInputError("pause issuer is required")
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}

	// Fail fast on state before any ledger movement.
	current, err := s.grantStore.Get(ctx, key)
	if err != nil {
		return OpResult{}, err
	}
	if current.Status == GrantStatusPaused {
		return OpResult{}, fmt.Errorf("%w: %s", ErrAlreadyPaused, key.String())
	}

	debited := false
	if kind == PauseKindSelfFunded {
		if s.creditLedger == nil {
			return OpResult{}, errMissingLedger()
		}
		if _, err := s.creditLedger.Subtract(ctx, key.GuildID, issuerID, durationMinutes); err != nil {
			return OpResult{}, err
		}
		debited = true
	}

	var result OpResult
	err = s.retryOnConflict(ctx, func(ctx context.Context) error {
		grant, err := s.grantStore.Get(ctx, key)
		if err != nil {
			return err
		}
		if grant.Status == GrantStatusPaused {
			return fmt.Errorf("%w: %s", ErrAlreadyPaused, key.String())
		}
		now := s.now()
		remaining := grant.ExpiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		grant.Status = GrantStatusPaused
		grant.PausedRemaining = remaining
		grant.PauseExpiresAt = now.Add(time.Duration(durationMinutes) * time.Minute)
		grant.PauseKind = kind
		grant.PausedBy = issuerID
		updated, err := s.grantStore.UpdateVersioned(ctx, grant)
		if err != nil {
			return err
		}
		result = OpResult{Grant: updated}
		return nil
	})
	if err != nil {
		if debited {
			s.compensateCredit(ctx, key.GuildID, issuerID, durationMinutes)
		}
		return OpResult{}, err
	}
	return result, nil
}

// Resume unfreezes a paused countdown: the frozen remainder becomes a fresh
// active window from now, warnings reset. A remainder already at zero expires
// the grant immediately. Credits spent on the pause stay spent.
func (s *Service) Resume(ctx context.Context, key GrantKey) (OpResult, error) {
	startedAt := s.now()
	result, err := s.resume(ctx, key)
	s.observeOperation(ctx, startedAt, "resume", err, keyFields(key))
	return result, s.mapError(err)
}

// AdminOverrideResume is Resume without regard for who funded the pause. The
// engine's transition is identical; the separate entry point exists so callers
// can gate it on elevated permissions and so telemetry tells the two apart.
func (s *Service) AdminOverrideResume(ctx context.Context, key GrantKey) (OpResult, error) {
	startedAt := s.now()
	result, err := s.resume(ctx, key)
	s.observeOperation(ctx, startedAt, "admin_override_resume", err, keyFields(key))
	return result, s.mapError(err)
}

func (s *Service) resume(ctx context.Context, key GrantKey) (OpResult, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return OpResult{}, err
	}
	if s.grantStore == nil {
		return OpResult{}, errMissingStore()
	}

	var result OpResult
	err := s.retryOnConflict(ctx, func(ctx context.Context) error {
		grant, err := s.grantStore.Get(ctx, key)
		if err != nil {
			return err
		}
		if grant.Status != GrantStatusPaused {
			return fmt.Errorf("%w: %s", ErrNotPaused, key.String())
		}
		now := s.now()
		remaining := grant.PausedRemaining
		if remaining <= 0 {
			if err := s.grantStore.DeleteVersioned(ctx, key, grant.Version); err != nil {
				return err
			}
			result = expiredResult(grant, now)
			return nil
		}
		grant.Status = GrantStatusActive
		grant.ExpiresAt = now.Add(remaining)
		grant.PausedRemaining = 0
		grant.PauseExpiresAt = time.Time{}
		grant.PauseKind = PauseKindNone
		grant.PausedBy = ""
		grant.WarnedThresholds = nil
		updated, err := s.grantStore.UpdateVersioned(ctx, grant)
		if err != nil {
			return err
		}
		result = OpResult{Grant: updated}
		return nil
	})
	if err != nil {
		return OpResult{}, err
	}
	return result, nil
}

// Get returns the current row for the key.
func (s *Service) Get(ctx context.Context, key GrantKey) (Grant, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return Grant{}, s.mapError(err)
	}
	if s == nil || s.grantStore == nil {
		return Grant{}, s.mapError(errMissingStore())
	}
	grant, err := s.grantStore.Get(ctx, key)
	if err != nil {
		return Grant{}, s.mapError(err)
	}
	return grant, nil
}

// ListForSubject returns every timer a subject holds in a guild, one per
// kind. Callers use it to disambiguate an omitted kind and to render status.
func (s *Service) ListForSubject(ctx context.Context, guildID string, subjectID string) ([]Grant, error) {
	guildID = strings.TrimSpace(guildID)
	subjectID = strings.TrimSpace(subjectID)
	if guildID == "" || subjectID == "" {
		return nil, s.mapError(fmt.Errorf("%w: guild and subject are required", ErrInvalidGrantKey))
	}
	if s == nil || s.grantStore == nil {
		return nil, s.mapError(errMissingStore())
	}
	grants, err := s.grantStore.ListSubject(ctx, guildID, subjectID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return grants, nil
}

// retryOnConflict runs fn up to the configured retry budget, re-running it
// from a fresh read whenever the store reports a version conflict. fn must
// re-apply the caller's original delta on each attempt.
func (s *Service) retryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := s.config.ConflictRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !goerrors.Is(lastErr, ErrVersionConflict) {
			return lastErr
		}
	}
	return lastErr
}

// compensateCredit refunds a debit whose paired grant mutation never
// committed. Best effort: the failure is logged, not surfaced, so the
// original error reaches the caller intact.
func (s *Service) compensateCredit(ctx context.Context, guildID string, subjectID string, minutes int) {
	if s == nil || s.creditLedger == nil {
		return
	}
	if _, err := s.creditLedger.Add(ctx, guildID, subjectID, minutes); err != nil {
		s.logError(ctx, "pause credit compensation failed", map[string]any{
			"guild_id":   guildID,
			"subject_id": subjectID,
			"minutes":    minutes,
			"error":      err.Error(),
		})
	}
}

func expiredResult(grant Grant, now time.Time) OpResult {
	return OpResult{
		Grant:     grant,
		Deleted:   true,
		Expired:   true,
		Authority: AuthorityRevoke,
		Notices: []Notice{{
			Key:       grant.Key,
			Kind:      NoticeKindExpired,
			ChannelID: grant.NotifyChannelID,
		}},
	}
}

func validateMinutes(minutes int) error {
	if minutes < 1 {
		return badInputError(fmt.Sprintf("minutes must be at least 1, got %d", minutes))
	}
	return nil
}

func badInputError(message string) error {
	return newGrantsError("core: "+message, goerrors.CategoryBadInput, GrantsErrorBadInput)
}

func errMissingStore() error {
	return newGrantsError("core: grant store is not configured", goerrors.CategoryInternal, GrantsErrorInternal)
}

func errMissingLedger() error {
	return newGrantsError("core: credit ledger is not configured", goerrors.CategoryInternal, GrantsErrorInternal)
}
