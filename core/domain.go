package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidGrantKey    = errors.New("core: invalid grant key")
	ErrInvalidPauseKind   = errors.New("core: invalid pause kind")
	ErrGrantNotFound      = errors.New("core: grant not found")
	ErrAlreadyPaused      = errors.New("core: grant is already paused")
	ErrNotPaused          = errors.New("core: grant is not paused")
	ErrInsufficientCredit = errors.New("core: insufficient pause credit")
	ErrVersionConflict    = errors.New("core: grant version conflict")
)

type GrantStatus string

const (
	GrantStatusActive GrantStatus = "active"
	GrantStatusPaused GrantStatus = "paused"
)

type PauseKind string

const (
	PauseKindNone        PauseKind = "none"
	PauseKindSelfFunded  PauseKind = "self_funded"
	PauseKindAdminGlobal PauseKind = "admin_global"
)

func (k PauseKind) Validate() error {
	switch k {
	case PauseKindSelfFunded, PauseKindAdminGlobal:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPauseKind, string(k))
}

// GrantKey identifies exactly one timer row. The engine never guesses a
// kind: callers that allow an omitted kind must disambiguate before calling.
type GrantKey struct {
	GuildID   string
	SubjectID string
	KindID    string
}

func (k GrantKey) Validate() error {
	if strings.TrimSpace(k.GuildID) == "" {
		return fmt.Errorf("%w: empty guild id", ErrInvalidGrantKey)
	}
	if strings.TrimSpace(k.SubjectID) == "" {
		return fmt.Errorf("%w: empty subject id", ErrInvalidGrantKey)
	}
	if strings.TrimSpace(k.KindID) == "" {
		return fmt.Errorf("%w: empty kind id", ErrInvalidGrantKey)
	}
	return nil
}

func (k GrantKey) Normalize() GrantKey {
	return GrantKey{
		GuildID:   strings.TrimSpace(k.GuildID),
		SubjectID: strings.TrimSpace(k.SubjectID),
		KindID:    strings.TrimSpace(k.KindID),
	}
}

func (k GrantKey) String() string {
	return k.GuildID + "/" + k.SubjectID + "/" + k.KindID
}

// Grant is one subject's time-boxed hold on a privilege kind.
//
// ExpiresAt is meaningful only while active; PausedRemaining, PauseExpiresAt,
// PauseKind and PausedBy only while paused. WarnedThresholds grows within one
// active period and is cleared on set and on resume. Version backs the
// store's conditional update primitive.
type Grant struct {
	Key              GrantKey
	Status           GrantStatus
	ExpiresAt        time.Time
	PausedRemaining  time.Duration
	PauseExpiresAt   time.Time
	PauseKind        PauseKind
	PausedBy         string
	WarnedThresholds []int
	NotifyChannelID  string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Remaining reports the live countdown: the distance to ExpiresAt while
// active (possibly negative for an expired-but-not-swept row), the frozen
// snapshot while paused.
func (g Grant) Remaining(now time.Time) time.Duration {
	if g.Status == GrantStatusPaused {
		if g.PausedRemaining < 0 {
			return 0
		}
		return g.PausedRemaining
	}
	return g.ExpiresAt.Sub(now)
}

func (g Grant) Expired(now time.Time) bool {
	return g.Status == GrantStatusActive && !g.ExpiresAt.After(now)
}

// PauseDue reports whether a paused grant's pause window has lapsed and the
// countdown should auto-resume.
func (g Grant) PauseDue(now time.Time) bool {
	return g.Status == GrantStatusPaused && !g.PauseExpiresAt.After(now)
}

func (g Grant) HasWarned(thresholdMinutes int) bool {
	for _, warned := range g.WarnedThresholds {
		if warned == thresholdMinutes {
			return true
		}
	}
	return false
}

// PendingWarnings returns every threshold the countdown has crossed that has
// not fired yet, farthest-from-expiry first. A subject who was offline for
// several sweeps and jumped past two marks in one tick gets both, once each.
func (g Grant) PendingWarnings(now time.Time, thresholds []int) []int {
	if g.Status != GrantStatusActive {
		return nil
	}
	remaining := g.Remaining(now)
	if remaining <= 0 {
		return nil
	}
	var due []int
	for _, threshold := range NormalizeThresholds(thresholds) {
		if g.HasWarned(threshold) {
			continue
		}
		if remaining <= time.Duration(threshold)*time.Minute {
			due = append(due, threshold)
		}
	}
	return due
}

// NormalizeThresholds drops non-positive marks, dedupes, and orders the
// result farthest-from-expiry first.
func NormalizeThresholds(thresholds []int) []int {
	seen := make(map[int]struct{}, len(thresholds))
	out := make([]int, 0, len(thresholds))
	for _, threshold := range thresholds {
		if threshold <= 0 {
			continue
		}
		if _, ok := seen[threshold]; ok {
			continue
		}
		seen[threshold] = struct{}{}
		out = append(out, threshold)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// CreditBalance is one subject's pause-credit account inside a guild. The
// balance never goes negative and the row, once created, is never deleted.
type CreditBalance struct {
	GuildID   string
	SubjectID string
	Minutes   int
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
