package sqlstore

import (
	"time"

	"github.com/goliatone/go-grants/core"
	"github.com/uptrace/bun"
)

type grantTimerRecord struct {
	bun.BaseModel `bun:"table:grant_timers,alias:gt"`

	ID                string     `bun:"id,pk"`
	GuildID           string     `bun:"guild_id,notnull"`
	SubjectID         string     `bun:"subject_id,notnull"`
	KindID            string     `bun:"kind_id,notnull"`
	Status            string     `bun:"status,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	PausedRemainingMS int64      `bun:"paused_remaining_ms,notnull,default:0"`
	PauseExpiresAt    *time.Time `bun:"pause_expires_at,nullzero"`
	PauseKind         string     `bun:"pause_kind,notnull,default:'none'"`
	PausedBy          string     `bun:"paused_by"`
	WarnedThresholds  []int      `bun:"warned_thresholds,type:jsonb,notnull"`
	NotifyChannelID   string     `bun:"notify_channel_id"`
	Version           int64      `bun:"version,notnull,default:1"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type pauseCreditRecord struct {
	bun.BaseModel `bun:"table:grant_pause_credits,alias:gpc"`

	ID             string    `bun:"id,pk"`
	GuildID        string    `bun:"guild_id,notnull"`
	SubjectID      string    `bun:"subject_id,notnull"`
	BalanceMinutes int       `bun:"balance_minutes,notnull,default:0"`
	Version        int64     `bun:"version,notnull,default:1"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *grantTimerRecord) toDomain() core.Grant {
	if r == nil {
		return core.Grant{}
	}
	grant := core.Grant{
		Key: core.GrantKey{
			GuildID:   r.GuildID,
			SubjectID: r.SubjectID,
			KindID:    r.KindID,
		},
		Status:           core.GrantStatus(r.Status),
		PausedRemaining:  time.Duration(r.PausedRemainingMS) * time.Millisecond,
		PauseKind:        core.PauseKind(r.PauseKind),
		PausedBy:         r.PausedBy,
		WarnedThresholds: append([]int(nil), r.WarnedThresholds...),
		NotifyChannelID:  r.NotifyChannelID,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		grant.ExpiresAt = r.ExpiresAt.UTC()
	}
	if r.PauseExpiresAt != nil {
		grant.PauseExpiresAt = r.PauseExpiresAt.UTC()
	}
	return grant
}

func (r *grantTimerRecord) applyDomain(grant core.Grant) {
	if r == nil {
		return
	}
	r.GuildID = grant.Key.GuildID
	r.SubjectID = grant.Key.SubjectID
	r.KindID = grant.Key.KindID
	r.Status = string(grant.Status)
	r.ExpiresAt = nilZeroTime(grant.ExpiresAt)
	r.PausedRemainingMS = grant.PausedRemaining.Milliseconds()
	r.PauseExpiresAt = nilZeroTime(grant.PauseExpiresAt)
	r.PauseKind = string(grant.PauseKind)
	if r.PauseKind == "" {
		r.PauseKind = string(core.PauseKindNone)
	}
	r.PausedBy = grant.PausedBy
	r.WarnedThresholds = append([]int{}, grant.WarnedThresholds...)
	r.NotifyChannelID = grant.NotifyChannelID
}

func (r *pauseCreditRecord) toDomain() core.CreditBalance {
	if r == nil {
		return core.CreditBalance{}
	}
	return core.CreditBalance{
		GuildID:   r.GuildID,
		SubjectID: r.SubjectID,
		Minutes:   r.BalanceMinutes,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func nilZeroTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
