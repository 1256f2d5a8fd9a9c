package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-grants/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GrantStore persists timer rows in the grant_timers table. The versioned
// primitives run a single conditional UPDATE/DELETE matching on the version
// column; RowsAffected distinguishes a concurrent writer from a missing row.
type GrantStore struct {
	db   *bun.DB
	repo repository.Repository[*grantTimerRecord]
}

func NewGrantStore(db *bun.DB) (*GrantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*grantTimerRecord](db, grantTimerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid grant timer repository wiring: %w", err)
		}
	}
	return &GrantStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *GrantStore) Get(ctx context.Context, key core.GrantKey) (core.Grant, error) {
	if s == nil || s.db == nil {
		return core.Grant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return core.Grant{}, err
	}

	record := &grantTimerRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.guild_id = ?", key.GuildID).
		Where("?TableAlias.subject_id = ?", key.SubjectID).
		Where("?TableAlias.kind_id = ?", key.KindID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Grant{}, fmt.Errorf("%w: %s", core.ErrGrantNotFound, key.String())
		}
		return core.Grant{}, err
	}
	return record.toDomain(), nil
}

func (s *GrantStore) Upsert(ctx context.Context, grant core.Grant) (core.Grant, error) {
	if s == nil || s.db == nil {
		return core.Grant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	grant.Key = grant.Key.Normalize()
	if err := grant.Key.Validate(); err != nil {
		return core.Grant{}, err
	}
	now := time.Now().UTC()

	var out core.Grant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findGrantTimerTx(ctx, tx, grant.Key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &grantTimerRecord{
				ID:        uuid.NewString(),
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			record.applyDomain(grant)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				// Lost the insert race: the winner's row is the one to replace.
				record, err = findGrantTimerTx(ctx, tx, grant.Key)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				out = record.toDomain()
				return nil
			}
		}

		version := record.Version
		record.applyDomain(grant)
		record.Version = version + 1
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Grant{}, err
	}
	return out, nil
}

func (s *GrantStore) UpdateVersioned(ctx context.Context, grant core.Grant) (core.Grant, error) {
	if s == nil || s.db == nil {
		return core.Grant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	grant.Key = grant.Key.Normalize()
	if err := grant.Key.Validate(); err != nil {
		return core.Grant{}, err
	}
	now := time.Now().UTC()

	record := &grantTimerRecord{}
	record.applyDomain(grant)
	record.Version = grant.Version + 1
	record.UpdatedAt = now

	res, err := s.db.NewUpdate().
		Model(record).
		Column(
			"status",
			"expires_at",
			"paused_remaining_ms",
			"pause_expires_at",
			"pause_kind",
			"paused_by",
			"warned_thresholds",
			"notify_channel_id",
			"version",
			"updated_at",
		).
		Where("?TableAlias.guild_id = ?", grant.Key.GuildID).
		Where("?TableAlias.subject_id = ?", grant.Key.SubjectID).
		Where("?TableAlias.kind_id = ?", grant.Key.KindID).
		Where("?TableAlias.version = ?", grant.Version).
		Exec(ctx)
	if err != nil {
		return core.Grant{}, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.Grant{}, s.classifyMiss(ctx, grant.Key)
	}
	return s.Get(ctx, grant.Key)
}

func (s *GrantStore) DeleteVersioned(ctx context.Context, key core.GrantKey, version int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: grant store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return err
	}

	res, err := s.db.NewDelete().
		Model((*grantTimerRecord)(nil)).
		Where("guild_id = ?", key.GuildID).
		Where("subject_id = ?", key.SubjectID).
		Where("kind_id = ?", key.KindID).
		Where("version = ?", version).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return s.classifyMiss(ctx, key)
	}
	return nil
}

func (s *GrantStore) Delete(ctx context.Context, key core.GrantKey) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: grant store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return false, err
	}

	res, err := s.db.NewDelete().
		Model((*grantTimerRecord)(nil)).
		Where("guild_id = ?", key.GuildID).
		Where("subject_id = ?", key.SubjectID).
		Where("kind_id = ?", key.KindID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *GrantStore) ListGuild(ctx context.Context, guildID string) ([]core.Grant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	var records []*grantTimerRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.guild_id = ?", guildID).
		OrderExpr("?TableAlias.subject_id ASC, ?TableAlias.kind_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func (s *GrantStore) ListSubject(ctx context.Context, guildID string, subjectID string) ([]core.Grant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	var records []*grantTimerRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.guild_id = ?", guildID).
		Where("?TableAlias.subject_id = ?", subjectID).
		OrderExpr("?TableAlias.kind_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func (s *GrantStore) ListGuilds(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	var guildIDs []string
	err := s.db.NewSelect().
		Model((*grantTimerRecord)(nil)).
		ColumnExpr("DISTINCT guild_id").
		OrderExpr("guild_id ASC").
		Scan(ctx, &guildIDs)
	if err != nil {
		return nil, err
	}
	return guildIDs, nil
}

// classifyMiss tells a version conflict apart from a vanished row after a
// conditional write matched nothing.
func (s *GrantStore) classifyMiss(ctx context.Context, key core.GrantKey) error {
	exists, err := s.db.NewSelect().
		Model((*grantTimerRecord)(nil)).
		Where("guild_id = ?", key.GuildID).
		Where("subject_id = ?", key.SubjectID).
		Where("kind_id = ?", key.KindID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", core.ErrVersionConflict, key.String())
	}
	return fmt.Errorf("%w: %s", core.ErrGrantNotFound, key.String())
}

func findGrantTimerTx(ctx context.Context, tx bun.Tx, key core.GrantKey) (*grantTimerRecord, error) {
	record := &grantTimerRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.guild_id = ?", key.GuildID).
		Where("?TableAlias.subject_id = ?", key.SubjectID).
		Where("?TableAlias.kind_id = ?", key.KindID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func recordsToDomain(records []*grantTimerRecord) []core.Grant {
	out := make([]core.Grant, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
