package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-grants/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreditStore persists pause-credit balances in grant_pause_credits. Subtract
// is one conditional UPDATE guarded by `balance_minutes >= ?`, so the balance
// can never be driven negative regardless of concurrent spenders.
type CreditStore struct {
	db   *bun.DB
	repo repository.Repository[*pauseCreditRecord]
}

func NewCreditStore(db *bun.DB) (*CreditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pauseCreditRecord](db, pauseCreditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pause credit repository wiring: %w", err)
		}
	}
	return &CreditStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *CreditStore) Balance(ctx context.Context, guildID string, subjectID string) (core.CreditBalance, error) {
	if s == nil || s.db == nil {
		return core.CreditBalance{}, fmt.Errorf("sqlstore: credit store is not configured")
	}
	guildID, subjectID, err := normalizeCreditAccount(guildID, subjectID)
	if err != nil {
		return core.CreditBalance{}, err
	}

	record := &pauseCreditRecord{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.guild_id = ?", guildID).
		Where("?TableAlias.subject_id = ?", subjectID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Accounts are lazy: an absent row reads as a zero balance.
			return core.CreditBalance{GuildID: guildID, SubjectID: subjectID}, nil
		}
		return core.CreditBalance{}, err
	}
	return record.toDomain(), nil
}

func (s *CreditStore) Add(ctx context.Context, guildID string, subjectID string, minutes int) (core.CreditBalance, error) {
	if s == nil || s.db == nil {
		return core.CreditBalance{}, fmt.Errorf("sqlstore: credit store is not configured")
	}
	guildID, subjectID, err := normalizeCreditAccount(guildID, subjectID)
	if err != nil {
		return core.CreditBalance{}, err
	}
	if minutes < 0 {
		return core.CreditBalance{}, fmt.Errorf("sqlstore: credit amount must not be negative")
	}
	now := time.Now().UTC()

	var out core.CreditBalance
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findPauseCreditTx(ctx, tx, guildID, subjectID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &pauseCreditRecord{
				ID:             uuid.NewString(),
				GuildID:        guildID,
				SubjectID:      subjectID,
				BalanceMinutes: minutes,
				Version:        1,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findPauseCreditTx(ctx, tx, guildID, subjectID)
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

		record.BalanceMinutes += minutes
		record.Version++
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
		return core.CreditBalance{}, err
	}
	return out, nil
}

func (s *CreditStore) Subtract(ctx context.Context, guildID string, subjectID string, minutes int) (core.CreditBalance, error) {
	if s == nil || s.db == nil {
		return core.CreditBalance{}, fmt.Errorf("sqlstore: credit store is not configured")
	}
	guildID, subjectID, err := normalizeCreditAccount(guildID, subjectID)
	if err != nil {
		return core.CreditBalance{}, err
	}
	if minutes < 0 {
		return core.CreditBalance{}, fmt.Errorf("sqlstore: credit amount must not be negative")
	}

	res, err := s.db.NewUpdate().
		Model((*pauseCreditRecord)(nil)).
		Set("balance_minutes = balance_minutes - ?", minutes).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("guild_id = ?", guildID).
		Where("subject_id = ?", subjectID).
		Where("balance_minutes >= ?", minutes).
		Exec(ctx)
	if err != nil {
		return core.CreditBalance{}, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.CreditBalance{}, fmt.Errorf("%w: %s/%s needs %d minutes",
			core.ErrInsufficientCredit, guildID, subjectID, minutes)
	}
	return s.Balance(ctx, guildID, subjectID)
}

func normalizeCreditAccount(guildID string, subjectID string) (string, string, error) {
	guildID = strings.TrimSpace(guildID)
	subjectID = strings.TrimSpace(subjectID)
	if guildID == "" || subjectID == "" {
		return "", "", fmt.Errorf("%w: guild and subject are required", core.ErrInvalidGrantKey)
	}
	return guildID, subjectID, nil
}

func findPauseCreditTx(ctx context.Context, tx bun.Tx, guildID string, subjectID string) (*pauseCreditRecord, error) {
	record := &pauseCreditRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.guild_id = ?", guildID).
		Where("?TableAlias.subject_id = ?", subjectID).
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

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
