package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func grantTimerHandlers() repository.ModelHandlers[*grantTimerRecord] {
	return repository.ModelHandlers[*grantTimerRecord]{
		NewRecord: func() *grantTimerRecord {
			return &grantTimerRecord{}
		},
		GetID: func(record *grantTimerRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *grantTimerRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *grantTimerRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func pauseCreditHandlers() repository.ModelHandlers[*pauseCreditRecord] {
	return repository.ModelHandlers[*pauseCreditRecord]{
		NewRecord: func() *pauseCreditRecord {
			return &pauseCreditRecord{}
		},
		GetID: func(record *pauseCreditRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *pauseCreditRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *pauseCreditRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
