package command

import (
	"strings"

	"github.com/goliatone/go-grants/core"
)

const (
	TypeSetTime      = "grants.command.set_time"
	TypeAddTime      = "grants.command.add_time"
	TypeRemoveTime   = "grants.command.remove_time"
	TypeClearTime    = "grants.command.clear_time"
	TypePauseTime    = "grants.command.pause_time"
	TypeResumeTime   = "grants.command.resume_time"
	TypeAdjustCredit = "grants.command.adjust_credit"
	TypeShowTime     = "grants.command.show_time"
)

// SetTimeMessage creates or replaces a timer. Minutes is already parsed;
// callers holding raw user input go through ParseDuration first.
type SetTimeMessage struct {
	Key             core.GrantKey
	Minutes         int
	NotifyChannelID string
}

func (SetTimeMessage) Type() string { return TypeSetTime }

func (m SetTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return validateCommandMinutes(m.Minutes)
}

type AddTimeMessage struct {
	Key     core.GrantKey
	Minutes int
}

func (AddTimeMessage) Type() string { return TypeAddTime }

func (m AddTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return validateCommandMinutes(m.Minutes)
}

type RemoveTimeMessage struct {
	Key     core.GrantKey
	Minutes int
}

func (RemoveTimeMessage) Type() string { return TypeRemoveTime }

func (m RemoveTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return validateCommandMinutes(m.Minutes)
}

type ClearTimeMessage struct {
	Key core.GrantKey
}

func (ClearTimeMessage) Type() string { return TypeClearTime }

func (m ClearTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return nil
}

type PauseTimeMessage struct {
	Key             core.GrantKey
	DurationMinutes int
	Kind            core.PauseKind
	IssuerID        string
}

func (PauseTimeMessage) Type() string { return TypePauseTime }

func (m PauseTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	if err := m.Kind.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	if strings.TrimSpace(m.IssuerID) == "" {
		return commandInvalidInputError("command: issuer id is required")
	}
	return validateCommandMinutes(m.DurationMinutes)
}

// ResumeTimeMessage resumes a paused timer. AdminOverride resumes regardless
// of who funded the pause; without it the engine transition is the same but
// telemetry and caller-side permission checks differ.
type ResumeTimeMessage struct {
	Key           core.GrantKey
	IssuerID      string
	AdminOverride bool
}

func (ResumeTimeMessage) Type() string { return TypeResumeTime }

func (m ResumeTimeMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return nil
}

// AdjustCreditMessage grants or removes pause credit for an account. Positive
// minutes add; negative minutes deduct and fail if the balance would go
// negative.
type AdjustCreditMessage struct {
	GuildID   string
	SubjectID string
	Minutes   int
}

func (AdjustCreditMessage) Type() string { return TypeAdjustCredit }

func (m AdjustCreditMessage) Validate() error {
	if strings.TrimSpace(m.GuildID) == "" || strings.TrimSpace(m.SubjectID) == "" {
		return commandInvalidInputError("command: guild id and subject id are required")
	}
	if m.Minutes == 0 {
		return commandInvalidInputError("command: credit adjustment must not be zero")
	}
	return nil
}

// ShowTimeMessage reads timers. An empty KindID lists every kind the subject
// holds; the command never guesses one on the caller's behalf.
type ShowTimeMessage struct {
	GuildID   string
	SubjectID string
	KindID    string
}

func (ShowTimeMessage) Type() string { return TypeShowTime }

func (m ShowTimeMessage) Validate() error {
	if strings.TrimSpace(m.GuildID) == "" || strings.TrimSpace(m.SubjectID) == "" {
		return commandInvalidInputError("command: guild id and subject id are required")
	}
	return nil
}

func validateCommandMinutes(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return commandInvalidInputError("command: minutes must be between 1 and 43200")
	}
	return nil
}
