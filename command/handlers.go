package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-grants/core"
)

// GrantEngine is the slice of the engine the command surface mutates through.
type GrantEngine interface {
	Set(ctx context.Context, key core.GrantKey, minutes int, notifyChannelID string) (core.OpResult, error)
	Extend(ctx context.Context, key core.GrantKey, minutes int) (core.OpResult, error)
	Shrink(ctx context.Context, key core.GrantKey, minutes int) (core.OpResult, error)
	Clear(ctx context.Context, key core.GrantKey) (core.OpResult, error)
	Pause(ctx context.Context, key core.GrantKey, durationMinutes int, kind core.PauseKind, issuerID string) (core.OpResult, error)
	Resume(ctx context.Context, key core.GrantKey) (core.OpResult, error)
	AdminOverrideResume(ctx context.Context, key core.GrantKey) (core.OpResult, error)
	Get(ctx context.Context, key core.GrantKey) (core.Grant, error)
	ListForSubject(ctx context.Context, guildID string, subjectID string) ([]core.Grant, error)
}

// Executor owns the dependencies every timer command shares: the engine for
// state, the authority for privilege side effects, the notifier for expiry
// notices produced inline by shrink/resume.
type Executor struct {
	engine    GrantEngine
	authority core.GrantAuthority
	notifier  core.Notifier
}

func NewExecutor(engine GrantEngine, authority core.GrantAuthority, notifier core.Notifier) *Executor {
	if authority == nil {
		authority = core.NopGrantAuthority{}
	}
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Executor{
		engine:    engine,
		authority: authority,
		notifier:  notifier,
	}
}

func (e *Executor) ready() error {
	if e == nil || e.engine == nil {
		return commandDependencyError("command: grant engine is required")
	}
	return nil
}

// runDirectives executes the authority side effect a committed mutation asks
// for and best-effort delivers any notices. The store mutation has already
// committed: an authority failure is surfaced so the dispatcher can retry
// (both authority operations are idempotent), notice failures are not.
func (e *Executor) runDirectives(ctx context.Context, result core.OpResult, key core.GrantKey) error {
	for _, notice := range result.Notices {
		_ = e.notifier.Notify(ctx, notice)
	}
	switch result.Authority {
	case core.AuthorityEnsureGranted:
		return e.authority.Grant(ctx, key.GuildID, key.SubjectID, key.KindID)
	case core.AuthorityRevoke:
		return e.authority.Revoke(ctx, key.GuildID, key.SubjectID, key.KindID)
	}
	return nil
}

type SetTimeCommand struct {
	executor *Executor
}

func NewSetTimeCommand(executor *Executor) *SetTimeCommand {
	return &SetTimeCommand{executor: executor}
}

func (c *SetTimeCommand) Execute(ctx context.Context, msg SetTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: set time executor is required")
	}
	out, err := c.executor.engine.Set(ctx, msg.Key, msg.Minutes, msg.NotifyChannelID)
	if err != nil {
		return err
	}
	if err := c.executor.runDirectives(ctx, out, msg.Key); err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AddTimeCommand struct {
	executor *Executor
}

func NewAddTimeCommand(executor *Executor) *AddTimeCommand {
	return &AddTimeCommand{executor: executor}
}

func (c *AddTimeCommand) Execute(ctx context.Context, msg AddTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: add time executor is required")
	}
	out, err := c.executor.engine.Extend(ctx, msg.Key, msg.Minutes)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveTimeCommand struct {
	executor *Executor
}

func NewRemoveTimeCommand(executor *Executor) *RemoveTimeCommand {
	return &RemoveTimeCommand{executor: executor}
}

func (c *RemoveTimeCommand) Execute(ctx context.Context, msg RemoveTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: remove time executor is required")
	}
	out, err := c.executor.engine.Shrink(ctx, msg.Key, msg.Minutes)
	if err != nil {
		return err
	}
	if err := c.executor.runDirectives(ctx, out, msg.Key); err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ClearTimeCommand struct {
	executor *Executor
}

func NewClearTimeCommand(executor *Executor) *ClearTimeCommand {
	return &ClearTimeCommand{executor: executor}
}

func (c *ClearTimeCommand) Execute(ctx context.Context, msg ClearTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: clear time executor is required")
	}
	out, err := c.executor.engine.Clear(ctx, msg.Key)
	if err != nil {
		return err
	}
	if err := c.executor.runDirectives(ctx, out, msg.Key); err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PauseTimeCommand struct {
	executor *Executor
}

func NewPauseTimeCommand(executor *Executor) *PauseTimeCommand {
	return &PauseTimeCommand{executor: executor}
}

func (c *PauseTimeCommand) Execute(ctx context.Context, msg PauseTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: pause time executor is required")
	}
	out, err := c.executor.engine.Pause(ctx, msg.Key, msg.DurationMinutes, msg.Kind, msg.IssuerID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResumeTimeCommand struct {
	executor *Executor
}

func NewResumeTimeCommand(executor *Executor) *ResumeTimeCommand {
	return &ResumeTimeCommand{executor: executor}
}

func (c *ResumeTimeCommand) Execute(ctx context.Context, msg ResumeTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: resume time executor is required")
	}
	resume := c.executor.engine.Resume
	if msg.AdminOverride {
		resume = c.executor.engine.AdminOverrideResume
	}
	out, err := resume(ctx, msg.Key)
	if err != nil {
		return err
	}
	if err := c.executor.runDirectives(ctx, out, msg.Key); err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AdjustCreditCommand struct {
	ledger core.CreditLedger
}

func NewAdjustCreditCommand(ledger core.CreditLedger) *AdjustCreditCommand {
	return &AdjustCreditCommand{ledger: ledger}
}

func (c *AdjustCreditCommand) Execute(ctx context.Context, msg AdjustCreditMessage) error {
	if c == nil || c.ledger == nil {
		return commandDependencyError("command: credit ledger is required")
	}
	var (
		balance core.CreditBalance
		err     error
	)
	if msg.Minutes > 0 {
		balance, err = c.ledger.Add(ctx, msg.GuildID, msg.SubjectID, msg.Minutes)
	} else {
		balance, err = c.ledger.Subtract(ctx, msg.GuildID, msg.SubjectID, -msg.Minutes)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, balance)
	return nil
}

// ShowTimeResult is what a ShowTimeCommand leaves in the result collector:
// either the single requested timer or every timer the subject holds.
type ShowTimeResult struct {
	Grants []core.Grant
}

type ShowTimeCommand struct {
	executor *Executor
}

func NewShowTimeCommand(executor *Executor) *ShowTimeCommand {
	return &ShowTimeCommand{executor: executor}
}

func (c *ShowTimeCommand) Execute(ctx context.Context, msg ShowTimeMessage) error {
	if c == nil || c.executor.ready() != nil {
		return commandDependencyError("command: show time executor is required")
	}
	if strings.TrimSpace(msg.KindID) != "" {
		grant, err := c.executor.engine.Get(ctx, core.GrantKey{
			GuildID:   msg.GuildID,
			SubjectID: msg.SubjectID,
			KindID:    msg.KindID,
		})
		if err != nil {
			return err
		}
		storeResult(ctx, ShowTimeResult{Grants: []core.Grant{grant}})
		return nil
	}

	grants, err := c.executor.engine.ListForSubject(ctx, msg.GuildID, msg.SubjectID)
	if err != nil {
		return err
	}
	storeResult(ctx, ShowTimeResult{Grants: grants})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
