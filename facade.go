package grants

import (
	"fmt"

	grantcmd "github.com/goliatone/go-grants/command"
	"github.com/goliatone/go-grants/core"
)

// Commands bundles the full timer command surface wired to one executor.
type Commands struct {
	SetTime      *grantcmd.SetTimeCommand
	AddTime      *grantcmd.AddTimeCommand
	RemoveTime   *grantcmd.RemoveTimeCommand
	ClearTime    *grantcmd.ClearTimeCommand
	PauseTime    *grantcmd.PauseTimeCommand
	ResumeTime   *grantcmd.ResumeTimeCommand
	AdjustCredit *grantcmd.AdjustCreditCommand
	ShowTime     *grantcmd.ShowTimeCommand
}

// Facade exposes the engine through pre-wired commands so callers do not
// assemble executors by hand.
type Facade struct {
	service  *core.Service
	executor *grantcmd.Executor
	commands Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	authority core.GrantAuthority
	notifier  core.Notifier
}

// WithAuthority sets the privilege backend commands grant and revoke through.
func WithAuthority(authority core.GrantAuthority) FacadeOption {
	return func(options *facadeOptions) {
		options.authority = authority
	}
}

// WithNotifier sets the sink for warning and expiry notices produced inline
// by shrink, clear, and resume.
func WithNotifier(notifier core.Notifier) FacadeOption {
	return func(options *facadeOptions) {
		options.notifier = notifier
	}
}

func NewFacade(service *core.Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("grants: service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	executor := grantcmd.NewExecutor(service, cfg.authority, cfg.notifier)
	facade := &Facade{service: service, executor: executor}
	facade.commands = Commands{
		SetTime:      grantcmd.NewSetTimeCommand(executor),
		AddTime:      grantcmd.NewAddTimeCommand(executor),
		RemoveTime:   grantcmd.NewRemoveTimeCommand(executor),
		ClearTime:    grantcmd.NewClearTimeCommand(executor),
		PauseTime:    grantcmd.NewPauseTimeCommand(executor),
		ResumeTime:   grantcmd.NewResumeTimeCommand(executor),
		AdjustCredit: grantcmd.NewAdjustCreditCommand(service.Dependencies().CreditLedger),
		ShowTime:     grantcmd.NewShowTimeCommand(executor),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Executor() *grantcmd.Executor {
	if f == nil {
		return nil
	}
	return f.executor
}

func (f *Facade) Service() *core.Service {
	if f == nil {
		return nil
	}
	return f.service
}
