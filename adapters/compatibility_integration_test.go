package adapters_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-grants/adapters/gocommand"
	"github.com/goliatone/go-grants/adapters/gojob"
	"github.com/goliatone/go-grants/adapters/gologger"
	grantcmd "github.com/goliatone/go-grants/command"
	"github.com/goliatone/go-grants/core"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("grants", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	enqueueAdapter := gojob.NewEnqueuerAdapter(enqueueProbe)
	if err := enqueueAdapter.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          gojob.JobIDNotify,
		Parameters:     map[string]any{"guild_id": "g1"},
		IdempotencyKey: "idem_1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != gojob.JobIDNotify {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("grants.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_TimerCommandsDispatchThroughWrappers(t *testing.T) {
	ctx := context.Background()

	ledger := core.NewMemoryCreditLedger()
	svc, err := core.NewService(
		core.Config{},
		core.WithGrantStore(core.NewMemoryGrantStore()),
		core.WithCreditLedger(ledger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	executor := grantcmd.NewExecutor(svc, nil, nil)

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterTimerCommands(adapter, executor, ledger)
	if err != nil {
		t.Fatalf("register timer commands: %v", err)
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	key := core.GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"}
	if err := gocommand.Dispatch(ctx, grantcmd.SetTimeMessage{Key: key, Minutes: 60}); err != nil {
		t.Fatalf("dispatch set time: %v", err)
	}
	if err := gocommand.Dispatch(ctx, grantcmd.AdjustCreditMessage{GuildID: "g1", SubjectID: "u2", Minutes: 30}); err != nil {
		t.Fatalf("dispatch adjust credit: %v", err)
	}
	if err := gocommand.Dispatch(ctx, grantcmd.PauseTimeMessage{
		Key:             key,
		DurationMinutes: 30,
		Kind:            core.PauseKindSelfFunded,
		IssuerID:        "u2",
	}); err != nil {
		t.Fatalf("dispatch pause: %v", err)
	}

	grant, err := svc.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if grant.Status != core.GrantStatusPaused {
		t.Fatalf("status %q, want paused", grant.Status)
	}
	balance, err := ledger.Balance(ctx, "g1", "u2")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Minutes != 0 {
		t.Fatalf("issuer balance %d, want 0 after funding pause", balance.Minutes)
	}

	if err := gocommand.Dispatch(ctx, grantcmd.ResumeTimeMessage{Key: key, IssuerID: "admin", AdminOverride: true}); err != nil {
		t.Fatalf("dispatch resume: %v", err)
	}
	grant, err = svc.Get(ctx, key)
	if err != nil {
		t.Fatalf("get after resume: %v", err)
	}
	if grant.Status != core.GrantStatusActive {
		t.Fatalf("status %q, want active after resume", grant.Status)
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "grants.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
