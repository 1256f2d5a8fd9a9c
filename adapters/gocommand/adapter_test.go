package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	grantcmd "github.com/goliatone/go-grants/command"
	"github.com/goliatone/go-grants/core"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "grants.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "grants.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "grants.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "grants.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(grantcmd.SetTimeMessage{
		Key:     core.GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"},
		Minutes: 30,
	}); err != nil {
		t.Fatalf("expected timer message to satisfy contract, got %v", err)
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
}

func TestRegisterTimerCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())

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

	subscriptions, err := RegisterTimerCommands(adapter, executor, ledger)
	if err != nil {
		t.Fatalf("register timer commands: %v", err)
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()
	if len(subscriptions) != 8 {
		t.Fatalf("expected 8 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	key := core.GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"}
	if err := Dispatch(context.Background(), grantcmd.SetTimeMessage{Key: key, Minutes: 30}); err != nil {
		t.Fatalf("dispatch set time: %v", err)
	}
	grant, err := svc.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if grant.Status != core.GrantStatusActive {
		t.Fatalf("status %q, want active", grant.Status)
	}

	if _, err := RegisterTimerCommands(adapter, nil, ledger); err == nil {
		t.Fatalf("expected nil executor to fail")
	}
}
