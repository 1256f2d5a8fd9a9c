package grants

import (
	"context"
	"testing"

	grantcmd "github.com/goliatone/go-grants/command"
	"github.com/goliatone/go-grants/core"
)

func newFacadeService(t *testing.T) (*core.Service, *core.MemoryCreditLedger) {
	t.Helper()
	ledger := core.NewMemoryCreditLedger()
	svc, err := core.NewService(
		core.Config{},
		core.WithGrantStore(core.NewMemoryGrantStore()),
		core.WithCreditLedger(ledger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, ledger
}

func TestNewFacade_WiresCommands(t *testing.T) {
	svc, _ := newFacadeService(t)

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.SetTime == nil || commands.PauseTime == nil || commands.AdjustCredit == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	if facade.Executor() == nil {
		t.Fatalf("expected shared executor")
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to expose the service")
	}
}

func TestFacade_CommandDelegation(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newFacadeService(t)
	authority := &facadeAuthority{}

	facade, err := NewFacade(svc, WithAuthority(authority))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	key := core.GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"}
	if err := facade.Commands().SetTime.Execute(ctx, grantcmd.SetTimeMessage{Key: key, Minutes: 60}); err != nil {
		t.Fatalf("execute set time: %v", err)
	}
	if authority.grants != 1 {
		t.Fatalf("expected one authority grant, got %d", authority.grants)
	}

	if err := facade.Commands().AdjustCredit.Execute(ctx, grantcmd.AdjustCreditMessage{
		GuildID:   "g1",
		SubjectID: "u1",
		Minutes:   15,
	}); err != nil {
		t.Fatalf("execute adjust credit: %v", err)
	}
	balance, err := ledger.Balance(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Minutes != 15 {
		t.Fatalf("balance %d, want 15", balance.Minutes)
	}

	if err := facade.Commands().ClearTime.Execute(ctx, grantcmd.ClearTimeMessage{Key: key}); err != nil {
		t.Fatalf("execute clear time: %v", err)
	}
	if authority.revokes != 1 {
		t.Fatalf("expected one authority revoke, got %d", authority.revokes)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type facadeAuthority struct {
	grants  int
	revokes int
}

func (a *facadeAuthority) Grant(context.Context, string, string, string) error {
	a.grants++
	return nil
}

func (a *facadeAuthority) Revoke(context.Context, string, string, string) error {
	a.revokes++
	return nil
}
