package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// GrantStore is the durable table of Grant rows keyed by
// (guild, subject, kind). UpdateVersioned and DeleteVersioned are the atomic
// conditional primitives the engine serializes per-key mutation through: both
// match on the caller's observed Version and report ErrVersionConflict when
// another writer committed first, ErrGrantNotFound when the row is gone.
type GrantStore interface {
	Get(ctx context.Context, key GrantKey) (Grant, error)
	Upsert(ctx context.Context, grant Grant) (Grant, error)
	UpdateVersioned(ctx context.Context, grant Grant) (Grant, error)
	DeleteVersioned(ctx context.Context, key GrantKey, version int64) error
	Delete(ctx context.Context, key GrantKey) (bool, error)
	ListGuild(ctx context.Context, guildID string) ([]Grant, error)
	ListSubject(ctx context.Context, guildID string, subjectID string) ([]Grant, error)
	ListGuilds(ctx context.Context) ([]string, error)
}

// CreditLedger is the durable per-(guild, subject) pause-credit balance.
// Subtract is atomic and fails with ErrInsufficientCredit instead of going
// negative; Add creates the account lazily at zero.
type CreditLedger interface {
	Balance(ctx context.Context, guildID string, subjectID string) (CreditBalance, error)
	Add(ctx context.Context, guildID string, subjectID string, minutes int) (CreditBalance, error)
	Subtract(ctx context.Context, guildID string, subjectID string, minutes int) (CreditBalance, error)
}

// GrantAuthority is the external system that actually holds the privilege.
// Both operations are idempotent.
type GrantAuthority interface {
	Grant(ctx context.Context, guildID string, subjectID string, kindID string) error
	Revoke(ctx context.Context, guildID string, subjectID string, kindID string) error
}

type NoticeKind string

const (
	NoticeKindWarning NoticeKind = "warning"
	NoticeKindExpired NoticeKind = "expired"
)

// Notice is one warning or expiry message. An empty ChannelID means the
// notifier delivers to the subject directly.
type Notice struct {
	Key              GrantKey
	Kind             NoticeKind
	ChannelID        string
	ThresholdMinutes int
	Remaining        time.Duration
}

// Notifier delivers notices best-effort; failures are logged by callers and
// never roll back a committed store mutation.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// FuncNotifier adapts a plain function to the Notifier contract.
type FuncNotifier func(ctx context.Context, notice Notice) error

func (f FuncNotifier) Notify(ctx context.Context, notice Notice) error {
	if f == nil {
		return nil
	}
	return f(ctx, notice)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) error { return nil }

type NopGrantAuthority struct{}

func (NopGrantAuthority) Grant(context.Context, string, string, string) error  { return nil }
func (NopGrantAuthority) Revoke(context.Context, string, string, string) error { return nil }

type StoreProvider interface {
	GrantStore() GrantStore
	CreditLedger() CreditLedger
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
