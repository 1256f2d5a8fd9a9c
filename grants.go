package grants

import "github.com/goliatone/go-grants/core"

type Config = core.Config

type SweepConfig = core.SweepConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type GrantKey = core.GrantKey
type Grant = core.Grant
type GrantStatus = core.GrantStatus
type PauseKind = core.PauseKind
type OpResult = core.OpResult
type GrantStore = core.GrantStore
type CreditLedger = core.CreditLedger
type CreditBalance = core.CreditBalance
type GrantAuthority = core.GrantAuthority
type Notifier = core.Notifier
type Notice = core.Notice
type NoticeKind = core.NoticeKind
type Sweeper = core.Sweeper
type SweeperOption = core.SweeperOption
type SweepStats = core.SweepStats

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithGrantStore        = core.WithGrantStore
	WithCreditLedger      = core.WithCreditLedger
	WithClock             = core.WithClock
)

var (
	NewSweeper       = core.NewSweeper
	NewQueueNotifier = core.NewQueueNotifier

	WithSweepInterval         = core.WithSweepInterval
	WithSweepAuthorityTimeout = core.WithSweepAuthorityTimeout
	WithSweepThresholds       = core.WithSweepThresholds
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
