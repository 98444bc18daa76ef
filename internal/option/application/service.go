package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// Locker 跨进程的调用互斥，单实例部署可以不配置
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Recorder 业务指标
type Recorder interface {
	RecordInvocation(command, outcome string, duration time.Duration)
	RecordTransfers(n int)
	SetActive(active bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordInvocation(string, string, time.Duration) {}
func (noopRecorder) RecordTransfers(int)                            {}
func (noopRecorder) SetActive(bool)                                 {}

// Topics 发件箱消息的目标主题
type Topics struct {
	Transfer string
	Event    string
}

// DefaultTopics 默认主题
var DefaultTopics = Topics{Transfer: "option.bank.send", Event: "option.events"}

// OptionAppService 宿主侧的期权服务：串行化调用、读取区块高度、在一个工作单元内落库并写入发件箱
type OptionAppService struct {
	mu        sync.Mutex
	repo      domain.OptionRepository
	machine   *domain.Machine
	validator domain.AddressValidator
	clock     domain.Clock
	locker    Locker
	metrics   Recorder
	topics    Topics
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceOption 可选依赖
type ServiceOption func(*OptionAppService)

func WithLocker(l Locker) ServiceOption {
	return func(s *OptionAppService) { s.locker = l }
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *OptionAppService) { s.metrics = r }
}

func WithTopics(t Topics) ServiceOption {
	return func(s *OptionAppService) { s.topics = t }
}

// NewOptionAppService 构造函数
func NewOptionAppService(repo domain.OptionRepository, validator domain.AddressValidator, clock domain.Clock, logger *slog.Logger, opts ...ServiceOption) *OptionAppService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &OptionAppService{
		repo:      repo,
		machine:   domain.NewMachine(validator),
		validator: validator,
		clock:     clock,
		metrics:   noopRecorder{},
		topics:    DefaultTopics,
		logger:    logger.With("module", "option_app"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
