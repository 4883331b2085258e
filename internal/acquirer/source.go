// Package acquirer 实现采集进程：从行数据源读取仪器输出，
// 解析（或聚合）成测量记录，套用报警规则后成批入队。
// 每个采集进程独占一个设备连接和一对队列，循环内严格单线程。
package acquirer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// LineSource 行数据源：一条仪器连接的抽象
// ReadLine 阻塞到读出一行或 ctx 取消；WriteLine 把命令写给设备
type LineSource interface {
	Connect(ctx context.Context) error
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
}

// FactoryFunc 代表一个行数据源的工厂函数
type FactoryFunc func(cfg *pkg.AcquirerConfig, logger *zap.Logger) (LineSource, error)

// Factories 全局工厂映射，用于注册不同数据源类型的构造函数
var Factories = make(map[string]FactoryFunc)

// Register 注册一个行数据源
func Register(sourceType string, factory FactoryFunc) {
	Factories[sourceType] = factory
}

// BuildSource 按配置实例化行数据源
func BuildSource(cfg *pkg.AcquirerConfig, logger *zap.Logger) (LineSource, error) {
	factory, exists := Factories[cfg.Source.Type]
	if !exists {
		return nil, fmt.Errorf("数据源类型 %q 未注册", cfg.Source.Type)
	}
	return factory(cfg, logger)
}

// ConnState 设备连接状态机的状态
type ConnState int

const (
	StateDisconnected ConnState = iota // 未连接
	StateConnecting                    // 连接中
	StateConnected                     // 已连接
	StateBackoff                       // 失败退避中
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// supervisor 驱动设备连接状态机
// 首次失败记日志，之后相同的失败静默退避，恢复时再记一条，避免刷日志
type supervisor struct {
	src     LineSource
	logger  *zap.Logger
	state   ConnState
	backoff time.Duration
	logged  bool
}

func newSupervisor(src LineSource, logger *zap.Logger) *supervisor {
	return &supervisor{src: src, logger: logger, state: StateDisconnected, backoff: initialBackoff}
}

// State 当前连接状态
func (s *supervisor) State() ConnState { return s.state }

// EnsureConnected 把状态机推进到 Connected，失败时退避后返回错误
func (s *supervisor) EnsureConnected(ctx context.Context) error {
	switch s.state {
	case StateConnected:
		return nil
	case StateBackoff:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}
		s.state = StateDisconnected
	}

	s.state = StateConnecting
	if err := s.src.Connect(ctx); err != nil {
		s.Fail(err)
		return err
	}
	s.Recover()
	return nil
}

// Fail 记录一次设备故障：进入退避态，退避时长翻倍直到上限
// 只在从正常态跌落的第一次记日志
func (s *supervisor) Fail(err error) {
	if !s.logged {
		s.logger.Error("设备故障，进入退避", zap.Duration("backoff", s.backoff), zap.Error(err))
		s.logged = true
	}
	s.state = StateBackoff
	s.backoff *= 2
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
}

// Recover 设备恢复：重置退避，若此前有故障记一条恢复日志
func (s *supervisor) Recover() {
	if s.logged {
		s.logger.Info("设备恢复")
		s.logged = false
	}
	s.state = StateConnected
	s.backoff = initialBackoff
}
