// Package sender 实现收集进程的外发策略：已入库的记录组可以同时
// 复制给若干下游（kafka 转发、influxdb 镜像等）。外发失败只记日志，
// 永远不影响入库主链路。
package sender

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// Strategy 定义了所有外发策略的通用接口
type Strategy interface {
	Name() string
	Send(ctx context.Context, batch pkg.RecordBatch) error
	Close() error
}

// FactoryFunc 代表一个外发策略的工厂函数
type FactoryFunc func(cfg pkg.SenderConfig, logger *zap.Logger) (Strategy, error)

// Factories 全局工厂映射，用于注册不同策略类型的构造函数
var Factories = make(map[string]FactoryFunc)

// Register 注册一个外发策略
func Register(senderType string, factory FactoryFunc) {
	Factories[senderType] = factory
}

// Build 按配置实例化所有启用的外发策略
// 区分注册和启用：配置里留着未启用的策略块不影响启动
func Build(cfgs []pkg.SenderConfig, logger *zap.Logger) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enable {
			continue
		}
		factory, exists := Factories[cfg.Type]
		if !exists {
			return nil, fmt.Errorf("外发策略类型 %q 未注册", cfg.Type)
		}
		s, err := factory(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化外发策略 %s 失败: %w", cfg.Type, err)
		}
		logger.Info("外发策略已启用", zap.String("type", cfg.Type))
		strategies = append(strategies, s)
	}
	return strategies, nil
}

// FanOut 把一个记录组复制给所有策略，失败只记日志
func FanOut(ctx context.Context, strategies []Strategy, batch pkg.RecordBatch, logger *zap.Logger) {
	for _, s := range strategies {
		if err := s.Send(ctx, batch); err != nil {
			logger.Error("外发失败", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
}
