package acquirer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// 初始化时注册模拟数据源
func init() {
	Register("simulated", NewSimulatedSource)
}

// SignalConfig 单个参数的模拟波形配置
type SignalConfig struct {
	Signal string  `mapstructure:"signal"` // sine|triangle|sawtooth|square|random
	Period int     `mapstructure:"period"` // 周期（拍数）
	Min    float64 `mapstructure:"min"`
	Max    float64 `mapstructure:"max"`
}

// SimulatedConfig 模拟数据源配置，Signals 的 key 为参数名
type SimulatedConfig struct {
	CycleSecs int                     `mapstructure:"cycle_secs"`
	Signals   map[string]SignalConfig `mapstructure:"signals"`
}

// SimulatedSource 按配置波形合成仪器输出行，用于无设备联调
// 随机波形是预生成的 500 点随机游走，循环回放
type SimulatedSource struct {
	cfg       SimulatedConfig
	items     []string
	delimiter string
	logger    *zap.Logger
	cycle     int
	walk      []float64
}

// NewSimulatedSource 是创建模拟数据源的工厂函数
func NewSimulatedSource(cfg *pkg.AcquirerConfig, logger *zap.Logger) (LineSource, error) {
	var sc SimulatedConfig
	if err := mapstructure.Decode(cfg.Source.Para, &sc); err != nil {
		return nil, fmt.Errorf("解码模拟数据源配置失败: %w", err)
	}
	if sc.CycleSecs <= 0 {
		sc.CycleSecs = 1
	}
	walk := make([]float64, 500)
	sum := 0.0
	for i := range walk {
		sum += rand.NormFloat64()
		walk[i] = sum
	}
	return &SimulatedSource{
		cfg:       sc,
		items:     strings.Split(cfg.Stream.Items, ","),
		delimiter: cfg.Stream.Delimiter,
		logger:    logger,
		walk:      walk,
	}, nil
}

// Connect 模拟数据源没有真实连接
func (s *SimulatedSource) Connect(_ context.Context) error { return nil }

// ReadLine 等待一个采样周期后合成一行
func (s *SimulatedSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Duration(s.cfg.CycleSecs) * time.Second):
	}
	s.cycle++

	parts := make([]string, 0, len(s.items))
	for _, item := range s.items {
		switch item {
		case "x":
			parts = append(parts, "0")
		case "inst_date":
			parts = append(parts, time.Now().Format("2006-01-02"))
		case "inst_time":
			parts = append(parts, time.Now().Format("15:04:05"))
		case "inst_datetime":
			parts = append(parts, time.Now().Format("2006-01-02 15:04:05"))
		default:
			parts = append(parts, strconv.FormatFloat(s.value(item), 'f', 4, 64))
		}
	}
	return strings.Join(parts, s.delimiter), nil
}

// value 按配置波形计算当前拍的参数值，归一化到 [min, max]
func (s *SimulatedSource) value(item string) float64 {
	sig, ok := s.cfg.Signals[item]
	if !ok {
		return 0
	}
	period := sig.Period
	if period <= 0 {
		period = 60
	}
	normalized := float64(s.cycle%period) / float64(period)
	var v float64
	switch sig.Signal {
	case "sine":
		v = math.Sin(2 * math.Pi * normalized)
	case "triangle":
		if normalized < 0.5 {
			v = 4*normalized - 1
		} else {
			v = 3 - 4*normalized
		}
	case "sawtooth":
		v = 2*normalized - 1
	case "square":
		if normalized < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case "random":
		v = s.walk[s.cycle%len(s.walk)]
	}
	return sig.Min + (v+1)/2*(sig.Max-sig.Min)
}

// WriteLine 模拟数据源只把命令记到日志里
func (s *SimulatedSource) WriteLine(_ context.Context, line string) error {
	s.logger.Info("模拟数据源收到命令", zap.String("command", line))
	return nil
}

// Close 无连接可关
func (s *SimulatedSource) Close() error { return nil }
