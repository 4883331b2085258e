package acquirer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vandaq/internal/alarm"
	"vandaq/internal/parser"
	"vandaq/internal/pkg"
	"vandaq/internal/queue"
)

// Acquirer 单仪器采集循环：读一行 → 解析/聚合 → 报警评估 → 入队，
// 然后非阻塞地取一条待执行命令写给设备，再进入下一轮
type Acquirer struct {
	cfg    *pkg.AcquirerConfig
	parser *parser.Parser
	agg    *parser.Aggregator
	rules  alarm.RuleSet
	q      queue.Transport
	cmd    *queue.CommandChannel
	src    LineSource
	sup    *supervisor
	logger *zap.Logger
}

// New 按配置组装采集进程：编译行结构、加载规则、打开队列与数据源
func New(ctx context.Context, cfg *pkg.AcquirerConfig) (*Acquirer, error) {
	logger := pkg.LoggerFromContext(ctx)

	schema, err := parser.CompileSchema(cfg.Stream)
	if err != nil {
		return nil, err
	}

	a := &Acquirer{
		cfg:    cfg,
		parser: parser.New(schema, cfg.Platform, cfg.Instrument, cfg.MeasurementDelaySecs, logger),
		logger: logger,
	}

	if cfg.Aggregate != nil {
		a.agg = parser.NewAggregator(*cfg.Aggregate, cfg.Platform, cfg.Instrument, cfg.MeasurementDelaySecs)
	}

	switch {
	case cfg.RulesFile != "":
		rules, err := alarm.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		a.rules = rules
		logger.Info("报警规则已加载", zap.String("file", cfg.RulesFile), zap.Int("parameters", len(rules)))
	case cfg.RulesURL != "" && cfg.RuleSet != "":
		rules, err := alarm.LoadRulesHTTP(cfg.RulesURL, cfg.RuleSet)
		if err != nil {
			return nil, err
		}
		a.rules = rules
		logger.Info("报警规则已加载", zap.String("rule_set", cfg.RuleSet), zap.Int("parameters", len(rules)))
	}

	jsq, err := queue.Open(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, err
	}
	a.q = jsq

	if cfg.Command.Enable {
		cmd, err := queue.OpenCommandChannel(ctx, jsq, true)
		if err != nil {
			return nil, err
		}
		a.cmd = cmd
	}

	src, err := BuildSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.src = src
	a.sup = newSupervisor(src, logger)
	return a, nil
}

// Run 采集主循环，直到 ctx 取消
// 单行的解析失败只丢该行（或该列），设备故障退避重连，都不终止进程
func (a *Acquirer) Run(ctx context.Context) error {
	a.logger.Info("===Acquirer started===",
		zap.String("platform", a.cfg.Platform),
		zap.String("instrument", a.cfg.Instrument),
		zap.String("source", a.cfg.Source.Type))
	defer a.close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.sup.EnsureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		line, err := a.src.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.sup.Fail(err)
			continue
		}
		a.sup.Recover()

		if line != "" {
			a.handleLine(ctx, line)
		}
		a.drainCommand(ctx)
	}
}

// handleLine 处理一行仪器输出
// 带响应前缀的行是设备对命令的应答，绕过解析直接回写响应通道
func (a *Acquirer) handleLine(ctx context.Context, line string) {
	if a.cmd != nil && a.cfg.Command.ResponseHeader != "" &&
		strings.HasPrefix(line, a.cfg.Command.ResponseHeader) {
		if err := a.cmd.Respond(ctx, line); err != nil {
			a.logger.Error("回写命令响应失败", zap.Error(err))
		}
		return
	}

	results, err := a.parser.ParseLine(line)
	if err != nil {
		a.logger.Error("行解析失败，丢弃", zap.Error(err))
		return
	}
	records := parser.Records(results)

	if a.agg != nil {
		a.agg.Add(records)
		if !a.agg.Due() {
			return
		}
		records = a.agg.Flush()
	}
	if len(records) == 0 {
		return
	}

	records = alarm.Evaluate(records, a.rules)

	batch := pkg.RecordBatch{
		BatchID:    uuid.NewString(),
		Platform:   a.cfg.Platform,
		Instrument: a.cfg.Instrument,
		Records:    records,
	}
	if a.cfg.Verbose {
		a.logger.Info("入队记录组", zap.String("batch_id", batch.BatchID), zap.Int("records", len(records)))
	}
	// 入队失败丢弃该批：有界数据损失换采集循环的活性
	if err := a.q.Put(ctx, &batch); err != nil {
		a.logger.Error("入队失败，丢弃该批",
			zap.String("batch_id", batch.BatchID), zap.Int("records", len(records)), zap.Error(err))
	}
}

// drainCommand 非阻塞地取一条待执行命令写给设备
func (a *Acquirer) drainCommand(ctx context.Context) {
	if a.cmd == nil {
		return
	}
	cmd, ok, err := a.cmd.Poll(ctx)
	if err != nil {
		a.logger.Error("读命令通道失败", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	a.logger.Info("下发设备命令", zap.String("command", cmd))
	if err := a.src.WriteLine(ctx, cmd); err != nil {
		a.logger.Error("写设备命令失败", zap.String("command", cmd), zap.Error(err))
	}
}

// close 关停数据源与队列
func (a *Acquirer) close() {
	if a.agg != nil {
		// 关停前把窗口里攒着的记录冲出去
		if records := a.agg.Flush(); len(records) > 0 {
			batch := pkg.RecordBatch{
				BatchID:    uuid.NewString(),
				Platform:   a.cfg.Platform,
				Instrument: a.cfg.Instrument,
				Records:    alarm.Evaluate(records, a.rules),
			}
			if err := a.q.Put(context.Background(), &batch); err != nil {
				a.logger.Error("关停冲刷入队失败", zap.Error(err))
			}
		}
	}
	if err := a.src.Close(); err != nil {
		a.logger.Error("关闭数据源失败", zap.Error(err))
	}
	if err := a.q.Close(); err != nil {
		a.logger.Error("关闭队列失败", zap.Error(err))
	}
	a.logger.Info("===Acquirer stopped===")
}
