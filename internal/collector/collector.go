package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vandaq/internal/pkg"
	"vandaq/internal/queue"
	"vandaq/internal/sender"
	"vandaq/internal/spool"
)

// drainWait 队列排空时每次追加拉取的等待上限
const drainWait = 200 * time.Millisecond

// Collector 收集进程：单消费协程从队列（或提交文件目录）取记录组，
// 喂给插入引擎，入库成功后复制给提交文件写出器与外发策略
type Collector struct {
	cfg       *pkg.CollectorConfig
	db        *gorm.DB
	engine    *Engine
	transport queue.Transport
	reader    *spool.Reader
	writer    *spool.Writer
	senders   []sender.Strategy
	metrics   *pkg.Metrics
	logger    *zap.Logger
}

// New 按配置组装收集进程：连库建表、预载缓存、打开输入通道
func New(ctx context.Context, cfg *pkg.CollectorConfig, metrics *pkg.Metrics) (*Collector, error) {
	logger := pkg.LoggerFromContext(ctx)

	db, err := gorm.Open(postgres.Open(cfg.Warehouse.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据仓库失败: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("建表失败: %w", err)
	}

	dims, err := NewDimCache(db, metrics)
	if err != nil {
		return nil, err
	}
	times := NewTimeCache(db, cfg.Warehouse.CacheTimeSeconds, metrics)

	c := &Collector{
		cfg:     cfg,
		db:      db,
		engine:  NewEngine(db, dims, times, cfg.Warehouse, metrics, logger),
		metrics: metrics,
		logger:  logger,
	}

	if cfg.Queue != nil {
		q, err := queue.Open(ctx, *cfg.Queue, logger)
		if err != nil {
			return nil, err
		}
		c.transport = q
	} else {
		r, err := spool.NewReader(cfg.Spool, logger)
		if err != nil {
			return nil, err
		}
		c.reader = r
	}

	if cfg.Submissions.Enable {
		c.writer = spool.NewWriter(cfg.Submissions, logger)
	}

	senders, err := sender.Build(cfg.Senders, logger)
	if err != nil {
		return nil, err
	}
	c.senders = senders
	return c, nil
}

// Run 主消费循环，直到 ctx 取消
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("===Collector started===")
	defer c.close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			batches []pkg.RecordBatch
			err     error
		)
		if c.transport != nil {
			batches, err = c.drainQueue(ctx)
		} else {
			batches, err = c.reader.Next(ctx)
			if c.metrics != nil && len(batches) > 0 {
				c.metrics.SpoolFiles.WithLabelValues("submitted").Inc()
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if c.metrics != nil {
				c.metrics.DecodeErrors.Inc()
				if c.transport == nil {
					c.metrics.SpoolFiles.WithLabelValues("rejected").Inc()
				}
			}
			c.logger.Error("输入通道读取失败", zap.Error(err))
			continue
		}
		c.process(ctx, batches)
	}
}

// drainQueue 阻塞取第一组，然后在不超过 max_batch_records 的前提下
// 继续排空队列里已经积压的记录组，减少小事务
func (c *Collector) drainQueue(ctx context.Context) ([]pkg.RecordBatch, error) {
	first, err := c.transport.Get(ctx)
	if err != nil {
		return nil, err
	}
	batches := []pkg.RecordBatch{*first}
	total := len(first.Records)
	for total < c.cfg.Warehouse.MaxBatchRecords {
		drainCtx, cancel := context.WithTimeout(ctx, drainWait)
		more, err := c.transport.Get(drainCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break // 队列已排空
			}
			if errors.Is(err, context.Canceled) {
				return batches, nil
			}
			if c.metrics != nil {
				c.metrics.DecodeErrors.Inc()
			}
			c.logger.Error("队列消息解码失败，丢弃", zap.Error(err))
			continue
		}
		batches = append(batches, *more)
		total += len(more.Records)
	}
	return batches, nil
}

// process 入库一批记录组，然后复制给提交文件写出器与外发策略
func (c *Collector) process(ctx context.Context, batches []pkg.RecordBatch) {
	records := make([]pkg.MeasurementRecord, 0)
	for _, b := range batches {
		records = append(records, b.Records...)
	}
	if c.metrics != nil {
		c.metrics.PendingRecords.Set(float64(len(records)))
		defer c.metrics.PendingRecords.Set(0)
	}
	if len(records) == 0 {
		return
	}

	c.engine.ProcessRecords(records)

	for _, b := range batches {
		if c.writer != nil {
			c.writer.Add(b)
		}
		sender.FanOut(ctx, c.senders, b, c.logger)
	}
	if c.writer != nil && c.writer.Due() {
		if err := c.writer.Flush(); err != nil {
			c.logger.Error("写出提交文件失败", zap.Error(err))
		}
	}
}

// close 关停输入通道与外发策略，冲刷未写出的提交文件
func (c *Collector) close() {
	if c.writer != nil {
		if err := c.writer.Flush(); err != nil {
			c.logger.Error("关停时写出提交文件失败", zap.Error(err))
		}
	}
	for _, s := range c.senders {
		if err := s.Close(); err != nil {
			c.logger.Error("关闭外发策略失败", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Error("关闭队列失败", zap.Error(err))
		}
	}
	c.logger.Info("===Collector stopped===")
}
