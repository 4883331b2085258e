package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

const (
	dataSubjectSuffix = ".data"
	consumerName      = "collector"
	fetchWait         = 2 * time.Second
)

// JetStreamQueue 基于 NATS JetStream 的有界队列实现
// 流按 DiscardOld 策略运行：写满后淘汰最旧消息而不是拒绝写入
type JetStreamQueue struct {
	cfg      pkg.QueueConfig
	logger   *zap.Logger
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	subject  string
}

// Open 连接 NATS 并确保流处于配置要求的形态
func Open(ctx context.Context, cfg pkg.QueueConfig, logger *zap.Logger) (*JetStreamQueue, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("vandaq-"+cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败 %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("初始化 JetStream 失败: %w", err)
	}
	q := &JetStreamQueue{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		js:      js,
		subject: cfg.Name + dataSubjectSuffix,
	}
	if err := q.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// ensureStream 自愈式建流：流不存在则创建；已存在但上限小于配置
// 要求时删除重建（队列属于瞬态缓冲，缩水的流保不住配置承诺的容量）
func (q *JetStreamQueue) ensureStream(ctx context.Context) error {
	streamCfg := jetstream.StreamConfig{
		Name:       q.cfg.Name,
		Subjects:   []string{q.subject},
		MaxMsgs:    q.cfg.MaxMsgs,
		MaxMsgSize: q.cfg.MaxMsgSize,
		Discard:    jetstream.DiscardOld,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
	}

	stream, err := q.js.Stream(ctx, q.cfg.Name)
	switch {
	case err == nil:
		info, err := stream.Info(ctx)
		if err != nil {
			return fmt.Errorf("查询流 %s 失败: %w", q.cfg.Name, err)
		}
		if info.Config.MaxMsgs >= q.cfg.MaxMsgs && info.Config.MaxMsgSize >= q.cfg.MaxMsgSize {
			return nil
		}
		q.logger.Warn("流上限小于配置要求，删除重建",
			zap.String("stream", q.cfg.Name),
			zap.Int64("existing_max_msgs", info.Config.MaxMsgs),
			zap.Int32("existing_max_msg_size", info.Config.MaxMsgSize),
			zap.Int64("max_msgs", q.cfg.MaxMsgs),
			zap.Int32("max_msg_size", q.cfg.MaxMsgSize))
		if err := q.js.DeleteStream(ctx, q.cfg.Name); err != nil {
			return fmt.Errorf("删除流 %s 失败: %w", q.cfg.Name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
	default:
		return fmt.Errorf("查询流 %s 失败: %w", q.cfg.Name, err)
	}

	if _, err := q.js.CreateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("创建流 %s 失败: %w", q.cfg.Name, err)
	}
	q.logger.Info("队列流就绪",
		zap.String("stream", q.cfg.Name),
		zap.Int64("max_msgs", q.cfg.MaxMsgs),
		zap.Int32("max_msg_size", q.cfg.MaxMsgSize))
	return nil
}

// Put 编码一批记录并入队。任何失败都只向上返回错误，
// 由采集循环记录日志后丢弃该批，不重试不阻塞
func (q *JetStreamQueue) Put(ctx context.Context, batch *pkg.RecordBatch) error {
	data, err := pkg.EncodeBatch(*batch)
	if err != nil {
		return fmt.Errorf("编码批次 %s 失败: %w", batch.BatchID, err)
	}
	if _, err := q.js.Publish(ctx, q.subject, data); err != nil {
		return fmt.Errorf("入队批次 %s 失败: %w", batch.BatchID, err)
	}
	return nil
}

// Get 阻塞取出下一批记录，直到拿到消息或 ctx 取消
// 解码失败的消息确认后丢弃，返回错误交由调用方计数
func (q *JetStreamQueue) Get(ctx context.Context) (*pkg.RecordBatch, error) {
	cons, err := q.ensureConsumer(ctx)
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := cons.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			return nil, fmt.Errorf("拉取队列消息失败: %w", err)
		}
		for msg := range msgs.Messages() {
			batch, err := pkg.DecodeBatch(msg.Data())
			if err != nil {
				// 坏消息留在队列里只会反复失败，确认后丢弃
				_ = msg.Ack()
				return nil, fmt.Errorf("解码队列消息失败: %w", err)
			}
			if err := msg.Ack(); err != nil {
				q.logger.Warn("确认队列消息失败", zap.Error(err))
			}
			return &batch, nil
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("拉取队列消息失败: %w", err)
		}
	}
}

func (q *JetStreamQueue) ensureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	if q.consumer != nil {
		return q.consumer, nil
	}
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Name, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: q.subject,
	})
	if err != nil {
		return nil, fmt.Errorf("创建消费者失败: %w", err)
	}
	q.consumer = cons
	return cons, nil
}

// Close 排空并关闭 NATS 连接
func (q *JetStreamQueue) Close() error {
	if q.conn == nil {
		return nil
	}
	err := q.conn.Drain()
	q.conn = nil
	return err
}
