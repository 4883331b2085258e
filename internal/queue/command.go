package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

const (
	cmdStreamSuffix = "_CMD"
	rspStreamSuffix = "_RSP"
	cmdSubjectSufix = ".cmd"
	rspSubjectSufix = ".rsp"
)

// CommandChannel 是采集进程与操作端之间的命令/响应通道
// 命令流与响应流在采集进程每次启动时删除重建，
// 不回放上一次运行遗留的命令
type CommandChannel struct {
	logger      *zap.Logger
	js          jetstream.JetStream
	name        string
	cmdSubject  string
	rspSubject  string
	cmdConsumer jetstream.Consumer
	rspConsumer jetstream.Consumer
}

// OpenCommandChannel 在已有队列连接上打开命令通道
// fresh 为 true（采集进程侧）时删除重建两条流
func OpenCommandChannel(ctx context.Context, q *JetStreamQueue, fresh bool) (*CommandChannel, error) {
	c := &CommandChannel{
		logger:     q.logger,
		js:         q.js,
		name:       q.cfg.Name,
		cmdSubject: q.cfg.Name + cmdSubjectSufix,
		rspSubject: q.cfg.Name + rspSubjectSufix,
	}
	pairs := []struct {
		stream  string
		subject string
	}{
		{q.cfg.Name + cmdStreamSuffix, c.cmdSubject},
		{q.cfg.Name + rspStreamSuffix, c.rspSubject},
	}
	for _, p := range pairs {
		if fresh {
			if err := c.js.DeleteStream(ctx, p.stream); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
				return nil, fmt.Errorf("删除命令流 %s 失败: %w", p.stream, err)
			}
		}
		_, err := c.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:      p.stream,
			Subjects:  []string{p.subject},
			MaxMsgs:   1024,
			Discard:   jetstream.DiscardOld,
			Retention: jetstream.WorkQueuePolicy,
			Storage:   jetstream.MemoryStorage,
		})
		if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("创建命令流 %s 失败: %w", p.stream, err)
		}
	}
	return c, nil
}

// Poll 非阻塞地取出一条待执行命令，通道为空时返回 ok=false
// 采集循环每轮调用一次，命令处理穿插在数据行之间
func (c *CommandChannel) Poll(ctx context.Context) (cmd string, ok bool, err error) {
	cons, err := c.consumer(ctx, &c.cmdConsumer, c.name+cmdStreamSuffix, c.cmdSubject)
	if err != nil {
		return "", false, err
	}
	return fetchOne(ctx, cons)
}

// Respond 把设备响应行写回响应流
func (c *CommandChannel) Respond(ctx context.Context, line string) error {
	if _, err := c.js.Publish(ctx, c.rspSubject, []byte(line)); err != nil {
		return fmt.Errorf("写响应失败: %w", err)
	}
	return nil
}

// Send 操作端下发一条命令
func (c *CommandChannel) Send(ctx context.Context, cmd string) error {
	if _, err := c.js.Publish(ctx, c.cmdSubject, []byte(cmd)); err != nil {
		return fmt.Errorf("下发命令失败: %w", err)
	}
	return nil
}

// AwaitResponse 操作端阻塞等待一条响应，直到拿到或 ctx 取消
func (c *CommandChannel) AwaitResponse(ctx context.Context) (string, error) {
	cons, err := c.consumer(ctx, &c.rspConsumer, c.name+rspStreamSuffix, c.rspSubject)
	if err != nil {
		return "", err
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, ok, err := fetchOne(ctx, cons)
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (c *CommandChannel) consumer(ctx context.Context, slot *jetstream.Consumer, stream, subject string) (jetstream.Consumer, error) {
	if *slot != nil {
		return *slot, nil
	}
	cons, err := c.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
	})
	if err != nil {
		return nil, fmt.Errorf("创建命令消费者失败: %w", err)
	}
	*slot = cons
	return cons, nil
}

// fetchOne 尝试取出一条消息，队列为空立即返回
func fetchOne(ctx context.Context, cons jetstream.Consumer) (string, bool, error) {
	msgs, err := cons.FetchNoWait(1)
	if err != nil {
		return "", false, fmt.Errorf("拉取消息失败: %w", err)
	}
	for msg := range msgs.Messages() {
		line := string(msg.Data())
		if err := msg.Ack(); err != nil {
			pkg.LoggerFromContext(ctx).Warn("确认消息失败", zap.Error(err))
		}
		return line, true, nil
	}
	return "", false, msgs.Error()
}
