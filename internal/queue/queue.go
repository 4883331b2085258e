// Package queue 提供采集进程与收集进程之间的有界持久队列。
// 队列以批为单位传递测量记录，上限（最大消息数/最大消息体）由配置
// 显式给定；达到上限时丢弃最旧数据，保证采集侧永不阻塞。
package queue

import (
	"context"
	"errors"

	"vandaq/internal/pkg"
)

// ErrClosed 队列已关闭
var ErrClosed = errors.New("队列已关闭")

// Transport 是批队列的抽象。Put 入队一批记录，失败时调用方记录日志后
// 丢弃该批，绝不阻塞采集循环；Get 阻塞等待下一批，直到 ctx 取消。
type Transport interface {
	Put(ctx context.Context, batch *pkg.RecordBatch) error
	Get(ctx context.Context) (*pkg.RecordBatch, error)
	Close() error
}
