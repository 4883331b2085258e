package spool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// Reader 轮询提交文件目录，按时间序回放其中的记录组
// 处理完的文件移入 submitted 目录，解码失败的移入 rejected 目录，
// 两种结局都让文件离开输入目录，坏文件不会卡住通道
type Reader struct {
	cfg    pkg.SpoolConfig
	logger *zap.Logger
}

// NewReader 构造回放读取器并确保归档目录存在
func NewReader(cfg pkg.SpoolConfig, logger *zap.Logger) (*Reader, error) {
	for _, dir := range []string{cfg.SubmittedDir, cfg.RejectedDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建归档目录失败 %s: %w", dir, err)
		}
	}
	return &Reader{cfg: cfg, logger: logger}, nil
}

// Next 阻塞等待下一个提交文件并返回其中的记录组
// 解码失败的文件移入 rejected 后以错误返回，调用方计数后继续
func (r *Reader) Next(ctx context.Context) ([]pkg.RecordBatch, error) {
	poll := time.Duration(r.cfg.PollMillis) * time.Millisecond
	if poll <= 0 {
		poll = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok, err := r.oldest()
		if err != nil {
			return nil, err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(poll):
			}
			continue
		}

		batches, err := readCompressed(path)
		if err != nil {
			r.logger.Error("提交文件解码失败，移入 rejected",
				zap.String("file", filepath.Base(path)), zap.Error(err))
			if mvErr := r.archive(path, r.cfg.RejectedDir); mvErr != nil {
				return nil, mvErr
			}
			return nil, err
		}
		if err := r.archive(path, r.cfg.SubmittedDir); err != nil {
			return nil, err
		}
		r.logger.Info("回放提交文件",
			zap.String("file", filepath.Base(path)), zap.Int("batches", len(batches)))
		return batches, nil
	}
}

// oldest 返回输入目录里按名最早的提交文件
// 文件名里嵌着 UTC 时间戳，字典序即时间序
func (r *Reader) oldest() (string, bool, error) {
	matches, err := filepath.Glob(filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	if err != nil {
		return "", false, fmt.Errorf("匹配提交文件失败: %w", err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	sort.Strings(matches)
	return matches[0], true, nil
}

func (r *Reader) archive(path, dir string) error {
	if dir == "" {
		return os.Remove(path)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("归档提交文件失败 %s: %w", path, err)
	}
	return nil
}

// readCompressed 解压并解码单个提交文件
func readCompressed(path string) ([]pkg.RecordBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开提交文件失败 %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("初始化 zstd 失败: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("解压提交文件失败 %s: %w", path, err)
	}
	return pkg.DecodeBatchList(data)
}
