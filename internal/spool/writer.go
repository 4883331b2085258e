// Package spool 实现提交文件通道：收集进程把已提交的记录组周期性
// 写成 zstd 压缩的 CBOR 文件，供异地转运；同时提供回放读取器，
// 在没有队列的部署形态下直接以提交文件为输入。
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// FileSuffix 提交文件的统一后缀：zstd 压缩的 CBOR 记录组列表
const FileSuffix = ".sbm.zst"

// Writer 周期性地把积累的记录组写成提交文件
// 文件先写临时名再原子改名，转运方永远看不到半截文件
type Writer struct {
	cfg       pkg.SubmissionConfig
	logger    *zap.Logger
	pending   []pkg.RecordBatch
	lastWrite time.Time
	now       func() time.Time
}

// NewWriter 构造提交文件写出器，首个写出周期从构造时刻开始计
func NewWriter(cfg pkg.SubmissionConfig, logger *zap.Logger) *Writer {
	w := &Writer{cfg: cfg, logger: logger, now: time.Now}
	w.lastWrite = w.now()
	return w
}

// Add 追加一个待写出的记录组
func (w *Writer) Add(batch pkg.RecordBatch) {
	w.pending = append(w.pending, batch)
}

// Due 当前写出周期是否已届满
func (w *Writer) Due() bool {
	return w.now().Sub(w.lastWrite) >= time.Duration(w.cfg.FileMinutes)*time.Minute
}

// Flush 把积累的记录组写成一个提交文件并清空缓冲
// 周期内没有数据时只推进周期，不产生空文件
func (w *Writer) Flush() error {
	defer func() { w.lastWrite = w.now() }()
	if len(w.pending) == 0 {
		return nil
	}

	data, err := pkg.EncodeBatchList(w.pending)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s%s", w.cfg.Basename, w.now().UTC().Format("20060102T150405"), FileSuffix)
	finalPath := filepath.Join(w.cfg.Dir, name)
	tmpPath := finalPath + ".tmp"

	if err := writeCompressed(tmpPath, data); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("改名提交文件失败 %s: %w", finalPath, err)
	}

	w.logger.Info("写出提交文件",
		zap.String("file", name),
		zap.Int("batches", len(w.pending)))
	w.pending = w.pending[:0]
	return nil
}

// writeCompressed zstd 压缩写入单个文件
func writeCompressed(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("创建提交文件失败 %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("初始化 zstd 失败: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("写提交文件失败 %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("压缩提交文件失败 %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭提交文件失败 %s: %w", path, err)
	}
	return nil
}
