package acquirer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// 初始化时注册 TCP 数据源
func init() {
	Register("tcp", NewTCPSource)
}

// TCPConfig TCP 行流数据源配置
type TCPConfig struct {
	Address        string `mapstructure:"address"`
	ConnectTimeout int    `mapstructure:"connect_timeout_secs"`
	ReadTimeout    int    `mapstructure:"read_timeout_secs"`
}

// TCPSource 面向行协议仪器的 TCP 数据源
// 断线由采集循环的状态机负责重连，这里只做单次连接的读写
type TCPSource struct {
	cfg    TCPConfig
	logger *zap.Logger
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPSource 是创建 TCP 数据源的工厂函数
func NewTCPSource(cfg *pkg.AcquirerConfig, logger *zap.Logger) (LineSource, error) {
	var tc TCPConfig
	if err := mapstructure.Decode(cfg.Source.Para, &tc); err != nil {
		return nil, fmt.Errorf("解码 TCP 数据源配置失败: %w", err)
	}
	if tc.Address == "" {
		return nil, fmt.Errorf("TCP 数据源配置校验失败: address 不允许为空")
	}
	if tc.ConnectTimeout <= 0 {
		tc.ConnectTimeout = 10
	}
	if tc.ReadTimeout <= 0 {
		tc.ReadTimeout = 30
	}
	return &TCPSource{cfg: tc, logger: logger}, nil
}

// Connect 建立到仪器的 TCP 连接
func (t *TCPSource) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: time.Duration(t.cfg.ConnectTimeout) * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return fmt.Errorf("连接仪器失败 %s: %w", t.cfg.Address, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.logger.Info("仪器连接建立", zap.String("address", t.cfg.Address))
	return nil
}

// ReadLine 读一行仪器输出，读超时视为设备故障
func (t *TCPSource) ReadLine(_ context.Context) (string, error) {
	if t.conn == nil {
		return "", fmt.Errorf("仪器连接未建立")
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(time.Duration(t.cfg.ReadTimeout) * time.Second)); err != nil {
		return "", err
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		t.drop()
		return "", fmt.Errorf("读仪器输出失败: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine 把命令行写给仪器，自动补换行
func (t *TCPSource) WriteLine(_ context.Context, line string) error {
	if t.conn == nil {
		return fmt.Errorf("仪器连接未建立")
	}
	if _, err := t.conn.Write([]byte(line + "\r\n")); err != nil {
		t.drop()
		return fmt.Errorf("写仪器命令失败: %w", err)
	}
	return nil
}

func (t *TCPSource) drop() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.reader = nil
	}
}

// Close 关闭连接
func (t *TCPSource) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}
