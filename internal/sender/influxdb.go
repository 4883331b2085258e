package sender

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// 初始化时注册 InfluxDB 策略
func init() {
	Register("influxdb", NewInfluxDbStrategy)
}

// InfluxDbConfig InfluxDB 的专属配置
type InfluxDbConfig struct {
	URL       string `mapstructure:"url"`
	Token     string `mapstructure:"token"`
	Org       string `mapstructure:"org"`
	Bucket    string `mapstructure:"bucket"`
	BatchSize uint   `mapstructure:"batchSize"`
}

// InfluxDbStrategy 把数值型测量镜像为 InfluxDB 时序点，
// 供近实时看板使用。文本型与纯报警记录不镜像
type InfluxDbStrategy struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      InfluxDbConfig
	logger   *zap.Logger
}

// NewInfluxDbStrategy 是创建 InfluxDbStrategy 的工厂函数
func NewInfluxDbStrategy(cfg pkg.SenderConfig, logger *zap.Logger) (Strategy, error) {
	var ic InfluxDbConfig
	if err := mapstructure.Decode(cfg.Para, &ic); err != nil {
		return nil, fmt.Errorf("解码 influxdb 配置失败: %w", err)
	}
	if ic.URL == "" || ic.Org == "" || ic.Bucket == "" {
		return nil, fmt.Errorf("influxdb 配置校验失败: url/org/bucket 不允许为空")
	}
	if ic.BatchSize == 0 {
		ic.BatchSize = 100
	}
	client := influxdb2.NewClientWithOptions(ic.URL, ic.Token,
		influxdb2.DefaultOptions().SetBatchSize(ic.BatchSize))
	writeAPI := client.WriteAPI(ic.Org, ic.Bucket)

	// 异步写入的错误从通道里出来，只能记日志
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influxdb 写入失败", zap.Error(err))
		}
	}()

	return &InfluxDbStrategy{client: client, writeAPI: writeAPI, cfg: ic, logger: logger}, nil
}

// Name 策略类型名
func (b *InfluxDbStrategy) Name() string { return "influxdb" }

// Send 把记录组里的数值型测量写成点，measurement 为参数名
func (b *InfluxDbStrategy) Send(_ context.Context, batch pkg.RecordBatch) error {
	for _, r := range batch.Records {
		v, ok := r.Datum.Num()
		if !ok {
			continue
		}
		p := influxdb2.NewPoint(r.Parameter,
			map[string]string{
				"platform":   r.Platform,
				"instrument": r.Instrument,
				"unit":       r.Unit,
			},
			map[string]interface{}{"value": v},
			r.SampleTime)
		b.writeAPI.WritePoint(p)
	}
	return nil
}

// Close 冲刷未写出的点并关闭客户端
func (b *InfluxDbStrategy) Close() error {
	b.writeAPI.Flush()
	b.client.Close()
	return nil
}
