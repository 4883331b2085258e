package pkg

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 汇集收集进程的运行指标
type Metrics struct {
	BatchesCommitted prometheus.Counter
	RecordsInserted  prometheus.Counter
	AlarmsInserted   prometheus.Counter
	InsertErrors     prometheus.Counter
	DecodeErrors     prometheus.Counter
	SpoolFiles       *prometheus.CounterVec // result: submitted|rejected
	DimCacheMisses   *prometheus.CounterVec // dimension 名称
	PendingRecords   prometheus.Gauge
}

// NewMetrics 注册指标集合。registry 为 nil 时使用默认注册表
func NewMetrics(registry *prometheus.Registry) *Metrics {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		reg = registry
	}
	m := &Metrics{
		BatchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vandaq_batches_committed_total", Help: "已提交的子批次数"}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vandaq_records_inserted_total", Help: "已插入的测量记录数"}),
		AlarmsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vandaq_alarms_inserted_total", Help: "已插入的报警记录数"}),
		InsertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vandaq_insert_errors_total", Help: "插入失败（回滚）的子批次数"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vandaq_decode_errors_total", Help: "解码失败的队列消息/提交文件数"}),
		SpoolFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vandaq_spool_files_total", Help: "按结果统计的提交文件数"}, []string{"result"}),
		DimCacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vandaq_dim_cache_misses_total", Help: "维度缓存未命中次数"}, []string{"dimension"}),
		PendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vandaq_pending_records", Help: "当前待插入的记录数"}),
	}
	reg.MustRegister(m.BatchesCommitted, m.RecordsInserted, m.AlarmsInserted,
		m.InsertErrors, m.DecodeErrors, m.SpoolFiles, m.DimCacheMisses, m.PendingRecords)
	return m
}

// ServeMetrics 启动 /metrics HTTP 服务，暴露 prometheus 指标
func ServeMetrics(ctx context.Context, cfg MetricsConfig) {
	if !cfg.Enable {
		return
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.Handler())
	go func() {
		log := LoggerFromContext(ctx)
		log.Info("Starting Prometheus HTTP server", zap.Int("port", cfg.Port), zap.String("endpoint", endpoint))
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), mux); err != nil {
			log.Error("Prometheus HTTP server failed to start", zap.Error(err))
		}
	}()
}
