package pkg

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// StreamConfig 描述一种仪器输出行的列结构，逗号分隔的四个并行列表
// 列角色：x=忽略；inst_date/inst_time/inst_datetime=参与设备时间重建；其余=参数名
type StreamConfig struct {
	Items     string `mapstructure:"items"`
	Formats   string `mapstructure:"formats"`
	Units     string `mapstructure:"units"`
	AcqTypes  string `mapstructure:"acqTypes"`
	Delimiter string `mapstructure:"item_delimiter"`
}

// Validate 校验列结构：列数必须对齐，格式码必须可识别，分隔符不允许为空
func (s StreamConfig) Validate() error {
	if s.Delimiter == "" {
		return fmt.Errorf("stream 配置校验失败: item_delimiter 不允许为空")
	}
	items := strings.Split(s.Items, ",")
	formats := strings.Split(s.Formats, ",")
	units := strings.Split(s.Units, ",")
	acqTypes := strings.Split(s.AcqTypes, ",")
	if len(items) != len(formats) || len(items) != len(units) || len(items) != len(acqTypes) {
		return fmt.Errorf("stream 配置校验失败: items/formats/units/acqTypes 列数不一致 (%d/%d/%d/%d)",
			len(items), len(formats), len(units), len(acqTypes))
	}
	for i, item := range items {
		switch item {
		case "x":
			continue
		case "inst_date", "inst_time", "inst_datetime":
			if formats[i] == "" {
				return fmt.Errorf("stream 配置校验失败: 时间列 %s 缺少时间格式", item)
			}
		default:
			switch formats[i] {
			case "f", "h", "s":
			default:
				return fmt.Errorf("stream 配置校验失败: 参数列 %s 的格式码 %q 不可识别（应为 f/h/s）", item, formats[i])
			}
		}
	}
	return nil
}

// AggregateConfig 时间窗聚合配置，Ops 的 key 为参数名
type AggregateConfig struct {
	Seconds int               `mapstructure:"aggregate_secs"`
	Ops     map[string]string `mapstructure:"ops"` // mean|min|max|first|last
}

// Validate 校验聚合配置
func (a AggregateConfig) Validate() error {
	if a.Seconds <= 0 {
		return fmt.Errorf("聚合配置校验失败: aggregate_secs 必须为正")
	}
	for item, op := range a.Ops {
		switch op {
		case "mean", "min", "max", "first", "last":
		default:
			return fmt.Errorf("聚合配置校验失败: 参数 %s 的聚合方式 %q 不可识别", item, op)
		}
	}
	return nil
}

// QueueConfig 队列传输配置
type QueueConfig struct {
	URL        string `mapstructure:"url"`
	Name       string `mapstructure:"name"`
	MaxMsgs    int64  `mapstructure:"max_msgs"`
	MaxMsgSize int32  `mapstructure:"max_msg_size"`
}

// Validate 队列上限属于安全相关字段，不允许缺省
func (q QueueConfig) Validate() error {
	if q.URL == "" {
		return fmt.Errorf("队列配置校验失败: url 不允许为空")
	}
	if q.Name == "" {
		return fmt.Errorf("队列配置校验失败: name 不允许为空")
	}
	if q.MaxMsgs <= 0 || q.MaxMsgSize <= 0 {
		return fmt.Errorf("队列配置校验失败: max_msgs 与 max_msg_size 必须为正")
	}
	return nil
}

// CommandConfig 命令/响应通道配置
type CommandConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ResponseHeader string `mapstructure:"response_header"` // 设备响应行的前缀
}

// SourceConfig 行数据源配置，Para 留给各数据源自定义项
type SourceConfig struct {
	Type string                 `mapstructure:"type"` // simulated|tcp|mqtt
	Para map[string]interface{} `mapstructure:",remain"`
}

// AcquirerConfig 单个采集进程的完整配置
type AcquirerConfig struct {
	Platform             string           `mapstructure:"platform"`
	Instrument           string           `mapstructure:"instrument"`
	MeasurementDelaySecs int              `mapstructure:"measurement_delay_secs"`
	Verbose              bool             `mapstructure:"verbose"`
	Source               SourceConfig     `mapstructure:"source"`
	Stream               StreamConfig     `mapstructure:"stream"`
	Aggregate            *AggregateConfig `mapstructure:"aggregate"`
	RulesFile            string           `mapstructure:"rules_file"`
	RulesURL             string           `mapstructure:"rules_url"` // 管理面地址，按名拉取规则集
	RuleSet              string           `mapstructure:"rule_set"`
	Queue                QueueConfig      `mapstructure:"queue"`
	Command              CommandConfig    `mapstructure:"command"`
	Log                  LogConfig        `mapstructure:"log"`
	Version              string           `mapstructure:"version"`
}

// Validate 启动期整体校验，失败即终止进程
func (c AcquirerConfig) Validate() error {
	if c.Platform == "" || c.Instrument == "" {
		return fmt.Errorf("采集配置校验失败: platform 与 instrument 不允许为空")
	}
	if c.MeasurementDelaySecs < 0 {
		return fmt.Errorf("采集配置校验失败: measurement_delay_secs 不允许为负")
	}
	if c.Source.Type == "" {
		return fmt.Errorf("采集配置校验失败: source.type 不允许为空")
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.Aggregate != nil {
		if err := c.Aggregate.Validate(); err != nil {
			return err
		}
	}
	return c.Queue.Validate()
}

// WarehouseConfig 数据仓库与插入引擎配置
type WarehouseConfig struct {
	DSN                string `mapstructure:"dsn"`
	InsertBatchSeconds int    `mapstructure:"insert_batch_secs"` // 子批次时间桶宽度
	CacheTimeSeconds   int    `mapstructure:"cache_time_secs"`   // 时间维度预取半窗宽
	MaxBatchRecords    int    `mapstructure:"max_batch_records"` // 单次处理的记录数上限
}

// Validate 校验仓库配置
func (w WarehouseConfig) Validate() error {
	if w.DSN == "" {
		return fmt.Errorf("仓库配置校验失败: dsn 不允许为空")
	}
	if w.InsertBatchSeconds <= 0 {
		return fmt.Errorf("仓库配置校验失败: insert_batch_secs 必须为正")
	}
	if w.CacheTimeSeconds <= 0 {
		return fmt.Errorf("仓库配置校验失败: cache_time_secs 必须为正")
	}
	if w.MaxBatchRecords <= 0 {
		return fmt.Errorf("仓库配置校验失败: max_batch_records 必须为正")
	}
	return nil
}

// SpoolConfig 提交文件回放目录配置（无队列时的降级通道）
type SpoolConfig struct {
	Dir          string `mapstructure:"dir"`
	Pattern      string `mapstructure:"pattern"`       // 文件名 glob，如 vandaq_*.sbm.zst
	SubmittedDir string `mapstructure:"submitted_dir"` // 处理完成后移入
	RejectedDir  string `mapstructure:"rejected_dir"`  // 解码失败后移入
	PollMillis   int    `mapstructure:"poll_millis"`
}

// SubmissionConfig 收集器侧的提交文件写出配置
type SubmissionConfig struct {
	Enable      bool   `mapstructure:"enable"`
	Dir         string `mapstructure:"dir"`
	Basename    string `mapstructure:"basename"`
	FileMinutes int    `mapstructure:"file_minutes"`
}

// SenderConfig 外发策略配置（kafka 转发、influxdb 镜像等）
type SenderConfig struct {
	Type   string                 `mapstructure:"type"`
	Enable bool                   `mapstructure:"enable"`
	Para   map[string]interface{} `mapstructure:",remain"`
}

// MetricsConfig prometheus 指标暴露配置
type MetricsConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Port     int    `mapstructure:"port"`
	Endpoint string `mapstructure:"endpoint"`
}

// CollectorConfig 收集进程的完整配置
// Queue 为 nil 时走提交文件回放通道
type CollectorConfig struct {
	Queue       *QueueConfig     `mapstructure:"queue"`
	Warehouse   WarehouseConfig  `mapstructure:"warehouse"`
	Spool       SpoolConfig      `mapstructure:"spool"`
	Submissions SubmissionConfig `mapstructure:"submissions"`
	Senders     []SenderConfig   `mapstructure:"senders"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Log         LogConfig        `mapstructure:"log"`
	Version     string           `mapstructure:"version"`
}

// Validate 启动期整体校验
func (c CollectorConfig) Validate() error {
	if err := c.Warehouse.Validate(); err != nil {
		return err
	}
	if c.Queue != nil {
		if err := c.Queue.Validate(); err != nil {
			return err
		}
	} else {
		if c.Spool.Dir == "" || c.Spool.Pattern == "" {
			return fmt.Errorf("收集配置校验失败: 未配置队列时 spool.dir 与 spool.pattern 不允许为空")
		}
	}
	if c.Submissions.Enable {
		if c.Submissions.Dir == "" || c.Submissions.Basename == "" || c.Submissions.FileMinutes <= 0 {
			return fmt.Errorf("收集配置校验失败: submissions 启用时 dir/basename/file_minutes 必须完整")
		}
	}
	return nil
}

// AdminConfig 管理面服务配置
type AdminConfig struct {
	Listen   string    `mapstructure:"listen"` // 如 :8080
	MongoURI string    `mapstructure:"mongo_uri"`
	Database string    `mapstructure:"database"`
	Log      LogConfig `mapstructure:"log"`
}

// Validate 校验管理面配置
func (a AdminConfig) Validate() error {
	if a.Listen == "" {
		return fmt.Errorf("管理面配置校验失败: listen 不允许为空")
	}
	if a.MongoURI == "" || a.Database == "" {
		return fmt.Errorf("管理面配置校验失败: mongo_uri 与 database 不允许为空")
	}
	return nil
}

// loadViper 遍历配置目录及其子目录，合并所有 yaml 文件
func loadViper(configDir string) (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::")) // 默认的 . 会和 IP 地址冲突
	v.AddConfigPath(configDir)
	v.AutomaticEnv()
	err := filepath.WalkDir(configDir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("访问路径 %s 失败: %w", filePath, err)
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(filePath)
		if ext == ".yaml" || ext == ".yml" {
			v.SetConfigFile(filePath)
			if err := v.MergeInConfig(); err != nil {
				return fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// LoadAcquirerConfig 加载并校验采集进程配置
func LoadAcquirerConfig(configDir string) (*AcquirerConfig, error) {
	v, err := loadViper(configDir)
	if err != nil {
		return nil, err
	}
	var cfg AcquirerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("反序列化配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAdminConfig 加载并校验管理面配置
func LoadAdminConfig(configDir string) (*AdminConfig, error) {
	v, err := loadViper(configDir)
	if err != nil {
		return nil, err
	}
	var cfg AdminConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("反序列化配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCollectorConfig 加载并校验收集进程配置
func LoadCollectorConfig(configDir string) (*CollectorConfig, error) {
	v, err := loadViper(configDir)
	if err != nil {
		return nil, err
	}
	var cfg CollectorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("反序列化配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
