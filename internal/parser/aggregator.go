package parser

import (
	"sort"
	"time"

	"vandaq/internal/pkg"
)

// itemBuffer 单个参数在当前时间窗内累积的采样
type itemBuffer struct {
	unit    string
	acqType string
	nums    []float64
	texts   []string
	textual bool
}

// Aggregator 时间窗聚合器：不立即发射记录，而是按参数缓冲采样，
// 每当距上次冲刷满 aggregate_secs 时按配置的聚合方式各发射一条记录
// 发射记录的 InstrumentTime 为刚结束窗口的起点（当前时刻减窗宽）
type Aggregator struct {
	window           time.Duration
	ops              map[string]string
	platform         string
	instrument       string
	measurementDelay time.Duration
	buffers          map[string]*itemBuffer
	lastFlush        time.Time
	now              func() time.Time
}

// NewAggregator 构造聚合器，首个窗口从构造时刻开始计
func NewAggregator(cfg pkg.AggregateConfig, platform, instrument string, measurementDelaySecs int) *Aggregator {
	a := &Aggregator{
		window:           time.Duration(cfg.Seconds) * time.Second,
		ops:              cfg.Ops,
		platform:         platform,
		instrument:       instrument,
		measurementDelay: time.Duration(measurementDelaySecs) * time.Second,
		buffers:          make(map[string]*itemBuffer),
		now:              time.Now,
	}
	a.lastFlush = a.now()
	return a
}

// Add 把一批解析出的记录并入窗口缓冲
func (a *Aggregator) Add(records []pkg.MeasurementRecord) {
	for _, r := range records {
		buf, ok := a.buffers[r.Parameter]
		if !ok {
			buf = &itemBuffer{unit: r.Unit, acqType: r.AcquisitionType}
			a.buffers[r.Parameter] = buf
		}
		if v, ok := r.Datum.Num(); ok {
			buf.nums = append(buf.nums, v)
		} else if s, ok := r.Datum.Str(); ok {
			buf.textual = true
			buf.texts = append(buf.texts, s)
		}
	}
}

// Due 当前窗口是否已届满
func (a *Aggregator) Due() bool {
	return a.now().Sub(a.lastFlush) >= a.window
}

// Flush 结算当前窗口：每个有采样的参数发射一条记录并清空其缓冲
// 窗内无采样的参数直接跳过，不发射空记录
func (a *Aggregator) Flush() []pkg.MeasurementRecord {
	flushTime := a.now().Truncate(time.Second)
	windowStart := flushTime.Add(-a.window)
	sampleTime := flushTime.Add(-a.measurementDelay)

	// 按参数名排序，保证发射顺序稳定
	names := make([]string, 0, len(a.buffers))
	for name, buf := range a.buffers {
		if len(buf.nums) > 0 || len(buf.texts) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	records := make([]pkg.MeasurementRecord, 0, len(names))
	for _, name := range names {
		buf := a.buffers[name]
		op := a.ops[name]
		if op == "" {
			op = "last"
		}
		instTime := windowStart
		records = append(records, pkg.MeasurementRecord{
			Platform:        a.platform,
			Instrument:      a.instrument,
			Parameter:       name,
			Unit:            buf.unit,
			AcquisitionType: buf.acqType,
			AcquisitionTime: flushTime,
			SampleTime:      sampleTime,
			InstrumentTime:  &instTime,
			Datum:           aggregate(buf, op),
		})
		buf.nums = buf.nums[:0]
		buf.texts = buf.texts[:0]
	}
	a.lastFlush = a.now()
	return records
}

// aggregate 对缓冲采样执行聚合。文本型只支持 first/last，其余方式按 last 处理
func aggregate(buf *itemBuffer, op string) pkg.Datum {
	if buf.textual {
		switch op {
		case "first":
			return pkg.Text(buf.texts[0])
		default:
			return pkg.Text(buf.texts[len(buf.texts)-1])
		}
	}
	switch op {
	case "mean":
		sum := 0.0
		for _, v := range buf.nums {
			sum += v
		}
		return pkg.Numeric(sum / float64(len(buf.nums)))
	case "min":
		m := buf.nums[0]
		for _, v := range buf.nums[1:] {
			if v < m {
				m = v
			}
		}
		return pkg.Numeric(m)
	case "max":
		m := buf.nums[0]
		for _, v := range buf.nums[1:] {
			if v > m {
				m = v
			}
		}
		return pkg.Numeric(m)
	case "first":
		return pkg.Numeric(buf.nums[0])
	default: // last
		return pkg.Numeric(buf.nums[len(buf.nums)-1])
	}
}
