package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// ItemResult 是单列的解析结果：要么是一条记录，要么是带上下文的错误
// 一列失败只丢弃该列，同一行的其余列照常产出
type ItemResult struct {
	Item   string // 列名
	Raw    string // 原始字段内容
	Record pkg.MeasurementRecord
	Err    error
}

// OK 该列是否成功产出记录
func (r ItemResult) OK() bool { return r.Err == nil }

// Parser 按照编译后的行结构把分隔字符串解析为规范测量记录
type Parser struct {
	schema           *Schema
	platform         string
	instrument       string
	measurementDelay time.Duration
	logger           *zap.Logger
	now              func() time.Time // 便于测试注入
}

// New 构造一个行解析器
func New(schema *Schema, platform, instrument string, measurementDelaySecs int, logger *zap.Logger) *Parser {
	return &Parser{
		schema:           schema,
		platform:         platform,
		instrument:       instrument,
		measurementDelay: time.Duration(measurementDelaySecs) * time.Second,
		logger:           logger,
		now:              time.Now,
	}
}

// ParseLine 解析一行仪器输出
// 返回 error 表示行级失败（列数不符），此时不产出任何结果；
// 单列的失败进入对应 ItemResult.Err
func (p *Parser) ParseLine(line string) ([]ItemResult, error) {
	parts := strings.Split(strings.TrimSpace(line), p.schema.delimiter)
	if len(parts) != p.schema.numItems {
		return nil, fmt.Errorf("行列数不符: 期望 %d 实际 %d, line=%q", p.schema.numItems, len(parts), line)
	}

	instTime := p.reconstructInstrumentTime(parts, line)

	acquisitionTime := p.now().Truncate(time.Second)
	sampleTime := acquisitionTime.Add(-p.measurementDelay)

	results := make([]ItemResult, 0, p.schema.numItems)
	for i, c := range p.schema.columns {
		if c.role != roleParam {
			continue
		}
		res := ItemResult{Item: c.name, Raw: parts[i]}
		datum, err := parseDatum(c.format, parts[i])
		if err != nil {
			res.Err = fmt.Errorf("bad item %s=%s in line %q: %w", c.name, parts[i], line, err)
			p.logger.Error("解析字段失败",
				zap.String("item", c.name), zap.String("raw", parts[i]), zap.String("line", line), zap.Error(err))
			results = append(results, res)
			continue
		}
		res.Record = pkg.MeasurementRecord{
			Platform:        p.platform,
			Instrument:      p.instrument,
			Parameter:       c.name,
			Unit:            c.unit,
			AcquisitionType: c.acqType,
			AcquisitionTime: acquisitionTime,
			SampleTime:      sampleTime,
			InstrumentTime:  instTime,
			Datum:           datum,
		}
		results = append(results, res)
	}
	return results, nil
}

// Records 收集成功的记录，保持行内顺序
func Records(results []ItemResult) []pkg.MeasurementRecord {
	records := make([]pkg.MeasurementRecord, 0, len(results))
	for _, r := range results {
		if r.OK() {
			records = append(records, r.Record)
		}
	}
	return records
}

// parseDatum 按格式码解析单个字段值
func parseDatum(format, raw string) (pkg.Datum, error) {
	switch format {
	case "f":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return pkg.Datum{}, err
		}
		return pkg.Numeric(v), nil
	case "h":
		// 十六进制整数，缺少 0x 前缀时补上，解析后转浮点
		s := raw
		if !strings.Contains(strings.ToLower(s), "0x") {
			s = "0x" + s
		}
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return pkg.Datum{}, err
		}
		return pkg.Numeric(float64(v)), nil
	case "s":
		return pkg.Text(raw), nil
	default:
		return pkg.Datum{}, fmt.Errorf("格式码 %q 不可识别", format)
	}
}

// reconstructInstrumentTime 从时间列重建设备时间
// 已知设备缺陷：某些仪器会输出 24:00:00 表示次日零点，
// 检测到 "24:" 前缀时改写为 "00:" 并将日期加一天。时间统一截断到整秒
func (p *Parser) reconstructInstrumentTime(parts []string, line string) *time.Time {
	var (
		datePart *time.Time
		timePart *time.Time
		instTime *time.Time
		nextDay  bool
	)
	for i, c := range p.schema.columns {
		raw := parts[i]
		switch c.role {
		case roleDate:
			parsed, err := time.Parse(c.layout, raw)
			if err != nil {
				p.logger.Error("解析日期列失败", zap.String("raw", raw), zap.String("line", line), zap.Error(err))
				continue
			}
			datePart = &parsed
		case roleTime:
			if strings.HasPrefix(raw, "24:") {
				raw = "00:" + raw[3:]
				nextDay = true
			}
			parsed, err := time.Parse(c.layout, raw)
			if err != nil {
				p.logger.Error("解析时间列失败", zap.String("raw", raw), zap.String("line", line), zap.Error(err))
				continue
			}
			timePart = &parsed
		case roleDateTime:
			addDay := false
			if strings.Contains(raw, " 24:") {
				raw = strings.Replace(raw, " 24:", " 00:", 1)
				addDay = true
			}
			parsed, err := time.Parse(c.layout, raw)
			if err != nil {
				p.logger.Error("解析日期时间列失败", zap.String("raw", raw), zap.String("line", line), zap.Error(err))
				continue
			}
			if addDay {
				parsed = parsed.AddDate(0, 0, 1)
			}
			parsed = parsed.Truncate(time.Second)
			instTime = &parsed
		}
	}
	if instTime != nil {
		return instTime
	}
	if timePart == nil {
		return nil
	}
	// 只有时间列时以当前日期为锚
	anchor := p.now()
	if datePart != nil {
		anchor = *datePart
	}
	if nextDay {
		anchor = anchor.AddDate(0, 0, 1)
	}
	combined := time.Date(anchor.Year(), anchor.Month(), anchor.Day(),
		timePart.Hour(), timePart.Minute(), timePart.Second(), 0, anchor.Location())
	return &combined
}
