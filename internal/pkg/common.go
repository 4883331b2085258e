package pkg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DatumKind 标识测量值的类型
type DatumKind int

const (
	DatumNone    DatumKind = iota // 无测量值（如纯报警记录）
	DatumNumeric                  // 数值型
	DatumText                     // 文本型
)

// Datum 是测量值的和类型：数值与文本二选一，不允许同时存在
type Datum struct {
	kind DatumKind
	num  float64
	text string
}

// Numeric 构造一个数值型 Datum
func Numeric(v float64) Datum {
	return Datum{kind: DatumNumeric, num: v}
}

// Text 构造一个文本型 Datum
func Text(s string) Datum {
	return Datum{kind: DatumText, text: s}
}

// Kind 返回值类型
func (d Datum) Kind() DatumKind { return d.kind }

// Num 返回数值，仅当 Kind 为 DatumNumeric 时有效
func (d Datum) Num() (float64, bool) {
	return d.num, d.kind == DatumNumeric
}

// Str 返回文本，仅当 Kind 为 DatumText 时有效
func (d Datum) Str() (string, bool) {
	return d.text, d.kind == DatumText
}

// MarshalJSON 数值型输出 {"value":v}，文本型输出 {"string":s}，无值输出 null
// 供 kafka 等 JSON 外发通道使用
func (d Datum) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case DatumNumeric:
		return json.Marshal(map[string]float64{"value": d.num})
	case DatumText:
		return json.Marshal(map[string]string{"string": d.text})
	default:
		return []byte("null"), nil
	}
}

func (d Datum) String() string {
	switch d.kind {
	case DatumNumeric:
		return fmt.Sprintf("%g", d.num)
	case DatumText:
		return d.text
	default:
		return "<none>"
	}
}

// AlarmEvent 代表一条测量记录上触发的报警
type AlarmEvent struct {
	Level        string // 报警级别
	Type         string // 报警类型
	Message      string // 报警消息
	DataImpacted bool   // 触发时同位置的测量值是否不可信
}

// MeasurementRecord 是采集器与收集器之间传递的规范测量记录
// SampleTime 与 AcquisitionTime 恒存在；InstrumentTime 仅当设备上报了时间字段时存在
type MeasurementRecord struct {
	Platform        string
	Instrument      string
	Parameter       string
	Unit            string
	AcquisitionType string
	AcquisitionTime time.Time  // 采集进程产生记录的时刻（秒精度）
	SampleTime      time.Time  // AcquisitionTime - measurement_delay
	InstrumentTime  *time.Time // 设备自身时钟，可缺省
	Datum           Datum
	Alarms          []AlarmEvent
}

func (r MeasurementRecord) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record(%s/%s %s=%s %s", r.Platform, r.Instrument, r.Parameter, r.Datum, r.Unit)
	fmt.Fprintf(&b, " sample=%s", r.SampleTime.Format(time.RFC3339))
	if r.InstrumentTime != nil {
		fmt.Fprintf(&b, " inst=%s", r.InstrumentTime.Format(time.RFC3339))
	}
	if len(r.Alarms) > 0 {
		fmt.Fprintf(&b, " alarms=%d", len(r.Alarms))
	}
	b.WriteString(")")
	return b.String()
}

// RecordBatch 是一次解析/聚合周期产出的记录组，作为队列传输的基本单元
// 组内记录的顺序在传输全程保持不变
type RecordBatch struct {
	BatchID    string // uuid，用于日志关联
	Platform   string
	Instrument string
	Records    []MeasurementRecord
}
