package pkg

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// wireAlarm 是 AlarmEvent 的线上形态
type wireAlarm struct {
	Level        string `cbor:"alarm_level"`
	Type         string `cbor:"alarm_type"`
	Message      string `cbor:"alarm_message"`
	DataImpacted bool   `cbor:"data_impacted"`
}

// wireRecord 是 MeasurementRecord 的线上形态：扁平键值结构，
// value 与 string 互斥且均可缺省。时间戳以 epoch 秒编码，保证秒精度往返
type wireRecord struct {
	Platform        string      `cbor:"platform"`
	Instrument      string      `cbor:"instrument"`
	Parameter       string      `cbor:"parameter"`
	Unit            string      `cbor:"unit"`
	AcquisitionType string      `cbor:"acquisition_type"`
	AcquisitionTime time.Time   `cbor:"acquisition_time"`
	SampleTime      time.Time   `cbor:"sample_time"`
	InstrumentTime  *time.Time  `cbor:"instrument_time,omitempty"`
	Value           *float64    `cbor:"value,omitempty"`
	String          *string     `cbor:"string,omitempty"`
	Alarms          []wireAlarm `cbor:"alarms,omitempty"`
}

// wireBatch 是队列消息的信封
type wireBatch struct {
	BatchID    string       `cbor:"batch_id"`
	Platform   string       `cbor:"platform"`
	Instrument string       `cbor:"instrument"`
	Records    []wireRecord `cbor:"records"`
}

func toWire(r MeasurementRecord) wireRecord {
	w := wireRecord{
		Platform:        r.Platform,
		Instrument:      r.Instrument,
		Parameter:       r.Parameter,
		Unit:            r.Unit,
		AcquisitionType: r.AcquisitionType,
		AcquisitionTime: r.AcquisitionTime,
		SampleTime:      r.SampleTime,
		InstrumentTime:  r.InstrumentTime,
	}
	if v, ok := r.Datum.Num(); ok {
		w.Value = &v
	} else if s, ok := r.Datum.Str(); ok {
		w.String = &s
	}
	for _, a := range r.Alarms {
		w.Alarms = append(w.Alarms, wireAlarm(a))
	}
	return w
}

func fromWire(w wireRecord) MeasurementRecord {
	r := MeasurementRecord{
		Platform:        w.Platform,
		Instrument:      w.Instrument,
		Parameter:       w.Parameter,
		Unit:            w.Unit,
		AcquisitionType: w.AcquisitionType,
		AcquisitionTime: w.AcquisitionTime,
		SampleTime:      w.SampleTime,
		InstrumentTime:  w.InstrumentTime,
	}
	if w.Value != nil {
		r.Datum = Numeric(*w.Value)
	} else if w.String != nil {
		r.Datum = Text(*w.String)
	}
	for _, a := range w.Alarms {
		r.Alarms = append(r.Alarms, AlarmEvent(a))
	}
	return r
}

// EncodeBatch 将记录组编码为 CBOR 字节流
func EncodeBatch(b RecordBatch) ([]byte, error) {
	wb := wireBatch{
		BatchID:    b.BatchID,
		Platform:   b.Platform,
		Instrument: b.Instrument,
		Records:    make([]wireRecord, 0, len(b.Records)),
	}
	for _, r := range b.Records {
		wb.Records = append(wb.Records, toWire(r))
	}
	data, err := cbor.Marshal(wb)
	if err != nil {
		return nil, fmt.Errorf("编码记录组失败: %w", err)
	}
	return data, nil
}

// DecodeBatch 从 CBOR 字节流还原记录组
func DecodeBatch(data []byte) (RecordBatch, error) {
	var wb wireBatch
	if err := cbor.Unmarshal(data, &wb); err != nil {
		return RecordBatch{}, fmt.Errorf("解码记录组失败: %w", err)
	}
	b := RecordBatch{
		BatchID:    wb.BatchID,
		Platform:   wb.Platform,
		Instrument: wb.Instrument,
		Records:    make([]MeasurementRecord, 0, len(wb.Records)),
	}
	for _, w := range wb.Records {
		b.Records = append(b.Records, fromWire(w))
	}
	return b, nil
}

// EncodeBatchList 编码多个记录组（提交文件内容）
func EncodeBatchList(batches []RecordBatch) ([]byte, error) {
	wbs := make([]wireBatch, 0, len(batches))
	for _, b := range batches {
		wb := wireBatch{BatchID: b.BatchID, Platform: b.Platform, Instrument: b.Instrument}
		for _, r := range b.Records {
			wb.Records = append(wb.Records, toWire(r))
		}
		wbs = append(wbs, wb)
	}
	data, err := cbor.Marshal(wbs)
	if err != nil {
		return nil, fmt.Errorf("编码记录组列表失败: %w", err)
	}
	return data, nil
}

// DecodeBatchList 解码多个记录组（提交文件内容）
func DecodeBatchList(data []byte) ([]RecordBatch, error) {
	var wbs []wireBatch
	if err := cbor.Unmarshal(data, &wbs); err != nil {
		return nil, fmt.Errorf("解码记录组列表失败: %w", err)
	}
	batches := make([]RecordBatch, 0, len(wbs))
	for _, wb := range wbs {
		b := RecordBatch{BatchID: wb.BatchID, Platform: wb.Platform, Instrument: wb.Instrument}
		for _, w := range wb.Records {
			b.Records = append(b.Records, fromWire(w))
		}
		batches = append(batches, b)
	}
	return batches, nil
}
