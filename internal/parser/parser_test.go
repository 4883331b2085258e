package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

func testStream() pkg.StreamConfig {
	return pkg.StreamConfig{
		Items:     "temperature,salinity,x,inst_time",
		Formats:   "f,f,x,%H:%M:%S",
		Units:     "degC,PSU,x,x",
		AcqTypes:  "CTD,CTD,x,x",
		Delimiter: ",",
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
}

func newTestParser(t *testing.T, cfg pkg.StreamConfig, delaySecs int) *Parser {
	t.Helper()
	schema, err := CompileSchema(cfg)
	require.NoError(t, err)
	p := New(schema, "vessel-1", "ctd-1", delaySecs, zap.NewNop())
	p.now = fixedNow
	return p
}

func TestCompileSchemaRejectsBadConfig(t *testing.T) {
	bad := testStream()
	bad.Formats = "f,q,x,%H:%M:%S"
	_, err := CompileSchema(bad)
	assert.Error(t, err, "不可识别的格式码应当在编译期失败")

	short := testStream()
	short.Units = "degC,PSU"
	_, err = CompileSchema(short)
	assert.Error(t, err, "列数不齐应当在编译期失败")

	noDelim := testStream()
	noDelim.Delimiter = ""
	_, err = CompileSchema(noDelim)
	assert.Error(t, err)
}

func TestTranslateTimeFormat(t *testing.T) {
	layout, err := translateTimeFormat("%H:%M:%S")
	require.NoError(t, err)
	assert.Equal(t, "15:04:05", layout)

	layout, err = translateTimeFormat("%Y-%m-%d %H:%M:%S")
	require.NoError(t, err)
	assert.Equal(t, "2006-01-02 15:04:05", layout)

	_, err = translateTimeFormat("%Q")
	assert.Error(t, err)

	_, err = translateTimeFormat("%H:%")
	assert.Error(t, err)
}

func TestParseLineProducesRecords(t *testing.T) {
	p := newTestParser(t, testStream(), 2)

	results, err := p.ParseLine("12.3,45.6,x,08:00:00")
	require.NoError(t, err)
	require.Len(t, results, 2)

	temp := results[0]
	require.True(t, temp.OK())
	assert.Equal(t, "temperature", temp.Record.Parameter)
	assert.Equal(t, "degC", temp.Record.Unit)
	assert.Equal(t, "CTD", temp.Record.AcquisitionType)
	v, ok := temp.Record.Datum.Num()
	require.True(t, ok)
	assert.Equal(t, 12.3, v)

	// sample_time = acquisition_time - measurement_delay
	assert.Equal(t, fixedNow(), temp.Record.AcquisitionTime)
	assert.Equal(t, fixedNow().Add(-2*time.Second), temp.Record.SampleTime)

	// inst_time 只有时间，锚定到当前日期
	require.NotNil(t, temp.Record.InstrumentTime)
	assert.Equal(t, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC), *temp.Record.InstrumentTime)

	sal := results[1]
	require.True(t, sal.OK())
	v, ok = sal.Record.Datum.Num()
	require.True(t, ok)
	assert.Equal(t, 45.6, v)
}

func TestParseLineBadItemDropsOnlyThatColumn(t *testing.T) {
	p := newTestParser(t, testStream(), 0)

	results, err := p.ParseLine("abc,45.6,x,08:00:00")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].OK())
	assert.Contains(t, results[0].Err.Error(), "bad item temperature=abc")
	assert.True(t, results[1].OK(), "同一行的其余列照常产出")

	records := Records(results)
	require.Len(t, records, 1)
	assert.Equal(t, "salinity", records[0].Parameter)
}

func TestParseLineColumnCountMismatch(t *testing.T) {
	p := newTestParser(t, testStream(), 0)
	_, err := p.ParseLine("12.3,45.6")
	assert.Error(t, err, "列数不符是行级失败")
}

func TestMidnightRollover(t *testing.T) {
	p := newTestParser(t, testStream(), 0)

	// 已知设备缺陷：24:00:05 表示次日 00:00:05
	results, err := p.ParseLine("1.0,2.0,x,24:00:05")
	require.NoError(t, err)
	require.True(t, results[0].OK())
	require.NotNil(t, results[0].Record.InstrumentTime)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 5, 0, time.UTC), *results[0].Record.InstrumentTime)
}

func TestDateTimeColumnRollover(t *testing.T) {
	cfg := pkg.StreamConfig{
		Items:     "pressure,inst_datetime",
		Formats:   "f,%Y-%m-%d %H:%M:%S",
		Units:     "dbar,x",
		AcqTypes:  "CTD,x",
		Delimiter: ",",
	}
	p := newTestParser(t, cfg, 0)

	results, err := p.ParseLine("10.5,2026-03-05 24:00:00")
	require.NoError(t, err)
	require.True(t, results[0].OK())
	require.NotNil(t, results[0].Record.InstrumentTime)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), *results[0].Record.InstrumentTime)
}

func TestDateAndTimeColumnsCombine(t *testing.T) {
	cfg := pkg.StreamConfig{
		Items:     "pressure,inst_date,inst_time",
		Formats:   "f,%Y-%m-%d,%H:%M:%S",
		Units:     "dbar,x,x",
		AcqTypes:  "CTD,x,x",
		Delimiter: ",",
	}
	p := newTestParser(t, cfg, 0)

	results, err := p.ParseLine("10.5,2025-12-31,23:59:59")
	require.NoError(t, err)
	require.NotNil(t, results[0].Record.InstrumentTime)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), *results[0].Record.InstrumentTime)
}

func TestHexFormat(t *testing.T) {
	cfg := pkg.StreamConfig{
		Items:     "status",
		Formats:   "h",
		Units:     "x",
		AcqTypes:  "STATUS",
		Delimiter: ",",
	}
	p := newTestParser(t, cfg, 0)

	results, err := p.ParseLine("1F")
	require.NoError(t, err)
	require.True(t, results[0].OK())
	v, _ := results[0].Record.Datum.Num()
	assert.Equal(t, 31.0, v)

	results, err = p.ParseLine("0x1F")
	require.NoError(t, err)
	require.True(t, results[0].OK())
	v, _ = results[0].Record.Datum.Num()
	assert.Equal(t, 31.0, v)
}

func TestStringFormat(t *testing.T) {
	cfg := pkg.StreamConfig{
		Items:     "flag",
		Formats:   "s",
		Units:     "x",
		AcqTypes:  "STATUS",
		Delimiter: ",",
	}
	p := newTestParser(t, cfg, 0)

	results, err := p.ParseLine("OK-42")
	require.NoError(t, err)
	s, ok := results[0].Record.Datum.Str()
	require.True(t, ok)
	assert.Equal(t, "OK-42", s)
}
