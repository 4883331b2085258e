package alarm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vandaq/internal/pkg"
)

func numRec(param string, v float64) pkg.MeasurementRecord {
	return pkg.MeasurementRecord{
		Platform:   "vessel-1",
		Instrument: "ctd-1",
		Parameter:  param,
		Datum:      pkg.Numeric(v),
	}
}

func textRec(param, s string) pkg.MeasurementRecord {
	return pkg.MeasurementRecord{
		Platform:   "vessel-1",
		Instrument: "ctd-1",
		Parameter:  param,
		Datum:      pkg.Text(s),
	}
}

func TestCompileRulesRejectsBadRules(t *testing.T) {
	_, err := CompileRules([]Rule{{Parameter: "", Condition: CondValueLT}})
	assert.Error(t, err, "缺参数名整体失败")

	_, err = CompileRules([]Rule{{Parameter: "t", Condition: "value_ne"}})
	assert.Error(t, err, "未知条件类型整体失败")

	_, err = CompileRules([]Rule{{Parameter: "t", Condition: CondStringRangeEQ, RangeStart: 3, RangeEnd: 2}})
	assert.Error(t, err, "非法文本区间整体失败")

	_, err = CompileRules([]Rule{{Parameter: "t", Condition: CondExpr, Expr: "value >"}})
	assert.Error(t, err, "表达式编译失败整体失败")
}

func TestEvaluateNumericConditions(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{Parameter: "temperature", Condition: CondValueGT, Bound: 30, Level: "critical", Type: "range", Message: "过热"},
		{Parameter: "temperature", Condition: CondValueLT, Bound: -5, Level: "critical", Type: "range", Message: "过冷"},
		{Parameter: "status_code", Condition: CondValueEQ, Bound: 255, Level: "warning", Type: "device", Message: "设备自检失败"},
	})
	require.NoError(t, err)

	out := Evaluate([]pkg.MeasurementRecord{
		numRec("temperature", 31),
		numRec("temperature", 20),
		numRec("temperature", -6),
		numRec("status_code", 255),
		numRec("salinity", 99), // 无规则参数原样通过
	}, rules)

	require.Len(t, out[0].Alarms, 1)
	assert.Equal(t, "过热", out[0].Alarms[0].Message)
	assert.True(t, out[0].Alarms[0].DataImpacted, "data_impacted 缺省为 true")

	assert.Empty(t, out[1].Alarms)

	require.Len(t, out[2].Alarms, 1)
	assert.Equal(t, "过冷", out[2].Alarms[0].Message)

	require.Len(t, out[3].Alarms, 1)
	assert.Equal(t, "warning", out[3].Alarms[0].Level)

	assert.Empty(t, out[4].Alarms)
}

func TestEvaluateMultipleHitsDoNotShortCircuit(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{Parameter: "temperature", Condition: CondValueGT, Bound: 10, Level: "warning", Type: "range", Message: "偏高"},
		{Parameter: "temperature", Condition: CondValueGT, Bound: 30, Level: "critical", Type: "range", Message: "超限"},
	})
	require.NoError(t, err)

	out := Evaluate([]pkg.MeasurementRecord{numRec("temperature", 35)}, rules)
	require.Len(t, out[0].Alarms, 2)
}

func TestEvaluateStringRange(t *testing.T) {
	impacted := false
	rules, err := CompileRules([]Rule{
		{
			Parameter: "nmea", Condition: CondStringRangeEQ,
			RangeStart: 0, RangeEnd: 6, Expect: "$GPGGA",
			Level: "info", Type: "format", Message: "GGA 语句", DataImpacted: &impacted,
		},
	})
	require.NoError(t, err)

	out := Evaluate([]pkg.MeasurementRecord{
		textRec("nmea", "$GPGGA,123519,4807.038,N"),
		textRec("nmea", "$GPRMC,123519"),
		textRec("nmea", "$GP"), // 比区间还短，不命中也不越界
		numRec("nmea", 1),      // 数值记录不参与文本条件
	}, rules)

	require.Len(t, out[0].Alarms, 1)
	assert.False(t, out[0].Alarms[0].DataImpacted)
	assert.Empty(t, out[1].Alarms)
	assert.Empty(t, out[2].Alarms)
	assert.Empty(t, out[3].Alarms)
}

func TestEvaluateExprCondition(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{
			Parameter: "depth", Condition: CondExpr,
			Expr:  `has_value && (value < 0 || value > 11000)`,
			Level: "critical", Type: "sanity", Message: "深度超出物理范围",
		},
	})
	require.NoError(t, err)

	out := Evaluate([]pkg.MeasurementRecord{
		numRec("depth", -1),
		numRec("depth", 4000),
		textRec("depth", "n/a"), // has_value=false
	}, rules)

	require.Len(t, out[0].Alarms, 1)
	assert.Empty(t, out[1].Alarms)
	assert.Empty(t, out[2].Alarms)
}

func TestLoadRulesFile(t *testing.T) {
	content := `
rules:
  - parameter: temperature
    condition: value_gt
    bound: 30
    alarm_level: critical
    alarm_type: range
    alarm_message: 过热
  - parameter: nmea
    condition: string_range_eq
    range_start: 0
    range_end: 6
    expect: "$GPGGA"
    alarm_level: info
    alarm_type: format
    alarm_message: GGA
    data_impacted: false
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules["temperature"], 1)
	require.Len(t, rules["nmea"], 1)
	assert.Equal(t, 6, rules["nmea"][0].RangeEnd)

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
