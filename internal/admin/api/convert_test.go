package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vandaq/internal/admin/model"
	"vandaq/internal/alarm"
	"vandaq/internal/parser"
)

func TestToAlarmRulesCompiles(t *testing.T) {
	impacted := false
	doc := []model.AlarmRule{
		{
			Parameter:    "temperature",
			Condition:    "value_gt",
			Bound:        30,
			AlarmLevel:   "critical",
			AlarmType:    "range",
			AlarmMessage: "过热",
		},
		{
			Parameter:    "nmea",
			Condition:    "string_range_eq",
			RangeStart:   0,
			RangeEnd:     6,
			Expect:       "$GPGGA",
			AlarmLevel:   "info",
			AlarmType:    "format",
			AlarmMessage: "GGA",
			DataImpacted: &impacted,
		},
	}

	rules := toAlarmRules(doc)
	require.Len(t, rules, 2)
	assert.Equal(t, alarm.CondValueGT, rules[0].Condition)
	require.NotNil(t, rules[1].DataImpacted)
	assert.False(t, *rules[1].DataImpacted)

	// 文档形态的规则能原样通过采集侧编译
	set, err := alarm.CompileRules(rules)
	require.NoError(t, err)
	assert.Len(t, set["temperature"], 1)
}

func TestToAlarmRulesSurfacesBadRule(t *testing.T) {
	doc := []model.AlarmRule{{Parameter: "t", Condition: "value_ne"}}
	_, err := alarm.CompileRules(toAlarmRules(doc))
	assert.Error(t, err, "坏规则在入库前被编译校验拦下")
}

func TestToStreamConfigCompiles(t *testing.T) {
	doc := model.StreamSchema{
		Name:      "ctd-standard",
		Items:     "temperature,salinity,x,inst_time",
		Formats:   "f,f,x,%H:%M:%S",
		Units:     "degC,PSU,x,x",
		AcqTypes:  "CTD,CTD,x,x",
		Delimiter: ",",
	}
	_, err := parser.CompileSchema(toStreamConfig(doc))
	assert.NoError(t, err)

	doc.Formats = "f,f,x"
	_, err = parser.CompileSchema(toStreamConfig(doc))
	assert.Error(t, err, "列数不齐的行结构在入库前被拦下")
}
