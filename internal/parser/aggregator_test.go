package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vandaq/internal/pkg"
)

func rec(param string, v float64) pkg.MeasurementRecord {
	return pkg.MeasurementRecord{
		Platform:        "vessel-1",
		Instrument:      "ctd-1",
		Parameter:       param,
		Unit:            "degC",
		AcquisitionType: "CTD",
		Datum:           pkg.Numeric(v),
	}
}

func newTestAggregator(ops map[string]string, windowSecs int) (*Aggregator, *time.Time) {
	start := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	clock := start
	a := NewAggregator(pkg.AggregateConfig{Seconds: windowSecs, Ops: ops}, "vessel-1", "ctd-1", 0)
	a.now = func() time.Time { return clock }
	a.lastFlush = start
	return a, &clock
}

func TestAggregatorOps(t *testing.T) {
	ops := map[string]string{
		"temperature": "mean",
		"pressure":    "min",
		"depth":       "max",
		"heading":     "first",
		"speed":       "last",
	}
	a, clock := newTestAggregator(ops, 60)

	for i, v := range []float64{10, 20, 30} {
		a.Add([]pkg.MeasurementRecord{
			rec("temperature", v),
			rec("pressure", v),
			rec("depth", v),
			rec("heading", v),
			rec("speed", v),
		})
		_ = i
	}

	assert.False(t, a.Due())
	*clock = clock.Add(60 * time.Second)
	require.True(t, a.Due())

	records := a.Flush()
	require.Len(t, records, 5)

	byName := map[string]pkg.MeasurementRecord{}
	for _, r := range records {
		byName[r.Parameter] = r
	}
	get := func(name string) float64 {
		v, ok := byName[name].Datum.Num()
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, 20.0, get("temperature"))
	assert.Equal(t, 10.0, get("pressure"))
	assert.Equal(t, 30.0, get("depth"))
	assert.Equal(t, 10.0, get("heading"))
	assert.Equal(t, 30.0, get("speed"))
}

func TestAggregatorInstrumentTimeIsWindowStart(t *testing.T) {
	a, clock := newTestAggregator(map[string]string{"temperature": "mean"}, 60)
	a.Add([]pkg.MeasurementRecord{rec("temperature", 1)})

	*clock = clock.Add(60 * time.Second)
	records := a.Flush()
	require.Len(t, records, 1)

	require.NotNil(t, records[0].InstrumentTime)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), *records[0].InstrumentTime)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 1, 0, 0, time.UTC), records[0].AcquisitionTime)
}

func TestAggregatorSkipsEmptyItems(t *testing.T) {
	a, clock := newTestAggregator(map[string]string{"temperature": "mean", "salinity": "mean"}, 60)

	// 只有 temperature 有采样
	a.Add([]pkg.MeasurementRecord{rec("temperature", 5)})
	*clock = clock.Add(60 * time.Second)

	records := a.Flush()
	require.Len(t, records, 1)
	assert.Equal(t, "temperature", records[0].Parameter)

	// 上个窗口发射过的参数，这个窗口没采样就不再发射
	*clock = clock.Add(60 * time.Second)
	assert.Empty(t, a.Flush())
}

func TestAggregatorTextLast(t *testing.T) {
	a, clock := newTestAggregator(map[string]string{}, 60)
	a.Add([]pkg.MeasurementRecord{
		{Platform: "p", Instrument: "i", Parameter: "flag", Datum: pkg.Text("A")},
		{Platform: "p", Instrument: "i", Parameter: "flag", Datum: pkg.Text("B")},
	})

	*clock = clock.Add(60 * time.Second)
	records := a.Flush()
	require.Len(t, records, 1)
	s, ok := records[0].Datum.Str()
	require.True(t, ok)
	assert.Equal(t, "B", s)
}
