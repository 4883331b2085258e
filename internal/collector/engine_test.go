package collector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vandaq/internal/pkg"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 文件库而不是 :memory:：gorm 连接池的每个连接都要看到同一个库
	path := filepath.Join(t.TempDir(), "warehouse.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func newTestEngine(t *testing.T, db *gorm.DB) *Engine {
	t.Helper()
	dims, err := NewDimCache(db, nil)
	require.NoError(t, err)
	times := NewTimeCache(db, 5, nil)
	cfg := pkg.WarehouseConfig{InsertBatchSeconds: 10, CacheTimeSeconds: 5, MaxBatchRecords: 1000}
	return NewEngine(db, dims, times, cfg, nil, zap.NewNop())
}

func baseRecord(param, unit, acqType string, ts time.Time, d pkg.Datum) pkg.MeasurementRecord {
	return pkg.MeasurementRecord{
		Platform:        "vessel-1",
		Instrument:      "ctd-1",
		Parameter:       param,
		Unit:            unit,
		AcquisitionType: acqType,
		AcquisitionTime: ts,
		SampleTime:      ts,
		Datum:           d,
	}
}

func TestDimCacheIdempotent(t *testing.T) {
	db := openTestDB(t)
	dims, err := NewDimCache(db, nil)
	require.NoError(t, err)

	id1, err := dims.Platform("vessel-1")
	require.NoError(t, err)
	id2, err := dims.Platform("vessel-1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var count int64
	require.NoError(t, db.Model(&DimPlatform{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 新缓存实例预载已有行，拿到同一个 id 而不是再建一行
	dims2, err := NewDimCache(db, nil)
	require.NoError(t, err)
	id3, err := dims2.Platform("vessel-1")
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
	require.NoError(t, db.Model(&DimPlatform{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTimeCacheDenseFill(t *testing.T) {
	db := openTestDB(t)
	times := NewTimeCache(db, 5, nil)

	ts := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	id, err := times.GetOrCreate(ts)
	require.NoError(t, err)
	require.NotZero(t, id)

	// 预取窗口 [ts-5s, ts+5s] 内每一个整秒恰有一行
	var count int64
	require.NoError(t, db.Model(&DimTime{}).Count(&count).Error)
	assert.Equal(t, int64(11), count)

	// 窗内的查询全部命中缓存，不再建行
	id2, err := times.GetOrCreate(ts.Add(3 * time.Second))
	require.NoError(t, err)
	require.NotZero(t, id2)
	require.NoError(t, db.Model(&DimTime{}).Count(&count).Error)
	assert.Equal(t, int64(11), count)

	// 重叠窗口只补缺失的秒，不产生重复行
	fresh := NewTimeCache(db, 5, nil)
	_, err = fresh.GetOrCreate(ts.Add(4 * time.Second))
	require.NoError(t, err)
	require.NoError(t, db.Model(&DimTime{}).Count(&count).Error)
	assert.Equal(t, int64(15), count)

	var dup int64
	require.NoError(t, db.Model(&DimTime{}).
		Where("time = ?", ts).Count(&dup).Error)
	assert.Equal(t, int64(1), dup)
}

func TestEngineInsertsMeasurementsAndAlarms(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db)

	ts := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	numeric := baseRecord("temperature", "degC", "CTD", ts, pkg.Numeric(31.5))
	numeric.Alarms = []pkg.AlarmEvent{
		{Level: "critical", Type: "range", Message: "过热", DataImpacted: true},
	}
	textual := baseRecord("status", "x", "STATUS", ts, pkg.Text("OK"))
	alarmOnly := baseRecord("temperature", "degC", "CTD", ts, pkg.Datum{})
	alarmOnly.Alarms = []pkg.AlarmEvent{
		{Level: "warning", Type: "device", Message: "校验和错误", DataImpacted: false},
	}

	e.ProcessRecords([]pkg.MeasurementRecord{numeric, textual, alarmOnly})

	var measurements []FactMeasurement
	require.NoError(t, db.Order("id").Find(&measurements).Error)
	require.Len(t, measurements, 2, "纯报警记录不产生测量行")

	require.NotNil(t, measurements[0].Value)
	assert.Equal(t, 31.5, *measurements[0].Value)
	assert.Nil(t, measurements[0].String)
	require.NotNil(t, measurements[0].SampleTime)
	assert.True(t, measurements[0].SampleTime.Equal(ts))

	require.NotNil(t, measurements[1].String)
	assert.Equal(t, "OK", *measurements[1].String)
	assert.Nil(t, measurements[1].Value)

	var alarms []FactAlarm
	require.NoError(t, db.Order("id").Find(&alarms).Error)
	require.Len(t, alarms, 2)

	// 有测量行的报警回填 measurement_id 与 parameter_id
	require.NotNil(t, alarms[0].MeasurementID)
	assert.Equal(t, measurements[0].ID, *alarms[0].MeasurementID)
	require.NotNil(t, alarms[0].ParameterID)
	assert.Equal(t, measurements[0].ParameterID, *alarms[0].ParameterID)
	assert.True(t, alarms[0].DataImpacted)

	// 纯报警记录的两个可空外键保持为空
	assert.Nil(t, alarms[1].MeasurementID)
	assert.Nil(t, alarms[1].ParameterID)
	assert.False(t, alarms[1].DataImpacted)

	// 仪器测量向量去重登记
	var catalog int64
	require.NoError(t, db.Model(&InstrumentMeasurement{}).Count(&catalog).Error)
	assert.Equal(t, int64(2), catalog)
}

func TestEngineSplitsSubBatches(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db)

	// 三条记录横跨两个 10 秒时间桶，全部落库
	base := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	e.ProcessRecords([]pkg.MeasurementRecord{
		baseRecord("temperature", "degC", "CTD", base.Add(2*time.Second), pkg.Numeric(1)),
		baseRecord("temperature", "degC", "CTD", base.Add(8*time.Second), pkg.Numeric(2)),
		baseRecord("temperature", "degC", "CTD", base.Add(12*time.Second), pkg.Numeric(3)),
	})

	var count int64
	require.NoError(t, db.Model(&FactMeasurement{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestGeolocationMerge(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db)

	ts := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	lat := baseRecord("latitude", "deg", "GPS", ts, pkg.Numeric(48.117))
	lon := baseRecord("longitude", "deg", "GPS", ts, pkg.Numeric(-4.421))

	// 纬度与经度来自两条独立记录，合并进同一行
	e.ProcessRecords([]pkg.MeasurementRecord{lat, lon})

	var rows []DimGeolocation
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Latitude)
	require.NotNil(t, rows[0].Longitude)
	assert.Equal(t, 48.117, *rows[0].Latitude)
	assert.Equal(t, -4.421, *rows[0].Longitude)

	// 后到的只有纬度的子批不会把已落库的经度抹掉
	lat2 := baseRecord("latitude", "deg", "GPS", ts, pkg.Numeric(48.118))
	e.ProcessRecords([]pkg.MeasurementRecord{lat2})

	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Latitude)
	assert.Equal(t, 48.118, *rows[0].Latitude)
	require.NotNil(t, rows[0].Longitude, "经度分量不被缺失的一边覆盖")
	assert.Equal(t, -4.421, *rows[0].Longitude)
}

func TestGeolocationIgnoresNonGPS(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db)

	ts := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	// 同名参数但采集方式不是 GPS，不进入地理位置表
	rec := baseRecord("latitude", "deg", "CTD", ts, pkg.Numeric(1.0))
	e.ProcessRecords([]pkg.MeasurementRecord{rec})

	var count int64
	require.NoError(t, db.Model(&DimGeolocation{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
